package exchange

import (
	"strconv"
	"time"

	"github.com/gfranca/troca-api/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// GinHandlers contains HTTP handlers for exchange endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for exchange endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateExchangeHandler handles POST requests to open a new exchange
func (h *GinHandlers) CreateExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateExchangeInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exchange, err := h.service.CreateExchange(input)
		response.Handle(c, exchange, err)
	}
}

// GetExchangeHandler handles GET requests for a single aggregate
// URL parameter: exchange_id
func (h *GinHandlers) GetExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.GetExchange(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// ListExchangesHandler handles GET requests for the filtered exchange list
// Query parameters: status, supplier_id, date_from, date_to, filter
func (h *GinHandlers) ListExchangesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := ListFilters{
			Status:     c.Query("status"),
			SupplierID: c.Query("supplier_id"),
			Special:    c.Query("filter"),
		}

		if from := c.Query("date_from"); from != "" {
			t, err := time.Parse(time.RFC3339, from)
			if err != nil {
				response.BadRequest(c, "date_from must be RFC 3339")
				return
			}
			filters.CreatedFrom = &t
		}
		if to := c.Query("date_to"); to != "" {
			t, err := time.Parse(time.RFC3339, to)
			if err != nil {
				response.BadRequest(c, "date_to must be RFC 3339")
				return
			}
			filters.CreatedTo = &t
		}

		exchanges, err := h.service.ListExchanges(filters)
		response.Handle(c, exchanges, err)
	}
}

// UpdateExchangeHandler handles PATCH requests for the direct override path
func (h *GinHandlers) UpdateExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input UpdateExchangeInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exchange, err := h.service.UpdateExchange(c.Param("exchange_id"), input)
		response.Handle(c, exchange, err)
	}
}

// DeleteExchangeHandler handles DELETE requests, cascading to all
// owned sub-records and ledgers
func (h *GinHandlers) DeleteExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.service.DeleteExchange(c.Param("exchange_id"))
		response.Handle(c, gin.H{"deleted": err == nil}, err)
	}
}

// SetBudgetHandler handles POST requests that create or update the budget
func (h *GinHandlers) SetBudgetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input BudgetInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exchange, err := h.service.SetBudget(c.Param("exchange_id"), input)
		response.Handle(c, exchange, err)
	}
}

// ApproveBudgetHandler handles POST requests approving the budget
func (h *GinHandlers) ApproveBudgetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.ApproveBudget(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// CreateDraftInvoiceHandler handles POST requests generating the draft invoice
func (h *GinHandlers) CreateDraftInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			DraftNumber string `json:"draft_number"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exchange, err := h.service.CreateDraftInvoice(c.Param("exchange_id"), input.DraftNumber)
		response.Handle(c, exchange, err)
	}
}

// ApproveDraftInvoiceHandler handles POST requests recording supplier approval
func (h *GinHandlers) ApproveDraftInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.ApproveDraftInvoice(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// IssueReturnInvoiceHandler handles POST requests issuing the return invoice
func (h *GinHandlers) IssueReturnInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			InvoiceNumber string          `json:"invoice_number"`
			InvoiceValue  decimal.Decimal `json:"invoice_value"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exchange, err := h.service.IssueReturnInvoice(c.Param("exchange_id"), input.InvoiceNumber, input.InvoiceValue)
		response.Handle(c, exchange, err)
	}
}

// MarkProductShippedHandler handles POST requests recording the product shipment
func (h *GinHandlers) MarkProductShippedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.MarkProductShipped(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// SetDestinationCollectHandler handles POST requests choosing supplier collection
func (h *GinHandlers) SetDestinationCollectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.SetDestinationCollect(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// SetDestinationDiscardHandler handles POST requests choosing discard
func (h *GinHandlers) SetDestinationDiscardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.SetDestinationDiscard(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// MarkCollectionDoneHandler handles POST requests recording the supplier pickup
func (h *GinHandlers) MarkCollectionDoneHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.MarkCollectionDone(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// MarkDiscardedHandler handles POST requests recording the discard
func (h *GinHandlers) MarkDiscardedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.MarkDiscarded(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// RegisterRestockHandler handles POST requests registering a restock
func (h *GinHandlers) RegisterRestockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RegisterRestockInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exchange, err := h.service.RegisterRestock(c.Param("exchange_id"), input)
		response.Handle(c, exchange, err)
	}
}

// UpdateRestockHandler handles PATCH requests updating an in-flight restock
func (h *GinHandlers) UpdateRestockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input UpdateRestockInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exchange, err := h.service.UpdateRestock(c.Param("exchange_id"), input)
		response.Handle(c, exchange, err)
	}
}

// RegisterDiscountHandler handles POST requests registering a discount
func (h *GinHandlers) RegisterDiscountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			DiscountValue decimal.Decimal `json:"discount_value"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exchange, err := h.service.RegisterDiscount(c.Param("exchange_id"), input.DiscountValue)
		response.Handle(c, exchange, err)
	}
}

// ApplyDiscountHandler handles POST requests applying the discount
func (h *GinHandlers) ApplyDiscountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.ApplyDiscount(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// FinalizeExchangeHandler handles POST requests running the resolution check
func (h *GinHandlers) FinalizeExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.FinalizeExchange(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// ExtendDeadlineHandler handles POST requests postponing the alert deadline
func (h *GinHandlers) ExtendDeadlineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input ExtendDeadlineInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exchange, err := h.service.ExtendDeadline(c.Param("exchange_id"), input)
		response.Handle(c, exchange, err)
	}
}

// RecomputeFinancialsHandler handles POST requests re-deriving the stored
// financial fields, the reconciliation path
func (h *GinHandlers) RecomputeFinancialsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange, err := h.service.RecomputeFinancials(c.Param("exchange_id"))
		response.Handle(c, exchange, err)
	}
}

// HistoryHandler handles GET requests for the audit trail
// Query parameter: limit
func (h *GinHandlers) HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				response.BadRequest(c, "limit must be a non-negative integer")
				return
			}
			limit = parsed
		}

		entries, err := h.service.History(c.Param("exchange_id"), limit)
		response.Handle(c, entries, err)
	}
}

// ExtensionsHandler handles GET requests for the deadline postponements
// Query parameter: limit
func (h *GinHandlers) ExtensionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				response.BadRequest(c, "limit must be a non-negative integer")
				return
			}
			limit = parsed
		}

		extensions, err := h.service.Extensions(c.Param("exchange_id"), limit)
		response.Handle(c, extensions, err)
	}
}
