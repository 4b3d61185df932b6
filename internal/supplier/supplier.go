package supplier

import (
	"time"

	"github.com/gfranca/troca-api/pkg/apperror"
	"github.com/gfranca/troca-api/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service handles supplier registration and lookup
type Service struct {
	db *Database
}

// NewService creates a new supplier service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateSupplierInput is the payload for registering a supplier
type CreateSupplierInput struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

// CreateSupplier registers a new supplier. Name is the only required field.
func (s *Service) CreateSupplier(input CreateSupplierInput) (*Supplier, error) {
	if input.Name == "" {
		return nil, apperror.ValidationFailed("supplier name is required")
	}

	sup := &Supplier{
		SupplierID: "SUP_" + uuid.New().String(),
		Name:       input.Name,
		Contact:    input.Contact,
		Email:      input.Email,
		Phone:      input.Phone,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := s.db.CreateSupplier(sup); err != nil {
		log.Error().Err(err).Str("name", input.Name).Msg("failed to create supplier")
		return nil, err
	}

	log.Info().Str("supplier_id", sup.SupplierID).Str("name", sup.Name).Msg("supplier created")
	return sup, nil
}

// GetSupplier retrieves a supplier by its ID
func (s *Service) GetSupplier(supplierID string) (*Supplier, error) {
	return s.db.GetSupplier(supplierID)
}

// ListSuppliers returns all suppliers ordered by name
func (s *Service) ListSuppliers() ([]Supplier, error) {
	return s.db.ListSuppliers()
}

// GinHandlers contains HTTP handlers for supplier endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for supplier endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateSupplierHandler handles POST requests to register suppliers
func (h *GinHandlers) CreateSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateSupplierInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		supplier, err := h.service.CreateSupplier(input)
		response.Handle(c, supplier, err)
	}
}

// ListSuppliersHandler handles GET requests for the supplier list
func (h *GinHandlers) ListSuppliersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		suppliers, err := h.service.ListSuppliers()
		response.Handle(c, suppliers, err)
	}
}
