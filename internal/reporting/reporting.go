// Package reporting serves the read-only dashboard rollups. Queries here
// never mutate state and may run concurrently with any number of writers.
package reporting

import (
	"strconv"
	"time"

	"github.com/gfranca/troca-api/internal/types"
	"github.com/gfranca/troca-api/pkg/apperror"
	"github.com/gfranca/troca-api/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service handles dashboard aggregation queries
type Service struct {
	db  *Database
	now func() time.Time
}

// NewService creates a new reporting service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:  NewDatabase(gormDB),
		now: time.Now,
	}
}

// WithClock overrides the wall clock, used by tests to pin overdue counts.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// StatusCounts returns the count of exchanges per status plus the grand total.
func (s *Service) StatusCounts() (*types.StatusCountsResponse, error) {
	byStatus, total, err := s.db.StatusCounts()
	if err != nil {
		return nil, err
	}
	return &types.StatusCountsResponse{
		Total:    total,
		ByStatus: byStatus,
	}, nil
}

// FinancialSummary partitions exchanges into resolved (summing recovered)
// and in-process (summing total), optionally limited to a creation month
// or year.
func (s *Service) FinancialSummary(period string, month, year int) (*types.FinancialSummaryResponse, error) {
	var from, to *time.Time

	switch period {
	case "month":
		if month < 1 || month > 12 || year == 0 {
			return nil, apperror.ValidationFailed("month period requires month (1-12) and year")
		}
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)
		from, to = &start, &end
	case "year":
		if year == 0 {
			return nil, apperror.ValidationFailed("year period requires year")
		}
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(1, 0, 0)
		from, to = &start, &end
	case "", "total":
		period = "total"
	default:
		return nil, apperror.ValidationFailed("unknown period %q", period)
	}

	resolvedRows, err := s.db.ResolvedFinancials(from, to)
	if err != nil {
		return nil, err
	}
	inProcessRows, err := s.db.InProcessFinancials(from, to)
	if err != nil {
		return nil, err
	}

	recovered := decimal.Zero
	for _, r := range resolvedRows {
		recovered = recovered.Add(r.RecoveredValue)
	}
	inProcess := decimal.Zero
	for _, r := range inProcessRows {
		inProcess = inProcess.Add(r.TotalValue)
	}

	summary := &types.FinancialSummaryResponse{
		RecoveredValue: recovered,
		InProcessValue: inProcess,
		GrandTotal:     recovered.Add(inProcess),
		ResolvedCount:  int64(len(resolvedRows)),
		InProcessCount: int64(len(inProcessRows)),
		Period:         period,
		Month:          month,
		Year:           year,
	}

	log.Debug().
		Str("period", period).
		Str("recovered", recovered.String()).
		Str("in_process", inProcess.String()).
		Msg("financial summary computed")
	return summary, nil
}

// OverdueCount counts exchanges past their alert deadline right now.
func (s *Service) OverdueCount() (*types.OverdueCountResponse, error) {
	count, err := s.db.OverdueCount(s.now())
	if err != nil {
		return nil, err
	}
	return &types.OverdueCountResponse{Overdue: count}, nil
}

// GinHandlers contains HTTP handlers for dashboard endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for dashboard endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// StatusCountsHandler handles GET requests for the status-count rollup
func (h *GinHandlers) StatusCountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.service.StatusCounts()
		response.Handle(c, stats, err)
	}
}

// FinancialSummaryHandler handles GET requests for the financial rollup
// Query parameters: period (month|year), month, year
func (h *GinHandlers) FinancialSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		month, _ := strconv.Atoi(c.Query("month"))
		year, _ := strconv.Atoi(c.Query("year"))

		summary, err := h.service.FinancialSummary(c.Query("period"), month, year)
		response.Handle(c, summary, err)
	}
}

// OverdueCountHandler handles GET requests for the overdue count
func (h *GinHandlers) OverdueCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := h.service.OverdueCount()
		response.Handle(c, count, err)
	}
}
