package exchange

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gfranca/troca-api/internal/supplier"
	"github.com/gfranca/troca-api/internal/types"
	"github.com/gfranca/troca-api/pkg/apperror"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fixedNow pins every clock the service touches, ledger timestamps
// included.
var fixedNow = time.Date(2025, 2, 14, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&supplier.Supplier{},
		&Exchange{}, &Item{}, &Budget{}, &DraftInvoice{}, &ReturnInvoice{},
		&ItemDisposition{}, &Restock{}, &Discount{}, &HistoryEntry{}, &Extension{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	service := NewService(db).WithClock(func() time.Time { return fixedNow })
	return service, db
}

func createTestSupplier(t *testing.T, db *gorm.DB) string {
	t.Helper()
	sup := &supplier.Supplier{
		SupplierID: "SUP_test",
		Name:       "Acme Parts",
		CreatedAt:  fixedNow,
		UpdatedAt:  fixedNow,
	}
	if err := db.Create(sup).Error; err != nil {
		t.Fatalf("failed to seed supplier: %v", err)
	}
	return sup.SupplierID
}

func createTestExchange(t *testing.T, s *Service, supplierID string) *Exchange {
	t.Helper()
	budget := BudgetInput{TotalValue: decimal.RequireFromString("35.00")}
	e, err := s.CreateExchange(CreateExchangeInput{
		SupplierID: supplierID,
		Items: []ItemInput{
			{ItemCode: "BRK-100", Description: "Brake pad", Quantity: 3, UnitValue: decimal.RequireFromString("10.00")},
			{ItemCode: "FLT-200", Description: "Oil filter", Quantity: 1, UnitValue: decimal.RequireFromString("5.00")},
		},
		Budget: &budget,
	})
	if err != nil {
		t.Fatalf("failed to create exchange: %v", err)
	}
	return e
}

func wantKind(t *testing.T, err error, kind apperror.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperror.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s: %v", kind, got, err)
	}
}

func checkInvariant(t *testing.T, e *Exchange) {
	t.Helper()
	if !e.TotalValue.Equal(e.RecoveredValue.Add(e.PendingValue)) {
		t.Errorf("invariant broken: total %s != recovered %s + pending %s",
			e.TotalValue, e.RecoveredValue, e.PendingValue)
	}
}

func TestCreateExchangeValidation(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	item := ItemInput{ItemCode: "X", Quantity: 1, UnitValue: decimal.New(1, 0)}
	badComp := "STORE_CREDIT"

	tests := []struct {
		name  string
		input CreateExchangeInput
	}{
		{"missing supplier", CreateExchangeInput{Items: []ItemInput{item}}},
		{"no items", CreateExchangeInput{SupplierID: supplierID}},
		{"unknown compensation", CreateExchangeInput{SupplierID: supplierID, Items: []ItemInput{item}, CompensationType: &badComp}},
		{"zero quantity", CreateExchangeInput{SupplierID: supplierID, Items: []ItemInput{{ItemCode: "X", Quantity: 0, UnitValue: decimal.New(1, 0)}}}},
		{"negative unit value", CreateExchangeInput{SupplierID: supplierID, Items: []ItemInput{{ItemCode: "X", Quantity: 1, UnitValue: decimal.New(-1, 0)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.CreateExchange(tt.input)
			wantKind(t, err, apperror.KindValidationFailed)
		})
	}
}

func TestCreateExchangeDerivesFromBudget(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)

	e := createTestExchange(t, service, supplierID)

	if e.Status != types.StatusBudget {
		t.Errorf("status = %s, want %s", e.Status, types.StatusBudget)
	}
	if !e.TotalValue.Equal(decimal.RequireFromString("35.00")) {
		t.Errorf("total = %s, want 35.00", e.TotalValue)
	}
	if !e.RecoveredValue.IsZero() {
		t.Errorf("recovered = %s, want 0", e.RecoveredValue)
	}
	if !e.PendingValue.Equal(decimal.RequireFromString("35.00")) {
		t.Errorf("pending = %s, want 35.00", e.PendingValue)
	}
	checkInvariant(t, e)

	wantDeadline := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if e.AlertDeadline == nil || !e.AlertDeadline.Equal(wantDeadline) {
		t.Errorf("alert deadline = %v, want %s", e.AlertDeadline, wantDeadline)
	}
	if e.Overdue {
		t.Error("fresh exchange reported overdue")
	}

	if len(e.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(e.Items))
	}
	lineTotals := map[string]string{}
	for _, item := range e.Items {
		lineTotals[item.ItemCode] = item.LineTotal.String()
	}
	if lineTotals["BRK-100"] != "30" {
		t.Errorf("BRK-100 line total = %s, want 30", lineTotals["BRK-100"])
	}
	if lineTotals["FLT-200"] != "5" {
		t.Errorf("FLT-200 line total = %s, want 5", lineTotals["FLT-200"])
	}

	if len(e.History) != 1 {
		t.Fatalf("history entries = %d, want 1", len(e.History))
	}
	entry := e.History[0]
	if entry.Field != types.FieldStatus || entry.OldValue != nil || entry.NewValue != types.StatusBudget {
		t.Errorf("unexpected initial history entry: %+v", entry)
	}
}

func TestCreateExchangeWithoutBudget(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)

	e, err := service.CreateExchange(CreateExchangeInput{
		SupplierID: supplierID,
		Items:      []ItemInput{{ItemCode: "X", Quantity: 2, UnitValue: decimal.RequireFromString("9.99")}},
	})
	if err != nil {
		t.Fatalf("failed to create exchange: %v", err)
	}

	// Item values never leak into the exchange financials; only a budget
	// feeds them.
	if !e.TotalValue.IsZero() || !e.RecoveredValue.IsZero() || !e.PendingValue.IsZero() {
		t.Errorf("financials without budget = %s/%s/%s, want all zero",
			e.TotalValue, e.RecoveredValue, e.PendingValue)
	}
	checkInvariant(t, e)
}

func TestDraftInvoiceRequiresApprovedBudget(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	_, err := service.CreateDraftInvoice(e.ExchangeID, "DRAFT-001")
	wantKind(t, err, apperror.KindPreconditionFailed)

	if _, err := service.ApproveBudget(e.ExchangeID); err != nil {
		t.Fatalf("failed to approve budget: %v", err)
	}

	e2, err := service.CreateDraftInvoice(e.ExchangeID, "DRAFT-001")
	if err != nil {
		t.Fatalf("failed to create draft invoice: %v", err)
	}
	if e2.Status != types.StatusDraftInvoiceValidation {
		t.Errorf("status = %s, want %s", e2.Status, types.StatusDraftInvoiceValidation)
	}

	_, err = service.CreateDraftInvoice(e.ExchangeID, "DRAFT-002")
	wantKind(t, err, apperror.KindPreconditionFailed)
}

func TestReturnInvoiceRequiresSupplierApprovedDraft(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	if _, err := service.ApproveBudget(e.ExchangeID); err != nil {
		t.Fatalf("failed to approve budget: %v", err)
	}
	if _, err := service.CreateDraftInvoice(e.ExchangeID, "DRAFT-001"); err != nil {
		t.Fatalf("failed to create draft invoice: %v", err)
	}

	_, err := service.IssueReturnInvoice(e.ExchangeID, "NF-900", decimal.RequireFromString("35.00"))
	wantKind(t, err, apperror.KindPreconditionFailed)

	// Failed trigger leaves the status untouched.
	current, err := service.GetExchange(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to fetch exchange: %v", err)
	}
	if current.Status != types.StatusDraftInvoiceValidation {
		t.Errorf("status after failed trigger = %s, want %s", current.Status, types.StatusDraftInvoiceValidation)
	}

	if _, err := service.ApproveDraftInvoice(e.ExchangeID); err != nil {
		t.Fatalf("failed to approve draft invoice: %v", err)
	}
	issued, err := service.IssueReturnInvoice(e.ExchangeID, "NF-900", decimal.RequireFromString("35.00"))
	if err != nil {
		t.Fatalf("failed to issue return invoice: %v", err)
	}
	if issued.Status != types.StatusInvoiceIssued {
		t.Errorf("status = %s, want %s", issued.Status, types.StatusInvoiceIssued)
	}
	if issued.ReturnInvoice == nil || !issued.ReturnInvoice.Issued {
		t.Error("return invoice not recorded as issued")
	}
}

func TestRestockPartialThenComplete(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	partial, err := service.RegisterRestock(e.ExchangeID, RegisterRestockInput{
		AgreedValue:     decimal.RequireFromString("100.00"),
		ReceivedValue:   decimal.RequireFromString("60.00"),
		IncomingInvoice: "NF-IN-1",
	})
	if err != nil {
		t.Fatalf("failed to register restock: %v", err)
	}
	if partial.Status != types.StatusRestockPartial {
		t.Errorf("status = %s, want %s", partial.Status, types.StatusRestockPartial)
	}
	if partial.CompensationType == nil || *partial.CompensationType != types.CompensationRestock {
		t.Errorf("compensation type = %v, want %s", partial.CompensationType, types.CompensationRestock)
	}
	if partial.Restock == nil || partial.Restock.Complete {
		t.Error("restock should exist and be incomplete")
	}
	checkInvariant(t, partial)

	resolved, err := service.UpdateRestock(e.ExchangeID, UpdateRestockInput{
		ReceivedValue: decimal.RequireFromString("100.00"),
	})
	if err != nil {
		t.Fatalf("failed to update restock: %v", err)
	}
	if resolved.Status != types.StatusResolved {
		t.Errorf("status = %s, want %s", resolved.Status, types.StatusResolved)
	}
	if !resolved.RecoveredValue.Equal(resolved.TotalValue) {
		t.Errorf("recovered = %s, want %s", resolved.RecoveredValue, resolved.TotalValue)
	}
	if !resolved.PendingValue.IsZero() {
		t.Errorf("pending = %s, want 0", resolved.PendingValue)
	}
	checkInvariant(t, resolved)

	history, err := service.History(e.ExchangeID, 0)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	found := false
	for _, entry := range history {
		if entry.Field == types.FieldStatus &&
			entry.OldValue != nil && *entry.OldValue == types.StatusRestockPartial &&
			entry.NewValue == types.StatusResolved {
			found = true
		}
	}
	if !found {
		t.Error("missing RESTOCK_PARTIAL to RESOLVED audit entry")
	}
}

func TestDiscountFlow(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	awaiting, err := service.RegisterDiscount(e.ExchangeID, decimal.RequireFromString("35.00"))
	if err != nil {
		t.Fatalf("failed to register discount: %v", err)
	}
	if awaiting.Status != types.StatusAwaitingDiscount {
		t.Errorf("status = %s, want %s", awaiting.Status, types.StatusAwaitingDiscount)
	}
	if awaiting.CompensationType == nil || *awaiting.CompensationType != types.CompensationDiscount {
		t.Errorf("compensation type = %v, want %s", awaiting.CompensationType, types.CompensationDiscount)
	}

	resolved, err := service.ApplyDiscount(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to apply discount: %v", err)
	}
	if resolved.Status != types.StatusResolved {
		t.Errorf("status = %s, want %s", resolved.Status, types.StatusResolved)
	}
	if resolved.Discount == nil || !resolved.Discount.Applied {
		t.Error("discount not marked applied")
	}
	checkInvariant(t, resolved)
}

func TestExtendDeadline(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	// Initial deadline from the pinned clock is 2025-03-01.
	extended, err := service.ExtendDeadline(e.ExchangeID, ExtendDeadlineInput{DaysToAdd: 15})
	if err != nil {
		t.Fatalf("failed to extend deadline: %v", err)
	}

	want := time.Date(2025, 3, 16, 10, 0, 0, 0, time.UTC)
	if extended.AlertDeadline == nil || !extended.AlertDeadline.Equal(want) {
		t.Errorf("alert deadline = %v, want %s", extended.AlertDeadline, want)
	}
	if extended.Overdue {
		t.Error("extended exchange still flagged overdue")
	}
	if extended.Status != types.StatusBudget {
		t.Errorf("status changed by extension: %s", extended.Status)
	}

	extensions, err := service.Extensions(e.ExchangeID, 0)
	if err != nil {
		t.Fatalf("failed to list extensions: %v", err)
	}
	if len(extensions) != 1 {
		t.Fatalf("extensions = %d, want 1", len(extensions))
	}
	ext := extensions[0]
	if !ext.PreviousDeadline.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("previous deadline = %s, want 2025-03-01", ext.PreviousDeadline)
	}
	if !ext.NewDeadline.Equal(want) {
		t.Errorf("new deadline = %s, want %s", ext.NewDeadline, want)
	}
	if ext.DaysAdded != 15 {
		t.Errorf("days added = %d, want 15", ext.DaysAdded)
	}

	history, err := service.History(e.ExchangeID, 0)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	found := false
	for _, entry := range history {
		if entry.Field == types.FieldAlertDeadline {
			found = true
		}
	}
	if !found {
		t.Error("missing alert_deadline audit entry")
	}
}

func TestExtendDeadlineCustomDate(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	past := fixedNow.AddDate(0, 0, -1)
	_, err := service.ExtendDeadline(e.ExchangeID, ExtendDeadlineInput{CustomDate: &past})
	wantKind(t, err, apperror.KindValidationFailed)

	custom := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	extended, err := service.ExtendDeadline(e.ExchangeID, ExtendDeadlineInput{CustomDate: &custom})
	if err != nil {
		t.Fatalf("failed to extend deadline: %v", err)
	}
	if extended.AlertDeadline == nil || !extended.AlertDeadline.Equal(custom) {
		t.Errorf("alert deadline = %v, want %s", extended.AlertDeadline, custom)
	}
}

func TestFinalizeRequiresSettledDisposition(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	if _, err := service.ApproveBudget(e.ExchangeID); err != nil {
		t.Fatalf("failed to approve budget: %v", err)
	}
	if _, err := service.CreateDraftInvoice(e.ExchangeID, "DRAFT-001"); err != nil {
		t.Fatalf("failed to create draft invoice: %v", err)
	}
	if _, err := service.ApproveDraftInvoice(e.ExchangeID); err != nil {
		t.Fatalf("failed to approve draft invoice: %v", err)
	}
	if _, err := service.IssueReturnInvoice(e.ExchangeID, "NF-900", decimal.RequireFromString("35.00")); err != nil {
		t.Fatalf("failed to issue return invoice: %v", err)
	}

	before, err := service.History(e.ExchangeID, 0)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}

	_, err = service.FinalizeExchange(e.ExchangeID)
	wantKind(t, err, apperror.KindPreconditionFailed)

	current, err := service.GetExchange(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to fetch exchange: %v", err)
	}
	if current.Status != types.StatusInvoiceIssued {
		t.Errorf("status after failed finalize = %s, want %s", current.Status, types.StatusInvoiceIssued)
	}
	if current.FinalizedAt != nil {
		t.Error("finalized_at set by failed finalize")
	}

	after, err := service.History(e.ExchangeID, 0)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(after) != len(before) {
		t.Errorf("failed finalize grew the audit trail: %d -> %d", len(before), len(after))
	}
}

func TestFinalizeFullFlow(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	steps := []func() (*Exchange, error){
		func() (*Exchange, error) { return service.ApproveBudget(e.ExchangeID) },
		func() (*Exchange, error) { return service.CreateDraftInvoice(e.ExchangeID, "DRAFT-001") },
		func() (*Exchange, error) { return service.ApproveDraftInvoice(e.ExchangeID) },
		func() (*Exchange, error) {
			return service.IssueReturnInvoice(e.ExchangeID, "NF-900", decimal.RequireFromString("35.00"))
		},
		func() (*Exchange, error) { return service.MarkProductShipped(e.ExchangeID) },
		func() (*Exchange, error) { return service.SetDestinationDiscard(e.ExchangeID) },
		func() (*Exchange, error) { return service.MarkDiscarded(e.ExchangeID) },
		func() (*Exchange, error) {
			return service.RegisterDiscount(e.ExchangeID, decimal.RequireFromString("35.00"))
		},
		func() (*Exchange, error) { return service.ApplyDiscount(e.ExchangeID) },
	}
	for i, step := range steps {
		current, err := step()
		if err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		checkInvariant(t, current)
	}

	final, err := service.FinalizeExchange(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to finalize: %v", err)
	}
	if final.Status != types.StatusResolved {
		t.Errorf("status = %s, want %s", final.Status, types.StatusResolved)
	}
	if final.FinalizedAt == nil {
		t.Error("finalized_at not set")
	}
	if !final.RecoveredValue.Equal(final.TotalValue) || !final.PendingValue.IsZero() {
		t.Errorf("financials = %s/%s/%s, want full recovery",
			final.TotalValue, final.RecoveredValue, final.PendingValue)
	}

	// Finalizing again is a no-op: same status, same timestamp, no new
	// audit entries.
	historyLen := len(final.History)
	again, err := service.FinalizeExchange(e.ExchangeID)
	if err != nil {
		t.Fatalf("repeat finalize failed: %v", err)
	}
	if !again.FinalizedAt.Equal(*final.FinalizedAt) {
		t.Errorf("finalized_at changed on repeat: %s -> %s", final.FinalizedAt, again.FinalizedAt)
	}
	if len(again.History) != historyLen {
		t.Errorf("repeat finalize grew the audit trail: %d -> %d", historyLen, len(again.History))
	}
}

func TestDestinationsMutuallyExclusive(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	if _, err := service.ApproveBudget(e.ExchangeID); err != nil {
		t.Fatalf("failed to approve budget: %v", err)
	}
	if _, err := service.CreateDraftInvoice(e.ExchangeID, "DRAFT-001"); err != nil {
		t.Fatalf("failed to create draft invoice: %v", err)
	}
	if _, err := service.ApproveDraftInvoice(e.ExchangeID); err != nil {
		t.Fatalf("failed to approve draft invoice: %v", err)
	}
	if _, err := service.IssueReturnInvoice(e.ExchangeID, "NF-900", decimal.RequireFromString("35.00")); err != nil {
		t.Fatalf("failed to issue return invoice: %v", err)
	}

	collected, err := service.SetDestinationCollect(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to set collect destination: %v", err)
	}
	if collected.Status != types.StatusAwaitingPickup {
		t.Errorf("status = %s, want %s", collected.Status, types.StatusAwaitingPickup)
	}

	_, err = service.SetDestinationDiscard(e.ExchangeID)
	wantKind(t, err, apperror.KindPreconditionFailed)
	_, err = service.MarkDiscarded(e.ExchangeID)
	wantKind(t, err, apperror.KindPreconditionFailed)

	resolved, err := service.MarkCollectionDone(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to mark collection done: %v", err)
	}
	if resolved.Status != types.StatusResolved {
		t.Errorf("status = %s, want %s", resolved.Status, types.StatusResolved)
	}
}

func TestUpdateExchangeOverride(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	bad := "NOT_A_STATUS"
	_, err := service.UpdateExchange(e.ExchangeID, UpdateExchangeInput{Status: &bad})
	wantKind(t, err, apperror.KindValidationFailed)

	_, err = service.UpdateExchange(e.ExchangeID, UpdateExchangeInput{})
	wantKind(t, err, apperror.KindValidationFailed)

	divergence := types.StatusProblemDivergence
	comp := types.CompensationDiscount
	updated, err := service.UpdateExchange(e.ExchangeID, UpdateExchangeInput{
		Status:           &divergence,
		CompensationType: &comp,
	})
	if err != nil {
		t.Fatalf("failed to update exchange: %v", err)
	}
	if updated.Status != types.StatusProblemDivergence {
		t.Errorf("status = %s, want %s", updated.Status, types.StatusProblemDivergence)
	}
	if updated.CompensationType == nil || *updated.CompensationType != types.CompensationDiscount {
		t.Errorf("compensation type = %v, want %s", updated.CompensationType, types.CompensationDiscount)
	}

	// One audit entry per changed field.
	history, err := service.History(e.ExchangeID, 0)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	var statusEntries, compEntries int
	for _, entry := range history {
		switch entry.Field {
		case types.FieldStatus:
			statusEntries++
		case types.FieldCompensationType:
			compEntries++
		}
	}
	if statusEntries != 2 {
		t.Errorf("status audit entries = %d, want 2", statusEntries)
	}
	if compEntries != 1 {
		t.Errorf("compensation audit entries = %d, want 1", compEntries)
	}
}

func TestRecomputeFinancialsIdempotent(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	first, err := service.RecomputeFinancials(e.ExchangeID)
	if err != nil {
		t.Fatalf("first recompute failed: %v", err)
	}
	second, err := service.RecomputeFinancials(e.ExchangeID)
	if err != nil {
		t.Fatalf("second recompute failed: %v", err)
	}

	if first.TotalValue.String() != second.TotalValue.String() ||
		first.RecoveredValue.String() != second.RecoveredValue.String() ||
		first.PendingValue.String() != second.PendingValue.String() {
		t.Errorf("recompute not idempotent: %s/%s/%s vs %s/%s/%s",
			first.TotalValue, first.RecoveredValue, first.PendingValue,
			second.TotalValue, second.RecoveredValue, second.PendingValue)
	}
	checkInvariant(t, second)

	history, err := service.History(e.ExchangeID, 0)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("recompute wrote audit entries: %d, want 1", len(history))
	}
}

func TestOverdueRecomputedAtReadTime(t *testing.T) {
	db := setupTestDB(t)
	supplierID := createTestSupplier(t, db)

	clock := fixedNow
	service := NewService(db).WithClock(func() time.Time { return clock })
	e := createTestExchange(t, service, supplierID)

	// Twenty days later the fifteen-day deadline has passed.
	clock = fixedNow.AddDate(0, 0, 20)
	late, err := service.GetExchange(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to fetch exchange: %v", err)
	}
	if !late.Overdue {
		t.Error("exchange past its deadline not reported overdue")
	}

	resolved := types.StatusResolved
	if _, err := service.UpdateExchange(e.ExchangeID, UpdateExchangeInput{Status: &resolved}); err != nil {
		t.Fatalf("failed to resolve exchange: %v", err)
	}
	done, err := service.GetExchange(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to fetch exchange: %v", err)
	}
	if done.Overdue {
		t.Error("resolved exchange reported overdue")
	}
}

func TestListExchangesFilters(t *testing.T) {
	db := setupTestDB(t)
	supplierID := createTestSupplier(t, db)

	clock := fixedNow
	service := NewService(db).WithClock(func() time.Time { return clock })

	open := createTestExchange(t, service, supplierID)
	closed := createTestExchange(t, service, supplierID)
	resolved := types.StatusResolved
	if _, err := service.UpdateExchange(closed.ExchangeID, UpdateExchangeInput{Status: &resolved}); err != nil {
		t.Fatalf("failed to resolve exchange: %v", err)
	}

	clock = fixedNow.AddDate(0, 0, 20)

	inProgress, err := service.ListExchanges(ListFilters{Special: "in_progress"})
	if err != nil {
		t.Fatalf("failed to list in-progress: %v", err)
	}
	if len(inProgress) != 1 || inProgress[0].ExchangeID != open.ExchangeID {
		t.Errorf("in_progress filter returned %d exchanges", len(inProgress))
	}

	// The resolved exchange has the same expired deadline but must not
	// show up as overdue.
	overdue, err := service.ListExchanges(ListFilters{Special: "overdue"})
	if err != nil {
		t.Fatalf("failed to list overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ExchangeID != open.ExchangeID {
		t.Errorf("overdue filter returned %d exchanges", len(overdue))
	}
	if len(overdue) == 1 && !overdue[0].Overdue {
		t.Error("overdue filter result not flagged overdue")
	}

	bySupplier, err := service.ListExchanges(ListFilters{SupplierID: supplierID})
	if err != nil {
		t.Fatalf("failed to list by supplier: %v", err)
	}
	if len(bySupplier) != 2 {
		t.Errorf("supplier filter returned %d exchanges, want 2", len(bySupplier))
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	if _, err := service.ApproveBudget(e.ExchangeID); err != nil {
		t.Fatalf("failed to approve budget: %v", err)
	}
	if _, err := service.CreateDraftInvoice(e.ExchangeID, "DRAFT-001"); err != nil {
		t.Fatalf("failed to create draft invoice: %v", err)
	}

	history, err := service.History(e.ExchangeID, 0)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history entries = %d, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].CreatedAt.After(history[i-1].CreatedAt) {
			t.Errorf("history not ordered newest first at index %d", i)
		}
	}
	if history[len(history)-1].OldValue != nil {
		t.Error("oldest entry should be the creation entry with no old value")
	}

	limited, err := service.History(e.ExchangeID, 1)
	if err != nil {
		t.Fatalf("failed to list limited history: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited history = %d entries, want 1", len(limited))
	}

	_, err = service.History("TRC_missing", 0)
	wantKind(t, err, apperror.KindNotFound)
}

func TestDeleteExchangeCascades(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	if err := service.DeleteExchange(e.ExchangeID); err != nil {
		t.Fatalf("failed to delete exchange: %v", err)
	}

	_, err := service.GetExchange(e.ExchangeID)
	wantKind(t, err, apperror.KindNotFound)

	var items, history int64
	db.Model(&Item{}).Where("exchange_id = ?", e.ExchangeID).Count(&items)
	db.Model(&HistoryEntry{}).Where("exchange_id = ?", e.ExchangeID).Count(&history)
	if items != 0 || history != 0 {
		t.Errorf("orphaned sub-records after delete: %d items, %d history entries", items, history)
	}

	// The referenced supplier survives the cascade.
	var suppliers int64
	db.Model(&supplier.Supplier{}).Where("supplier_id = ?", supplierID).Count(&suppliers)
	if suppliers != 1 {
		t.Errorf("supplier rows = %d, want 1", suppliers)
	}

	err = service.DeleteExchange(e.ExchangeID)
	wantKind(t, err, apperror.KindNotFound)
}

func TestVersionIncrementsPerTrigger(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	after, err := service.ApproveBudget(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to approve budget: %v", err)
	}
	if after.Version != e.Version+1 {
		t.Errorf("version = %d, want %d", after.Version, e.Version+1)
	}
}

func TestConcurrentTriggerConflict(t *testing.T) {
	service, db := setupTestService(t)
	supplierID := createTestSupplier(t, db)
	e := createTestExchange(t, service, supplierID)

	// The aggregate version moves underneath a running trigger, as a
	// second trigger committing first would make it do. The running
	// trigger must lose: conflict error, and its ledger write rolls back
	// with it.
	_, err := service.db.Mutate(e.ExchangeID, func(tx *gorm.DB, loaded *Exchange) error {
		if err := appendHistory(tx, e.ExchangeID, types.FieldStatus, &loaded.Status, types.StatusBudgetApproved, fixedNow); err != nil {
			return err
		}
		return tx.Model(&Exchange{}).
			Where("exchange_id = ?", e.ExchangeID).
			Update("version", loaded.Version+1).Error
	})
	wantKind(t, err, apperror.KindConflict)

	history, err := service.History(e.ExchangeID, 0)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("conflicted trigger leaked ledger rows: %d entries, want 1", len(history))
	}

	current, err := service.GetExchange(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to fetch exchange: %v", err)
	}
	if current.Status != types.StatusBudget {
		t.Errorf("status after conflict = %s, want %s", current.Status, types.StatusBudget)
	}
}

func TestTriggerResponseRecomputesOverdue(t *testing.T) {
	db := setupTestDB(t)
	supplierID := createTestSupplier(t, db)

	clock := fixedNow
	service := NewService(db).WithClock(func() time.Time { return clock })
	e := createTestExchange(t, service, supplierID)

	clock = fixedNow.AddDate(0, 0, 20)
	approved, err := service.ApproveBudget(e.ExchangeID)
	if err != nil {
		t.Fatalf("failed to approve budget: %v", err)
	}
	if !approved.Overdue {
		t.Error("trigger response on past-deadline exchange not flagged overdue")
	}
}
