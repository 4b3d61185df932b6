package exchange

import (
	"time"

	"github.com/gfranca/troca-api/internal/supplier"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Exchange is the aggregate root for one supplier product-exchange. It
// exclusively owns its items, sub-records and both ledgers; the supplier
// is referenced, never owned.
type Exchange struct {
	gorm.Model       `json:"-"`
	ExchangeID       string          `gorm:"uniqueIndex" json:"exchange_id"`
	SupplierID       string          `gorm:"index" json:"supplier_id"`
	Status           string          `json:"status"`
	CompensationType *string         `json:"compensation_type"`
	AlertDeadline    *time.Time      `json:"alert_deadline"`
	Overdue          bool            `json:"overdue"`
	TotalValue       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_value"`
	RecoveredValue   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"recovered_value"`
	PendingValue     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pending_value"`
	FinalizedAt      *time.Time      `json:"finalized_at"`
	Version          int             `gorm:"default:0" json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	Supplier      *supplier.Supplier `gorm:"foreignKey:SupplierID;references:SupplierID" json:"supplier,omitempty"`
	Items         []Item             `gorm:"foreignKey:ExchangeID;references:ExchangeID" json:"items,omitempty"`
	Budget        *Budget            `gorm:"foreignKey:ExchangeID;references:ExchangeID" json:"budget,omitempty"`
	DraftInvoice  *DraftInvoice      `gorm:"foreignKey:ExchangeID;references:ExchangeID" json:"draft_invoice,omitempty"`
	ReturnInvoice *ReturnInvoice     `gorm:"foreignKey:ExchangeID;references:ExchangeID" json:"return_invoice,omitempty"`
	Disposition   *ItemDisposition   `gorm:"foreignKey:ExchangeID;references:ExchangeID" json:"disposition,omitempty"`
	Restock       *Restock           `gorm:"foreignKey:ExchangeID;references:ExchangeID" json:"restock,omitempty"`
	Discount      *Discount          `gorm:"foreignKey:ExchangeID;references:ExchangeID" json:"discount,omitempty"`
	History       []HistoryEntry     `gorm:"foreignKey:ExchangeID;references:ExchangeID" json:"history,omitempty"`
	Extensions    []Extension        `gorm:"foreignKey:ExchangeID;references:ExchangeID" json:"extensions,omitempty"`
}

// Item is a defective line item. Immutable once created.
type Item struct {
	gorm.Model  `json:"-"`
	ItemID      string          `gorm:"uniqueIndex" json:"item_id"`
	ExchangeID  string          `gorm:"index" json:"exchange_id"`
	ItemCode    string          `json:"item_code"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitValue   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_value"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Budget is the supplier quote the exchange financials derive from.
type Budget struct {
	gorm.Model     `json:"-"`
	BudgetID       string          `gorm:"uniqueIndex" json:"budget_id"`
	ExchangeID     string          `gorm:"uniqueIndex" json:"exchange_id"`
	TotalValue     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_value"`
	SentToSupplier bool            `json:"sent_to_supplier"`
	Approved       bool            `json:"approved"`
	SentAt         *time.Time      `json:"sent_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DraftInvoice is the pre-invoice draft awaiting supplier validation.
type DraftInvoice struct {
	gorm.Model       `json:"-"`
	DraftInvoiceID   string    `gorm:"uniqueIndex" json:"draft_invoice_id"`
	ExchangeID       string    `gorm:"uniqueIndex" json:"exchange_id"`
	Generated        bool      `json:"generated"`
	DraftNumber      string    `json:"draft_number"`
	SupplierApproved bool      `json:"supplier_approved"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ReturnInvoice is the issued return invoice for shipping items back.
type ReturnInvoice struct {
	gorm.Model      `json:"-"`
	ReturnInvoiceID string          `gorm:"uniqueIndex" json:"return_invoice_id"`
	ExchangeID      string          `gorm:"uniqueIndex" json:"exchange_id"`
	Issued          bool            `json:"issued"`
	InvoiceNumber   string          `json:"invoice_number"`
	IssuedAt        *time.Time      `json:"issued_at"`
	InvoiceValue    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"invoice_value"`
	ProductShipped  bool            `json:"product_shipped"`
	ShippedAt       *time.Time      `json:"shipped_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ItemDisposition records what happens to the defective item: supplier
// collection or discard. The two destinations are mutually exclusive.
type ItemDisposition struct {
	gorm.Model          `json:"-"`
	DispositionID       string     `gorm:"uniqueIndex" json:"disposition_id"`
	ExchangeID          string     `gorm:"uniqueIndex" json:"exchange_id"`
	SupplierWillCollect bool       `json:"supplier_will_collect"`
	CollectionDone      bool       `json:"collection_done"`
	CollectedAt         *time.Time `json:"collected_at"`
	Discard             bool       `json:"discard"`
	DiscardedAt         *time.Time `json:"discarded_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Restock is the compensation sub-record when the supplier replaces the
// product. Complete means received covers the agreed value.
type Restock struct {
	gorm.Model      `json:"-"`
	RestockID       string          `gorm:"uniqueIndex" json:"restock_id"`
	ExchangeID      string          `gorm:"uniqueIndex" json:"exchange_id"`
	IncomingInvoice string          `json:"incoming_invoice"`
	AgreedValue     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"agreed_value"`
	ReceivedValue   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_value"`
	ArrivedAt       *time.Time      `json:"arrived_at"`
	Complete        bool            `json:"complete"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Discount is the compensation sub-record when the supplier grants a
// discount on a future purchase instead of replacing the product.
type Discount struct {
	gorm.Model       `json:"-"`
	DiscountID       string          `gorm:"uniqueIndex" json:"discount_id"`
	ExchangeID       string          `gorm:"uniqueIndex" json:"exchange_id"`
	DiscountValue    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_value"`
	InvoiceGenerated bool            `json:"invoice_generated"`
	InvoiceAt        *time.Time      `json:"invoice_at"`
	Applied          bool            `json:"applied"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// HistoryEntry is one row of the append-only audit trail. Entries are
// never updated or deleted; reads order by created_at descending.
type HistoryEntry struct {
	gorm.Model `json:"-"`
	EntryID    string    `gorm:"uniqueIndex" json:"entry_id"`
	ExchangeID string    `gorm:"index" json:"exchange_id"`
	Field      string    `json:"field"`
	OldValue   *string   `json:"old_value"`
	NewValue   string    `json:"new_value"`
	CreatedAt  time.Time `json:"created_at"`
}

// Extension is one row of the append-only deadline postponement record.
type Extension struct {
	gorm.Model       `json:"-"`
	ExtensionID      string    `gorm:"uniqueIndex" json:"extension_id"`
	ExchangeID       string    `gorm:"index" json:"exchange_id"`
	PreviousDeadline time.Time `json:"previous_deadline"`
	NewDeadline      time.Time `json:"new_deadline"`
	DaysAdded        int       `json:"days_added"`
	Reason           *string   `json:"reason"`
	CreatedAt        time.Time `json:"created_at"`
}
