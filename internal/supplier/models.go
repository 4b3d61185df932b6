package supplier

import (
	"time"

	"gorm.io/gorm"
)

// Supplier is referenced by exchanges but never owned by them, so it is
// not touched by exchange cascading deletes.
type Supplier struct {
	gorm.Model `json:"-"`
	SupplierID string    `gorm:"uniqueIndex" json:"supplier_id"`
	Name       string    `json:"name"`
	Contact    string    `json:"contact"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
