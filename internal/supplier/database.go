package supplier

import (
	"errors"

	"github.com/gfranca/troca-api/pkg/apperror"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateSupplier creates a new supplier record
func (d *Database) CreateSupplier(s *Supplier) error {
	if err := d.db.Create(s).Error; err != nil {
		return apperror.Persistence(err, "failed to create supplier")
	}
	return nil
}

// GetSupplier retrieves a supplier by its ID
func (d *Database) GetSupplier(supplierID string) (*Supplier, error) {
	var s Supplier
	if err := d.db.Where("supplier_id = ?", supplierID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("supplier %s not found", supplierID)
		}
		return nil, apperror.Persistence(err, "failed to fetch supplier")
	}
	return &s, nil
}

// ListSuppliers returns all suppliers ordered by name
func (d *Database) ListSuppliers() ([]Supplier, error) {
	var suppliers []Supplier
	if err := d.db.Order("name ASC").Find(&suppliers).Error; err != nil {
		return nil, apperror.Persistence(err, "failed to list suppliers")
	}
	return suppliers, nil
}
