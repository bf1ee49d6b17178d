package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServicePackage is a catalog entry an invoice is priced from.
type ServicePackage struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string          `gorm:"index" json:"name"`
	Price          decimal.Decimal `gorm:"type:numeric(18,2)" json:"price"`
	DurationMonths int             `json:"duration_months"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
