package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectProduct catalog product specified in one area version.
// TotalPrice is a generated column and never written by the app.
type ProjectProduct struct {
	ID              string              `json:"id" gorm:"primaryKey;size:36"`
	ProjectID       string              `json:"project_id" gorm:"size:36;not null;index"`
	ProductID       string              `json:"product_id" gorm:"size:36;not null;uniqueIndex:idx_version_product"`
	AreaVersionID   string              `json:"area_version_id" gorm:"size:36;not null;uniqueIndex:idx_version_product"`
	Quantity        int                 `json:"quantity" gorm:"not null;default:1"`
	UnitPrice       decimal.Decimal     `json:"unit_price" gorm:"type:numeric(12,2);not null;default:0"`
	DiscountPercent decimal.Decimal     `json:"discount_percent" gorm:"type:numeric(5,2);not null;default:0"`
	TotalPrice      decimal.NullDecimal `json:"total_price" gorm:"->;-:migration"`
	Status          string              `json:"status" gorm:"size:16;not null;default:specified"`
	RoomLocation    string              `json:"room_location" gorm:"size:255"`
	MountingHeight  decimal.NullDecimal `json:"mounting_height" gorm:"type:numeric(6,2)"`
	Notes           string              `json:"notes" gorm:"type:text"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (ProjectProduct) TableName() string {
	return "projects.project_products"
}

// LineTotal computes the same value as the generated column
func (p *ProjectProduct) LineTotal() decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	factor := hundred.Sub(p.DiscountPercent).Div(hundred)
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity))).Mul(factor).Round(2)
}

// Project product status
const (
	ProductStatusSpecified = "specified"
	ProductStatusQuoted    = "quoted"
	ProductStatusOrdered   = "ordered"
	ProductStatusDelivered = "delivered"
	ProductStatusInstalled = "installed"
)

func ValidProductStatus(s string) bool {
	switch s {
	case ProductStatusSpecified, ProductStatusQuoted, ProductStatusOrdered,
		ProductStatusDelivered, ProductStatusInstalled:
		return true
	}
	return false
}
