package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Product catalog item (items schema)
type Product struct {
	ID               string            `json:"id" gorm:"primaryKey;size:36"`
	FossPID          string            `json:"foss_pid" gorm:"column:foss_pid;size:64;not null;uniqueIndex"`
	SupplierName     string            `json:"supplier_name" gorm:"size:128"`
	DescriptionShort string            `json:"description_short" gorm:"size:512"`
	DescriptionLong  string            `json:"description_long" gorm:"type:text"`
	Family           string            `json:"family" gorm:"size:128;index"`
	ClassName        string            `json:"class_name" gorm:"size:128"`
	Price            decimal.Decimal   `json:"price" gorm:"type:numeric(12,2);not null;default:0"`
	Currency         string            `json:"currency" gorm:"size:3;not null;default:EUR"`
	Specs            datatypes.JSONMap `json:"specs" gorm:"type:jsonb"`
	SearchText       string            `json:"-" gorm:"type:text"`
	ImageURL         string            `json:"image_url" gorm:"size:1024"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (Product) TableName() string {
	return "items.products"
}

// Customer (customers schema)
type Customer struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	CustomerCode string    `json:"customer_code" gorm:"size:32;not null;uniqueIndex"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	NameEn       string    `json:"name_en" gorm:"size:255"`
	Email        string    `json:"email" gorm:"size:255"`
	Phone        string    `json:"phone" gorm:"size:64"`
	City         string    `json:"city" gorm:"size:128"`
	Country      string    `json:"country" gorm:"size:64"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers.customers"
}

// DashboardStats row of analytics.get_dashboard_stats
type DashboardStats struct {
	TotalProjects     int64           `json:"total_projects"`
	ActiveProjects    int64           `json:"active_projects"`
	CompletedProjects int64           `json:"completed_projects"`
	ArchivedProjects  int64           `json:"archived_projects"`
	TotalAreas        int64           `json:"total_areas"`
	TotalProducts     int64           `json:"total_products"`
	TotalValue        decimal.Decimal `json:"total_value"`
	TotalCustomers    int64           `json:"total_customers"`
}
