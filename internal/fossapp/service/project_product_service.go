package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ProjectProductService products specified per area version
type ProjectProductService struct {
	repos *repository.Repositories
}

func NewProjectProductService(repos *repository.Repositories) *ProjectProductService {
	return &ProjectProductService{repos: repos}
}

type AddProductRequest struct {
	ProductID       string           `json:"product_id" binding:"required"`
	Quantity        int              `json:"quantity"`
	UnitPrice       *decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	RoomLocation    string           `json:"room_location"`
	MountingHeight  *decimal.Decimal `json:"mounting_height"`
	Notes           string           `json:"notes"`
}

type UpdateProductRequest struct {
	Quantity        *int             `json:"quantity"`
	UnitPrice       *decimal.Decimal `json:"unit_price"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	Status          *string          `json:"status"`
	RoomLocation    *string          `json:"room_location"`
	MountingHeight  *decimal.Decimal `json:"mounting_height"`
	Notes           *string          `json:"notes"`
}

func validateLine(quantity int, unitPrice, discount decimal.Decimal) error {
	if quantity < 1 {
		return invalidf("quantity must be at least 1")
	}
	if unitPrice.IsNegative() {
		return invalidf("unit price must not be negative")
	}
	if discount.IsNegative() || discount.GreaterThan(hundred) {
		return invalidf("discount must be between 0 and 100")
	}
	return nil
}

func (s *ProjectProductService) ListVersionProducts(ctx context.Context, versionID string) ([]entity.ProjectProduct, error) {
	if _, err := s.repos.Area.FindVersion(ctx, versionID); err != nil {
		return nil, fmt.Errorf("find version: %w", err)
	}
	return s.repos.ProjectProduct.ListByVersion(ctx, versionID)
}

// ListProjectProducts every line of the project across areas and versions
func (s *ProjectProductService) ListProjectProducts(ctx context.Context, projectID string) ([]entity.ProjectProduct, error) {
	if _, err := s.repos.Project.FindPlain(ctx, projectID); err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	return s.repos.ProjectProduct.ListByProject(ctx, projectID)
}

// AddProduct unit price defaults to the catalog price
func (s *ProjectProductService) AddProduct(ctx context.Context, versionID string, req *AddProductRequest) (*entity.ProjectProduct, error) {
	version, err := s.repos.Area.FindVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("find version: %w", err)
	}
	if version.Area == nil {
		return nil, fmt.Errorf("version %s has no area: %w", versionID, repository.ErrNotFound)
	}
	product, err := s.repos.Catalog.FindProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalidf("product %s does not exist", req.ProductID)
		}
		return nil, fmt.Errorf("find product: %w", err)
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	unitPrice := product.Price
	if req.UnitPrice != nil {
		unitPrice = *req.UnitPrice
	}
	if err := validateLine(quantity, unitPrice, req.DiscountPercent); err != nil {
		return nil, err
	}

	item := &entity.ProjectProduct{
		ID:              uuid.New().String(),
		ProjectID:       version.Area.ProjectID,
		ProductID:       product.ID,
		AreaVersionID:   versionID,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		DiscountPercent: req.DiscountPercent,
		Status:          entity.ProductStatusSpecified,
		RoomLocation:    req.RoomLocation,
		Notes:           req.Notes,
	}
	if req.MountingHeight != nil {
		item.MountingHeight = decimal.NewNullDecimal(*req.MountingHeight)
	}
	if err := s.repos.ProjectProduct.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, duplicate("this product is already in this area version")
		}
		return nil, fmt.Errorf("add product: %w", err)
	}
	return s.repos.ProjectProduct.FindByID(ctx, item.ID)
}

func (s *ProjectProductService) UpdateProduct(ctx context.Context, id string, req *UpdateProductRequest) (*entity.ProjectProduct, error) {
	item, err := s.repos.ProjectProduct.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find project product: %w", err)
	}

	quantity, unitPrice, discount := item.Quantity, item.UnitPrice, item.DiscountPercent
	fields := map[string]interface{}{}
	if req.Quantity != nil {
		quantity = *req.Quantity
		fields["quantity"] = quantity
	}
	if req.UnitPrice != nil {
		unitPrice = *req.UnitPrice
		fields["unit_price"] = unitPrice
	}
	if req.DiscountPercent != nil {
		discount = *req.DiscountPercent
		fields["discount_percent"] = discount
	}
	if err := validateLine(quantity, unitPrice, discount); err != nil {
		return nil, err
	}
	if req.Status != nil {
		if !entity.ValidProductStatus(*req.Status) {
			return nil, invalidf("unknown product status %q", *req.Status)
		}
		fields["status"] = *req.Status
	}
	if req.RoomLocation != nil {
		fields["room_location"] = *req.RoomLocation
	}
	if req.MountingHeight != nil {
		fields["mounting_height"] = *req.MountingHeight
	}
	if req.Notes != nil {
		fields["notes"] = *req.Notes
	}

	if len(fields) > 0 {
		if err := s.repos.ProjectProduct.UpdateFields(ctx, id, fields); err != nil {
			return nil, fmt.Errorf("update project product: %w", err)
		}
	}
	return s.repos.ProjectProduct.FindByID(ctx, id)
}

func (s *ProjectProductService) RemoveProduct(ctx context.Context, id string) error {
	if err := s.repos.ProjectProduct.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove project product: %w", err)
	}
	return nil
}
