package repository

import (
	"context"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository read side of items, customers and analytics
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) FindProduct(ctx context.Context, id string) (*entity.Product, error) {
	var product entity.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, translateError(err)
	}
	return &product, nil
}

// SearchProducts delegates ranking to search.search_products_fts; query
// must already be normalised.
func (r *CatalogRepository) SearchProducts(ctx context.Context, query, family string, page, pageSize int) ([]entity.Product, int64, error) {
	var products []entity.Product
	err := r.db.WithContext(ctx).
		Raw("SELECT * FROM search.search_products_fts(?, ?, ?, ?)", query, family, pageSize, offsetOf(page, pageSize)).
		Scan(&products).Error
	if err != nil {
		return nil, 0, translateError(err)
	}

	var total int64
	count := r.db.WithContext(ctx).Model(&entity.Product{})
	if query != "" {
		count = count.Where(
			"to_tsvector('simple', search_text) @@ plainto_tsquery('simple', ?) OR search_text LIKE ?",
			query, containsPattern(query))
	}
	if family != "" {
		count = count.Where("family = ?", family)
	}
	if err := count.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}
	return products, total, nil
}

func (r *CatalogRepository) ListFamilies(ctx context.Context) ([]string, error) {
	var families []string
	err := r.db.WithContext(ctx).
		Model(&entity.Product{}).
		Distinct("family").
		Where("family <> ''").
		Order("family ASC").
		Pluck("family", &families).Error
	return families, translateError(err)
}

// UpsertProducts inserts or refreshes products keyed by foss_pid
func (r *CatalogRepository) UpsertProducts(ctx context.Context, products []entity.Product) error {
	if len(products) == 0 {
		return nil
	}
	return translateError(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "foss_pid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"supplier_name", "description_short", "description_long", "family",
			"class_name", "price", "currency", "specs", "search_text", "image_url", "updated_at",
		}),
	}).CreateInBatches(products, 200).Error)
}

// ============================================================
// Customers
// ============================================================

func (r *CatalogRepository) FindCustomer(ctx context.Context, id string) (*entity.Customer, error) {
	var customer entity.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, translateError(err)
	}
	return &customer, nil
}

func (r *CatalogRepository) SearchCustomers(ctx context.Context, keyword string, page, pageSize int) ([]entity.Customer, int64, error) {
	var customers []entity.Customer
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Customer{})
	if keyword != "" {
		like := containsPattern(keyword)
		query = query.Where("name ILIKE ? OR name_en ILIKE ? OR customer_code ILIKE ? OR city ILIKE ?", like, like, like, like)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}
	err := query.Order("name ASC").Offset(offsetOf(page, pageSize)).Limit(pageSize).Find(&customers).Error
	return customers, total, translateError(err)
}

func (r *CatalogRepository) CreateCustomer(ctx context.Context, customer *entity.Customer) error {
	return translateError(r.db.WithContext(ctx).Create(customer).Error)
}

// DashboardStats calls analytics.get_dashboard_stats
func (r *CatalogRepository) DashboardStats(ctx context.Context) (*entity.DashboardStats, error) {
	var stats entity.DashboardStats
	if err := r.db.WithContext(ctx).Raw("SELECT * FROM analytics.get_dashboard_stats()").Scan(&stats).Error; err != nil {
		return nil, translateError(err)
	}
	return &stats, nil
}
