package repository

import (
	"fmt"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"gorm.io/gorm"
)

var schemas = []string{"projects", "items", "customers", "analytics", "search"}

// Migrate creates schemas, tables, the generated price column and the
// SQL functions the services call.
func Migrate(db *gorm.DB) error {
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("create schema %s: %w", schema, err)
		}
	}

	if err := db.AutoMigrate(
		&entity.Customer{},
		&entity.Product{},
		&entity.Project{},
		&entity.ProjectContact{},
		&entity.ProjectDocument{},
		&entity.ProjectPhase{},
		&entity.ProjectArea{},
		&entity.AreaVersion{},
		&entity.ProjectProduct{},
		&entity.TileJob{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	for _, sql := range migrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}
	return nil
}

var migrationSQL = []string{
	`ALTER TABLE projects.project_products ADD COLUMN IF NOT EXISTS total_price numeric(14,2)
		GENERATED ALWAYS AS (round(quantity * unit_price * (1 - discount_percent / 100), 2)) STORED`,

	`CREATE INDEX IF NOT EXISTS idx_products_search_text ON items.products USING gin (to_tsvector('simple', search_text))`,

	`CREATE OR REPLACE FUNCTION projects.generate_project_code() RETURNS text
	LANGUAGE plpgsql AS $$
	DECLARE
		prefix text := to_char(now(), 'YYMM');
		next_seq int;
	BEGIN
		PERFORM pg_advisory_xact_lock(hashtext('projects.generate_project_code'));
		SELECT COALESCE(MAX(split_part(project_code, '-', 2)::int), 0) + 1
		  INTO next_seq
		  FROM projects.projects
		 WHERE project_code LIKE prefix || '-%';
		-- past 999 the code keeps every digit
		IF next_seq > 999 THEN
			RETURN prefix || '-' || next_seq::text;
		END IF;
		RETURN prefix || '-' || lpad(next_seq::text, 3, '0');
	END;
	$$`,

	`CREATE OR REPLACE FUNCTION projects.get_area_version_summary(p_version_id varchar)
	RETURNS TABLE(area_version_id varchar, product_count bigint, total_quantity bigint, total_value numeric)
	LANGUAGE sql STABLE AS $$
		SELECT p_version_id,
		       COUNT(pp.id),
		       COALESCE(SUM(pp.quantity), 0)::bigint,
		       COALESCE(SUM(pp.total_price), 0)
		  FROM projects.project_products pp
		 WHERE pp.area_version_id = p_version_id
	$$`,

	`CREATE OR REPLACE FUNCTION analytics.get_dashboard_stats()
	RETURNS TABLE(total_projects bigint, active_projects bigint, completed_projects bigint,
	              archived_projects bigint, total_areas bigint, total_products bigint,
	              total_value numeric, total_customers bigint)
	LANGUAGE sql STABLE AS $$
		SELECT
			(SELECT COUNT(*) FROM projects.projects),
			(SELECT COUNT(*) FROM projects.projects WHERE status = 'active'),
			(SELECT COUNT(*) FROM projects.projects WHERE status = 'completed'),
			(SELECT COUNT(*) FROM projects.projects WHERE is_archived),
			(SELECT COUNT(*) FROM projects.project_areas),
			(SELECT COUNT(*) FROM projects.project_products),
			(SELECT COALESCE(SUM(total_price), 0) FROM projects.project_products),
			(SELECT COUNT(*) FROM customers.customers)
	$$`,

	`CREATE OR REPLACE FUNCTION search.search_products_fts(p_query text, p_family text, p_limit int, p_offset int)
	RETURNS SETOF items.products
	LANGUAGE sql STABLE AS $$
		SELECT p.*
		  FROM items.products p
		 WHERE (p_query = ''
		        OR to_tsvector('simple', p.search_text) @@ plainto_tsquery('simple', p_query)
		        OR p.search_text LIKE '%' || p_query || '%')
		   AND (p_family = '' OR p.family = p_family)
		 ORDER BY (lower(p.foss_pid) = p_query) DESC,
		          ts_rank(to_tsvector('simple', p.search_text), plainto_tsquery('simple', p_query)) DESC,
		          p.foss_pid
		 LIMIT p_limit OFFSET p_offset
	$$`,
}
