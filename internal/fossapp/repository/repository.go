package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrDuplicate  = errors.New("duplicate record")
	ErrReferenced = errors.New("record is referenced")
)

// Postgres SQLSTATE codes inspected by translateError
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repositories repository set
type Repositories struct {
	db             *gorm.DB
	Project        *ProjectRepository
	Area           *AreaRepository
	ProjectProduct *ProjectProductRepository
	Catalog        *CatalogRepository
	TileJob        *TileJobRepository
}

// NewRepositories builds every repository on the same handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:             db,
		Project:        NewProjectRepository(db),
		Area:           NewAreaRepository(db),
		ProjectProduct: NewProjectProductRepository(db),
		Catalog:        NewCatalogRepository(db),
		TileJob:        NewTileJobRepository(db),
	}
}

// DB underlying handle
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// Transaction runs fn with repositories bound to one DB transaction
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// Ping checks the connection
func (r *Repositories) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// translateError maps driver errors onto the package sentinels
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrReferenced, pgErr.ConstraintName)
		}
	}
	return err
}

func offsetOf(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern %keyword% with LIKE wildcards in keyword escaped
// (backslash is the Postgres default escape character).
func containsPattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}
