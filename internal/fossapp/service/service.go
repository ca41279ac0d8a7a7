package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fosslighting/fossapp/internal/config"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/fossapp/sse"
	"github.com/fosslighting/fossapp/internal/fossapp/tile"
	"github.com/fosslighting/fossapp/internal/shared/aps"
	"github.com/fosslighting/fossapp/internal/shared/gdrive"
	"github.com/fosslighting/fossapp/internal/shared/tilegen"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("external service not configured")
	ErrTranslation  = errors.New("translation did not succeed")
)

// UserError carries a message that is safe to show to the caller while
// still matching its category with errors.Is.
type UserError struct {
	Kind error
	Msg  string
}

func (e *UserError) Error() string { return e.Msg }
func (e *UserError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...interface{}) error {
	return &UserError{Kind: ErrInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

func duplicate(msg string) error {
	return &UserError{Kind: repository.ErrDuplicate, Msg: msg}
}

func notFound(msg string) error {
	return &UserError{Kind: repository.ErrNotFound, Msg: msg}
}

// ============================================================
// External systems
// ============================================================

// DriveClient Google Drive folder operations
type DriveClient interface {
	CreateProjectSkeleton(ctx context.Context, projectCode string) (*gdrive.ProjectFolders, error)
	CreateAreaFolder(ctx context.Context, projectFolderID, areaCode string) (string, error)
	CreateVersionFolders(ctx context.Context, areaFolderID string, versionNumber int) (*gdrive.VersionFolders, error)
	CopyFolder(ctx context.Context, srcID, dstParentID, name string) (string, error)
	MoveToArchive(ctx context.Context, folderID string) error
	Delete(ctx context.Context, fileID string) error
	UploadFile(ctx context.Context, parentID, name, mimeType string, r io.Reader) (string, error)
	Download(ctx context.Context, fileID string) (string, []byte, error)
}

// APSClient Autodesk OSS and Model Derivative operations
type APSClient interface {
	ViewerToken(ctx context.Context) (*aps.Token, error)
	EnsureBucket(ctx context.Context, bucketKey, policy string) error
	DeleteBucket(ctx context.Context, bucketKey string) error
	ListObjects(ctx context.Context, bucketKey string) ([]aps.Object, error)
	UploadObject(ctx context.Context, bucketKey, objectKey string, data []byte) (*aps.Object, error)
	CopyObject(ctx context.Context, bucketKey, objectKey, newObjectKey string) (*aps.Object, error)
	DeleteObject(ctx context.Context, bucketKey, objectKey string) error
	Translate(ctx context.Context, urn string) error
	Manifest(ctx context.Context, urn string) (*aps.Manifest, error)
}

// ObjectStore blob storage for documents and generated drawings
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// TileGenerator renders tile drawings
type TileGenerator interface {
	Generate(ctx context.Context, req tilegen.Request) (*tilegen.Drawing, error)
}

// CachedURN viewer cache entry
type CachedURN struct {
	URN       string    `json:"urn"`
	CreatedAt time.Time `json:"created_at"`
}

// URNCache maps a cache key (tile id, Drive file id, content hash) to a
// translated URN. Get returns nil on a miss.
type URNCache interface {
	Get(ctx context.Context, key string) (*CachedURN, error)
	Set(ctx context.Context, key string, entry CachedURN) error
}

// ============================================================
// Services
// ============================================================

// Deps everything the services are built from. Nil externals disable the
// features that need them.
type Deps struct {
	Repos   *repository.Repositories
	Redis   redis.Cmdable
	Drive   DriveClient
	APS     APSClient
	Objects ObjectStore
	TileGen TileGenerator
	Boards  tile.Store
	Hub     *sse.Hub
	Config  *config.Config
	Logger  *zap.Logger
}

// Services service set
type Services struct {
	Project        *ProjectService
	Document       *DocumentService
	Area           *AreaService
	ProjectProduct *ProjectProductService
	Catalog        *CatalogService
	Currency       *CurrencyService
	Viewer         *ViewerService
	Tile           *TileService
}

// NewServices wires the service set
func NewServices(d Deps) *Services {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Hub == nil {
		d.Hub = sse.NewHub(d.Logger)
	}
	if d.Boards == nil {
		if d.Redis != nil {
			d.Boards = tile.NewRedisStore(d.Redis)
		} else {
			d.Boards = tile.NewMemoryStore()
		}
	}

	var urnCache URNCache
	if d.Redis != nil {
		urnCache = NewRedisURNCache(d.Redis, d.Config.Viewer.CacheTTL)
	} else {
		urnCache = NewMemoryURNCache()
	}

	viewer := NewViewerService(d.Repos, d.APS, d.Drive, urnCache, d.Config.APS, d.Config.Viewer, d.Logger)

	return &Services{
		Project:        NewProjectService(d.Repos, d.Drive, d.APS, d.Objects, d.Hub, d.Config.APS, d.Logger),
		Document:       NewDocumentService(d.Repos, d.Objects, d.Logger),
		Area:           NewAreaService(d.Repos, d.Drive, d.APS, d.Logger),
		ProjectProduct: NewProjectProductService(d.Repos),
		Catalog:        NewCatalogService(d.Repos),
		Currency:       NewCurrencyService(d.Redis, d.Config.Currency, d.Logger),
		Viewer:         viewer,
		Tile:           NewTileService(d.Repos, d.Boards, d.TileGen, d.Objects, viewer, d.Hub, d.Logger),
	}
}

// totalPages ceil(total / pageSize)
func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}
	return pages
}
