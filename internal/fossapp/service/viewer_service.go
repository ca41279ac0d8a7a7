package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fosslighting/fossapp/internal/config"
	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/shared/aps"
	"github.com/fosslighting/fossapp/internal/shared/gdrive"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache key prefixes
const (
	CacheKeyTile   = "tile:"
	CacheKeyDrive  = "drive:"
	CacheKeySHA256 = "sha256:"
)

// ViewerService uploads drawings for the browser viewer and tracks their
// translation.
type ViewerService struct {
	repos  *repository.Repositories
	aps    APSClient
	drive  DriveClient
	cache  URNCache
	apsCfg config.APSConfig
	cfg    config.ViewerConfig
	logger *zap.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewViewerService(repos *repository.Repositories, apsClient APSClient, drive DriveClient, cache URNCache, apsCfg config.APSConfig, cfg config.ViewerConfig, logger *zap.Logger) *ViewerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewMemoryURNCache()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 60
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &ViewerService{
		repos:  repos,
		aps:    apsClient,
		drive:  drive,
		cache:  cache,
		apsCfg: apsCfg,
		cfg:    cfg,
		logger: logger.Named("viewer"),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Token read-only token for the browser viewer
func (s *ViewerService) Token(ctx context.Context) (*aps.Token, error) {
	if s.aps == nil {
		return nil, fmt.Errorf("viewer: %w", ErrUnavailable)
	}
	return s.aps.ViewerToken(ctx)
}

// UploadRequest names a drawing by Drive file id or by content. CacheKey
// overrides the derived key; Force skips the cache lookup but still
// refreshes the entry.
type UploadRequest struct {
	CacheKey    string
	DriveFileID string
	FileName    string
	Data        []byte
	Force       bool
}

type UploadResult struct {
	URN       string    `json:"urn"`
	FileName  string    `json:"file_name"`
	Cached    bool      `json:"cached"`
	CreatedAt time.Time `json:"created_at"`
}

// Upload returns a cached URN younger than the cache TTL, otherwise
// uploads to the shared viewer bucket and starts a translation.
func (s *ViewerService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if s.aps == nil {
		return nil, fmt.Errorf("viewer: %w", ErrUnavailable)
	}

	key := req.CacheKey
	switch {
	case key != "":
	case req.DriveFileID != "":
		key = CacheKeyDrive + req.DriveFileID
	case len(req.Data) > 0:
		sum := sha256.Sum256(req.Data)
		key = CacheKeySHA256 + hex.EncodeToString(sum[:])
	default:
		return nil, invalidf("a file or a drive file id is required")
	}
	log := s.logger.With(zap.String("cache_key", key))

	if !req.Force {
		if hit := s.lookup(ctx, key, log); hit != nil {
			return &UploadResult{URN: hit.URN, FileName: req.FileName, Cached: true, CreatedAt: hit.CreatedAt}, nil
		}
	}

	data, name := req.Data, req.FileName
	if len(data) == 0 && req.DriveFileID != "" {
		if s.drive == nil {
			return nil, fmt.Errorf("drive: %w", ErrUnavailable)
		}
		driveName, driveData, err := s.drive.Download(ctx, req.DriveFileID)
		if err != nil {
			return nil, fmt.Errorf("download drive file: %w", err)
		}
		data = driveData
		if name == "" {
			name = driveName
		}
	}
	if len(data) == 0 {
		return nil, invalidf("file is empty")
	}
	if name == "" {
		name = "drawing.dwg"
	}

	bucket := s.apsCfg.ViewerBucket
	if err := s.aps.EnsureBucket(ctx, bucket, aps.PolicyTemporary); err != nil {
		return nil, fmt.Errorf("ensure viewer bucket: %w", err)
	}
	obj, err := s.aps.UploadObject(ctx, bucket, viewerObjectKey(key, name), data)
	if err != nil {
		return nil, fmt.Errorf("upload drawing: %w", err)
	}
	urn := obj.URN()
	if err := s.aps.Translate(ctx, urn); err != nil {
		return nil, fmt.Errorf("start translation: %w", err)
	}

	entry := CachedURN{URN: urn, CreatedAt: s.now()}
	if err := s.cache.Set(ctx, key, entry); err != nil {
		log.Warn("write urn cache failed", zap.Error(err))
	}
	log.Info("drawing uploaded for viewer", zap.String("urn", urn), zap.Int("size", len(data)))
	return &UploadResult{URN: urn, FileName: name, CreatedAt: entry.CreatedAt}, nil
}

func (s *ViewerService) lookup(ctx context.Context, key string, log *zap.Logger) *CachedURN {
	hit, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn("read urn cache failed", zap.Error(err))
		return nil
	}
	if hit == nil || hit.URN == "" || s.now().Sub(hit.CreatedAt) >= s.cfg.CacheTTL {
		return nil
	}
	return hit
}

// viewerObjectKey stable per cache key so a re-upload replaces the object
func viewerObjectKey(cacheKey, fileName string) string {
	sum := sha256.Sum256([]byte(cacheKey))
	return hex.EncodeToString(sum[:6]) + "_" + SafeFileName(fileName)
}

// Status single manifest read
func (s *ViewerService) Status(ctx context.Context, urn string) (*aps.Manifest, error) {
	if s.aps == nil {
		return nil, fmt.Errorf("viewer: %w", ErrUnavailable)
	}
	if urn == "" {
		return nil, invalidf("urn is required")
	}
	return s.aps.Manifest(ctx, urn)
}

// WaitForTranslation polls the manifest until it is terminal. Failed and
// timed out translations return the manifest with ErrTranslation; running
// out of attempts reports status timeout.
func (s *ViewerService) WaitForTranslation(ctx context.Context, urn string) (*aps.Manifest, error) {
	var last *aps.Manifest
	for attempt := 1; attempt <= s.cfg.MaxPollAttempts; attempt++ {
		m, err := s.Status(ctx, urn)
		if err != nil {
			return nil, err
		}
		last = m
		if m.Terminal() {
			if m.Status == aps.StatusSuccess {
				return m, nil
			}
			return m, fmt.Errorf("%w: %s", ErrTranslation, m.Status)
		}
		if attempt == s.cfg.MaxPollAttempts {
			break
		}
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			return last, err
		}
	}
	timedOut := *last
	timedOut.Status = aps.StatusTimeout
	return &timedOut, fmt.Errorf("%w: no result after %d attempts", ErrTranslation, s.cfg.MaxPollAttempts)
}

// ============================================================
// Area version floor plans
// ============================================================

// UploadFloorPlan stores the drawing in the project bucket as
// v{N}_{filename} and starts its translation.
func (s *ViewerService) UploadFloorPlan(ctx context.Context, versionID, fileName string, data []byte) (*entity.AreaVersion, error) {
	if s.aps == nil {
		return nil, fmt.Errorf("floor plan: %w", ErrUnavailable)
	}
	if len(data) == 0 {
		return nil, invalidf("file is empty")
	}
	version, err := s.repos.Area.FindVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("find version: %w", err)
	}
	if version.Area == nil {
		return nil, fmt.Errorf("version %s has no area: %w", versionID, repository.ErrNotFound)
	}
	project, err := s.repos.Project.FindPlain(ctx, version.Area.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}

	bucket := aps.BucketKey(s.apsCfg.BucketPrefix, project.ID)
	if project.OSSBucket != nil && *project.OSSBucket != "" {
		bucket = *project.OSSBucket
	}
	if err := s.aps.EnsureBucket(ctx, bucket, aps.PolicyPersistent); err != nil {
		return nil, fmt.Errorf("ensure project bucket: %w", err)
	}
	if project.OSSBucket == nil || *project.OSSBucket != bucket {
		if err := s.repos.Project.UpdateFields(ctx, project.ID, map[string]interface{}{"oss_bucket": bucket}); err != nil {
			return nil, fmt.Errorf("store project bucket: %w", err)
		}
	}

	key := FloorPlanObjectKey(version.VersionNumber, fileName)
	obj, err := s.aps.UploadObject(ctx, bucket, key, data)
	if err != nil {
		return nil, fmt.Errorf("upload floor plan: %w", err)
	}
	urn := obj.URN()
	if err := s.aps.Translate(ctx, urn); err != nil {
		return nil, fmt.Errorf("start translation: %w", err)
	}

	err = s.repos.Area.UpdateVersionFields(ctx, versionID, map[string]interface{}{
		"floor_plan_urn":        urn,
		"floor_plan_filename":   fileName,
		"floor_plan_object_key": key,
		"floor_plan_status":     entity.FloorPlanPending,
		"floor_plan_progress":   "",
	})
	if err != nil {
		return nil, fmt.Errorf("store floor plan: %w", err)
	}

	if version.HasFloorPlan() && *version.FloorPlanObjectKey != key {
		if err := s.aps.DeleteObject(ctx, bucket, *version.FloorPlanObjectKey); err != nil {
			s.logger.Warn("delete replaced floor plan failed",
				zap.String("version_id", versionID), zap.String("object_key", *version.FloorPlanObjectKey), zap.Error(err))
		}
	}
	s.copyFloorPlanToDrive(ctx, version, fileName, data)
	return s.repos.Area.FindVersion(ctx, versionID)
}

// copyFloorPlanToDrive keeps the uploaded drawing in v{N}/Working;
// failures only log.
func (s *ViewerService) copyFloorPlanToDrive(ctx context.Context, version *entity.AreaVersion, fileName string, data []byte) {
	area := version.Area
	if s.drive == nil || area.GoogleDriveFolderID == nil || *area.GoogleDriveFolderID == "" {
		return
	}
	log := s.logger.With(zap.String("version_id", version.ID), zap.String("file", fileName))
	folders, err := s.drive.CreateVersionFolders(ctx, *area.GoogleDriveFolderID, version.VersionNumber)
	if err != nil {
		log.Warn("find version folders failed", zap.Error(err))
		return
	}
	if _, err := s.drive.UploadFile(ctx, folders.Subfolders[gdrive.WorkingFolder], SafeFileName(fileName), gdrive.DWGMimeType, bytes.NewReader(data)); err != nil {
		log.Warn("copy floor plan to drive failed", zap.Error(err))
	}
}

// RefreshFloorPlanStatus reads the manifest once and stores status and
// progress.
func (s *ViewerService) RefreshFloorPlanStatus(ctx context.Context, versionID string) (*entity.AreaVersion, error) {
	version, err := s.repos.Area.FindVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("find version: %w", err)
	}
	if version.FloorPlanURN == nil || *version.FloorPlanURN == "" {
		return nil, invalidf("this version has no floor plan")
	}
	m, err := s.Status(ctx, *version.FloorPlanURN)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.Status == version.FloorPlanStatus && m.Progress == version.FloorPlanProgress {
		return version, nil
	}
	err = s.repos.Area.UpdateVersionFields(ctx, versionID, map[string]interface{}{
		"floor_plan_status":   floorPlanStatus(m.Status),
		"floor_plan_progress": m.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("store floor plan status: %w", err)
	}
	return s.repos.Area.FindVersion(ctx, versionID)
}

func floorPlanStatus(manifestStatus string) string {
	switch manifestStatus {
	case aps.StatusPending:
		return entity.FloorPlanPending
	case aps.StatusInProgress:
		return entity.FloorPlanInProgress
	case aps.StatusSuccess:
		return entity.FloorPlanSuccess
	case aps.StatusTimeout:
		return entity.FloorPlanTimeout
	default:
		return entity.FloorPlanFailed
	}
}

// ============================================================
// URN caches
// ============================================================

const urnCachePrefix = "viewer:urn:"

// RedisURNCache entries expire with the viewer cache TTL
type RedisURNCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisURNCache(rdb redis.Cmdable, ttl time.Duration) *RedisURNCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisURNCache{rdb: rdb, ttl: ttl}
}

func (c *RedisURNCache) Get(ctx context.Context, key string) (*CachedURN, error) {
	raw, err := c.rdb.Get(ctx, urnCachePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry CachedURN
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, nil
	}
	return &entry, nil
}

func (c *RedisURNCache) Set(ctx context.Context, key string, entry CachedURN) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, urnCachePrefix+key, data, c.ttl).Err()
}

// MemoryURNCache process-local cache; age is checked by the caller
type MemoryURNCache struct {
	mu      sync.RWMutex
	entries map[string]CachedURN
}

func NewMemoryURNCache() *MemoryURNCache {
	return &MemoryURNCache{entries: make(map[string]CachedURN)}
}

func (c *MemoryURNCache) Get(_ context.Context, key string) (*CachedURN, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (c *MemoryURNCache) Set(_ context.Context, key string, entry CachedURN) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return nil
}
