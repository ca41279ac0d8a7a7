package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/fossapp/sse"
	"github.com/fosslighting/fossapp/internal/fossapp/tile"
	"github.com/fosslighting/fossapp/internal/shared/tilegen"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// TileJobStore durable record of generation runs
type TileJobStore interface {
	Create(ctx context.Context, job *entity.TileJob) error
	FindForUser(ctx context.Context, userID, id string) (*entity.TileJob, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
}

// ProductLookup catalog read used to fill board items
type ProductLookup interface {
	FindProduct(ctx context.Context, id string) (*entity.Product, error)
}

// TileService per-user tile board and tile drawing generation
type TileService struct {
	boards   tile.Store
	jobs     TileJobStore
	products ProductLookup
	gen      TileGenerator
	objects  ObjectStore
	viewer   *ViewerService
	hub      *sse.Hub
	logger   *zap.Logger

	locks sync.Map // userID -> *sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTileService(repos *repository.Repositories, boards tile.Store, gen TileGenerator, objects ObjectStore, viewer *ViewerService, hub *sse.Hub, logger *zap.Logger) *TileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = sse.NewHub(logger)
	}
	if boards == nil {
		boards = tile.NewMemoryStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &TileService{
		boards:  boards,
		gen:     gen,
		objects: objects,
		viewer:  viewer,
		hub:     hub,
		logger:  logger.Named("tile"),
		ctx:     ctx,
		cancel:  cancel,
	}
	if repos != nil {
		s.jobs = repos.TileJob
		s.products = repos.Catalog
	}
	return s
}

// Close cancels running jobs and waits for them to record their state
func (s *TileService) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every started job has finished
func (s *TileService) Wait() {
	s.wg.Wait()
}

func (s *TileService) lock(userID string) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ============================================================
// Board
// ============================================================

// BoardResult board after an operation
type BoardResult struct {
	Board  *tile.Board     `json:"board"`
	Result tile.MoveResult `json:"result"`
}

func boardError(err error) error {
	switch {
	case errors.Is(err, tile.ErrItemNotFound), errors.Is(err, tile.ErrTileNotFound):
		return notFound(err.Error())
	case errors.Is(err, tile.ErrDuplicate):
		return duplicate(err.Error())
	case errors.Is(err, tile.ErrInvalidMove), errors.Is(err, tile.ErrInvalidItem):
		return invalidf("%s", err.Error())
	}
	return err
}

// mutate runs fn on the user's board under the user lock and saves the
// board when fn reports a change.
func (s *TileService) mutate(ctx context.Context, userID string, fn func(b *tile.Board) (tile.MoveResult, error)) (*BoardResult, error) {
	unlock := s.lock(userID)
	defer unlock()

	b, err := s.boards.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}
	res, err := fn(b)
	if err != nil {
		return nil, boardError(err)
	}
	if res.Changed {
		if err := s.boards.Save(ctx, userID, b); err != nil {
			return nil, fmt.Errorf("save board: %w", err)
		}
	}
	return &BoardResult{Board: b, Result: res}, nil
}

func (s *TileService) GetBoard(ctx context.Context, userID string) (*tile.Board, error) {
	b, err := s.boards.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}
	return b, nil
}

type AddToBucketRequest struct {
	ProductID   string `json:"product_id" binding:"required"`
	FossPID     string `json:"foss_pid"`
	Description string `json:"description"`
	Family      string `json:"family"`
	ImageURL    string `json:"image_url"`
}

// AddToBucket fills the item from the catalog when one is available
func (s *TileService) AddToBucket(ctx context.Context, userID string, req *AddToBucketRequest) (*BoardResult, error) {
	item := tile.Item{
		ProductID:   strings.TrimSpace(req.ProductID),
		FossPID:     req.FossPID,
		Description: req.Description,
		Family:      req.Family,
		ImageURL:    req.ImageURL,
	}
	if s.products != nil && item.ProductID != "" {
		p, err := s.products.FindProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, invalidf("product %s does not exist", item.ProductID)
			}
			return nil, fmt.Errorf("find product: %w", err)
		}
		item.FossPID = p.FossPID
		item.Description = p.DescriptionShort
		item.Family = p.Family
		item.ImageURL = p.ImageURL
	}
	return s.mutate(ctx, userID, func(b *tile.Board) (tile.MoveResult, error) {
		return b.AddToBucket(item)
	})
}

func (s *TileService) RemoveFromBucket(ctx context.Context, userID, productID string) (*BoardResult, error) {
	return s.mutate(ctx, userID, func(b *tile.Board) (tile.MoveResult, error) {
		return b.RemoveFromBucket(productID)
	})
}

// Move applies a drag from activeID onto overID
func (s *TileService) Move(ctx context.Context, userID, activeID, overID string) (*BoardResult, error) {
	return s.mutate(ctx, userID, func(b *tile.Board) (tile.MoveResult, error) {
		return b.Move(activeID, overID)
	})
}

func (s *TileService) RenameTile(ctx context.Context, userID, tileID, name string) (*BoardResult, error) {
	return s.mutate(ctx, userID, func(b *tile.Board) (tile.MoveResult, error) {
		return b.RenameTile(tileID, name)
	})
}

func (s *TileService) DeleteTile(ctx context.Context, userID, tileID string) (*BoardResult, error) {
	return s.mutate(ctx, userID, func(b *tile.Board) (tile.MoveResult, error) {
		return b.DeleteTile(tileID)
	})
}

func (s *TileService) ClearBoard(ctx context.Context, userID string) (*BoardResult, error) {
	return s.mutate(ctx, userID, func(b *tile.Board) (tile.MoveResult, error) {
		return b.Clear(), nil
	})
}

// ============================================================
// Generation
// ============================================================

// TileObjectKey tiles/{user}/{job}.dwg
func TileObjectKey(userID, jobID string) string {
	return fmt.Sprintf("tiles/%s/%s.dwg", userID, jobID)
}

// GenerateTile snapshots the tile's members, records a job and runs it in
// the background. Progress goes to the user's SSE connections.
func (s *TileService) GenerateTile(ctx context.Context, userID, tileID string) (*entity.TileJob, error) {
	if s.gen == nil {
		return nil, fmt.Errorf("tile generator: %w", ErrUnavailable)
	}
	if s.jobs == nil {
		return nil, fmt.Errorf("tile jobs: %w", ErrUnavailable)
	}

	b, err := s.GetBoard(ctx, userID)
	if err != nil {
		return nil, err
	}
	group, ok := b.Group(tileID)
	if !ok {
		return nil, notFound("tile not found")
	}
	if len(group.Members) == 0 {
		return nil, invalidf("tile %s has no products", group.Name)
	}

	members, err := json.Marshal(group.Members)
	if err != nil {
		return nil, fmt.Errorf("marshal members: %w", err)
	}
	job := &entity.TileJob{
		ID:        uuid.New().String(),
		UserID:    userID,
		TileID:    group.ID,
		TileName:  group.Name,
		Members:   datatypes.JSON(members),
		Status:    entity.TileJobRunning,
		Phase:     entity.TilePhaseQueued,
		CreatedAt: time.Now(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create tile job: %w", err)
	}

	s.publish(job, entity.TilePhaseQueued, "Queued", "")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(s.ctx, job, group)
	}()
	return job, nil
}

func (s *TileService) publish(job *entity.TileJob, phase, message, urn string) {
	s.hub.PublishTileProgress(job.UserID, sse.TileProgress{
		JobID:   job.ID,
		TileID:  job.TileID,
		Phase:   phase,
		Message: message,
		URN:     urn,
	})
}

func (s *TileService) runJob(ctx context.Context, job *entity.TileJob, group tile.Group) {
	log := s.logger.With(zap.String("job_id", job.ID), zap.String("tile_id", job.TileID), zap.String("user_id", job.UserID))
	log.Info("tile generation started", zap.Int("members", len(group.Members)))

	urn, objectKey, phase, err := s.generate(ctx, job, group)
	if err != nil {
		log.Warn("tile generation failed", zap.String("phase", phase), zap.Error(err))
		s.finish(job, entity.TileJobFailed, entity.TilePhaseError, "", objectKey, err.Error(), log)
		s.publish(job, entity.TilePhaseError, err.Error(), "")
		return
	}
	log.Info("tile generation complete", zap.String("urn", urn))
	s.finish(job, entity.TileJobSucceeded, entity.TilePhaseComplete, urn, objectKey, "", log)
	s.publish(job, entity.TilePhaseComplete, "Tile drawing ready", urn)
}

// generate returns the phase it stopped in alongside any error
func (s *TileService) generate(ctx context.Context, job *entity.TileJob, group tile.Group) (urn, objectKey, phase string, err error) {
	phase = entity.TilePhaseValidating
	s.publish(job, phase, "Validating tile members", "")
	members := make([]tilegen.Member, 0, len(group.Members))
	for _, m := range group.Members {
		if m.ProductID == "" {
			return "", "", phase, errors.New("tile contains an item without a product id")
		}
		members = append(members, tilegen.Member{ProductID: m.ProductID, FossPID: m.FossPID, Description: m.Description})
	}

	phase = entity.TilePhaseGenerating
	s.publish(job, phase, "Generating drawing", "")
	drawing, err := s.gen.Generate(ctx, tilegen.Request{
		JobID:    job.ID,
		TileID:   job.TileID,
		TileName: job.TileName,
		Members:  members,
	})
	if err != nil {
		return "", "", phase, fmt.Errorf("generate drawing: %w", err)
	}

	phase = entity.TilePhaseUploading
	s.publish(job, phase, "Uploading drawing", "")
	if s.objects != nil {
		key := TileObjectKey(job.UserID, job.ID)
		if err := s.objects.Put(ctx, key, bytes.NewReader(drawing.Data), int64(len(drawing.Data)), "application/acad"); err != nil {
			return "", "", phase, fmt.Errorf("store drawing: %w", err)
		}
		objectKey = key
	}
	if s.viewer == nil {
		return "", objectKey, phase, fmt.Errorf("viewer: %w", ErrUnavailable)
	}
	uploaded, err := s.viewer.Upload(ctx, UploadRequest{
		CacheKey: CacheKeyTile + job.TileID,
		FileName: drawing.FileName,
		Data:     drawing.Data,
		Force:    true,
	})
	if err != nil {
		return "", objectKey, phase, fmt.Errorf("upload drawing: %w", err)
	}

	phase = entity.TilePhaseTranslating
	s.publish(job, phase, "Translating drawing", uploaded.URN)
	if _, err := s.viewer.WaitForTranslation(ctx, uploaded.URN); err != nil {
		return "", objectKey, phase, fmt.Errorf("translate drawing: %w", err)
	}
	return uploaded.URN, objectKey, entity.TilePhaseComplete, nil
}

// finish writes the terminal state; it outlives a cancelled job context
func (s *TileService) finish(job *entity.TileJob, status, phase, urn, objectKey, errMsg string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	finished := time.Now()
	err := s.jobs.UpdateFields(ctx, job.ID, map[string]interface{}{
		"status":      status,
		"phase":       phase,
		"urn":         urn,
		"object_key":  objectKey,
		"error":       errMsg,
		"finished_at": finished,
	})
	if err != nil {
		log.Error("store tile job result failed", zap.Error(err))
	}
}

// GetJob job of the calling user
func (s *TileService) GetJob(ctx context.Context, userID, jobID string) (*entity.TileJob, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("tile jobs: %w", ErrUnavailable)
	}
	job, err := s.jobs.FindForUser(ctx, userID, jobID)
	if err != nil {
		return nil, fmt.Errorf("find tile job: %w", err)
	}
	return job, nil
}
