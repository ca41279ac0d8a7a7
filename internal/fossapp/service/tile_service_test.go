package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fosslighting/fossapp/internal/config"
	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/fossapp/sse"
	"github.com/fosslighting/fossapp/internal/fossapp/tile"
	"github.com/fosslighting/fossapp/internal/shared/aps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tileUser = "user-1"

type tileFixture struct {
	svc     *TileService
	aps     *fakeAPS
	gen     *fakeGen
	objects *fakeObjects
	jobs    *fakeJobs
	hub     *sse.Hub
	client  *sse.Client
}

func newTileFixture(t *testing.T, statuses ...string) *tileFixture {
	t.Helper()
	f := &tileFixture{
		aps:     newFakeAPS(statuses...),
		gen:     &fakeGen{},
		objects: newFakeObjects(),
		jobs:    newFakeJobs(),
		hub:     sse.NewHub(nil),
		client:  sse.NewClient("c1", tileUser),
	}
	f.hub.Register(f.client)

	viewer := NewViewerService(nil, f.aps, nil, NewMemoryURNCache(),
		config.APSConfig{ViewerBucket: "fossapp_viewer"},
		config.ViewerConfig{PollInterval: time.Millisecond, MaxPollAttempts: 3, CacheTTL: 24 * time.Hour},
		nil)
	viewer.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	f.svc = NewTileService(nil, tile.NewMemoryStore(), f.gen, f.objects, viewer, f.hub, nil)
	f.svc.jobs = f.jobs
	t.Cleanup(f.svc.Close)
	return f
}

func (f *tileFixture) addToBucket(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.svc.AddToBucket(context.Background(), tileUser, &AddToBucketRequest{ProductID: id, FossPID: "PID-" + id})
		require.NoError(t, err)
	}
}

// drainPhases collects tile_progress phases until the channel is idle
func (f *tileFixture) drainPhases(t *testing.T) []string {
	t.Helper()
	var phases []string
	for {
		select {
		case ev := <-f.client.Events:
			if ev.EventType != "tile_progress" {
				continue
			}
			var p sse.TileProgress
			require.NoError(t, json.Unmarshal([]byte(ev.Data), &p))
			phases = append(phases, p.Phase)
		default:
			return phases
		}
	}
}

func TestTileService_BoardOperations(t *testing.T) {
	f := newTileFixture(t)
	ctx := context.Background()
	f.addToBucket(t, "p1", "p2")

	res, err := f.svc.Move(ctx, tileUser, "p1", tile.DropNewTile)
	require.NoError(t, err)
	assert.Equal(t, tile.OpBucketToNewTile, res.Result.Op)
	require.Len(t, res.Board.TileGroups, 1)
	groupID := res.Board.TileGroups[0].ID

	res, err = f.svc.Move(ctx, tileUser, "p2", groupID)
	require.NoError(t, err)
	assert.Equal(t, tile.OpBucketToTile, res.Result.Op)

	res, err = f.svc.RenameTile(ctx, tileUser, groupID, "Corridor")
	require.NoError(t, err)
	assert.Equal(t, "Corridor", res.Board.TileGroups[0].Name)

	board, err := f.svc.GetBoard(ctx, tileUser)
	require.NoError(t, err)
	require.Len(t, board.TileGroups, 1)
	assert.Len(t, board.TileGroups[0].Members, 2)
	assert.Empty(t, board.BucketItems)

	res, err = f.svc.DeleteTile(ctx, tileUser, groupID)
	require.NoError(t, err)
	assert.Empty(t, res.Board.TileGroups)
	assert.Len(t, res.Board.BucketItems, 2)

	res, err = f.svc.ClearBoard(ctx, tileUser)
	require.NoError(t, err)
	assert.Empty(t, res.Board.BucketItems)
}

func TestTileService_BoardErrorsAreUserErrors(t *testing.T) {
	f := newTileFixture(t)
	ctx := context.Background()
	f.addToBucket(t, "p1")

	_, err := f.svc.AddToBucket(ctx, tileUser, &AddToBucketRequest{ProductID: "p1"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	var ue *UserError
	assert.True(t, errors.As(err, &ue))

	_, err = f.svc.RenameTile(ctx, tileUser, "tile-missing", "x")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.RemoveFromBucket(ctx, tileUser, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTileService_BoardsArePerUser(t *testing.T) {
	f := newTileFixture(t)
	ctx := context.Background()
	f.addToBucket(t, "p1")

	other, err := f.svc.GetBoard(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other.BucketItems)

	_, err = f.svc.AddToBucket(ctx, "user-2", &AddToBucketRequest{ProductID: "p1"})
	assert.NoError(t, err)
}

func newTile(t *testing.T, f *tileFixture, ids ...string) string {
	t.Helper()
	ctx := context.Background()
	f.addToBucket(t, ids...)
	res, err := f.svc.Move(ctx, tileUser, ids[0], tile.DropNewTile)
	require.NoError(t, err)
	groupID := res.Board.TileGroups[0].ID
	for _, id := range ids[1:] {
		_, err := f.svc.Move(ctx, tileUser, id, groupID)
		require.NoError(t, err)
	}
	return groupID
}

func TestGenerateTile_Success(t *testing.T) {
	f := newTileFixture(t, aps.StatusInProgress, aps.StatusSuccess)
	ctx := context.Background()
	groupID := newTile(t, f, "p1", "p2")

	job, err := f.svc.GenerateTile(ctx, tileUser, groupID)
	require.NoError(t, err)
	assert.Equal(t, entity.TileJobRunning, job.Status)
	assert.Equal(t, entity.TilePhaseQueued, job.Phase)
	f.svc.Wait()

	stored, err := f.svc.GetJob(ctx, tileUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TileJobSucceeded, stored.Status)
	assert.Equal(t, entity.TilePhaseComplete, stored.Phase)
	assert.NotEmpty(t, stored.URN)
	assert.Equal(t, TileObjectKey(tileUser, job.ID), stored.ObjectKey)
	assert.NotNil(t, stored.FinishedAt)
	assert.True(t, f.objects.has(stored.ObjectKey))

	assert.Equal(t, []string{
		entity.TilePhaseQueued,
		entity.TilePhaseValidating,
		entity.TilePhaseGenerating,
		entity.TilePhaseUploading,
		entity.TilePhaseTranslating,
		entity.TilePhaseComplete,
	}, f.drainPhases(t))

	require.Len(t, f.gen.requests, 1)
	assert.Len(t, f.gen.requests[0].Members, 2)
	assert.Equal(t, "p1", f.gen.requests[0].Members[0].ProductID)

	entry, err := f.svc.viewer.cache.Get(ctx, CacheKeyTile+groupID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, stored.URN, entry.URN)
}

func TestGenerateTile_RegeneratesEvenWhenCached(t *testing.T) {
	f := newTileFixture(t)
	ctx := context.Background()
	groupID := newTile(t, f, "p1")

	for i := 0; i < 2; i++ {
		_, err := f.svc.GenerateTile(ctx, tileUser, groupID)
		require.NoError(t, err)
		f.svc.Wait()
	}
	uploads, _ := f.aps.counts()
	assert.Equal(t, 2, uploads)
}

func TestGenerateTile_GeneratorFailure(t *testing.T) {
	f := newTileFixture(t)
	f.gen.err = errors.New("generator crashed")
	ctx := context.Background()
	groupID := newTile(t, f, "p1")

	job, err := f.svc.GenerateTile(ctx, tileUser, groupID)
	require.NoError(t, err)
	f.svc.Wait()

	stored, err := f.svc.GetJob(ctx, tileUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TileJobFailed, stored.Status)
	assert.Equal(t, entity.TilePhaseError, stored.Phase)
	assert.Contains(t, stored.Error, "generator crashed")

	phases := f.drainPhases(t)
	require.NotEmpty(t, phases)
	assert.Equal(t, entity.TilePhaseError, phases[len(phases)-1])
	assert.NotContains(t, phases, entity.TilePhaseUploading)
}

func TestGenerateTile_TranslationFailure(t *testing.T) {
	f := newTileFixture(t, aps.StatusFailed)
	ctx := context.Background()
	groupID := newTile(t, f, "p1")

	job, err := f.svc.GenerateTile(ctx, tileUser, groupID)
	require.NoError(t, err)
	f.svc.Wait()

	stored, err := f.svc.GetJob(ctx, tileUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TileJobFailed, stored.Status)
	assert.Contains(t, stored.Error, "translate drawing")
}

func TestGenerateTile_Rejections(t *testing.T) {
	f := newTileFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateTile(ctx, tileUser, "tile-unknown")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	noGen := NewTileService(nil, tile.NewMemoryStore(), nil, nil, nil, nil, nil)
	defer noGen.Close()
	_, err = noGen.GenerateTile(ctx, tileUser, "tile-unknown")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetJob_OtherUser(t *testing.T) {
	f := newTileFixture(t)
	ctx := context.Background()
	groupID := newTile(t, f, "p1")

	job, err := f.svc.GenerateTile(ctx, tileUser, groupID)
	require.NoError(t, err)
	f.svc.Wait()

	_, err = f.svc.GetJob(ctx, "someone-else", job.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
