package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fosslighting/fossapp/internal/config"
	"github.com/fosslighting/fossapp/internal/shared/aps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewerFixture struct {
	svc    *ViewerService
	aps    *fakeAPS
	drive  *fakeDrive
	clock  time.Time
	sleeps int
}

func newViewerFixture(t *testing.T, statuses ...string) *viewerFixture {
	t.Helper()
	f := &viewerFixture{
		aps:   newFakeAPS(statuses...),
		drive: newFakeDrive(),
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewViewerService(nil, f.aps, f.drive, NewMemoryURNCache(),
		config.APSConfig{ViewerBucket: "fossapp_viewer"},
		config.ViewerConfig{PollInterval: 2 * time.Second, MaxPollAttempts: 5, CacheTTL: 24 * time.Hour},
		nil)
	f.svc.now = func() time.Time { return f.clock }
	f.svc.sleep = func(ctx context.Context, _ time.Duration) error {
		f.sleeps++
		return ctx.Err()
	}
	return f
}

func TestViewerUpload_ReusesCachedURN(t *testing.T) {
	f := newViewerFixture(t)
	ctx := context.Background()
	req := UploadRequest{FileName: "plan.dwg", Data: []byte("drawing-bytes")}

	first, err := f.svc.Upload(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.NotEmpty(t, first.URN)

	f.clock = f.clock.Add(23 * time.Hour)
	second, err := f.svc.Upload(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.URN, second.URN)

	uploads, _ := f.aps.counts()
	assert.Equal(t, 1, uploads)
	assert.Len(t, f.aps.translated, 1)
	assert.True(t, f.aps.buckets["fossapp_viewer"])
}

func TestViewerUpload_ExpiredEntryUploadsAgain(t *testing.T) {
	f := newViewerFixture(t)
	ctx := context.Background()
	req := UploadRequest{FileName: "plan.dwg", Data: []byte("drawing-bytes")}

	_, err := f.svc.Upload(ctx, req)
	require.NoError(t, err)

	f.clock = f.clock.Add(24 * time.Hour)
	res, err := f.svc.Upload(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Cached)

	uploads, _ := f.aps.counts()
	assert.Equal(t, 2, uploads)
}

func TestViewerUpload_ForceSkipsLookupButRefreshesEntry(t *testing.T) {
	f := newViewerFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, UploadRequest{CacheKey: CacheKeyTile + "t1", FileName: "a.dwg", Data: []byte("v1")})
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Hour)
	forced, err := f.svc.Upload(ctx, UploadRequest{CacheKey: CacheKeyTile + "t1", FileName: "a.dwg", Data: []byte("v2"), Force: true})
	require.NoError(t, err)
	assert.False(t, forced.Cached)

	entry, err := f.svc.cache.Get(ctx, CacheKeyTile+"t1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, f.clock, entry.CreatedAt)

	uploads, _ := f.aps.counts()
	assert.Equal(t, 2, uploads)
}

func TestViewerUpload_DriveFileDownloadedOnlyOnMiss(t *testing.T) {
	f := newViewerFixture(t)
	f.drive.files["drive-file-1"] = []byte("from drive")
	ctx := context.Background()

	first, err := f.svc.Upload(ctx, UploadRequest{DriveFileID: "drive-file-1"})
	require.NoError(t, err)
	assert.Equal(t, "drive-file-1.dwg", first.FileName)

	second, err := f.svc.Upload(ctx, UploadRequest{DriveFileID: "drive-file-1"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, f.drive.downloads)
}

func TestViewerUpload_Validation(t *testing.T) {
	f := newViewerFixture(t)
	_, err := f.svc.Upload(context.Background(), UploadRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	noAPS := NewViewerService(nil, nil, nil, nil, config.APSConfig{}, config.ViewerConfig{}, nil)
	_, err = noAPS.Upload(context.Background(), UploadRequest{Data: []byte("x")})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = noAPS.Token(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestWaitForTranslation_PollsUntilSuccess(t *testing.T) {
	f := newViewerFixture(t, aps.StatusPending, aps.StatusInProgress, aps.StatusSuccess)

	m, err := f.svc.WaitForTranslation(context.Background(), "urn-1")
	require.NoError(t, err)
	assert.Equal(t, aps.StatusSuccess, m.Status)
	_, manifests := f.aps.counts()
	assert.Equal(t, 3, manifests)
	assert.Equal(t, 2, f.sleeps)
}

func TestWaitForTranslation_FailedManifest(t *testing.T) {
	f := newViewerFixture(t, aps.StatusInProgress, aps.StatusFailed)

	m, err := f.svc.WaitForTranslation(context.Background(), "urn-1")
	assert.ErrorIs(t, err, ErrTranslation)
	require.NotNil(t, m)
	assert.Equal(t, aps.StatusFailed, m.Status)
}

func TestWaitForTranslation_StopsAfterMaxAttempts(t *testing.T) {
	f := newViewerFixture(t, aps.StatusInProgress)

	m, err := f.svc.WaitForTranslation(context.Background(), "urn-1")
	assert.ErrorIs(t, err, ErrTranslation)
	require.NotNil(t, m)
	assert.Equal(t, aps.StatusTimeout, m.Status)

	_, manifests := f.aps.counts()
	assert.Equal(t, 5, manifests)
	assert.Equal(t, 4, f.sleeps)
}

func TestWaitForTranslation_ContextCancelled(t *testing.T) {
	f := newViewerFixture(t, aps.StatusPending)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.WaitForTranslation(ctx, "urn-1")
	assert.True(t, errors.Is(err, context.Canceled))
	_, manifests := f.aps.counts()
	assert.Equal(t, 1, manifests)
}

func TestFloorPlanStatusMapping(t *testing.T) {
	assert.Equal(t, "pending", floorPlanStatus(aps.StatusPending))
	assert.Equal(t, "inprogress", floorPlanStatus(aps.StatusInProgress))
	assert.Equal(t, "success", floorPlanStatus(aps.StatusSuccess))
	assert.Equal(t, "timeout", floorPlanStatus(aps.StatusTimeout))
	assert.Equal(t, "failed", floorPlanStatus("something-else"))
}

func TestMemoryURNCache(t *testing.T) {
	c := NewMemoryURNCache()
	ctx := context.Background()

	miss, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, miss)

	now := time.Now()
	require.NoError(t, c.Set(ctx, "k", CachedURN{URN: "u", CreatedAt: now}))
	hit, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "u", hit.URN)
}
