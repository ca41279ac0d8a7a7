package aps

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPS covers token, bucket, signed upload, translate and manifest
type fakeAPS struct {
	srv         *httptest.Server
	tokenCalls  atomic.Int32
	mu          sync.Mutex
	buckets     map[string]bool
	uploaded    map[string][]byte
	translated  []string
	forceHeader string
	manifests   map[string]string
}

func newFakeAPS(t *testing.T) *fakeAPS {
	f := &fakeAPS{
		buckets:   map[string]bool{},
		uploaded:  map[string][]byte{},
		manifests: map[string]string{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPS) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/authentication/v2/token":
		f.tokenCalls.Add(1)
		_ = r.ParseForm()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-" + strings.ReplaceAll(r.PostForm.Get("scope"), " ", "+"),
			"token_type":   "Bearer",
			"expires_in":   3599,
		})
		return
	case path == "/upload-target":
		data, _ := io.ReadAll(r.Body)
		f.uploaded["pending"] = data
		return
	}

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case path == "/oss/v2/buckets" && r.Method == http.MethodPost:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.buckets[body["bucketKey"]] {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"reason":"Bucket already exists"}`))
			return
		}
		f.buckets[body["bucketKey"]] = true
		_ = json.NewEncoder(w).Encode(body)
	case strings.HasSuffix(path, "/signeds3upload") && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"uploadKey": "uk1",
			"urls":      []string{f.srv.URL + "/upload-target"},
		})
	case strings.HasSuffix(path, "/signeds3upload") && r.Method == http.MethodPost:
		parts := strings.Split(path, "/")
		bucket, object := parts[4], parts[6]
		f.uploaded[bucket+"/"+object] = f.uploaded["pending"]
		delete(f.uploaded, "pending")
		_ = json.NewEncoder(w).Encode(Object{
			BucketKey: bucket,
			ObjectKey: object,
			ObjectID:  "urn:adsk.objects:os.object:" + bucket + "/" + object,
		})
	case strings.HasSuffix(path, "/designdata/job"):
		var job translateJob
		_ = json.NewDecoder(r.Body).Decode(&job)
		f.translated = append(f.translated, job.Input.URN)
		f.forceHeader = r.Header.Get("x-ads-force")
		_, _ = w.Write([]byte(`{"result":"created"}`))
	case strings.HasSuffix(path, "/manifest"):
		urn := strings.Split(strings.TrimPrefix(path, "/modelderivative/v2/regions/eu/designdata/"), "/")[0]
		status, ok := f.manifests[urn]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(Manifest{URN: urn, Status: status, Progress: "complete"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestTokenIsCachedPerScope(t *testing.T) {
	f := newFakeAPS(t)
	c := NewClient(f.srv.URL, "id", "secret", RegionEMEA)
	ctx := context.Background()

	tok, err := c.ViewerToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-viewables:read", tok.AccessToken)
	assert.Greater(t, tok.ExpiresIn, 3000)

	_, err = c.ViewerToken(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.tokenCalls.Load())

	require.NoError(t, c.EnsureBucket(ctx, "b1", ""))
	assert.EqualValues(t, 2, f.tokenCalls.Load(), "internal scope has its own token")
}

func TestEnsureBucket_ConflictIsSuccess(t *testing.T) {
	f := newFakeAPS(t)
	c := NewClient(f.srv.URL, "id", "secret", RegionEMEA)

	require.NoError(t, c.EnsureBucket(context.Background(), "fossapp_prj_abc", PolicyPersistent))
	require.NoError(t, c.EnsureBucket(context.Background(), "fossapp_prj_abc", PolicyPersistent))
	assert.True(t, f.buckets["fossapp_prj_abc"])
}

func TestUploadTranslateManifest(t *testing.T) {
	f := newFakeAPS(t)
	c := NewClient(f.srv.URL, "id", "secret", RegionEMEA)
	ctx := context.Background()

	obj, err := c.UploadObject(ctx, "b1", "plan.dwg", []byte("dwg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, []byte("dwg-bytes"), f.uploaded["b1/plan.dwg"])

	urn := obj.URN()
	assert.NotContains(t, urn, "=")
	id, err := ObjectIDFromURN(urn)
	require.NoError(t, err)
	assert.Equal(t, obj.ObjectID, id)

	m, err := c.Manifest(ctx, urn)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, m.Status)
	assert.False(t, m.Terminal())

	require.NoError(t, c.Translate(ctx, urn))
	assert.Equal(t, []string{urn}, f.translated)
	assert.Equal(t, "true", f.forceHeader)

	f.mu.Lock()
	f.manifests[urn] = StatusSuccess
	f.mu.Unlock()
	m, err = c.Manifest(ctx, urn)
	require.NoError(t, err)
	assert.True(t, m.Terminal())
}

func TestAPIErrorStatus(t *testing.T) {
	f := newFakeAPS(t)
	c := NewClient(f.srv.URL, "id", "secret", RegionEMEA)

	_, err := c.CopyObject(context.Background(), "b1", "a", "b")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	// missing objects are not an error on delete
	assert.NoError(t, c.DeleteObject(context.Background(), "b1", "gone"))
}

func TestNewClient_Region(t *testing.T) {
	assert.Equal(t, RegionEMEA, NewClient("", "id", "secret", "").Region())
	assert.Equal(t, RegionUS, NewClient("", "id", "secret", RegionUS).Region())
}

func TestBucketKey(t *testing.T) {
	key := BucketKey("fossapp_prj_", "6F1C2A9E-0B7D-4C11-9E0A-1234567890AB")
	assert.Equal(t, "fossapp_prj_6f1c2a9e0b7d4c119e0a1234567890ab", key)
	assert.Equal(t, "x_y", BucketKey("x", " y"))
}

func TestURNFromObjectID(t *testing.T) {
	// unpadded url-safe base64
	assert.Equal(t, "dXJuOmE_Yg", URNFromObjectID("urn:a?b"))
}
