package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/shared/aps"
	"github.com/fosslighting/fossapp/internal/shared/gdrive"
	"github.com/fosslighting/fossapp/internal/shared/tilegen"
)

// fakeAPS records OSS and derivative calls. Manifest statuses are served
// from the statuses queue; the last one repeats.
type fakeAPS struct {
	mu         sync.Mutex
	buckets    map[string]bool
	objects    map[string][]byte
	uploads    int
	copies     int
	deletes    []string
	translated []string
	manifests  int
	statuses   []string
	uploadErr  error
	deleteErr  error
}

func newFakeAPS(statuses ...string) *fakeAPS {
	if len(statuses) == 0 {
		statuses = []string{aps.StatusSuccess}
	}
	return &fakeAPS{
		buckets:  make(map[string]bool),
		objects:  make(map[string][]byte),
		statuses: statuses,
	}
}

func objectID(bucket, key string) string {
	return fmt.Sprintf("urn:adsk.objects:os.object:%s/%s", bucket, key)
}

func (f *fakeAPS) ViewerToken(context.Context) (*aps.Token, error) {
	return &aps.Token{AccessToken: "viewer-token", TokenType: "Bearer", ExpiresIn: 3599}, nil
}

func (f *fakeAPS) EnsureBucket(_ context.Context, bucketKey, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucketKey] = true
	return nil
}

func (f *fakeAPS) DeleteBucket(_ context.Context, bucketKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.buckets, bucketKey)
	return nil
}

func (f *fakeAPS) ListObjects(_ context.Context, bucketKey string) ([]aps.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []aps.Object
	for key := range f.objects {
		if strings.HasPrefix(key, bucketKey+"/") {
			objectKey := strings.TrimPrefix(key, bucketKey+"/")
			out = append(out, aps.Object{BucketKey: bucketKey, ObjectKey: objectKey, ObjectID: objectID(bucketKey, objectKey)})
		}
	}
	return out, nil
}

func (f *fakeAPS) UploadObject(_ context.Context, bucketKey, objectKey string, data []byte) (*aps.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads++
	f.objects[bucketKey+"/"+objectKey] = data
	return &aps.Object{BucketKey: bucketKey, ObjectKey: objectKey, ObjectID: objectID(bucketKey, objectKey), Size: int64(len(data))}, nil
}

func (f *fakeAPS) CopyObject(_ context.Context, bucketKey, objectKey, newObjectKey string) (*aps.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies++
	f.objects[bucketKey+"/"+newObjectKey] = f.objects[bucketKey+"/"+objectKey]
	return &aps.Object{BucketKey: bucketKey, ObjectKey: newObjectKey, ObjectID: objectID(bucketKey, newObjectKey)}, nil
}

func (f *fakeAPS) DeleteObject(_ context.Context, bucketKey, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, bucketKey+"/"+objectKey)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, bucketKey+"/"+objectKey)
	return nil
}

func (f *fakeAPS) Translate(_ context.Context, urn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.translated = append(f.translated, urn)
	return nil
}

func (f *fakeAPS) Manifest(_ context.Context, urn string) (*aps.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.manifests
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.manifests++
	return &aps.Manifest{URN: urn, Status: f.statuses[i], Progress: "complete"}, nil
}

func (f *fakeAPS) counts() (uploads, manifests int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.manifests
}

// fakeDrive records created folders by path. The err fields make the
// matching call fail.
type fakeDrive struct {
	mu          sync.Mutex
	folders     map[string]string
	copied      []string
	deleted     []string
	archived    []string
	uploaded    []string
	downloads   int
	files       map[string][]byte
	skeletonErr error
	archiveErr  error
	deleteErr   error
	rootID      string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{folders: make(map[string]string), files: make(map[string][]byte)}
}

func (d *fakeDrive) ensure(path string) string {
	if id, ok := d.folders[path]; ok {
		return id
	}
	id := fmt.Sprintf("folder-%d", len(d.folders)+1)
	d.folders[path] = id
	return id
}

func (d *fakeDrive) CreateProjectSkeleton(_ context.Context, projectCode string) (*gdrive.ProjectFolders, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.skeletonErr != nil {
		return nil, d.skeletonErr
	}
	root := d.ensure(projectCode)
	if d.rootID != "" {
		root = d.rootID
	}
	sub := make(map[string]string)
	for _, name := range gdrive.ProjectSubfolders {
		sub[name] = d.ensure(projectCode + "/" + name)
	}
	return &gdrive.ProjectFolders{RootID: root, Subfolders: sub}, nil
}

func (d *fakeDrive) CreateAreaFolder(_ context.Context, projectFolderID, areaCode string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensure(projectFolderID + "/" + gdrive.AreasFolder + "/" + areaCode), nil
}

func (d *fakeDrive) CreateVersionFolders(_ context.Context, areaFolderID string, versionNumber int) (*gdrive.VersionFolders, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	base := areaFolderID + "/" + gdrive.VersionFolderName(versionNumber)
	sub := make(map[string]string)
	for _, name := range gdrive.VersionSubfolders {
		sub[name] = d.ensure(base + "/" + name)
	}
	return &gdrive.VersionFolders{VersionID: d.ensure(base), Subfolders: sub}, nil
}

func (d *fakeDrive) CopyFolder(_ context.Context, srcID, dstParentID, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.copied = append(d.copied, srcID+"->"+dstParentID+"/"+name)
	return d.ensure(dstParentID + "/" + name), nil
}

func (d *fakeDrive) MoveToArchive(_ context.Context, folderID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.archiveErr != nil {
		return d.archiveErr
	}
	d.archived = append(d.archived, folderID)
	return nil
}

func (d *fakeDrive) Delete(_ context.Context, fileID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, fileID)
	return d.deleteErr
}

func (d *fakeDrive) UploadFile(_ context.Context, parentID, name, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	path := parentID + "/" + name
	d.uploaded = append(d.uploaded, path)
	d.files[path] = data
	return path, nil
}

func (d *fakeDrive) Download(_ context.Context, fileID string) (string, []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.downloads++
	data, ok := d.files[fileID]
	if !ok {
		return "", nil, fmt.Errorf("file %s not found", fileID)
	}
	return fileID + ".dwg", data, nil
}

// fakeObjects in-memory ObjectStore
type fakeObjects struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{blobs: make(map[string][]byte)}
}

func (o *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blobs[key] = data
	return nil
}

func (o *fakeObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.blobs[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *fakeObjects) Remove(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.blobs, key)
	return nil
}

func (o *fakeObjects) has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.blobs[key]
	return ok
}

// fakeGen returns a fixed drawing or err
type fakeGen struct {
	err      error
	requests []tilegen.Request
	mu       sync.Mutex
}

func (g *fakeGen) Generate(_ context.Context, req tilegen.Request) (*tilegen.Drawing, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &tilegen.Drawing{FileName: tilegen.FileName(req.TileName, req.TileID), Data: []byte("AC1032 drawing")}, nil
}

// fakeJobs in-memory TileJobStore
type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*entity.TileJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*entity.TileJob)}
}

func (j *fakeJobs) Create(_ context.Context, job *entity.TileJob) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := *job
	j.jobs[job.ID] = &cp
	return nil
}

func (j *fakeJobs) FindForUser(_ context.Context, userID, id string) (*entity.TileJob, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok || job.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (j *fakeJobs) UpdateFields(_ context.Context, id string, fields map[string]interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			job.Status = v.(string)
		case "phase":
			job.Phase = v.(string)
		case "urn":
			job.URN = v.(string)
		case "object_key":
			job.ObjectKey = v.(string)
		case "error":
			job.Error = v.(string)
		case "finished_at":
			t := v.(time.Time)
			job.FinishedAt = &t
		}
	}
	return nil
}
