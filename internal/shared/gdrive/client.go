package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// =============================================================================
// Google Drive folder tree for projects
// Service account authenticated, shared-drive aware. Every folder helper is
// find-or-create so repeating a call never produces a duplicate folder.
// =============================================================================

const FolderMimeType = "application/vnd.google-apps.folder"

// Project skeleton subfolders, in display order
var ProjectSubfolders = []string{"00_Customer", "01_Working", "02_Areas", "03_Output", "04_Specs"}

// AreasFolder parent of the per-area folders
const AreasFolder = "02_Areas"

// Per-version subfolders
var VersionSubfolders = []string{WorkingFolder, "Output"}

// WorkingFolder receives uploaded floor plans
const WorkingFolder = "Working"

// DWGMimeType mime type used for uploaded drawings
const DWGMimeType = "image/vnd.dwg"

// Options client settings
type Options struct {
	SharedDriveID  string
	RootFolderName string
	ArchiveFolder  string
}

// Client Drive client
type Client struct {
	svc    *drive.Service
	opts   Options
	logger *zap.Logger
}

// NewClient builds a client from service account credentials. Extra
// options (endpoint, http client) are passed through to the Drive SDK.
func NewClient(ctx context.Context, credentialsFile string, opts Options, logger *zap.Logger, extra ...option.ClientOption) (*Client, error) {
	clientOpts := extra
	if credentialsFile != "" {
		clientOpts = append([]option.ClientOption{
			option.WithCredentialsFile(credentialsFile),
			option.WithScopes(drive.DriveScope),
		}, extra...)
	}
	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if opts.RootFolderName == "" {
		opts.RootFolderName = "Projects"
	}
	if opts.ArchiveFolder == "" {
		opts.ArchiveFolder = "_Archive"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{svc: svc, opts: opts, logger: logger.Named("gdrive")}, nil
}

// ProjectFolders ids of a project skeleton
type ProjectFolders struct {
	RootID     string
	Subfolders map[string]string
}

// AreasID id of 02_Areas
func (p *ProjectFolders) AreasID() string {
	return p.Subfolders[AreasFolder]
}

// VersionFolders ids of a v{N} folder and its children
type VersionFolders struct {
	VersionID  string
	Subfolders map[string]string
}

// rootParent top level parent: the shared drive or My Drive
func (c *Client) rootParent() string {
	if c.opts.SharedDriveID != "" {
		return c.opts.SharedDriveID
	}
	return "root"
}

// escapeQuery quotes a value for a Drive search expression
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func folderQuery(parentID, name string) string {
	return fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parentID), FolderMimeType)
}

func (c *Client) list(ctx context.Context, q string, pageToken string) (*drive.FileList, error) {
	call := c.svc.Files.List().
		Q(q).
		Fields("nextPageToken, files(id, name, mimeType, parents)").
		PageSize(100).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if c.opts.SharedDriveID != "" {
		call = call.Corpora("drive").DriveId(c.opts.SharedDriveID)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

// FindFolder returns "" when no folder with that name exists under parent
func (c *Client) FindFolder(ctx context.Context, parentID, name string) (string, error) {
	res, err := c.list(ctx, folderQuery(parentID, name), "")
	if err != nil {
		return "", fmt.Errorf("find folder %q: %w", name, err)
	}
	if len(res.Files) == 0 {
		return "", nil
	}
	return res.Files[0].Id, nil
}

// EnsureFolder find-or-create a folder under parent
func (c *Client) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	id, err := c.FindFolder(ctx, parentID, name)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	f, err := c.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{parentID},
	}).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	c.logger.Debug("folder created", zap.String("name", name), zap.String("id", f.Id), zap.String("parent", parentID))
	return f.Id, nil
}

// EnsurePath find-or-create each segment below parent, returns the last id
func (c *Client) EnsurePath(ctx context.Context, parentID string, names ...string) (string, error) {
	id := parentID
	for _, name := range names {
		next, err := c.EnsureFolder(ctx, id, name)
		if err != nil {
			return "", err
		}
		id = next
	}
	return id, nil
}

// CreateProjectSkeleton Projects/{code}/{00_Customer,...,04_Specs}
func (c *Client) CreateProjectSkeleton(ctx context.Context, projectCode string) (*ProjectFolders, error) {
	rootID, err := c.EnsurePath(ctx, c.rootParent(), c.opts.RootFolderName, projectCode)
	if err != nil {
		return nil, err
	}
	folders := &ProjectFolders{RootID: rootID, Subfolders: make(map[string]string, len(ProjectSubfolders))}
	for _, name := range ProjectSubfolders {
		id, err := c.EnsureFolder(ctx, rootID, name)
		if err != nil {
			return nil, err
		}
		folders.Subfolders[name] = id
	}
	return folders, nil
}

// CreateAreaFolder 02_Areas/{areaCode} under the project folder
func (c *Client) CreateAreaFolder(ctx context.Context, projectFolderID, areaCode string) (string, error) {
	return c.EnsurePath(ctx, projectFolderID, AreasFolder, areaCode)
}

// CreateVersionFolders v{N}/{Working,Output} under the area folder
func (c *Client) CreateVersionFolders(ctx context.Context, areaFolderID string, versionNumber int) (*VersionFolders, error) {
	versionID, err := c.EnsureFolder(ctx, areaFolderID, VersionFolderName(versionNumber))
	if err != nil {
		return nil, err
	}
	out := &VersionFolders{VersionID: versionID, Subfolders: make(map[string]string, len(VersionSubfolders))}
	for _, name := range VersionSubfolders {
		id, err := c.EnsureFolder(ctx, versionID, name)
		if err != nil {
			return nil, err
		}
		out.Subfolders[name] = id
	}
	return out, nil
}

// VersionFolderName v{N}
func VersionFolderName(n int) string {
	return fmt.Sprintf("v%d", n)
}

// CopyFolder recursive copy of srcID into a new folder under dstParentID
func (c *Client) CopyFolder(ctx context.Context, srcID, dstParentID, name string) (string, error) {
	dstID, err := c.EnsureFolder(ctx, dstParentID, name)
	if err != nil {
		return "", err
	}

	pageToken := ""
	for {
		res, err := c.list(ctx, fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(srcID)), pageToken)
		if err != nil {
			return "", fmt.Errorf("list %s: %w", srcID, err)
		}
		for _, f := range res.Files {
			if f.MimeType == FolderMimeType {
				if _, err := c.CopyFolder(ctx, f.Id, dstID, f.Name); err != nil {
					return "", err
				}
				continue
			}
			_, err := c.svc.Files.Copy(f.Id, &drive.File{Name: f.Name, Parents: []string{dstID}}).
				Fields("id").SupportsAllDrives(true).Context(ctx).Do()
			if err != nil {
				return "", fmt.Errorf("copy file %q: %w", f.Name, err)
			}
		}
		if res.NextPageToken == "" {
			return dstID, nil
		}
		pageToken = res.NextPageToken
	}
}

// MoveToArchive re-parents a folder into Projects/_Archive
func (c *Client) MoveToArchive(ctx context.Context, folderID string) error {
	archiveID, err := c.EnsurePath(ctx, c.rootParent(), c.opts.RootFolderName, c.opts.ArchiveFolder)
	if err != nil {
		return err
	}
	f, err := c.svc.Files.Get(folderID).Fields("parents").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get folder %s: %w", folderID, err)
	}
	_, err = c.svc.Files.Update(folderID, &drive.File{}).
		AddParents(archiveID).
		RemoveParents(strings.Join(f.Parents, ",")).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("move %s to archive: %w", folderID, err)
	}
	return nil
}

// Delete removes a file or folder; missing ids are ignored
func (c *Client) Delete(ctx context.Context, fileID string) error {
	err := c.svc.Files.Delete(fileID).SupportsAllDrives(true).Context(ctx).Do()
	if isNotFound(err) {
		return nil
	}
	return err
}

// UploadFile stores r as a new file under parent
func (c *Client) UploadFile(ctx context.Context, parentID, name, mimeType string, r io.Reader) (string, error) {
	f, err := c.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}).Media(r).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("upload %q: %w", name, err)
	}
	return f.Id, nil
}

// Download returns the file name and content
func (c *Client) Download(ctx context.Context, fileID string) (string, []byte, error) {
	meta, err := c.svc.Files.Get(fileID).Fields("name").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("get file %s: %w", fileID, err)
	}
	resp, err := c.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return "", nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", fileID, err)
	}
	return meta.Name, data, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
