package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentService project documents stored in object storage
type DocumentService struct {
	repos   *repository.Repositories
	objects ObjectStore
	logger  *zap.Logger
}

func NewDocumentService(repos *repository.Repositories, objects ObjectStore, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{repos: repos, objects: objects, logger: logger.Named("document")}
}

// UploadDocumentRequest metadata sent next to the file
type UploadDocumentRequest struct {
	Title        string `form:"title"`
	DocumentType string `form:"document_type"`
}

// DocumentObjectKey projects/{project_id}/documents/{uuid}_{filename}
func DocumentObjectKey(projectID, fileName string) string {
	return fmt.Sprintf("projects/%s/documents/%s_%s", projectID, uuid.New().String(), SafeFileName(fileName))
}

// SafeFileName keeps the base name and replaces characters that do not
// belong in an object key.
func SafeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
}

func (s *DocumentService) List(ctx context.Context, projectID string) ([]entity.ProjectDocument, error) {
	if _, err := s.repos.Project.FindPlain(ctx, projectID); err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	return s.repos.Project.ListDocuments(ctx, projectID)
}

// Upload stores the blob first, then the row; the blob is removed again
// when the row cannot be written.
func (s *DocumentService) Upload(ctx context.Context, projectID, userID string, req *UploadDocumentRequest, reader io.Reader, fileName string, fileSize int64, contentType string) (*entity.ProjectDocument, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("document storage: %w", ErrUnavailable)
	}
	if _, err := s.repos.Project.FindPlain(ctx, projectID); err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = fileName
	}
	docType := req.DocumentType
	if docType == "" {
		docType = "other"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := DocumentObjectKey(projectID, fileName)
	if err := s.objects.Put(ctx, key, reader, fileSize, contentType); err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	doc := &entity.ProjectDocument{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		Title:        title,
		DocumentType: docType,
		ObjectKey:    key,
		FileName:     fileName,
		FileSize:     fileSize,
		ContentType:  contentType,
		UploadedBy:   userID,
	}
	if err := s.repos.Project.CreateDocument(ctx, doc); err != nil {
		if rmErr := s.objects.Remove(ctx, key); rmErr != nil {
			s.logger.Warn("remove orphan blob failed", zap.String("object_key", key), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// Download opens the blob; the caller closes it
func (s *DocumentService) Download(ctx context.Context, projectID, docID string) (io.ReadCloser, *entity.ProjectDocument, error) {
	doc, err := s.repos.Project.FindDocument(ctx, projectID, docID)
	if err != nil {
		return nil, nil, fmt.Errorf("find document: %w", err)
	}
	if s.objects == nil {
		return nil, doc, fmt.Errorf("document storage: %w", ErrUnavailable)
	}
	r, err := s.objects.Get(ctx, doc.ObjectKey)
	if err != nil {
		return nil, nil, fmt.Errorf("get object: %w", err)
	}
	return r, doc, nil
}

// Delete removes the row, then the blob best-effort
func (s *DocumentService) Delete(ctx context.Context, projectID, docID string) error {
	doc, err := s.repos.Project.FindDocument(ctx, projectID, docID)
	if err != nil {
		return fmt.Errorf("find document: %w", err)
	}
	if err := s.repos.Project.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if s.objects != nil {
		if err := s.objects.Remove(ctx, doc.ObjectKey); err != nil {
			s.logger.Warn("delete document blob failed", zap.String("object_key", doc.ObjectKey), zap.Error(err))
		}
	}
	return nil
}
