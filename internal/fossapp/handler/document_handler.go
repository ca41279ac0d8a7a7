package handler

import (
	"fmt"
	"net/url"

	"github.com/fosslighting/fossapp/internal/fossapp/service"
	"github.com/gin-gonic/gin"
)

// DocumentHandler project documents backed by the object store
type DocumentHandler struct {
	svc *service.DocumentService
}

func NewDocumentHandler(svc *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.svc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "failed to list documents")
		return
	}
	Success(c, gin.H{"items": docs})
}

// Upload POST /projects/:id/documents (multipart: file, title, document_type)
func (h *DocumentHandler) Upload(c *gin.Context) {
	var req service.UploadDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, "invalid form: "+err.Error())
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required")
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		InternalError(c, "failed to read upload: "+err.Error())
		return
	}
	defer src.Close()

	doc, err := h.svc.Upload(c.Request.Context(), c.Param("id"), GetUserID(c), &req,
		src, fileHeader.Filename, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		handleError(c, err, "failed to upload document")
		return
	}
	Created(c, doc)
}

// Download streams the stored blob
func (h *DocumentHandler) Download(c *gin.Context) {
	r, doc, err := h.svc.Download(c.Request.Context(), c.Param("id"), c.Param("docId"))
	if err != nil {
		handleError(c, err, "failed to download document")
		return
	}
	defer r.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(doc.FileName)))
	c.DataFromReader(200, doc.FileSize, doc.ContentType, r, nil)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), c.Param("docId")); err != nil {
		handleError(c, err, "failed to delete document")
		return
	}
	Success(c, nil)
}
