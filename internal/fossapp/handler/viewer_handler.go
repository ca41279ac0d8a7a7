package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/fosslighting/fossapp/internal/fossapp/service"
	"github.com/gin-gonic/gin"
)

// ViewerHandler APS viewer token, drawing upload and translation status
type ViewerHandler struct {
	svc *service.ViewerService
}

func NewViewerHandler(svc *service.ViewerService) *ViewerHandler {
	return &ViewerHandler{svc: svc}
}

// Auth GET /api/viewer/auth
func (h *ViewerHandler) Auth(c *gin.Context) {
	token, err := h.svc.Token(c.Request.Context())
	if err != nil {
		handleError(c, err, "failed to get viewer token")
		return
	}
	Success(c, token)
}

type viewerUploadRequest struct {
	URN         string `json:"urn"`
	DriveFileID string `json:"drive_file_id"`
	TileID      string `json:"tile_id"`
	FileName    string `json:"file_name"`
	Force       bool   `json:"force"`
}

// Upload POST /api/viewer/upload
// Accepts a multipart "file", or JSON naming a Drive file, a tile or an
// already translated URN. ?wait=true blocks until the translation ends.
func (h *ViewerHandler) Upload(c *gin.Context) {
	var req service.UploadRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		name, data, ok := readDrawing(c)
		if !ok {
			return
		}
		req.FileName, req.Data = name, data
		req.Force, _ = strconv.ParseBool(c.PostForm("force"))
		if tileID := c.PostForm("tile_id"); tileID != "" {
			req.CacheKey = service.CacheKeyTile + tileID
		}
	} else {
		var body viewerUploadRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			BadRequest(c, "invalid request: "+err.Error())
			return
		}
		if body.URN != "" {
			Success(c, service.UploadResult{URN: body.URN, FileName: body.FileName, Cached: true})
			return
		}
		req.DriveFileID, req.FileName, req.Force = body.DriveFileID, body.FileName, body.Force
		if body.TileID != "" {
			req.CacheKey = service.CacheKeyTile + body.TileID
		}
	}

	result, err := h.svc.Upload(c.Request.Context(), req)
	if err != nil {
		handleError(c, err, "failed to upload drawing")
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); !wait {
		Success(c, result)
		return
	}
	manifest, err := h.svc.WaitForTranslation(c.Request.Context(), result.URN)
	if err != nil && !errors.Is(err, service.ErrTranslation) {
		handleError(c, err, "failed to wait for translation")
		return
	}
	Success(c, gin.H{
		"urn":        result.URN,
		"file_name":  result.FileName,
		"cached":     result.Cached,
		"created_at": result.CreatedAt,
		"status":     manifest.Status,
		"progress":   manifest.Progress,
	})
}

// Status GET /api/viewer/status/:urn
func (h *ViewerHandler) Status(c *gin.Context) {
	manifest, err := h.svc.Status(c.Request.Context(), c.Param("urn"))
	if err != nil {
		handleError(c, err, "failed to read translation status")
		return
	}
	Success(c, manifest)
}
