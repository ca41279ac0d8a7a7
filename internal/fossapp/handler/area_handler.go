package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fosslighting/fossapp/internal/fossapp/service"
	"github.com/gin-gonic/gin"
)

// maxDrawingSize upper bound for DWG uploads read into memory
var maxDrawingSize int64 = 100 << 20

// multipartOverhead room for boundaries and form fields next to the file
const multipartOverhead = 64 << 10

// AreaHandler areas, versions and floor plans
type AreaHandler struct {
	svc    *service.AreaService
	viewer *service.ViewerService
}

func NewAreaHandler(svc *service.AreaService, viewer *service.ViewerService) *AreaHandler {
	return &AreaHandler{svc: svc, viewer: viewer}
}

// ============================================================
// Areas
// ============================================================

// ListAreas GET /projects/:id/areas
func (h *AreaHandler) ListAreas(c *gin.Context) {
	areas, err := h.svc.ListAreas(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "failed to list areas")
		return
	}
	Success(c, gin.H{"items": areas})
}

func (h *AreaHandler) GetArea(c *gin.Context) {
	area, err := h.svc.GetArea(c.Request.Context(), c.Param("areaId"))
	if err != nil {
		handleError(c, err, "failed to load area")
		return
	}
	Success(c, area)
}

// CreateArea POST /projects/:id/areas
func (h *AreaHandler) CreateArea(c *gin.Context) {
	var req service.CreateAreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	area, err := h.svc.CreateArea(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		handleError(c, err, "failed to create area")
		return
	}
	Created(c, area)
}

func (h *AreaHandler) UpdateArea(c *gin.Context) {
	var req service.UpdateAreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	area, err := h.svc.UpdateArea(c.Request.Context(), c.Param("areaId"), &req)
	if err != nil {
		handleError(c, err, "failed to update area")
		return
	}
	Success(c, area)
}

func (h *AreaHandler) DeleteArea(c *gin.Context) {
	if err := h.svc.DeleteArea(c.Request.Context(), c.Param("areaId")); err != nil {
		handleError(c, err, "failed to delete area")
		return
	}
	Success(c, nil)
}

// ============================================================
// Versions
// ============================================================

func (h *AreaHandler) ListVersions(c *gin.Context) {
	versions, err := h.svc.ListVersions(c.Request.Context(), c.Param("areaId"))
	if err != nil {
		handleError(c, err, "failed to list versions")
		return
	}
	Success(c, gin.H{"items": versions})
}

// CreateVersion POST /areas/:areaId/versions {copy_from_version?}
func (h *AreaHandler) CreateVersion(c *gin.Context) {
	var req service.CreateVersionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}

	version, err := h.svc.CreateVersion(c.Request.Context(), c.Param("areaId"), GetUserID(c), &req)
	if err != nil {
		handleError(c, err, "failed to create version")
		return
	}
	Created(c, version)
}

// SetCurrentVersion PUT /areas/:areaId/current-version/:number
func (h *AreaHandler) SetCurrentVersion(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		BadRequest(c, "version number must be a positive integer")
		return
	}

	area, err := h.svc.SetCurrentVersion(c.Request.Context(), c.Param("areaId"), number)
	if err != nil {
		handleError(c, err, "failed to set current version")
		return
	}
	Success(c, area)
}

func (h *AreaHandler) GetVersion(c *gin.Context) {
	version, err := h.svc.GetVersion(c.Request.Context(), c.Param("versionId"))
	if err != nil {
		handleError(c, err, "failed to load version")
		return
	}
	Success(c, version)
}

func (h *AreaHandler) DeleteVersion(c *gin.Context) {
	if err := h.svc.DeleteVersion(c.Request.Context(), c.Param("versionId")); err != nil {
		handleError(c, err, "failed to delete version")
		return
	}
	Success(c, nil)
}

// GetSummary GET /versions/:versionId/summary
func (h *AreaHandler) GetSummary(c *gin.Context) {
	summary, err := h.svc.GetVersionSummary(c.Request.Context(), c.Param("versionId"))
	if err != nil {
		handleError(c, err, "failed to load summary")
		return
	}
	Success(c, summary)
}

// ExportSchedule GET /versions/:versionId/export
func (h *AreaHandler) ExportSchedule(c *gin.Context) {
	f, filename, err := h.svc.ExportVersionSchedule(c.Request.Context(), c.Param("versionId"))
	if err != nil {
		handleError(c, err, "failed to export schedule")
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}

// ============================================================
// Floor plans
// ============================================================

// UploadFloorPlan POST /versions/:versionId/floor-plan (multipart: file)
func (h *AreaHandler) UploadFloorPlan(c *gin.Context) {
	name, data, ok := readDrawing(c)
	if !ok {
		return
	}

	version, err := h.viewer.UploadFloorPlan(c.Request.Context(), c.Param("versionId"), name, data)
	if err != nil {
		handleError(c, err, "failed to upload floor plan")
		return
	}
	Success(c, version)
}

// RefreshFloorPlan POST /versions/:versionId/floor-plan/refresh
func (h *AreaHandler) RefreshFloorPlan(c *gin.Context) {
	version, err := h.viewer.RefreshFloorPlanStatus(c.Request.Context(), c.Param("versionId"))
	if err != nil {
		handleError(c, err, "failed to refresh floor plan status")
		return
	}
	Success(c, version)
}

// readDrawing reads the multipart "file" field into memory. It writes the
// error response itself and reports false when nothing usable was sent.
func readDrawing(c *gin.Context) (string, []byte, bool) {
	// cap the body before the multipart parser buffers it
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDrawingSize+multipartOverhead)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			tooLargeError(c)
			return "", nil, false
		}
		BadRequest(c, "file is required")
		return "", nil, false
	}
	if fileHeader.Size > maxDrawingSize {
		tooLargeError(c)
		return "", nil, false
	}
	src, err := fileHeader.Open()
	if err != nil {
		InternalError(c, "failed to read upload: "+err.Error())
		return "", nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxDrawingSize))
	if err != nil {
		InternalError(c, "failed to read upload: "+err.Error())
		return "", nil, false
	}
	return fileHeader.Filename, data, true
}

func tooLargeError(c *gin.Context) {
	Error(c, 41300, fmt.Sprintf("file exceeds %d MB", maxDrawingSize>>20))
}
