package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/fossapp/service"
	"github.com/fosslighting/fossapp/internal/fossapp/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers handler set
type Handlers struct {
	Project  *ProjectHandler
	Document *DocumentHandler
	Area     *AreaHandler
	Product  *ProductHandler
	Catalog  *CatalogHandler
	Viewer   *ViewerHandler
	Tile     *TileHandler
	SSE      *SSEHandler
}

// NewHandlers builds the handler set
func NewHandlers(svc *service.Services, hub *sse.Hub, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		Project:  NewProjectHandler(svc.Project),
		Document: NewDocumentHandler(svc.Document),
		Area:     NewAreaHandler(svc.Area, svc.Viewer),
		Product:  NewProductHandler(svc.ProjectProduct),
		Catalog:  NewCatalogHandler(svc.Catalog, svc.Currency),
		Viewer:   NewViewerHandler(svc.Viewer),
		Tile:     NewTileHandler(svc.Tile),
		SSE:      NewSSEHandler(hub, logger),
	}
}

// Response common envelope
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 200 response
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 201 response
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error writes an error envelope; the HTTP status is code/100
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

func Unavailable(c *gin.Context, message string) {
	Error(c, 50300, message)
}

// handleError maps service and repository errors onto the envelope.
// UserError messages are passed through, anything else is reported with
// the fallback text.
func handleError(c *gin.Context, err error, fallback string) {
	msg := fallback
	var ue *service.UserError
	if errors.As(err, &ue) {
		msg = ue.Msg
	}

	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrUnknownCurrency):
		if ue == nil {
			msg = err.Error()
		}
		BadRequest(c, msg)
	case errors.Is(err, repository.ErrNotFound):
		if ue == nil {
			msg = "resource not found"
		}
		NotFound(c, msg)
	case errors.Is(err, repository.ErrDuplicate):
		if ue == nil {
			msg = "resource already exists"
		}
		Conflict(c, msg)
	case errors.Is(err, repository.ErrReferenced):
		Conflict(c, "resource is still referenced")
	case errors.Is(err, service.ErrUnavailable):
		Unavailable(c, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		Error(c, 50400, fallback+": timed out")
	default:
		InternalError(c, fallback+": "+err.Error())
	}
}

// GetUserID user id set by the JWT middleware
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination page and page_size query parameters
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
