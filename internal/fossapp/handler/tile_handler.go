package handler

import (
	"github.com/fosslighting/fossapp/internal/fossapp/service"
	"github.com/gin-gonic/gin"
)

// TileHandler per-user tile board and drawing generation
type TileHandler struct {
	svc *service.TileService
}

func NewTileHandler(svc *service.TileService) *TileHandler {
	return &TileHandler{svc: svc}
}

// GetBoard GET /tiles/board
func (h *TileHandler) GetBoard(c *gin.Context) {
	board, err := h.svc.GetBoard(c.Request.Context(), GetUserID(c))
	if err != nil {
		handleError(c, err, "failed to load board")
		return
	}
	Success(c, board)
}

// AddToBucket POST /tiles/board/bucket
func (h *TileHandler) AddToBucket(c *gin.Context) {
	var req service.AddToBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.respond(c, func() (*service.BoardResult, error) {
		return h.svc.AddToBucket(c.Request.Context(), GetUserID(c), &req)
	})
}

// RemoveFromBucket DELETE /tiles/board/bucket/:productId
func (h *TileHandler) RemoveFromBucket(c *gin.Context) {
	h.respond(c, func() (*service.BoardResult, error) {
		return h.svc.RemoveFromBucket(c.Request.Context(), GetUserID(c), c.Param("productId"))
	})
}

type moveRequest struct {
	Active string `json:"active" binding:"required"`
	Over   string `json:"over" binding:"required"`
}

// Move POST /tiles/board/move {active, over}
// active is a drag id (productId or groupId:productId); over is a drop
// target: bucket, canvas, new-tile, a tile id or a drag id.
func (h *TileHandler) Move(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "active and over are required")
		return
	}
	h.respond(c, func() (*service.BoardResult, error) {
		return h.svc.Move(c.Request.Context(), GetUserID(c), req.Active, req.Over)
	})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameTile PATCH /tiles/board/tiles/:tileId
func (h *TileHandler) RenameTile(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "name is required")
		return
	}
	h.respond(c, func() (*service.BoardResult, error) {
		return h.svc.RenameTile(c.Request.Context(), GetUserID(c), c.Param("tileId"), req.Name)
	})
}

// DeleteTile DELETE /tiles/board/tiles/:tileId
func (h *TileHandler) DeleteTile(c *gin.Context) {
	h.respond(c, func() (*service.BoardResult, error) {
		return h.svc.DeleteTile(c.Request.Context(), GetUserID(c), c.Param("tileId"))
	})
}

// ClearBoard DELETE /tiles/board
func (h *TileHandler) ClearBoard(c *gin.Context) {
	h.respond(c, func() (*service.BoardResult, error) {
		return h.svc.ClearBoard(c.Request.Context(), GetUserID(c))
	})
}

func (h *TileHandler) respond(c *gin.Context, fn func() (*service.BoardResult, error)) {
	res, err := fn()
	if err != nil {
		handleError(c, err, "board operation failed")
		return
	}
	Success(c, res)
}

// Generate POST /tiles/:tileId/generate
// Returns 202 with the queued job; progress arrives as tile_progress SSE
// events.
func (h *TileHandler) Generate(c *gin.Context) {
	job, err := h.svc.GenerateTile(c.Request.Context(), GetUserID(c), c.Param("tileId"))
	if err != nil {
		handleError(c, err, "failed to start tile generation")
		return
	}
	c.JSON(202, Response{Code: 0, Message: "accepted", Data: job})
}

// GetJob GET /tiles/jobs/:jobId
func (h *TileHandler) GetJob(c *gin.Context) {
	job, err := h.svc.GetJob(c.Request.Context(), GetUserID(c), c.Param("jobId"))
	if err != nil {
		handleError(c, err, "failed to load job")
		return
	}
	Success(c, job)
}
