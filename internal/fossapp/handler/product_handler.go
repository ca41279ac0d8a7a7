package handler

import (
	"github.com/fosslighting/fossapp/internal/fossapp/service"
	"github.com/gin-gonic/gin"
)

// ProductHandler product lines of an area version
type ProductHandler struct {
	svc *service.ProjectProductService
}

func NewProductHandler(svc *service.ProjectProductService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// List GET /versions/:versionId/products
func (h *ProductHandler) List(c *gin.Context) {
	lines, err := h.svc.ListVersionProducts(c.Request.Context(), c.Param("versionId"))
	if err != nil {
		handleError(c, err, "failed to list products")
		return
	}
	Success(c, gin.H{"items": lines})
}

// ListByProject GET /projects/:id/products
func (h *ProductHandler) ListByProject(c *gin.Context) {
	lines, err := h.svc.ListProjectProducts(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "failed to list products")
		return
	}
	Success(c, gin.H{"items": lines})
}

// Add POST /versions/:versionId/products
func (h *ProductHandler) Add(c *gin.Context) {
	var req service.AddProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	line, err := h.svc.AddProduct(c.Request.Context(), c.Param("versionId"), &req)
	if err != nil {
		handleError(c, err, "failed to add product")
		return
	}
	Created(c, line)
}

// Update PUT /project-products/:lineId
func (h *ProductHandler) Update(c *gin.Context) {
	var req service.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	line, err := h.svc.UpdateProduct(c.Request.Context(), c.Param("lineId"), &req)
	if err != nil {
		handleError(c, err, "failed to update product")
		return
	}
	Success(c, line)
}

func (h *ProductHandler) Remove(c *gin.Context) {
	if err := h.svc.RemoveProduct(c.Request.Context(), c.Param("lineId")); err != nil {
		handleError(c, err, "failed to remove product")
		return
	}
	Success(c, nil)
}
