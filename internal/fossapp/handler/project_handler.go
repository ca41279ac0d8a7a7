package handler

import (
	"strconv"

	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/fossapp/service"
	"github.com/gin-gonic/gin"
)

// ProjectHandler projects, contacts and phases
type ProjectHandler struct {
	svc *service.ProjectService
}

func NewProjectHandler(svc *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{svc: svc}
}

// ============================================================
// Projects
// ============================================================

// ListProjects GET /projects?keyword=&status=&customer_id=&archived=
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	page, pageSize := GetPagination(c)

	filter := repository.ProjectFilter{
		Keyword:    c.Query("keyword"),
		Status:     c.Query("status"),
		CustomerID: c.Query("customer_id"),
	}
	if v := c.Query("archived"); v != "" {
		archived, err := strconv.ParseBool(v)
		if err != nil {
			BadRequest(c, "archived must be true or false")
			return
		}
		filter.Archived = &archived
	}

	result, err := h.svc.ListProjects(c.Request.Context(), page, pageSize, filter)
	if err != nil {
		handleError(c, err, "failed to list projects")
		return
	}
	Success(c, result)
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	project, err := h.svc.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "failed to load project")
		return
	}
	Success(c, project)
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req service.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	project, err := h.svc.CreateProject(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		handleError(c, err, "failed to create project")
		return
	}
	Created(c, project)
}

func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	var req service.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	project, err := h.svc.UpdateProject(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleError(c, err, "failed to update project")
		return
	}
	Success(c, project)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus PUT /projects/:id/status
func (h *ProjectHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "status is required")
		return
	}

	project, err := h.svc.UpdateProjectStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		handleError(c, err, "failed to update status")
		return
	}
	Success(c, project)
}

func (h *ProjectHandler) ArchiveProject(c *gin.Context) {
	project, err := h.svc.ArchiveProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "failed to archive project")
		return
	}
	Success(c, project)
}

func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	if err := h.svc.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err, "failed to delete project")
		return
	}
	Success(c, nil)
}

// ============================================================
// Contacts
// ============================================================

func (h *ProjectHandler) ListContacts(c *gin.Context) {
	contacts, err := h.svc.ListContacts(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "failed to list contacts")
		return
	}
	Success(c, gin.H{"items": contacts})
}

func (h *ProjectHandler) AddContact(c *gin.Context) {
	var req service.AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	contact, err := h.svc.AddContact(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleError(c, err, "failed to add contact")
		return
	}
	Created(c, contact)
}

func (h *ProjectHandler) DeleteContact(c *gin.Context) {
	if err := h.svc.DeleteContact(c.Request.Context(), c.Param("id"), c.Param("contactId")); err != nil {
		handleError(c, err, "failed to delete contact")
		return
	}
	Success(c, nil)
}

// ============================================================
// Phases
// ============================================================

func (h *ProjectHandler) ListPhases(c *gin.Context) {
	phases, err := h.svc.ListPhases(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "failed to list phases")
		return
	}
	Success(c, gin.H{"items": phases})
}

func (h *ProjectHandler) AddPhase(c *gin.Context) {
	var req service.AddPhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	phase, err := h.svc.AddPhase(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleError(c, err, "failed to add phase")
		return
	}
	Created(c, phase)
}

// UpdatePhaseStatus PUT /projects/:id/phases/:phaseId/status
func (h *ProjectHandler) UpdatePhaseStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "status is required")
		return
	}

	phase, err := h.svc.UpdatePhaseStatus(c.Request.Context(), c.Param("id"), c.Param("phaseId"), req.Status)
	if err != nil {
		handleError(c, err, "failed to update phase")
		return
	}
	Success(c, phase)
}
