package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tenantcrm/service"
)

// ProjectHandler serves projects and their phases, sets and requirements.
type ProjectHandler struct {
	projects *service.ProjectService
}

func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

func (h *ProjectHandler) register(rg *gin.RouterGroup) {
	p := h.projects

	rg.GET("/projects", h.ListProjects)
	rg.POST("/projects", h.CreateProject)
	rg.GET("/projects/:id", getByID(p.GetProject))
	rg.PATCH("/projects/:id", patchByID(p.UpdateProject))
	rg.DELETE("/projects/:id", deleteByID(p.DeleteProject))
	rg.GET("/projects/:id/phases", listUnder(p.ListPhases))
	rg.POST("/projects/:id/phases", createUnder(p.CreatePhase))

	rg.GET("/phases/:id", getByID(p.GetPhase))
	rg.PATCH("/phases/:id", patchByID(p.UpdatePhase))
	rg.DELETE("/phases/:id", deleteByID(p.DeletePhase))
	rg.GET("/phases/:id/sets", listUnder(p.ListSets))
	rg.POST("/phases/:id/sets", createUnder(p.CreateSet))

	rg.GET("/sets/:id", getByID(p.GetSet))
	rg.PATCH("/sets/:id", patchByID(p.UpdateSet))
	rg.DELETE("/sets/:id", deleteByID(p.DeleteSet))
	rg.GET("/sets/:id/requirements", listUnder(p.ListRequirements))
	rg.POST("/sets/:id/requirements", createUnder(p.CreateRequirement))

	rg.GET("/requirements/:id", getByID(p.GetRequirement))
	rg.PATCH("/requirements/:id", patchByID(p.UpdateRequirement))
	rg.DELETE("/requirements/:id", deleteByID(p.DeleteRequirement))
}

func (h *ProjectHandler) ListProjects(c *gin.Context) {
	var f service.ProjectFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.projects.ListProjects(c.Request.Context(), scope(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req service.ProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	project, err := h.projects.CreateProject(c.Request.Context(), scope(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}
