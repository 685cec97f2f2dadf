package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tenantcrm/service"
)

// LeadHandler serves the sales pipeline.
type LeadHandler struct {
	leads *service.LeadService
}

func NewLeadHandler(leads *service.LeadService) *LeadHandler {
	return &LeadHandler{leads: leads}
}

func (h *LeadHandler) register(rg *gin.RouterGroup) {
	rg.GET("/leads", h.ListLeads)
	rg.POST("/leads", h.CreateLead)
	rg.GET("/leads/board", h.Board)
	rg.GET("/leads/:id", getByID(h.leads.Get))
	rg.PATCH("/leads/:id", patchByID(h.leads.Update))
	rg.DELETE("/leads/:id", deleteByID(h.leads.Delete))
	rg.POST("/leads/:id/move", patchByID(h.leads.Move))
	rg.POST("/leads/:id/convert", h.Convert)
}

func (h *LeadHandler) ListLeads(c *gin.Context) {
	var f service.LeadFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.leads.List(c.Request.Context(), scope(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *LeadHandler) CreateLead(c *gin.Context) {
	var req service.LeadInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	lead, err := h.leads.Create(c.Request.Context(), scope(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lead)
}

func (h *LeadHandler) Board(c *gin.Context) {
	board, err := h.leads.Board(c.Request.Context(), scope(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *LeadHandler) Convert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	conv, err := h.leads.Convert(c.Request.Context(), scope(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}
