package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tenantcrm/service"
)

type PitchHandler struct {
	pitches *service.PitchService
}

func NewPitchHandler(pitches *service.PitchService) *PitchHandler {
	return &PitchHandler{pitches: pitches}
}

func (h *PitchHandler) register(rg *gin.RouterGroup) {
	rg.GET("/pitches", h.ListPitches)
	rg.POST("/pitches", h.CreatePitch)
	rg.GET("/pitches/:id", getByID(h.pitches.Get))
	rg.PATCH("/pitches/:id", patchByID(h.pitches.Update))
	rg.DELETE("/pitches/:id", deleteByID(h.pitches.Delete))
}

func (h *PitchHandler) ListPitches(c *gin.Context) {
	var f service.PitchFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.pitches.List(c.Request.Context(), scope(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *PitchHandler) CreatePitch(c *gin.Context) {
	var req service.PitchInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pitch, err := h.pitches.Create(c.Request.Context(), scope(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pitch)
}
