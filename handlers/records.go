package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"tenantcrm/models"
	"tenantcrm/service"
)

// multipartOverhead is the room left for form boundaries and headers on top
// of the document size limit.
const multipartOverhead = 1 << 20

// RecordHandler serves everything that hangs off an arbitrary record:
// notes, discussions, documents, audit trail, breadcrumbs and search.
type RecordHandler struct {
	attachments *service.AttachmentService
	nav         *service.Navigator
	search      *service.SearchService
	maxUpload   int64
}

func NewRecordHandler(attachments *service.AttachmentService, nav *service.Navigator, search *service.SearchService, maxUpload int64) *RecordHandler {
	return &RecordHandler{attachments: attachments, nav: nav, search: search, maxUpload: maxUpload}
}

func (h *RecordHandler) register(rg *gin.RouterGroup) {
	rg.GET("/notes/:type/:id", listOn(h.attachments.ListNotes))
	rg.POST("/notes/:type/:id", addOn(h.attachments.AddNote))
	rg.DELETE("/notes/:type/:id/:noteID", removeOn("noteID", h.attachments.DeleteNote))

	rg.GET("/discussions/:type/:id", listOn(h.attachments.ListThreads))
	rg.POST("/discussions/:type/:id", addOn(h.attachments.PostComment))
	rg.DELETE("/discussions/:type/:id/:commentID", removeOn("commentID", h.attachments.DeleteComment))

	rg.GET("/documents/:type/:id", listOn(h.attachments.ListDocuments))
	rg.POST("/documents/:type/:id", h.UploadDocument)
	rg.GET("/documents/:type/:id/:docID/download", h.DownloadDocument)
	rg.DELETE("/documents/:type/:id/:docID", removeOn("docID", h.attachments.DeleteDocument))

	rg.GET("/audit/:type/:id", h.AuditTrail)
	rg.GET("/breadcrumbs/:type/:id", h.Breadcrumbs)
	rg.GET("/search", h.Search)
}

func listOn[T any](list func(context.Context, models.Scope, service.Target) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := target(c)
		if !ok {
			return
		}
		out, err := list(c.Request.Context(), scope(c), t)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func addOn[In, T any](add func(context.Context, models.Scope, service.Target, In) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := target(c)
		if !ok {
			return
		}
		var in In
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		out, err := add(c.Request.Context(), scope(c), t, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

func removeOn(param string, remove func(context.Context, models.Scope, service.Target, uint) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := target(c)
		if !ok {
			return
		}
		id, ok := parseID(c, param)
		if !ok {
			return
		}
		if err := remove(c.Request.Context(), scope(c), t, id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *RecordHandler) UploadDocument(c *gin.Context) {
	t, ok := target(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file must be at most %d bytes", h.maxUpload), "field": "file"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "a file is required", "field": "file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	doc, err := h.attachments.UploadDocument(c.Request.Context(), scope(c), t, service.Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     f,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *RecordHandler) DownloadDocument(c *gin.Context) {
	t, ok := target(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "docID")
	if !ok {
		return
	}
	doc, rc, err := h.attachments.OpenDocument(c.Request.Context(), scope(c), t, id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer func() {
		if err := rc.Close(); err != nil {
			log.Ctx(c.Request.Context()).Warn().Err(err).Uint("document_id", doc.ID).Msg("failed to close document")
		}
	}()
	c.DataFromReader(http.StatusOK, doc.Size, doc.ContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", doc.FileName),
	})
}

func (h *RecordHandler) AuditTrail(c *gin.Context) {
	t, ok := target(c)
	if !ok {
		return
	}
	entries, err := h.nav.AuditTrail(c.Request.Context(), scope(c), t.Type, t.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *RecordHandler) Breadcrumbs(c *gin.Context) {
	t, ok := target(c)
	if !ok {
		return
	}
	crumbs, err := h.nav.Breadcrumbs(c.Request.Context(), scope(c), t.Type, t.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, crumbs)
}

func (h *RecordHandler) Search(c *gin.Context) {
	var q service.SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	hits, err := h.search.Search(c.Request.Context(), scope(c), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}
