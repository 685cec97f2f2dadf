package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"tenantcrm/models"
	"tenantcrm/utils"
)

const maxBodyLength = 10000

type NoteInput struct {
	Body string `json:"body" binding:"required,max=10000"`
}

type CommentInput struct {
	Body     string `json:"body" binding:"required,max=10000"`
	ParentID *uint  `json:"parent_id"`
}

// Upload describes an incoming document.
type Upload struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

// Target points at the record an attachment belongs to.
type Target struct {
	Type models.EntityType
	ID   uint
}

// AttachmentService manages notes, discussions and documents of any record.
type AttachmentService struct {
	repo     *models.Repository
	files    *utils.FileStorage
	maxBytes int64
}

func NewAttachmentService(repo *models.Repository, files *utils.FileStorage, maxBytes int64) *AttachmentService {
	return &AttachmentService{repo: repo, files: files, maxBytes: maxBytes}
}

func (s *AttachmentService) checkTarget(db *gorm.DB, scope models.Scope, t Target) error {
	_, err := loadTarget(db, scope.TenantID, t.Type, t.ID)
	return err
}

func attachedTo(scope models.Scope, t Target) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", scope.TenantID, t.Type, t.ID)
	}
}

func newAttachment(scope models.Scope, t Target) models.Attachment {
	return models.Attachment{TenantID: scope.TenantID, EntityType: t.Type, EntityID: t.ID, AuthorID: scope.UserID}
}

func canRemove(scope models.Scope, a models.Attachment) bool {
	return a.AuthorID == scope.UserID || scope.IsAdmin()
}

func cleanBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	switch {
	case body == "":
		return "", invalid("body", "must not be empty")
	case len(body) > maxBodyLength:
		return "", invalid("body", "must be at most %d characters", maxBodyLength)
	}
	return body, nil
}

// Notes

func (s *AttachmentService) ListNotes(ctx context.Context, scope models.Scope, t Target) ([]models.Note, error) {
	db := s.repo.DB(ctx)
	if err := s.checkTarget(db, scope, t); err != nil {
		return nil, normalize(err)
	}
	var out []models.Note
	err := db.Scopes(attachedTo(scope, t)).Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

func (s *AttachmentService) AddNote(ctx context.Context, scope models.Scope, t Target, in NoteInput) (*models.Note, error) {
	body, err := cleanBody(in.Body)
	if err != nil {
		return nil, err
	}
	note := &models.Note{Attachment: newAttachment(scope, t), Body: body}
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.checkTarget(tx, scope, t); err != nil {
			return err
		}
		return tx.Create(note).Error
	})
	if err != nil {
		return nil, normalize(err)
	}
	return note, nil
}

func (s *AttachmentService) DeleteNote(ctx context.Context, scope models.Scope, t Target, id uint) error {
	return normalize(s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.checkTarget(tx, scope, t); err != nil {
			return err
		}
		var note models.Note
		if err := tx.Scopes(attachedTo(scope, t)).Take(&note, id).Error; err != nil {
			return err
		}
		if !canRemove(scope, note.Attachment) {
			return ErrForbidden
		}
		return tx.Delete(&note).Error
	}))
}

// Discussions

// ListThreads returns root comments oldest first, each with its replies.
func (s *AttachmentService) ListThreads(ctx context.Context, scope models.Scope, t Target) ([]models.Comment, error) {
	db := s.repo.DB(ctx)
	if err := s.checkTarget(db, scope, t); err != nil {
		return nil, normalize(err)
	}
	var all []models.Comment
	if err := db.Scopes(attachedTo(scope, t)).Order("created_at ASC, id ASC").Find(&all).Error; err != nil {
		return nil, err
	}
	return buildThreads(all), nil
}

func buildThreads(all []models.Comment) []models.Comment {
	replies := map[uint][]models.Comment{}
	var roots []models.Comment
	for _, c := range all {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		replies[*c.ParentID] = append(replies[*c.ParentID], c)
	}
	var attach func(c *models.Comment)
	attach = func(c *models.Comment) {
		c.Replies = replies[c.ID]
		for i := range c.Replies {
			attach(&c.Replies[i])
		}
	}
	for i := range roots {
		attach(&roots[i])
	}
	if roots == nil {
		roots = []models.Comment{}
	}
	return roots
}

func (s *AttachmentService) PostComment(ctx context.Context, scope models.Scope, t Target, in CommentInput) (*models.Comment, error) {
	body, err := cleanBody(in.Body)
	if err != nil {
		return nil, err
	}
	c := &models.Comment{Attachment: newAttachment(scope, t), Body: body, ParentID: in.ParentID}
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.checkTarget(tx, scope, t); err != nil {
			return err
		}
		if in.ParentID != nil {
			var n int64
			err := tx.Model(&models.Comment{}).Scopes(attachedTo(scope, t)).Where("id = ?", *in.ParentID).Count(&n).Error
			if err != nil {
				return err
			}
			if n == 0 {
				return invalid("parent_id", "does not belong to this discussion")
			}
		}
		return tx.Create(c).Error
	})
	if err != nil {
		return nil, normalize(err)
	}
	return c, nil
}

// DeleteComment removes a comment and every reply below it.
func (s *AttachmentService) DeleteComment(ctx context.Context, scope models.Scope, t Target, id uint) error {
	return normalize(s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.checkTarget(tx, scope, t); err != nil {
			return err
		}
		var c models.Comment
		if err := tx.Scopes(attachedTo(scope, t)).Take(&c, id).Error; err != nil {
			return err
		}
		if !canRemove(scope, c.Attachment) {
			return ErrForbidden
		}
		ids := []uint{c.ID}
		for frontier := ids; len(frontier) > 0; {
			var next []uint
			err := tx.Model(&models.Comment{}).Scopes(attachedTo(scope, t)).
				Where("parent_id IN ?", frontier).Pluck("id", &next).Error
			if err != nil {
				return err
			}
			ids = append(ids, next...)
			frontier = next
		}
		return tx.Where("id IN ?", ids).Delete(&models.Comment{}).Error
	}))
}

// Documents

func (s *AttachmentService) ListDocuments(ctx context.Context, scope models.Scope, t Target) ([]models.Document, error) {
	db := s.repo.DB(ctx)
	if err := s.checkTarget(db, scope, t); err != nil {
		return nil, normalize(err)
	}
	var out []models.Document
	err := db.Scopes(attachedTo(scope, t)).Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

// UploadDocument stores the content on disk and records it against the target.
func (s *AttachmentService) UploadDocument(ctx context.Context, scope models.Scope, t Target, up Upload) (*models.Document, error) {
	name := filepath.Base(strings.TrimSpace(up.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, invalid("file", "a file name is required")
	}
	if err := s.checkTarget(s.repo.DB(ctx), scope, t); err != nil {
		return nil, normalize(err)
	}

	key := fmt.Sprintf("%d/%s%s", scope.TenantID, uuid.NewString(), strings.ToLower(filepath.Ext(name)))
	size, err := s.files.Save(key, up.Content, s.maxBytes)
	if err != nil {
		if errors.Is(err, utils.ErrTooLarge) {
			return nil, invalid("file", "must be at most %d bytes", s.maxBytes)
		}
		return nil, err
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	doc := &models.Document{
		Attachment:  newAttachment(scope, t),
		FileName:    name,
		ContentType: contentType,
		Size:        size,
		StorageKey:  key,
	}
	if err := s.repo.DB(ctx).Create(doc).Error; err != nil {
		if rerr := s.files.Remove(key); rerr != nil {
			log.Ctx(ctx).Warn().Err(rerr).Str("key", key).Msg("failed to remove orphaned upload")
		}
		return nil, normalize(err)
	}
	log.Ctx(ctx).Info().Uint("document_id", doc.ID).Int64("size", size).Msg("document uploaded")
	return doc, nil
}

// OpenDocument returns the document and a reader over its content. The caller
// closes the reader.
func (s *AttachmentService) OpenDocument(ctx context.Context, scope models.Scope, t Target, id uint) (*models.Document, io.ReadCloser, error) {
	db := s.repo.DB(ctx)
	if err := s.checkTarget(db, scope, t); err != nil {
		return nil, nil, normalize(err)
	}
	var doc models.Document
	if err := db.Scopes(attachedTo(scope, t)).Take(&doc, id).Error; err != nil {
		return nil, nil, normalize(err)
	}
	rc, err := s.files.Open(doc.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open document %d: %w", doc.ID, err)
	}
	return &doc, rc, nil
}

// DeleteDocument soft deletes the record. The stored file is kept so the row
// can be restored.
func (s *AttachmentService) DeleteDocument(ctx context.Context, scope models.Scope, t Target, id uint) error {
	return normalize(s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.checkTarget(tx, scope, t); err != nil {
			return err
		}
		var doc models.Document
		if err := tx.Scopes(attachedTo(scope, t)).Take(&doc, id).Error; err != nil {
			return err
		}
		if !canRemove(scope, doc.Attachment) {
			return ErrForbidden
		}
		return tx.Delete(&doc).Error
	}))
}
