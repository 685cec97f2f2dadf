package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantcrm/models"
)

func newLeadService(env *testEnv) *LeadService {
	s := NewLeadService(env.deps)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func createLeads(t *testing.T, s *LeadService, scope models.Scope, titles ...string) []*models.Lead {
	t.Helper()
	out := make([]*models.Lead, len(titles))
	for i, title := range titles {
		l, err := s.Create(context.Background(), scope, LeadInput{Title: title, Value: 100})
		require.NoError(t, err)
		out[i] = l
	}
	return out
}

// stage returns the lead titles of a stage in board order.
func stage(t *testing.T, s *LeadService, scope models.Scope, status models.LeadStatus) []string {
	t.Helper()
	var leads []models.Lead
	require.NoError(t, s.repo.DB(context.Background()).Scopes(models.InTenant(scope.TenantID)).
		Where("status = ?", status).Order("position ASC").Find(&leads).Error)
	titles := make([]string, len(leads))
	for i, l := range leads {
		assert.Equal(t, i, l.Position, "positions in %s must be dense", status)
		titles[i] = l.Title
	}
	return titles
}

func TestLeadCreateAppendsToStage(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)

	leads := createLeads(t, s, env.scope, "a", "b", "c")
	assert.Equal(t, "LD-0001", leads[0].DisplayID)
	assert.Equal(t, models.LeadNew, leads[2].Status)
	assert.Equal(t, 2, leads[2].Position)
	assert.Equal(t, []string{"a", "b", "c"}, stage(t, s, env.scope, models.LeadNew))
}

func TestLeadCreateValidatesStage(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	ctx := context.Background()

	_, err := s.Create(ctx, env.scope, LeadInput{Title: "x", Status: "archived"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)

	_, err = s.Create(ctx, env.scope, LeadInput{Title: "x", Status: models.LeadLost})
	assert.ErrorIs(t, err, ErrLostReasonRequired)

	l, err := s.Create(ctx, env.scope, LeadInput{Title: "x", Status: models.LeadWon, LostReason: "ignored"})
	require.NoError(t, err)
	assert.Empty(t, l.LostReason)
	require.NotNil(t, l.ClosedAt)
}

func TestLeadMoveAcrossStages(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	ctx := context.Background()
	leads := createLeads(t, s, env.scope, "a", "b", "c")
	createLeads(t, s, env.scope, "d")
	_, err := s.Move(ctx, env.scope, leads[0].ID, MoveInput{Status: models.LeadContacted})
	require.NoError(t, err)

	moved, err := s.Move(ctx, env.scope, leads[1].ID, MoveInput{Status: models.LeadContacted, Position: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, models.LeadContacted, moved.Status)
	assert.Equal(t, 0, moved.Position)

	assert.Equal(t, []string{"c", "d"}, stage(t, s, env.scope, models.LeadNew))
	assert.Equal(t, []string{"b", "a"}, stage(t, s, env.scope, models.LeadContacted))
	assert.Equal(t, []models.AuditAction{models.AuditCreated, models.AuditStatusChanged},
		env.auditActions(t, models.EntityLead, leads[1].ID))
	eventually(t, func() bool { return env.pub.has("lead_status_changed") })
}

func TestLeadMoveClampsPosition(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	ctx := context.Background()
	leads := createLeads(t, s, env.scope, "a", "b")

	moved, err := s.Move(ctx, env.scope, leads[0].ID, MoveInput{Status: models.LeadQualified, Position: ptr(99)})
	require.NoError(t, err)
	assert.Equal(t, 0, moved.Position)

	moved, err = s.Move(ctx, env.scope, leads[1].ID, MoveInput{Status: models.LeadQualified, Position: ptr(99)})
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Position)
	assert.Equal(t, []string{"a", "b"}, stage(t, s, env.scope, models.LeadQualified))
}

func TestLeadMoveWithinStage(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	ctx := context.Background()
	leads := createLeads(t, s, env.scope, "a", "b", "c", "d")

	_, err := s.Move(ctx, env.scope, leads[0].ID, MoveInput{Status: models.LeadNew, Position: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a", "d"}, stage(t, s, env.scope, models.LeadNew))

	_, err = s.Move(ctx, env.scope, leads[3].ID, MoveInput{Status: models.LeadNew, Position: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "c", "a"}, stage(t, s, env.scope, models.LeadNew))
}

func TestLeadMoveToSamePlaceIsNoop(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	ctx := context.Background()
	leads := createLeads(t, s, env.scope, "a", "b")

	got, err := s.Move(ctx, env.scope, leads[1].ID, MoveInput{Status: models.LeadNew})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Position)
	assert.Equal(t, []models.AuditAction{models.AuditCreated}, env.auditActions(t, models.EntityLead, leads[1].ID))
	assert.Equal(t, []string{"a", "b"}, stage(t, s, env.scope, models.LeadNew))
}

func TestLeadMoveToLostNeedsReason(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	ctx := context.Background()
	leads := createLeads(t, s, env.scope, "a")

	_, err := s.Move(ctx, env.scope, leads[0].ID, MoveInput{Status: models.LeadLost, LostReason: "   "})
	require.ErrorIs(t, err, ErrLostReasonRequired)

	unchanged, err := s.Get(ctx, env.scope, leads[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadNew, unchanged.Status)

	lost, err := s.Move(ctx, env.scope, leads[0].ID, MoveInput{Status: models.LeadLost, LostReason: " budget cut "})
	require.NoError(t, err)
	assert.Equal(t, "budget cut", lost.LostReason)
	require.NotNil(t, lost.ClosedAt)

	reopened, err := s.Move(ctx, env.scope, leads[0].ID, MoveInput{Status: models.LeadNegotiation, LostReason: "stale"})
	require.NoError(t, err)
	assert.Empty(t, reopened.LostReason)
	assert.Nil(t, reopened.ClosedAt)
}

func TestLeadMoveRejectsUnknownStage(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	leads := createLeads(t, s, env.scope, "a")

	_, err := s.Move(context.Background(), env.scope, leads[0].ID, MoveInput{Status: "archived"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLeadMoveIsTenantScoped(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	leads := createLeads(t, s, env.scope, "a")
	other := env.addTenant(t, "globex")

	_, err := s.Move(context.Background(), other, leads[0].ID, MoveInput{Status: models.LeadWon})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeadBoard(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	ctx := context.Background()
	leads := createLeads(t, s, env.scope, "a", "b", "c")
	_, err := s.Move(ctx, env.scope, leads[2].ID, MoveInput{Status: models.LeadWon})
	require.NoError(t, err)

	board, err := s.Board(ctx, env.scope)
	require.NoError(t, err)
	require.Len(t, board.Columns, len(models.PipelineStages))
	for i, col := range board.Columns {
		assert.Equal(t, models.PipelineStages[i], col.Status)
	}
	assert.Equal(t, 2, board.Columns[0].Count)
	assert.Equal(t, 200.0, board.Columns[0].TotalValue)
	assert.Equal(t, "c", board.Columns[5].Leads[0].Title)
	assert.NotNil(t, board.Columns[6].Leads)
}

func TestLeadDeleteCompactsStage(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	ctx := context.Background()
	leads := createLeads(t, s, env.scope, "a", "b", "c")

	require.NoError(t, s.Delete(ctx, env.scope, leads[0].ID))
	assert.Equal(t, []string{"b", "c"}, stage(t, s, env.scope, models.LeadNew))
	_, err := s.Get(ctx, env.scope, leads[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	fresh := createLeads(t, s, env.scope, "d")
	assert.Equal(t, 2, fresh[0].Position)
	assert.Equal(t, "LD-0004", fresh[0].DisplayID)
}

func TestLeadDeleteBlockedByPitches(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	pitches := NewPitchService(env.deps)
	ctx := context.Background()
	leads := createLeads(t, s, env.scope, "a", "b")
	p, err := pitches.Create(ctx, env.scope, PitchInput{Title: "Offer", LeadID: &leads[0].ID})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, env.scope, leads[0].ID), ErrConflict)
	assert.Equal(t, []string{"a", "b"}, stage(t, s, env.scope, models.LeadNew))

	require.NoError(t, pitches.Delete(ctx, env.scope, p.ID))
	require.NoError(t, s.Delete(ctx, env.scope, leads[0].ID))
	assert.Equal(t, []string{"b"}, stage(t, s, env.scope, models.LeadNew))
}

func TestLeadConvert(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	ctx := context.Background()
	l, err := s.Create(ctx, env.scope, LeadInput{
		Title:       "Website rebuild",
		CompanyName: "Initech",
		ContactName: "Peter Gibbons",
		Email:       "peter@initech.test",
	})
	require.NoError(t, err)

	_, err = s.Convert(ctx, env.scope, l.ID)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = s.Move(ctx, env.scope, l.ID, MoveInput{Status: models.LeadWon})
	require.NoError(t, err)

	conv, err := s.Convert(ctx, env.scope, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Initech", conv.Client.Name)
	assert.Equal(t, models.ClientActive, conv.Client.Status)
	require.NotNil(t, conv.Contact)
	assert.Equal(t, "Peter", conv.Contact.FirstName)
	assert.Equal(t, "Gibbons", conv.Contact.LastName)
	assert.True(t, conv.Contact.IsPrimary)
	require.NotNil(t, conv.Lead.ClientID)
	assert.Equal(t, conv.Client.ID, *conv.Lead.ClientID)

	_, err = s.Convert(ctx, env.scope, l.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLeadUpdateCannotChangeStage(t *testing.T) {
	env := newTestEnv(t)
	s := newLeadService(env)
	leads := createLeads(t, s, env.scope, "a")

	got, err := s.Update(context.Background(), env.scope, leads[0].ID, LeadPatch{Title: ptr("renamed"), Value: ptr(5.0)})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, 5.0, got.Value)
	assert.Equal(t, models.LeadNew, got.Status)

	_, err = s.Update(context.Background(), env.scope, leads[0].ID, LeadPatch{OwnerID: ptr(uint(999))})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
	}{
		{"", "", ""},
		{"Cher", "Cher", ""},
		{"Mary Jane Watson", "Mary", "Jane Watson"},
	}
	for _, tt := range tests {
		first, last := splitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}
