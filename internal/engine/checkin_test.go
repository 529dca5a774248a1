package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murphylan/scansign-sub001/internal/model"
)

func newCheckinActivity(t *testing.T, e *Engine, cfg model.Config) *model.Activity {
	t.Helper()
	return mustCreate(t, e, CreateRequest{Kind: model.KindCheckin, Title: "check-in", Config: cfg})
}

func TestSubmitCheckinNewRecord(t *testing.T) {
	e, _, _ := newTestEngine(t)
	a := newCheckinActivity(t, e, model.Config{})

	res, err := e.SubmitCheckin(context.Background(), a.ID, CheckinRequest{Phone: "13912345678", Name: "Alice"})
	require.NoError(t, err)
	assert.False(t, res.IsUpdate)
	assert.Len(t, res.Record.VerifyCode, 3)

	got, err := e.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stats.Checkins)
	assert.Equal(t, 1, got.Stats.Participants)
}

func TestSubmitCheckinDedupByPhone(t *testing.T) {
	e, _, _ := newTestEngine(t)
	a := newCheckinActivity(t, e, model.Config{})
	ctx := context.Background()

	first, err := e.SubmitCheckin(ctx, a.ID, CheckinRequest{Phone: "13912345678", Name: "Alice"})
	require.NoError(t, err)

	second, err := e.SubmitCheckin(ctx, a.ID, CheckinRequest{Phone: "13912345678", Name: "Alice Chen"})
	require.NoError(t, err)
	assert.True(t, second.IsUpdate)
	assert.Equal(t, first.Record.ID, second.Record.ID, "no duplicate record")
	assert.Equal(t, first.Record.VerifyCode, second.Record.VerifyCode, "verify code kept on update")
	assert.Equal(t, "Alice Chen", second.Record.Name)

	recs, err := e.Checkins(a.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	got, err := e.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stats.Checkins, "stats not double counted")
}

func TestSubmitCheckinPhoneValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	a := newCheckinActivity(t, e, model.Config{})
	ctx := context.Background()

	for _, phone := range []string{"", "12345", "12912345678", "2391234567a", "139123456789"} {
		_, err := e.SubmitCheckin(ctx, a.ID, CheckinRequest{Phone: phone, Name: "x"})
		assert.True(t, IsValidation(err), "phone %q should be rejected", phone)
	}
}

func TestSubmitCheckinRequiredFields(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	a := newCheckinActivity(t, e, model.Config{
		RequireName:       true,
		RequireDepartment: true,
		Departments:       []string{"engineering", "sales"},
	})

	_, err := e.SubmitCheckin(ctx, a.ID, CheckinRequest{Phone: "13912345678"})
	assert.True(t, IsValidation(err), "missing name")

	_, err = e.SubmitCheckin(ctx, a.ID, CheckinRequest{Phone: "13912345678", Name: "Alice"})
	assert.True(t, IsValidation(err), "missing department")

	_, err = e.SubmitCheckin(ctx, a.ID, CheckinRequest{Phone: "13912345678", Name: "Alice", Department: "catering"})
	assert.True(t, IsValidation(err), "unknown department")

	res, err := e.SubmitCheckin(ctx, a.ID, CheckinRequest{Phone: "13912345678", Name: "Alice", Department: "sales"})
	require.NoError(t, err)
	assert.Equal(t, "sales", res.Record.Department)
}

func TestSubmitCheckinRejectedWhenInactive(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	a := mustCreate(t, e, CreateRequest{Kind: model.KindCheckin, Title: "c", Status: model.StatusDraft})

	_, err := e.SubmitCheckin(ctx, a.ID, CheckinRequest{Phone: "13912345678"})
	assert.True(t, IsConflict(err))

	_, err = e.End(ctx, a.ID)
	require.NoError(t, err)
	_, err = e.SubmitCheckin(ctx, a.ID, CheckinRequest{Phone: "13912345678"})
	assert.True(t, IsConflict(err))
}

func TestSubmitCheckinWrongKind(t *testing.T) {
	e, _, _ := newTestEngine(t)
	a := mustCreate(t, e, CreateRequest{Kind: model.KindForm, Title: "f", Config: model.Config{
		Fields: []model.FormField{{Label: "note"}},
	}})

	_, err := e.SubmitCheckin(context.Background(), a.ID, CheckinRequest{Phone: "13912345678"})
	assert.True(t, IsConflict(err))
}

func TestCheckinPublishesEventToAllSubscribers(t *testing.T) {
	e, b, _ := newTestEngine(t)
	a := newCheckinActivity(t, e, model.Config{})

	s1 := b.Subscribe(a.ID)
	s2 := b.Subscribe(a.ID)

	_, err := e.SubmitCheckin(context.Background(), a.ID, CheckinRequest{Phone: "13912345678", Name: "Alice"})
	require.NoError(t, err)

	ev1 := <-s1.C
	ev2 := <-s2.C
	assert.Equal(t, EventCheckin, ev1.Type)
	assert.Equal(t, EventCheckin, ev2.Type)
	payload, ok := ev1.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", payload["name"])
}
