package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murphylan/scansign-sub001/internal/model"
)

func newFormActivity(t *testing.T, e *Engine) *model.Activity {
	t.Helper()
	return mustCreate(t, e, CreateRequest{Kind: model.KindForm, Title: "feedback", Config: model.Config{
		Fields: []model.FormField{
			{ID: "name", Label: "Name", Type: "text", Required: true},
			{ID: "rating", Label: "Rating", Type: "number", Required: true},
			{ID: "track", Label: "Track", Type: "select", Options: []string{"backend", "frontend"}},
		},
	}})
}

func TestSubmitFormAppendsResponse(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	a := newFormActivity(t, e)

	_, err := e.SubmitForm(ctx, a.ID, "u1", map[string]string{
		"name": "Alice", "rating": "5", "track": "backend",
	})
	require.NoError(t, err)

	// Form responses append; the same identity may submit again.
	_, err = e.SubmitForm(ctx, a.ID, "u1", map[string]string{
		"name": "Alice", "rating": "4",
	})
	require.NoError(t, err)

	resps, err := e.Responses(a.ID)
	require.NoError(t, err)
	assert.Len(t, resps, 2)

	got, err := e.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stats.Responses)
}

func TestSubmitFormFieldValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	a := newFormActivity(t, e)

	_, err := e.SubmitForm(ctx, a.ID, "u1", map[string]string{"rating": "5"})
	assert.True(t, IsValidation(err), "missing required text field")

	_, err = e.SubmitForm(ctx, a.ID, "u1", map[string]string{"name": "Alice", "rating": "five"})
	assert.True(t, IsValidation(err), "non-numeric number field")

	_, err = e.SubmitForm(ctx, a.ID, "u1", map[string]string{"name": "Alice", "rating": "5", "track": "devops"})
	assert.True(t, IsValidation(err), "value outside select options")
}

func TestSubmitFormDropsUndeclaredValues(t *testing.T) {
	e, _, _ := newTestEngine(t)
	a := newFormActivity(t, e)

	resp, err := e.SubmitForm(context.Background(), a.ID, "u1", map[string]string{
		"name": "Alice", "rating": "5", "bogus": "ignored",
	})
	require.NoError(t, err)
	_, ok := resp.Values["bogus"]
	assert.False(t, ok)
	assert.Equal(t, "Alice", resp.Values["name"])
}
