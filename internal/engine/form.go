package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/murphylan/scansign-sub001/internal/model"
)

// SubmitForm validates the submitted values against the declared fields and
// appends a response row.
func (e *Engine) SubmitForm(ctx context.Context, activityID, identity string, values map[string]string) (*model.FormResponse, error) {
	if identity == "" {
		return nil, validationErr("identity", "identity is required")
	}

	st, err := e.state(activityID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	a := st.activity
	if a.Kind != model.KindForm {
		st.mu.Unlock()
		return nil, conflictErr("activity does not accept form responses")
	}
	if err := requireActive(st); err != nil {
		st.mu.Unlock()
		return nil, err
	}

	clean := make(map[string]string, len(a.Config.Fields))
	for _, f := range a.Config.Fields {
		v, ok := values[f.ID]
		if !ok || v == "" {
			if f.Required {
				st.mu.Unlock()
				return nil, validationErr(f.Label, "field is required")
			}
			continue
		}
		switch f.Type {
		case "number":
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				st.mu.Unlock()
				return nil, validationErr(f.Label, "must be a number")
			}
		case "select":
			known := false
			for _, opt := range f.Options {
				if opt == v {
					known = true
					break
				}
			}
			if !known {
				st.mu.Unlock()
				return nil, validationErr(f.Label, "value is not one of the options")
			}
		}
		clean[f.ID] = v
	}

	resp := &model.FormResponse{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		Identity:   identity,
		Values:     clean,
		CreatedAt:  time.Now(),
	}
	st.responses = append(st.responses, resp)
	a.Stats.Responses++
	a.UpdatedAt = resp.CreatedAt

	respCopy := *resp
	activityCopy := a.Clone()
	st.mu.Unlock()

	e.persist(activityID, "form response", func(ctx context.Context) error {
		if err := e.store.InsertFormResponse(ctx, &respCopy); err != nil {
			return err
		}
		return e.store.UpdateActivity(ctx, activityCopy)
	})

	e.bus.Publish(activityID, EventFormResponse, map[string]any{
		"responses": activityCopy.Stats.Responses,
	})

	return &respCopy, nil
}

// Responses lists form responses in submission order.
func (e *Engine) Responses(activityID string) ([]*model.FormResponse, error) {
	st, err := e.state(activityID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*model.FormResponse, 0, len(st.responses))
	for _, r := range st.responses {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}
