package engine

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/murphylan/scansign-sub001/internal/code"
	"github.com/murphylan/scansign-sub001/internal/model"
)

var phoneRegex = regexp.MustCompile(`^1[3-9]\d{9}$`)

type CheckinRequest struct {
	Phone      string
	Name       string
	Department string
}

// CheckinResult carries the record plus whether this was a first check-in.
// A repeat submission from the same phone updates the existing record in
// place and keeps its verify code.
type CheckinResult struct {
	Record   *model.CheckinRecord
	IsUpdate bool
}

func (e *Engine) SubmitCheckin(ctx context.Context, activityID string, req CheckinRequest) (*CheckinResult, error) {
	st, err := e.state(activityID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	a := st.activity
	if a.Kind != model.KindCheckin {
		st.mu.Unlock()
		return nil, conflictErr("activity does not accept check-ins")
	}
	if err := requireActive(st); err != nil {
		st.mu.Unlock()
		return nil, err
	}
	if !phoneRegex.MatchString(req.Phone) {
		st.mu.Unlock()
		return nil, validationErr("phone", "invalid phone number")
	}
	if a.Config.RequireName && req.Name == "" {
		st.mu.Unlock()
		return nil, validationErr("name", "name is required")
	}
	if a.Config.RequireDepartment {
		if req.Department == "" {
			st.mu.Unlock()
			return nil, validationErr("department", "department is required")
		}
		known := false
		for _, d := range a.Config.Departments {
			if d == req.Department {
				known = true
				break
			}
		}
		if !known {
			st.mu.Unlock()
			return nil, validationErr("department", "unknown department")
		}
	}

	now := time.Now()
	rec, exists := st.checkins[req.Phone]
	if exists {
		rec.Name = req.Name
		rec.Department = req.Department
		rec.UpdatedAt = now
	} else {
		rec = &model.CheckinRecord{
			ID:         uuid.NewString(),
			ActivityID: activityID,
			Phone:      req.Phone,
			Name:       req.Name,
			Department: req.Department,
			VerifyCode: code.GenerateVerifyCode(),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		st.checkins[req.Phone] = rec
		a.Stats.Checkins++
		a.Stats.Participants++
	}
	a.UpdatedAt = now
	recCopy := *rec
	activityCopy := a.Clone()
	st.mu.Unlock()

	e.persist(activityID, "checkin record", func(ctx context.Context) error {
		if err := e.store.UpsertCheckinRecord(ctx, &recCopy); err != nil {
			return err
		}
		return e.store.UpdateActivity(ctx, activityCopy)
	})

	e.bus.Publish(activityID, EventCheckin, map[string]any{
		"name":       recCopy.Name,
		"department": recCopy.Department,
		"is_update":  exists,
		"checkins":   activityCopy.Stats.Checkins,
	})

	return &CheckinResult{Record: &recCopy, IsUpdate: exists}, nil
}

// Checkins lists the current check-in records, oldest first.
func (e *Engine) Checkins(activityID string) ([]*model.CheckinRecord, error) {
	st, err := e.state(activityID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*model.CheckinRecord, 0, len(st.checkins))
	for _, rec := range st.checkins {
		cp := *rec
		out = append(out, &cp)
	}
	sortByCreated(out, func(r *model.CheckinRecord) time.Time { return r.CreatedAt })
	return out, nil
}
