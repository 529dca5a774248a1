package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/murphylan/scansign-sub001/internal/model"
)

// VoteResult is the updated record plus the tallies after the cast.
type VoteResult struct {
	Record   *model.VoteRecord
	Options  []model.VoteOption
	IsRevote bool
}

// SubmitVote casts identity's vote for optionID. One vote per identity; if
// the activity allows revoting, the prior option's tally is moved to the new
// one under the activity lock.
func (e *Engine) SubmitVote(ctx context.Context, activityID, identity, optionID string) (*VoteResult, error) {
	if identity == "" {
		return nil, validationErr("identity", "identity is required")
	}

	st, err := e.state(activityID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	a := st.activity
	if a.Kind != model.KindVote {
		st.mu.Unlock()
		return nil, conflictErr("activity does not accept votes")
	}
	if err := requireActive(st); err != nil {
		st.mu.Unlock()
		return nil, err
	}

	chosen := a.Config.OptionByID(optionID)
	if chosen == nil {
		st.mu.Unlock()
		return nil, validationErr("option_id", "unknown option")
	}

	now := time.Now()
	rec, voted := st.votes[identity]
	if voted {
		if !a.Config.AllowRevote {
			st.mu.Unlock()
			return nil, conflictErr("identity has already voted")
		}
		if prev := a.Config.OptionByID(rec.OptionID); prev != nil {
			prev.Count--
		}
		rec.OptionID = optionID
		rec.UpdatedAt = now
	} else {
		rec = &model.VoteRecord{
			ID:         uuid.NewString(),
			ActivityID: activityID,
			Identity:   identity,
			OptionID:   optionID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		st.votes[identity] = rec
		a.Stats.Votes++
		a.Stats.Participants++
	}
	chosen.Count++
	a.UpdatedAt = now

	recCopy := *rec
	activityCopy := a.Clone()
	st.mu.Unlock()

	e.persist(activityID, "vote record", func(ctx context.Context) error {
		if err := e.store.UpsertVoteRecord(ctx, &recCopy); err != nil {
			return err
		}
		return e.store.UpdateActivity(ctx, activityCopy)
	})

	e.bus.Publish(activityID, EventVote, map[string]any{
		"option_id": optionID,
		"is_revote": voted,
		"options":   activityCopy.Config.Options,
	})

	return &VoteResult{
		Record:   &recCopy,
		Options:  activityCopy.Config.Options,
		IsRevote: voted,
	}, nil
}

// Votes lists vote records, oldest first.
func (e *Engine) Votes(activityID string) ([]*model.VoteRecord, error) {
	st, err := e.state(activityID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*model.VoteRecord, 0, len(st.votes))
	for _, rec := range st.votes {
		cp := *rec
		out = append(out, &cp)
	}
	sortByCreated(out, func(r *model.VoteRecord) time.Time { return r.CreatedAt })
	return out, nil
}
