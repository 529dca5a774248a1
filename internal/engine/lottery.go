package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/murphylan/scansign-sub001/internal/model"
)

// EntryResult reports a lottery registration. Repeat entries from the same
// identity return the existing participant.
type EntryResult struct {
	Participant *model.LotteryParticipant
	IsNew       bool
}

// SubmitEntry registers identity into the lottery's participant pool.
func (e *Engine) SubmitEntry(ctx context.Context, activityID, identity, name string) (*EntryResult, error) {
	if identity == "" {
		return nil, validationErr("identity", "identity is required")
	}

	st, err := e.state(activityID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	a := st.activity
	if a.Kind != model.KindLottery {
		st.mu.Unlock()
		return nil, conflictErr("activity does not accept lottery entries")
	}
	if err := requireActive(st); err != nil {
		st.mu.Unlock()
		return nil, err
	}

	if existing, ok := st.entrantBy[identity]; ok {
		cp := *existing
		st.mu.Unlock()
		return &EntryResult{Participant: &cp, IsNew: false}, nil
	}

	p := &model.LotteryParticipant{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		Identity:   identity,
		Name:       name,
		Weight:     1,
		CreatedAt:  time.Now(),
	}
	st.entrants = append(st.entrants, p)
	st.entrantBy[identity] = p
	a.Stats.Participants++
	a.UpdatedAt = p.CreatedAt

	pCopy := *p
	activityCopy := a.Clone()
	st.mu.Unlock()

	e.persist(activityID, "lottery entry", func(ctx context.Context) error {
		if err := e.store.InsertLotteryParticipant(ctx, &pCopy); err != nil {
			return err
		}
		return e.store.UpdateActivity(ctx, activityCopy)
	})

	e.bus.Publish(activityID, EventEntry, map[string]any{
		"name":         pCopy.Name,
		"participants": activityCopy.Stats.Participants,
	})

	return &EntryResult{Participant: &pCopy, IsNew: true}, nil
}

// DrawResult identifies the winner and prize of one draw. The display layer
// animates the reveal from these ids; the draw itself is instantaneous.
type DrawResult struct {
	Winner *model.LotteryParticipant
	Prize  model.Prize
	Record *model.LotteryWinner
}

// Draw selects a prize weighted by configured prize weights among those with
// remaining stock, then a winner among eligible participants (uniform, or
// weighted when per-participant weights are set). Stock decrement, winner
// record and eligibility removal happen atomically under the activity lock.
func (e *Engine) Draw(ctx context.Context, activityID string) (*DrawResult, error) {
	st, err := e.state(activityID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	a := st.activity
	if a.Kind != model.KindLottery {
		st.mu.Unlock()
		return nil, conflictErr("activity is not a lottery")
	}
	if err := requireActive(st); err != nil {
		st.mu.Unlock()
		return nil, err
	}

	eligible := st.eligibleEntrants()
	if len(eligible) == 0 {
		st.mu.Unlock()
		return nil, conflictErr("no eligible participants left")
	}
	prize := pickPrize(a.Config.Prizes)
	if prize == nil {
		st.mu.Unlock()
		return nil, conflictErr("all prizes are exhausted")
	}
	winner := pickParticipant(eligible)

	prize.RemainingCount--
	record := &model.LotteryWinner{
		ID:            uuid.NewString(),
		ActivityID:    activityID,
		ParticipantID: winner.ID,
		PrizeID:       prize.ID,
		WonAt:         time.Now(),
	}
	st.winners = append(st.winners, record)
	st.wonBy[winner.ID] = true
	a.Stats.Winners++
	a.UpdatedAt = record.WonAt

	winnerCopy := *winner
	prizeCopy := *prize
	recordCopy := *record
	activityCopy := a.Clone()
	st.mu.Unlock()

	e.persist(activityID, "lottery winner", func(ctx context.Context) error {
		if err := e.store.InsertLotteryWinner(ctx, &recordCopy); err != nil {
			return err
		}
		return e.store.UpdateActivity(ctx, activityCopy)
	})

	e.bus.Publish(activityID, EventWinnerDrawn, map[string]any{
		"participant_id": winnerCopy.ID,
		"winner_name":    winnerCopy.Name,
		"prize_id":       prizeCopy.ID,
		"prize_name":     prizeCopy.Name,
		"remaining":      prizeCopy.RemainingCount,
	})
	e.log.Info().
		Str("activity_id", activityID).
		Str("participant_id", winnerCopy.ID).
		Str("prize_id", prizeCopy.ID).
		Msg("winner drawn")

	return &DrawResult{Winner: &winnerCopy, Prize: prizeCopy, Record: &recordCopy}, nil
}

// eligibleEntrants filters the pool per the repeat-win setting.
// Assumes st.mu is held.
func (st *activityState) eligibleEntrants() []*model.LotteryParticipant {
	if st.activity.Config.AllowRepeatWin {
		return st.entrants
	}
	var out []*model.LotteryParticipant
	for _, p := range st.entrants {
		if !st.wonBy[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// pickPrize draws weighted-uniformly among prizes with remaining stock.
func pickPrize(prizes []model.Prize) *model.Prize {
	total := 0
	for i := range prizes {
		if prizes[i].RemainingCount > 0 {
			total += prizes[i].Weight
		}
	}
	if total == 0 {
		return nil
	}
	r := rand.Intn(total)
	for i := range prizes {
		if prizes[i].RemainingCount <= 0 {
			continue
		}
		r -= prizes[i].Weight
		if r < 0 {
			return &prizes[i]
		}
	}
	return nil
}

// pickParticipant draws among the eligible pool, weighted by per-participant
// weight (all weights 1 is a uniform draw).
func pickParticipant(pool []*model.LotteryParticipant) *model.LotteryParticipant {
	total := 0
	for _, p := range pool {
		w := p.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	r := rand.Intn(total)
	for _, p := range pool {
		w := p.Weight
		if w <= 0 {
			w = 1
		}
		r -= w
		if r < 0 {
			return p
		}
	}
	return pool[len(pool)-1]
}

// Entrants lists lottery participants in entry order.
func (e *Engine) Entrants(activityID string) ([]*model.LotteryParticipant, error) {
	st, err := e.state(activityID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*model.LotteryParticipant, 0, len(st.entrants))
	for _, p := range st.entrants {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// Winners lists winner records in draw order.
func (e *Engine) Winners(activityID string) ([]*model.LotteryWinner, error) {
	st, err := e.state(activityID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*model.LotteryWinner, 0, len(st.winners))
	for _, w := range st.winners {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}
