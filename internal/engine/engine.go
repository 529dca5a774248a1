// Package engine holds the authoritative in-memory state of every activity
// and applies all mutations under a per-activity lock. Successful mutations
// publish a domain event and are written back to the durable store off the
// hot path.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/murphylan/scansign-sub001/internal/bus"
	"github.com/murphylan/scansign-sub001/internal/code"
	"github.com/murphylan/scansign-sub001/internal/model"
)

// Domain event types published on the bus after successful mutations.
const (
	EventActivityCreated = "activity-created"
	EventActivityUpdated = "activity-updated"
	EventActivityEnded   = "activity-ended"
	EventActivityReset   = "activity-reset"
	EventCheckin         = "checkin"
	EventVote            = "vote"
	EventEntry           = "entry"
	EventFormResponse    = "form-response"
	EventWinnerDrawn     = "winner-drawn"
)

const persistTimeout = 5 * time.Second

// Store is the durable persistence collaborator. The engine treats it as
// authoritative at boot and writes through after each mutation; the in-memory
// mirror serves all reads and validations in between.
type Store interface {
	CreateActivity(ctx context.Context, a *model.Activity) error
	UpdateActivity(ctx context.Context, a *model.Activity) error
	DeleteActivity(ctx context.Context, id string) error
	DeleteActivityRecords(ctx context.Context, activityID string) error

	UpsertCheckinRecord(ctx context.Context, r *model.CheckinRecord) error
	UpsertVoteRecord(ctx context.Context, r *model.VoteRecord) error
	InsertLotteryParticipant(ctx context.Context, p *model.LotteryParticipant) error
	InsertLotteryWinner(ctx context.Context, w *model.LotteryWinner) error
	InsertFormResponse(ctx context.Context, r *model.FormResponse) error

	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// Snapshot is everything the engine mirrors in memory, keyed by activity id.
type Snapshot struct {
	Activities []*model.Activity
	Checkins   map[string][]*model.CheckinRecord
	Votes      map[string][]*model.VoteRecord
	Entrants   map[string][]*model.LotteryParticipant
	Winners    map[string][]*model.LotteryWinner
	Responses  map[string][]*model.FormResponse
}

// activityState is the single owner of one activity's mutable state. All
// mutations take its mutex, so submissions to the same activity are
// linearized while different activities proceed independently.
type activityState struct {
	mu sync.Mutex

	activity *model.Activity

	checkins  map[string]*model.CheckinRecord // phone -> record
	votes     map[string]*model.VoteRecord    // identity -> record
	entrants  []*model.LotteryParticipant
	entrantBy map[string]*model.LotteryParticipant // identity -> participant
	winners   []*model.LotteryWinner
	wonBy     map[string]bool // participant id -> has won
	responses []*model.FormResponse
}

func newActivityState(a *model.Activity) *activityState {
	return &activityState{
		activity:  a,
		checkins:  make(map[string]*model.CheckinRecord),
		votes:     make(map[string]*model.VoteRecord),
		entrantBy: make(map[string]*model.LotteryParticipant),
		wonBy:     make(map[string]bool),
	}
}

type Engine struct {
	mu     sync.RWMutex
	byID   map[string]*activityState
	byCode map[string]string // code -> activity id

	store Store
	bus   *bus.Bus
	log   *zerolog.Logger
}

func New(store Store, eventBus *bus.Bus, log *zerolog.Logger) *Engine {
	return &Engine{
		byID:   make(map[string]*activityState),
		byCode: make(map[string]string),
		store:  store,
		bus:    eventBus,
		log:    log,
	}
}

// Load hydrates the in-memory mirror from the durable store. Called once at
// startup before the HTTP surface is exposed.
func (e *Engine) Load(ctx context.Context) error {
	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range snap.Activities {
		st := newActivityState(a)
		for _, r := range snap.Checkins[a.ID] {
			st.checkins[r.Phone] = r
		}
		for _, r := range snap.Votes[a.ID] {
			st.votes[r.Identity] = r
		}
		for _, p := range snap.Entrants[a.ID] {
			st.entrants = append(st.entrants, p)
			st.entrantBy[p.Identity] = p
		}
		for _, w := range snap.Winners[a.ID] {
			st.winners = append(st.winners, w)
			st.wonBy[w.ParticipantID] = true
		}
		st.responses = snap.Responses[a.ID]
		e.byID[a.ID] = st
		e.byCode[a.Code] = a.ID
	}
	e.log.Info().Int("activities", len(snap.Activities)).Msg("engine state loaded")
	return nil
}

// CreateRequest carries the validated input for a new activity.
type CreateRequest struct {
	Kind   model.ActivityKind
	Title  string
	Status model.ActivityStatus
	Config model.Config
}

// Create validates the kind-specific minimums, assigns a unique short code
// and registers the activity.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*model.Activity, error) {
	switch req.Kind {
	case model.KindCheckin, model.KindVote, model.KindLottery, model.KindForm:
	default:
		return nil, validationErr("kind", "unknown activity kind")
	}
	if req.Title == "" {
		return nil, validationErr("title", "title is required")
	}
	status := req.Status
	switch status {
	case "":
		status = model.StatusActive
	case model.StatusDraft, model.StatusActive:
	default:
		return nil, validationErr("status", "initial status must be draft or active")
	}

	cfg := req.Config
	if err := normalizeConfig(req.Kind, &cfg); err != nil {
		return nil, err
	}

	now := time.Now()
	a := &model.Activity{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Title:     req.Title,
		Status:    status,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.mu.Lock()
	a.Code = code.GenerateUniqueCode(func(c string) bool {
		_, taken := e.byCode[c]
		return taken
	})
	e.byID[a.ID] = newActivityState(a)
	e.byCode[a.Code] = a.ID
	e.mu.Unlock()

	if err := e.store.CreateActivity(ctx, a); err != nil {
		e.mu.Lock()
		delete(e.byID, a.ID)
		delete(e.byCode, a.Code)
		e.mu.Unlock()
		return nil, err
	}

	e.bus.Publish(a.ID, EventActivityCreated, a.Clone())
	e.log.Info().Str("activity_id", a.ID).Str("code", a.Code).Str("kind", string(a.Kind)).Msg("activity created")
	return a.Clone(), nil
}

func normalizeConfig(kind model.ActivityKind, cfg *model.Config) error {
	switch kind {
	case model.KindCheckin:
		if cfg.RequireDepartment && len(cfg.Departments) == 0 {
			return validationErr("departments", "department selection required but no departments configured")
		}
	case model.KindVote:
		if len(cfg.Options) < 2 {
			return validationErr("options", "a vote needs at least 2 options")
		}
		for i := range cfg.Options {
			if cfg.Options[i].ID == "" {
				cfg.Options[i].ID = shortID()
			}
			if cfg.Options[i].Label == "" {
				return validationErr("options", "option label is required")
			}
			cfg.Options[i].Count = 0
		}
	case model.KindLottery:
		if len(cfg.Prizes) == 0 {
			return validationErr("prizes", "a lottery needs at least 1 prize")
		}
		for i := range cfg.Prizes {
			p := &cfg.Prizes[i]
			if p.ID == "" {
				p.ID = shortID()
			}
			if p.Name == "" {
				return validationErr("prizes", "prize name is required")
			}
			if p.TotalCount <= 0 {
				return validationErr("prizes", "prize stock must be positive")
			}
			p.RemainingCount = p.TotalCount
			if p.Weight <= 0 {
				p.Weight = 1
			}
		}
	case model.KindForm:
		if len(cfg.Fields) == 0 {
			return validationErr("fields", "a form needs at least 1 field")
		}
		for i := range cfg.Fields {
			f := &cfg.Fields[i]
			if f.ID == "" {
				f.ID = shortID()
			}
			if f.Label == "" {
				return validationErr("fields", "field label is required")
			}
			switch f.Type {
			case "":
				f.Type = "text"
			case "text", "number":
			case "select":
				if len(f.Options) == 0 {
					return validationErr("fields", "select field needs options")
				}
			default:
				return validationErr("fields", "unknown field type "+f.Type)
			}
		}
	}
	return nil
}

// GetByID returns a copy of the activity.
func (e *Engine) GetByID(id string) (*model.Activity, error) {
	st, err := e.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.activity.Clone(), nil
}

// GetByCode resolves the short code and returns the same logical record as
// GetByID.
func (e *Engine) GetByCode(c string) (*model.Activity, error) {
	if !code.IsValidCode(c) {
		return nil, ErrActivityNotFound
	}
	e.mu.RLock()
	id, ok := e.byCode[c]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrActivityNotFound
	}
	return e.GetByID(id)
}

// List returns all activities, newest first.
func (e *Engine) List() []*model.Activity {
	e.mu.RLock()
	states := make([]*activityState, 0, len(e.byID))
	for _, st := range e.byID {
		states = append(states, st)
	}
	e.mu.RUnlock()

	out := make([]*model.Activity, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		out = append(out, st.activity.Clone())
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// UpdateRequest is a partial patch; nil fields are left untouched. The short
// code is immutable and cannot be patched.
type UpdateRequest struct {
	Title  *string
	Status *model.ActivityStatus
	Config *model.Config
}

func (e *Engine) Update(ctx context.Context, id string, patch UpdateRequest) (*model.Activity, error) {
	st, err := e.state(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	a := st.activity
	ended := false
	if patch.Status != nil {
		switch *patch.Status {
		case model.StatusDraft, model.StatusActive, model.StatusEnded:
		default:
			st.mu.Unlock()
			return nil, validationErr("status", "unknown status")
		}
		if a.Status == model.StatusEnded && *patch.Status != model.StatusEnded {
			st.mu.Unlock()
			return nil, conflictErr("an ended activity cannot be reopened")
		}
		ended = *patch.Status == model.StatusEnded && a.Status != model.StatusEnded
		a.Status = *patch.Status
	}
	if patch.Title != nil {
		if *patch.Title == "" {
			st.mu.Unlock()
			return nil, validationErr("title", "title is required")
		}
		a.Title = *patch.Title
	}
	if patch.Config != nil {
		cfg := *patch.Config
		if err := normalizeConfig(a.Kind, &cfg); err != nil {
			st.mu.Unlock()
			return nil, err
		}
		a.Config = cfg
	}
	a.UpdatedAt = time.Now()
	out := a.Clone()
	st.mu.Unlock()

	e.persistActivity(out)
	e.bus.Publish(id, EventActivityUpdated, out)
	if ended {
		e.bus.Publish(id, EventActivityEnded, map[string]string{"activity_id": id})
	}
	return out, nil
}

// End flips an activity to ended, reporting whether anything changed. Used by
// the delayed-message worker for timed activities.
func (e *Engine) End(ctx context.Context, id string) (bool, error) {
	st, err := e.state(id)
	if err != nil {
		return false, err
	}
	st.mu.Lock()
	if st.activity.Status == model.StatusEnded {
		st.mu.Unlock()
		return false, nil
	}
	st.activity.Status = model.StatusEnded
	st.activity.UpdatedAt = time.Now()
	out := st.activity.Clone()
	st.mu.Unlock()

	e.persistActivity(out)
	e.bus.Publish(id, EventActivityEnded, map[string]string{"activity_id": id})
	e.log.Info().Str("activity_id", id).Msg("activity ended")
	return true, nil
}

// Delete removes the activity and everything recorded under it.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	e.mu.Lock()
	st, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return false, nil
	}
	delete(e.byID, id)
	delete(e.byCode, st.activity.Code)
	e.mu.Unlock()

	if err := e.store.DeleteActivity(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// Reset clears all participant records and counters while keeping the
// configuration, so an activity can be rerun without recreating it.
func (e *Engine) Reset(ctx context.Context, id string) (bool, error) {
	st, err := e.state(id)
	if err != nil {
		return false, err
	}

	st.mu.Lock()
	st.checkins = make(map[string]*model.CheckinRecord)
	st.votes = make(map[string]*model.VoteRecord)
	st.entrants = nil
	st.entrantBy = make(map[string]*model.LotteryParticipant)
	st.winners = nil
	st.wonBy = make(map[string]bool)
	st.responses = nil

	a := st.activity
	a.Stats = model.Stats{}
	for i := range a.Config.Options {
		a.Config.Options[i].Count = 0
	}
	for i := range a.Config.Prizes {
		a.Config.Prizes[i].RemainingCount = a.Config.Prizes[i].TotalCount
	}
	a.UpdatedAt = time.Now()
	out := a.Clone()
	st.mu.Unlock()

	if err := e.store.DeleteActivityRecords(ctx, id); err != nil {
		return false, err
	}
	e.persistActivity(out)
	e.bus.Publish(id, EventActivityReset, map[string]string{"activity_id": id})
	e.log.Info().Str("activity_id", id).Msg("activity reset")
	return true, nil
}

// state resolves the live activityState for id.
func (e *Engine) state(id string) (*activityState, error) {
	e.mu.RLock()
	st, ok := e.byID[id]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrActivityNotFound
	}
	return st, nil
}

// requireActive rejects submissions to draft or ended activities.
// Assumes st.mu is held.
func requireActive(st *activityState) error {
	if st.activity.Status != model.StatusActive {
		return conflictErr("activity is not active")
	}
	return nil
}

// persistActivity writes the activity back asynchronously; the in-memory
// state is already authoritative, so the hot path never waits on the store.
func (e *Engine) persistActivity(a *model.Activity) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := e.store.UpdateActivity(ctx, a); err != nil {
			e.log.Error().Err(err).Str("activity_id", a.ID).Msg("failed to persist activity")
		}
	}()
}

func (e *Engine) persist(activityID, what string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.log.Error().Err(err).Str("activity_id", activityID).Msgf("failed to persist %s", what)
		}
	}()
}

func shortID() string {
	return uuid.NewString()[:8]
}

func sortByCreated[T any](s []T, at func(T) time.Time) {
	sort.Slice(s, func(i, j int) bool {
		return at(s[i]).Before(at(s[j]))
	})
}
