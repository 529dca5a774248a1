package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/murphylan/scansign-sub001/internal/bus"
	"github.com/murphylan/scansign-sub001/internal/dto"
	"github.com/murphylan/scansign-sub001/internal/engine"
	"github.com/murphylan/scansign-sub001/internal/model"
	"github.com/murphylan/scansign-sub001/internal/qrlink"
	"github.com/murphylan/scansign-sub001/internal/rabbit"
	"github.com/murphylan/scansign-sub001/internal/session"
	"github.com/murphylan/scansign-sub001/pkg/validator"
)

const heartbeatInterval = 30 * time.Second

type Service interface {
	CreateActivity(ctx *ginext.Context)
	ListActivities(ctx *ginext.Context)
	GetActivity(ctx *ginext.Context)
	GetActivityByCode(ctx *ginext.Context)
	UpdateActivity(ctx *ginext.Context)
	DeleteActivity(ctx *ginext.Context)
	ResetActivity(ctx *ginext.Context)

	Checkin(ctx *ginext.Context)
	Vote(ctx *ginext.Context)
	Enter(ctx *ginext.Context)
	SubmitForm(ctx *ginext.Context)
	Draw(ctx *ginext.Context)

	Stream(ctx *ginext.Context)
	JoinLink(ctx *ginext.Context)

	CreateLoginQR(ctx *ginext.Context)
	GetLoginSession(ctx *ginext.Context)
	ScanLogin(ctx *ginext.Context)
	ConfirmLogin(ctx *ginext.Context)
}

type service struct {
	engine   *engine.Engine
	sessions *session.Store
	bus      *bus.Bus
	links    *qrlink.Builder
	log      *zerolog.Logger
	rbt      rabbit.Broker
}

func NewService(
	eng *engine.Engine,
	sessions *session.Store,
	eventBus *bus.Bus,
	links *qrlink.Builder,
	logger *zerolog.Logger,
	rbt rabbit.Broker,
) Service {
	return &service{
		engine:   eng,
		sessions: sessions,
		bus:      eventBus,
		links:    links,
		log:      logger,
		rbt:      rbt,
	}
}

func (s *service) CreateActivity(ctx *ginext.Context) {
	var req dto.CreateActivityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create activity request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		s.log.Error().Msgf("validation failed: %v", verr)
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	a, err := s.engine.Create(ctx, engine.CreateRequest{
		Kind:   model.ActivityKind(req.Kind),
		Title:  req.Title,
		Status: model.ActivityStatus(req.Status),
		Config: req.Config,
	})
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}

	s.log.Info().
		Str("activity_id", a.ID).
		Str("code", a.Code).
		Str("kind", string(a.Kind)).
		Msg("activity created successfully")

	if req.DurationMinutes > 0 {
		s.scheduleActivityEnd(a.ID, req.DurationMinutes)
	}

	dto.SuccessCreatedResponse(ctx, a)
}

// scheduleActivityEnd publishes a delayed message that ends the activity
// once its configured duration elapses. A publish failure is logged but
// does not fail the create: the organizer can still end it by hand.
func (s *service) scheduleActivityEnd(activityID string, minutes int) {
	msg := dto.QueueMessage{
		Kind: dto.QueueKindActivityEnd,
		End: &dto.ActivityEndMessage{
			ActivityID: activityID,
			ExpireAt:   time.Now().Add(time.Duration(minutes) * time.Minute),
		},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal activity end message")
		return
	}
	if err := s.rbt.Publish(payload, minutes*60); err != nil {
		s.log.Error().Err(err).Msg("failed to publish activity end message to RabbitMQ")
	}
}

func (s *service) ListActivities(ctx *ginext.Context) {
	dto.SuccessResponse(ctx, s.engine.List())
}

func (s *service) GetActivity(ctx *ginext.Context) {
	a, err := s.engine.GetByID(ctx.Param("id"))
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}
	s.respondActivity(ctx, a)
}

func (s *service) GetActivityByCode(ctx *ginext.Context) {
	a, err := s.engine.GetByCode(ctx.Param("code"))
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}
	s.respondActivity(ctx, a)
}

// respondActivity returns the bare activity, or the activity with its
// records when the admin view is requested.
func (s *service) respondActivity(ctx *ginext.Context, a *model.Activity) {
	if ctx.Query("admin") != "true" {
		dto.SuccessResponse(ctx, a)
		return
	}

	resp := dto.ActivityDetailResponse{Activity: a}
	switch a.Kind {
	case model.KindCheckin:
		resp.Checkins, _ = s.engine.Checkins(a.ID)
	case model.KindVote:
		resp.Votes, _ = s.engine.Votes(a.ID)
	case model.KindLottery:
		resp.Entrants, _ = s.engine.Entrants(a.ID)
		resp.Winners, _ = s.engine.Winners(a.ID)
	case model.KindForm:
		resp.Responses, _ = s.engine.Responses(a.ID)
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) UpdateActivity(ctx *ginext.Context) {
	var req dto.UpdateActivityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	patch := engine.UpdateRequest{
		Title:  req.Title,
		Config: req.Config,
	}
	if req.Status != nil {
		status := model.ActivityStatus(*req.Status)
		patch.Status = &status
	}

	a, err := s.engine.Update(ctx, ctx.Param("id"), patch)
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}

	s.log.Info().Str("activity_id", a.ID).Msg("activity updated successfully")
	dto.SuccessResponse(ctx, a)
}

func (s *service) DeleteActivity(ctx *ginext.Context) {
	id := ctx.Param("id")
	deleted, err := s.engine.Delete(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("activity_id", id).Msg("failed to delete activity")
		dto.InternalServerError(ctx)
		return
	}
	if !deleted {
		dto.ActivityNotFoundError(ctx)
		return
	}

	s.log.Info().Str("activity_id", id).Msg("activity deleted successfully")
	dto.SuccessResponse(ctx, gin.H{"deleted": true})
}

func (s *service) ResetActivity(ctx *ginext.Context) {
	id := ctx.Param("id")
	reset, err := s.engine.Reset(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("activity_id", id).Msg("failed to reset activity")
		dto.InternalServerError(ctx)
		return
	}
	if !reset {
		dto.ActivityNotFoundError(ctx)
		return
	}

	a, err := s.engine.GetByID(id)
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}

	s.log.Info().Str("activity_id", id).Msg("activity reset successfully")
	dto.SuccessResponse(ctx, a)
}

func (s *service) Checkin(ctx *ginext.Context) {
	var req dto.CheckinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	res, err := s.engine.SubmitCheckin(ctx, ctx.Param("id"), engine.CheckinRequest{
		Phone:      req.Phone,
		Name:       req.Name,
		Department: req.Department,
	})
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}

	dto.SuccessCreatedResponse(ctx, dto.CheckinResponse{
		Record:   res.Record,
		IsUpdate: res.IsUpdate,
	})
}

func (s *service) Vote(ctx *ginext.Context) {
	var req dto.VoteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	res, err := s.engine.SubmitVote(ctx, ctx.Param("id"), req.Identity, req.OptionID)
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}

	dto.SuccessCreatedResponse(ctx, dto.VoteResponse{
		Record:   res.Record,
		Options:  res.Options,
		IsRevote: res.IsRevote,
	})
}

func (s *service) Enter(ctx *ginext.Context) {
	var req dto.EntryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	res, err := s.engine.SubmitEntry(ctx, ctx.Param("id"), req.Identity, req.Name)
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}

	dto.SuccessCreatedResponse(ctx, dto.EntryResponse{
		Participant: res.Participant,
		IsNew:       res.IsNew,
	})
}

func (s *service) SubmitForm(ctx *ginext.Context) {
	var req dto.FormSubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	resp, err := s.engine.SubmitForm(ctx, ctx.Param("id"), req.Identity, req.Values)
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}

	dto.SuccessCreatedResponse(ctx, resp)
}

func (s *service) Draw(ctx *ginext.Context) {
	res, err := s.engine.Draw(ctx, ctx.Param("id"))
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}

	s.log.Info().
		Str("activity_id", ctx.Param("id")).
		Str("participant_id", res.Winner.ID).
		Str("prize_id", res.Prize.ID).
		Msg("lottery winner drawn")

	dto.SuccessResponse(ctx, dto.DrawResponse{
		Winner: res.Winner,
		Prize:  res.Prize,
		WonAt:  res.Record.WonAt,
	})
}

// Stream replays live activity events to the caller as SSE. Events are
// delivered in publish order; a heartbeat keeps idle connections open
// through proxies.
func (s *service) Stream(ctx *ginext.Context) {
	a, err := s.engine.GetByID(ctx.Param("id"))
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}

	sub := s.bus.Subscribe(a.ID)
	defer sub.Unsubscribe()

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	s.log.Debug().Str("activity_id", a.ID).Msg("SSE subscriber connected")

	ctx.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			ctx.SSEvent(ev.Type, ev)
			return true
		case <-heartbeat.C:
			ctx.SSEvent("heartbeat", time.Now().Unix())
			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})

	s.log.Debug().Str("activity_id", a.ID).Msg("SSE subscriber disconnected")
}

func (s *service) JoinLink(ctx *ginext.Context) {
	a, err := s.engine.GetByID(ctx.Param("id"))
	if err != nil {
		s.respondEngineError(ctx, err)
		return
	}

	dto.SuccessResponse(ctx, dto.JoinLinkResponse{
		Code: a.Code,
		URL:  s.links.JoinURL(ctx.Request, a.Code),
	})
}

func (s *service) CreateLoginQR(ctx *ginext.Context) {
	token := uuid.NewString()
	sess := s.sessions.Create(token)

	s.scheduleSessionSweep(token, sess.ExpiresAt)

	s.log.Info().Str("token", token).Msg("login session created")

	dto.SuccessCreatedResponse(ctx, dto.LoginQRResponse{
		Token:     token,
		URL:       s.links.LoginURL(ctx.Request, token),
		ExpiresAt: sess.ExpiresAt,
	})
}

// scheduleSessionSweep fires at twice the TTL so a session that was
// never polled still leaves the store.
func (s *service) scheduleSessionSweep(token string, expireAt time.Time) {
	msg := dto.QueueMessage{
		Kind: dto.QueueKindSessionSweep,
		Sweep: &dto.SessionSweepMessage{
			Token:    token,
			ExpireAt: expireAt,
		},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal session sweep message")
		return
	}
	delaySeconds := int(2 * s.sessions.TTL().Seconds())
	if err := s.rbt.Publish(payload, delaySeconds); err != nil {
		s.log.Error().Err(err).Msg("failed to publish session sweep message to RabbitMQ")
	}
}

func (s *service) GetLoginSession(ctx *ginext.Context) {
	sess, err := s.sessions.Get(ctx.Param("token"))
	if err != nil {
		dto.SessionNotFoundError(ctx)
		return
	}
	dto.SuccessResponse(ctx, sess)
}

func (s *service) ScanLogin(ctx *ginext.Context) {
	sess, err := s.sessions.UpdateStatus(ctx.Param("token"), session.StatusScanned, nil)
	if err != nil {
		s.respondSessionError(ctx, err)
		return
	}

	s.log.Info().Str("token", sess.Token).Msg("login session scanned")
	dto.SuccessResponse(ctx, sess)
}

func (s *service) ConfirmLogin(ctx *ginext.Context) {
	var req dto.ConfirmLoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	sess, err := s.sessions.UpdateStatus(ctx.Param("token"), session.StatusConfirmed, &session.UserInfo{
		UserID:   req.UserID,
		Nickname: req.Nickname,
	})
	if err != nil {
		s.respondSessionError(ctx, err)
		return
	}

	s.log.Info().
		Str("token", sess.Token).
		Str("user_id", req.UserID).
		Msg("login session confirmed")
	dto.SuccessResponse(ctx, sess)
}

func (s *service) respondEngineError(ctx *ginext.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrActivityNotFound):
		dto.ActivityNotFoundError(ctx)
	case engine.IsValidation(err):
		dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
	case engine.IsConflict(err):
		dto.StateConflictError(ctx, err.Error())
	default:
		s.log.Error().Err(err).Msg("activity operation failed")
		dto.InternalServerError(ctx)
	}
}

func (s *service) respondSessionError(ctx *ginext.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		dto.SessionNotFoundError(ctx)
	case errors.Is(err, session.ErrStateConflict):
		dto.StateConflictError(ctx, err.Error())
	default:
		s.log.Error().Err(err).Msg("login session operation failed")
		dto.InternalServerError(ctx)
	}
}
