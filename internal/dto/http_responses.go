package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"github.com/murphylan/scansign-sub001/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	ActivityNotFound = "ACTIVITY_NOT_FOUND"
	SessionNotFound  = "SESSION_NOT_FOUND"
	StateConflict    = "STATE_CONFLICT"
)

type CreateActivityRequest struct {
	Kind            string       `json:"kind" validate:"required,oneof=checkin vote lottery form"`
	Title           string       `json:"title" validate:"required,max=255"`
	Status          string       `json:"status" validate:"omitempty,oneof=draft active"`
	Config          model.Config `json:"config"`
	DurationMinutes int          `json:"duration_minutes" validate:"gte=0"`
}

type UpdateActivityRequest struct {
	Title  *string       `json:"title,omitempty" validate:"omitempty,max=255"`
	Status *string       `json:"status,omitempty" validate:"omitempty,oneof=draft active ended"`
	Config *model.Config `json:"config,omitempty"`
}

type CheckinRequest struct {
	Phone      string `json:"phone" validate:"required,cnphone"`
	Name       string `json:"name" validate:"max=255"`
	Department string `json:"department" validate:"max=255"`
}

type VoteRequest struct {
	Identity string `json:"identity" validate:"required,max=255"`
	OptionID string `json:"option_id" validate:"required"`
}

type EntryRequest struct {
	Identity string `json:"identity" validate:"required,max=255"`
	Name     string `json:"name" validate:"max=255"`
}

type FormSubmitRequest struct {
	Identity string            `json:"identity" validate:"required,max=255"`
	Values   map[string]string `json:"values" validate:"required"`
}

type ConfirmLoginRequest struct {
	UserID   string `json:"user_id" validate:"required,max=255"`
	Nickname string `json:"nickname" validate:"max=255"`
}

const (
	QueueKindActivityEnd  = "activity_end"
	QueueKindSessionSweep = "session_sweep"
)

// ActivityEndMessage is the delayed queue message that ends a timed activity.
type ActivityEndMessage struct {
	ActivityID string    `json:"activity_id"`
	ExpireAt   time.Time `json:"expire_at"`
}

// SessionSweepMessage asks the worker to run a login-session cleanup pass.
type SessionSweepMessage struct {
	Token    string    `json:"token"`
	ExpireAt time.Time `json:"expire_at"`
}

// QueueMessage is the envelope for delayed messages so one queue can carry
// both kinds.
type QueueMessage struct {
	Kind  string               `json:"kind"` // activity_end | session_sweep
	End   *ActivityEndMessage  `json:"activity_end,omitempty"`
	Sweep *SessionSweepMessage `json:"session_sweep,omitempty"`
}

// ActivityDetailResponse bundles an activity with its records for the
// admin view. Only the slices matching the activity kind are populated.
type ActivityDetailResponse struct {
	Activity  *model.Activity             `json:"activity"`
	Checkins  []*model.CheckinRecord      `json:"checkins,omitempty"`
	Votes     []*model.VoteRecord         `json:"votes,omitempty"`
	Entrants  []*model.LotteryParticipant `json:"entrants,omitempty"`
	Winners   []*model.LotteryWinner      `json:"winners,omitempty"`
	Responses []*model.FormResponse       `json:"responses,omitempty"`
}

type CheckinResponse struct {
	Record   *model.CheckinRecord `json:"record"`
	IsUpdate bool                 `json:"is_update"`
}

type VoteResponse struct {
	Record   *model.VoteRecord  `json:"record"`
	Options  []model.VoteOption `json:"options"`
	IsRevote bool               `json:"is_revote"`
}

type EntryResponse struct {
	Participant *model.LotteryParticipant `json:"participant"`
	IsNew       bool                      `json:"is_new"`
}

type DrawResponse struct {
	Winner *model.LotteryParticipant `json:"winner"`
	Prize  model.Prize               `json:"prize"`
	WonAt  time.Time                 `json:"won_at"`
}

type JoinLinkResponse struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

type LoginQRResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func ActivityNotFoundError(c *ginext.Context) {
	c.JSON(404, Response{
		Status: "error",
		Error: &Error{
			Code: ActivityNotFound,
			Desc: "Activity not found",
		},
	})
}

func SessionNotFoundError(c *ginext.Context) {
	c.JSON(404, Response{
		Status: "error",
		Error: &Error{
			Code: SessionNotFound,
			Desc: "Login session not found",
		},
	})
}

func StateConflictError(c *ginext.Context, desc string) {
	c.JSON(409, Response{
		Status: "error",
		Error: &Error{
			Code: StateConflict,
			Desc: desc,
		},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
