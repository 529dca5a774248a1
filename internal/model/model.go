package model

import "time"

// ActivityKind selects which state machine an activity runs.
type ActivityKind string

const (
	KindCheckin ActivityKind = "checkin"
	KindVote    ActivityKind = "vote"
	KindLottery ActivityKind = "lottery"
	KindForm    ActivityKind = "form"
)

// ActivityStatus lifecycle: draft -> active -> ended.
type ActivityStatus string

const (
	StatusDraft  ActivityStatus = "draft"
	StatusActive ActivityStatus = "active"
	StatusEnded  ActivityStatus = "ended"
)

type Activity struct {
	ID        string         `db:"id" json:"id"`
	Code      string         `db:"code" json:"code"`
	Kind      ActivityKind   `db:"kind" json:"kind"`
	Title     string         `db:"title" json:"title"`
	Status    ActivityStatus `db:"status" json:"status"`
	Config    Config         `db:"config" json:"config"`
	Stats     Stats          `db:"stats" json:"stats"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Config holds the kind-specific settings. Only the fields relevant to the
// activity's kind are populated.
type Config struct {
	// checkin
	RequireName       bool     `json:"require_name,omitempty"`
	RequireDepartment bool     `json:"require_department,omitempty"`
	Departments       []string `json:"departments,omitempty"`

	// vote
	Options     []VoteOption `json:"options,omitempty"`
	AllowRevote bool         `json:"allow_revote,omitempty"`

	// lottery
	Prizes         []Prize `json:"prizes,omitempty"`
	AllowRepeatWin bool    `json:"allow_repeat_win,omitempty"`

	// form
	Fields []FormField `json:"fields,omitempty"`
}

type VoteOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Prize struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TotalCount     int    `json:"total_count"`
	RemainingCount int    `json:"remaining_count"`
	Weight         int    `json:"weight"`
}

type FormField struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // text | number | select
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// Stats are the aggregate counters shown on the big screen.
type Stats struct {
	Participants int `json:"participants"`
	Checkins     int `json:"checkins"`
	Votes        int `json:"votes"`
	Responses    int `json:"responses"`
	Winners      int `json:"winners"`
}

type CheckinRecord struct {
	ID         string    `db:"id" json:"id"`
	ActivityID string    `db:"activity_id" json:"activity_id"`
	Phone      string    `db:"phone" json:"phone"`
	Name       string    `db:"name" json:"name"`
	Department string    `db:"department" json:"department,omitempty"`
	VerifyCode string    `db:"verify_code" json:"verify_code"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

type VoteRecord struct {
	ID         string    `db:"id" json:"id"`
	ActivityID string    `db:"activity_id" json:"activity_id"`
	Identity   string    `db:"identity" json:"identity"`
	OptionID   string    `db:"option_id" json:"option_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

type LotteryParticipant struct {
	ID         string    `db:"id" json:"id"`
	ActivityID string    `db:"activity_id" json:"activity_id"`
	Identity   string    `db:"identity" json:"identity"`
	Name       string    `db:"name" json:"name"`
	Weight     int       `db:"weight" json:"weight"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type LotteryWinner struct {
	ID            string    `db:"id" json:"id"`
	ActivityID    string    `db:"activity_id" json:"activity_id"`
	ParticipantID string    `db:"participant_id" json:"participant_id"`
	PrizeID       string    `db:"prize_id" json:"prize_id"`
	WonAt         time.Time `db:"won_at" json:"won_at"`
}

type FormResponse struct {
	ID         string            `db:"id" json:"id"`
	ActivityID string            `db:"activity_id" json:"activity_id"`
	Identity   string            `db:"identity" json:"identity"`
	Values     map[string]string `db:"values" json:"values"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}
