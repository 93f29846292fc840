package scheduler

import (
	"context"
	"errors"
	"time"
)

type TaskState string

const (
	StateDraft         TaskState = "draft"
	StateScheduled     TaskState = "scheduled"
	StateAdmitting     TaskState = "admitting"
	StatePublishing    TaskState = "publishing"
	StatePublished     TaskState = "published"
	StateAwaitingRetry TaskState = "awaiting_retry"
	StateFailed        TaskState = "failed"
	StateCanceled      TaskState = "canceled"
)

// Terminal reports whether no further transitions are possible from the state.
func (s TaskState) Terminal() bool {
	return s == StatePublished || s == StateFailed || s == StateCanceled
}

// ErrorKind classifies publication failures. Kinds drive the state machine:
// rate_limited and transient re-arm the task, auth_expired re-arms on the
// refresh cadence, permanent and missed_window are terminal.
type ErrorKind string

const (
	KindRateLimited  ErrorKind = "rate_limited"
	KindTransient    ErrorKind = "transient"
	KindAuthExpired  ErrorKind = "auth_expired"
	KindPermanent    ErrorKind = "permanent"
	KindMissedWindow ErrorKind = "missed_window"
)

// ErrAlreadyPublishing is returned by CancelTask once the external call has
// been issued; the outcome must be awaited, not revoked.
var ErrAlreadyPublishing = errors.New("task is already publishing and can no longer be canceled")

// PublicationTask tracks one post's journey to publication. Exactly one
// non-terminal task exists per post at a time.
type PublicationTask struct {
	ID             string    `json:"id"`
	PostID         string    `json:"post_id"`
	AccountID      string    `json:"account_id"`
	TargetTime     time.Time `json:"target_time"`
	State          TaskState `json:"state"`
	AttemptCount   int       `json:"attempt_count"`
	LastAttemptAt  time.Time `json:"last_attempt_at,omitempty"`
	NextEligibleAt time.Time `json:"next_eligible_at,omitempty"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	// UserMessage is the non-technical explanation shown for terminal failures.
	UserMessage    string    `json:"user_message,omitempty"`
	ExternalPostID string    `json:"external_post_id,omitempty"`
	CampaignID     string    `json:"campaign_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Retrying reports whether the task is in a transient, will-try-again state.
// Dashboards surface this as "retrying" rather than "failed".
func (t PublicationTask) Retrying() bool {
	return t.State == StateAwaitingRetry
}

type SchedulePostRequest struct {
	PostID     string    `json:"post_id"`
	TargetTime time.Time `json:"target_time"`
	CampaignID string    `json:"campaign_id,omitempty"`
}

type ISchedulerUsecase interface {
	SchedulePost(ctx context.Context, req SchedulePostRequest) (PublicationTask, error)
	// CancelTask cancels a task in any state prior to publishing. Returns
	// ErrAlreadyPublishing once the external call has been issued.
	CancelTask(ctx context.Context, taskID string) error
	GetTaskStatus(ctx context.Context, taskID string) (PublicationTask, error)
	ListTasks(ctx context.Context, accountID string, states []TaskState) ([]PublicationTask, error)
	// DispatchOnce runs one dispatcher cycle: scan due tasks in target-time
	// order per account and hand them to the worker pool.
	DispatchOnce(ctx context.Context) error
	Start(ctx context.Context)
	Stop()
}
