package campaign

import (
	"context"
	"time"
)

// NarrativeRole is a post's position in a campaign's story arc. Intro and
// promotion posts prefer the highest-scoring slots.
type NarrativeRole string

const (
	RoleIntro      NarrativeRole = "intro"
	RoleContent    NarrativeRole = "content"
	RolePromotion  NarrativeRole = "promotion"
	RoleConclusion NarrativeRole = "conclusion"
)

type Campaign struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	PostsPerDay int       `json:"posts_per_day"`
	IsActive    bool      `json:"is_active"`
}

// Member associates a post with its narrative role inside a campaign.
type Member struct {
	PostID string        `json:"post_id"`
	Role   NarrativeRole `json:"role"`
	// Position orders members sharing a role; lower publishes first.
	Position int `json:"position"`
}

type PlanEntry struct {
	PostID     string        `json:"post_id"`
	Role       NarrativeRole `json:"role"`
	TargetTime time.Time     `json:"target_time"`
	SlotScore  float64       `json:"slot_score"`
}

// Conflict reports a post that could not be placed within the campaign's date
// range. Conflicts are surfaced to the caller, never silently dropped.
type Conflict struct {
	PostID string `json:"post_id"`
	Reason string `json:"reason"`
}

// CampaignPlan is an immutable, conflict-resolved schedule. Replanning
// replaces the plan wholesale.
type Plan struct {
	CampaignID  string      `json:"campaign_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Entries     []PlanEntry `json:"entries"`
	Conflicts   []Conflict  `json:"conflicts,omitempty"`
}

type CreateCampaignRequest struct {
	AccountID   string    `json:"account_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	PostsPerDay int       `json:"posts_per_day"`
}

type PlanOptions struct {
	// AllowConflicts schedules entries inside another task's collision window
	// instead of shifting them. Explicit override only.
	AllowConflicts bool `json:"allow_conflicts"`
	// Activate creates publication tasks for the generated entries.
	Activate bool `json:"activate"`
}

type ICampaignUsecase interface {
	Create(ctx context.Context, req CreateCampaignRequest) (Campaign, error)
	GetByID(ctx context.Context, id string) (Campaign, error)
	AddMember(ctx context.Context, campaignID string, member Member) error
	Members(ctx context.Context, campaignID string) ([]Member, error)
	// PlanCampaign computes a fresh time-ordered plan for the campaign's
	// members and, when requested, activates it.
	PlanCampaign(ctx context.Context, campaignID string, opts PlanOptions) (Plan, error)
	// Replan regenerates the plan from scratch, canceling tasks created by a
	// previous activation that have not yet entered publishing.
	Replan(ctx context.Context, campaignID string, opts PlanOptions) (Plan, error)
	GetPlan(ctx context.Context, campaignID string) (Plan, error)
}
