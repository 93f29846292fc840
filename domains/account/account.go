package account

import "context"

// EngagementProfile maps an UTC hour of day (0-23) to a historical engagement
// score. Scores are relative; only their ordering matters for slot selection.
type EngagementProfile map[int]float64

type Account struct {
	ID             string            `json:"id"`
	Username       string            `json:"username"`
	CredentialDead bool              `json:"credential_dead"`
	Engagement     EngagementProfile `json:"engagement,omitempty"`
}

type CreateAccountRequest struct {
	Username   string            `json:"username"`
	Engagement EngagementProfile `json:"engagement"`
}

type IAccountUsecase interface {
	Create(ctx context.Context, req CreateAccountRequest) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	UpdateEngagement(ctx context.Context, id string, profile EngagementProfile) error
	// ReportCredentialDead flags the account as requiring manual reconnection.
	// Called by the token lifecycle manager when refresh permanently fails.
	ReportCredentialDead(ctx context.Context, id string) error
	// ClearCredentialDead is called when the account is reconnected.
	ClearCredentialDead(ctx context.Context, id string) error
}
