package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kairosocial/kairo/core/config"
	domainAccount "github.com/kairosocial/kairo/domains/account"
	domainCampaign "github.com/kairosocial/kairo/domains/campaign"
	domainScheduler "github.com/kairosocial/kairo/domains/scheduler"
	"github.com/kairosocial/kairo/infrastructure/plancache"
	pkgError "github.com/kairosocial/kairo/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCampaignFixture(t *testing.T) (*schedulerFixture, *campaignService) {
	t.Helper()
	f := newSchedulerFixture(t, defaultRateConfig(), defaultPublishConfig())

	cfg := config.CampaignConfig{
		MinimumGap:     2 * time.Hour,
		ConflictWindow: 2 * time.Hour,
		DefaultSlots:   []int{9, 12, 17, 20},
		PlanCacheTTL:   time.Hour,
	}
	svc := NewCampaignService(f.db, f.accounts, f.svc, plancache.NewMemoryStore(cfg.PlanCacheTTL), cfg).(*campaignService)
	svc.now = f.nowFn()
	return f, svc
}

func campaignDates() (time.Time, time.Time) {
	return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 23, 0, 0, 0, time.UTC)
}

func (f *schedulerFixture) engagedAccount(t *testing.T) domainAccount.Account {
	t.Helper()
	acct := f.connectedAccount(t)
	require.NoError(t, f.accounts.UpdateEngagement(context.Background(), acct.ID, domainAccount.EngagementProfile{
		9: 0.5, 12: 0.9, 17: 0.7, 20: 0.3,
	}))
	return acct
}

func createCampaign(t *testing.T, svc *campaignService, accountID string, postsPerDay int) domainCampaign.Campaign {
	t.Helper()
	start, end := campaignDates()
	campaign, err := svc.Create(context.Background(), domainCampaign.CreateCampaignRequest{
		AccountID:   accountID,
		Name:        "spring launch",
		StartDate:   start,
		EndDate:     end,
		PostsPerDay: postsPerDay,
	})
	require.NoError(t, err)
	return campaign
}

func addMember(t *testing.T, svc *campaignService, campaignID, postID string, role domainCampaign.NarrativeRole, position int) {
	t.Helper()
	require.NoError(t, svc.AddMember(context.Background(), campaignID, domainCampaign.Member{
		PostID:   postID,
		Role:     role,
		Position: position,
	}))
}

func TestCampaignCreate_RejectsInvertedDateRange(t *testing.T) {
	f, svc := newCampaignFixture(t)
	acct := f.connectedAccount(t)

	start, _ := campaignDates()
	_, err := svc.Create(context.Background(), domainCampaign.CreateCampaignRequest{
		AccountID: acct.ID,
		Name:      "backwards",
		StartDate: start,
		EndDate:   start.Add(-24 * time.Hour),
	})
	require.Error(t, err)
	assert.IsType(t, pkgError.ValidationError(""), err)
}

func TestPlanCampaign_NarrativeOrderAndSlotScoring(t *testing.T) {
	f, svc := newCampaignFixture(t)
	acct := f.engagedAccount(t)
	campaign := createCampaign(t, svc, acct.ID, 2)

	intro := f.createPost(t, acct.ID)
	contentA := f.createPost(t, acct.ID)
	contentB := f.createPost(t, acct.ID)
	promo := f.createPost(t, acct.ID)

	// Added out of narrative order on purpose.
	addMember(t, svc, campaign.ID, promo.ID, domainCampaign.RolePromotion, 0)
	addMember(t, svc, campaign.ID, contentB.ID, domainCampaign.RoleContent, 1)
	addMember(t, svc, campaign.ID, intro.ID, domainCampaign.RoleIntro, 0)
	addMember(t, svc, campaign.ID, contentA.ID, domainCampaign.RoleContent, 0)

	plan, err := svc.PlanCampaign(context.Background(), campaign.ID, domainCampaign.PlanOptions{})
	require.NoError(t, err)
	require.Empty(t, plan.Conflicts)
	require.Len(t, plan.Entries, 4)

	// Narrative order: intro, content by position, promotion.
	assert.Equal(t, intro.ID, plan.Entries[0].PostID)
	assert.Equal(t, contentA.ID, plan.Entries[1].PostID)
	assert.Equal(t, contentB.ID, plan.Entries[2].PostID)
	assert.Equal(t, promo.ID, plan.Entries[3].PostID)

	// The intro takes the best-scoring hour of the first day.
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), plan.Entries[0].TargetTime)
	assert.InDelta(t, 0.9, plan.Entries[0].SlotScore, 1e-9)
	// Content flows chronologically; day one is capped at two posts.
	assert.Equal(t, time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC), plan.Entries[1].TargetTime)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), plan.Entries[2].TargetTime)
	// The promotion again prefers the best remaining hour of its day.
	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), plan.Entries[3].TargetTime)

	for i := 1; i < len(plan.Entries); i++ {
		gap := plan.Entries[i].TargetTime.Sub(plan.Entries[i-1].TargetTime)
		assert.GreaterOrEqual(t, gap, 2*time.Hour, "entries must honor the minimum gap")
	}
}

func TestPlanCampaign_DefaultSlotsWithoutEngagementHistory(t *testing.T) {
	f, svc := newCampaignFixture(t)
	acct := f.connectedAccount(t)
	campaign := createCampaign(t, svc, acct.ID, 4)

	post := f.createPost(t, acct.ID)
	addMember(t, svc, campaign.ID, post.ID, domainCampaign.RoleContent, 0)

	plan, err := svc.PlanCampaign(context.Background(), campaign.ID, domainCampaign.PlanOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), plan.Entries[0].TargetTime)
}

func TestPlanCampaign_AvoidsExistingTasks(t *testing.T) {
	f, svc := newCampaignFixture(t)
	acct := f.engagedAccount(t)
	campaign := createCampaign(t, svc, acct.ID, 2)

	// An unrelated task already occupies the top-scoring hour of day one.
	standalone := f.createPost(t, acct.ID)
	f.schedule(t, standalone.ID, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))

	post := f.createPost(t, acct.ID)
	addMember(t, svc, campaign.ID, post.ID, domainCampaign.RoleIntro, 0)

	plan, err := svc.PlanCampaign(context.Background(), campaign.ID, domainCampaign.PlanOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	// 12:00 sits inside the collision window; 17:00 is the best clear hour.
	assert.Equal(t, time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC), plan.Entries[0].TargetTime)
}

func TestPlanCampaign_AllowConflictsOverride(t *testing.T) {
	f, svc := newCampaignFixture(t)
	acct := f.engagedAccount(t)
	campaign := createCampaign(t, svc, acct.ID, 2)

	standalone := f.createPost(t, acct.ID)
	f.schedule(t, standalone.ID, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))

	post := f.createPost(t, acct.ID)
	addMember(t, svc, campaign.ID, post.ID, domainCampaign.RoleIntro, 0)

	plan, err := svc.PlanCampaign(context.Background(), campaign.ID, domainCampaign.PlanOptions{AllowConflicts: true})
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), plan.Entries[0].TargetTime)
}

func TestPlanCampaign_ReportsUnplaceableMembers(t *testing.T) {
	f, svc := newCampaignFixture(t)
	acct := f.engagedAccount(t)

	start, _ := campaignDates()
	campaign, err := svc.Create(context.Background(), domainCampaign.CreateCampaignRequest{
		AccountID:   acct.ID,
		Name:        "one day",
		StartDate:   start,
		EndDate:     start.Add(23 * time.Hour),
		PostsPerDay: 1,
	})
	require.NoError(t, err)

	first := f.createPost(t, acct.ID)
	second := f.createPost(t, acct.ID)
	addMember(t, svc, campaign.ID, first.ID, domainCampaign.RoleContent, 0)
	addMember(t, svc, campaign.ID, second.ID, domainCampaign.RoleContent, 1)

	plan, err := svc.PlanCampaign(context.Background(), campaign.ID, domainCampaign.PlanOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, second.ID, plan.Conflicts[0].PostID)
	assert.NotEmpty(t, plan.Conflicts[0].Reason)
}

func TestPlanCampaign_ActivateCreatesTasks(t *testing.T) {
	f, svc := newCampaignFixture(t)
	acct := f.engagedAccount(t)
	campaign := createCampaign(t, svc, acct.ID, 2)

	post := f.createPost(t, acct.ID)
	addMember(t, svc, campaign.ID, post.ID, domainCampaign.RoleIntro, 0)

	plan, err := svc.PlanCampaign(context.Background(), campaign.ID, domainCampaign.PlanOptions{Activate: true})
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)

	tasks, err := f.svc.ListTasks(context.Background(), acct.ID, []domainScheduler.TaskState{domainScheduler.StateScheduled})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, campaign.ID, tasks[0].CampaignID)
	assert.Equal(t, plan.Entries[0].TargetTime, tasks[0].TargetTime)

	got, err := svc.GetByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestReplan_CancelsPreviousTasksAndRegenerates(t *testing.T) {
	f, svc := newCampaignFixture(t)
	acct := f.engagedAccount(t)
	campaign := createCampaign(t, svc, acct.ID, 2)

	post := f.createPost(t, acct.ID)
	addMember(t, svc, campaign.ID, post.ID, domainCampaign.RoleIntro, 0)

	_, err := svc.PlanCampaign(context.Background(), campaign.ID, domainCampaign.PlanOptions{Activate: true})
	require.NoError(t, err)

	plan, err := svc.Replan(context.Background(), campaign.ID, domainCampaign.PlanOptions{Activate: true})
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)

	canceled, err := f.svc.ListTasks(context.Background(), acct.ID, []domainScheduler.TaskState{domainScheduler.StateCanceled})
	require.NoError(t, err)
	assert.Len(t, canceled, 1)

	active, err := f.svc.ListTasks(context.Background(), acct.ID, []domainScheduler.TaskState{domainScheduler.StateScheduled})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestGetPlan_ServesLatestGeneratedPlan(t *testing.T) {
	f, svc := newCampaignFixture(t)
	acct := f.engagedAccount(t)
	campaign := createCampaign(t, svc, acct.ID, 2)

	_, err := svc.GetPlan(context.Background(), campaign.ID)
	require.Error(t, err, "no plan exists before planning")

	post := f.createPost(t, acct.ID)
	addMember(t, svc, campaign.ID, post.ID, domainCampaign.RoleIntro, 0)

	generated, err := svc.PlanCampaign(context.Background(), campaign.ID, domainCampaign.PlanOptions{})
	require.NoError(t, err)

	got, err := svc.GetPlan(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, generated, got)
}
