package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kairosocial/kairo/core/config"
	domainAccount "github.com/kairosocial/kairo/domains/account"
	domainCampaign "github.com/kairosocial/kairo/domains/campaign"
	domainScheduler "github.com/kairosocial/kairo/domains/scheduler"
	"github.com/kairosocial/kairo/infrastructure/plancache"
	pkgError "github.com/kairosocial/kairo/pkg/error"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- Persistence Models ---

type campaignModel struct {
	ID          string    `gorm:"primaryKey;column:id"`
	AccountID   string    `gorm:"column:account_id;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	Description string    `gorm:"column:description"`
	StartDate   time.Time `gorm:"column:start_date;not null"`
	EndDate     time.Time `gorm:"column:end_date;not null"`
	PostsPerDay int       `gorm:"column:posts_per_day;not null;default:1"`
	IsActive    bool      `gorm:"column:is_active;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (campaignModel) TableName() string {
	return "campaigns"
}

type campaignMemberModel struct {
	ID         string `gorm:"primaryKey;column:id"`
	CampaignID string `gorm:"column:campaign_id;not null;index"`
	PostID     string `gorm:"column:post_id;not null;uniqueIndex:idx_campaign_post"`
	Role       string `gorm:"column:role;not null"`
	Position   int    `gorm:"column:position;not null;default:0"`
}

func (campaignMemberModel) TableName() string {
	return "campaign_members"
}

// campaignPlanModel stores the latest plan wholesale; replanning replaces the
// row, never patches it.
type campaignPlanModel struct {
	CampaignID  string    `gorm:"primaryKey;column:campaign_id"`
	GeneratedAt time.Time `gorm:"column:generated_at;not null"`
	Entries     string    `gorm:"column:entries;type:text"`
	Conflicts   string    `gorm:"column:conflicts;type:text"`
}

func (campaignPlanModel) TableName() string {
	return "campaign_plans"
}

// narrativeRank orders the story arc; members publish in this role order.
var narrativeRank = map[domainCampaign.NarrativeRole]int{
	domainCampaign.RoleIntro:      0,
	domainCampaign.RoleContent:    1,
	domainCampaign.RolePromotion:  2,
	domainCampaign.RoleConclusion: 3,
}

type campaignService struct {
	db        *gorm.DB
	accounts  domainAccount.IAccountUsecase
	scheduler domainScheduler.ISchedulerUsecase
	cache     plancache.Store
	cfg       config.CampaignConfig

	// now is the clock; overridable in tests.
	now func() time.Time
}

func (s *campaignService) initSchema() error {
	return s.db.AutoMigrate(&campaignModel{}, &campaignMemberModel{}, &campaignPlanModel{})
}

func NewCampaignService(
	db *gorm.DB,
	accounts domainAccount.IAccountUsecase,
	scheduler domainScheduler.ISchedulerUsecase,
	cache plancache.Store,
	cfg config.CampaignConfig,
) domainCampaign.ICampaignUsecase {
	s := &campaignService{
		db:        db,
		accounts:  accounts,
		scheduler: scheduler,
		cache:     cache,
		cfg:       cfg,
		now:       time.Now,
	}
	if err := s.initSchema(); err != nil {
		logrus.WithError(err).Fatal("[CAMPAIGN] failed to migrate campaign schema")
	}
	return s
}

// --- CRUD ---

func (s *campaignService) Create(ctx context.Context, req domainCampaign.CreateCampaignRequest) (domainCampaign.Campaign, error) {
	if _, err := s.accounts.GetByID(ctx, req.AccountID); err != nil {
		return domainCampaign.Campaign{}, err
	}
	if !req.EndDate.After(req.StartDate) {
		return domainCampaign.Campaign{}, pkgError.ValidationError("campaign end date must be after the start date")
	}
	postsPerDay := req.PostsPerDay
	if postsPerDay <= 0 {
		postsPerDay = 1
	}

	model := campaignModel{
		ID:          uuid.NewString(),
		AccountID:   req.AccountID,
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate.UTC(),
		EndDate:     req.EndDate.UTC(),
		PostsPerDay: postsPerDay,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domainCampaign.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}

	logrus.Infof("[CAMPAIGN] campaign %s (%s) created for account %s", model.ID, model.Name, model.AccountID)
	return campaignToDomain(model), nil
}

func (s *campaignService) GetByID(ctx context.Context, id string) (domainCampaign.Campaign, error) {
	var model campaignModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainCampaign.Campaign{}, pkgError.NotFoundError(fmt.Sprintf("campaign %s not found", id))
	}
	if err != nil {
		return domainCampaign.Campaign{}, err
	}
	return campaignToDomain(model), nil
}

func (s *campaignService) AddMember(ctx context.Context, campaignID string, member domainCampaign.Member) error {
	if _, ok := narrativeRank[member.Role]; !ok {
		return pkgError.ValidationError(fmt.Sprintf("unknown narrative role %q", member.Role))
	}
	if _, err := s.GetByID(ctx, campaignID); err != nil {
		return err
	}

	model := campaignMemberModel{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		PostID:     member.PostID,
		Role:       string(member.Role),
		Position:   member.Position,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("add campaign member: %w", err)
	}
	return nil
}

func (s *campaignService) Members(ctx context.Context, campaignID string) ([]domainCampaign.Member, error) {
	var models []campaignMemberModel
	if err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Find(&models).Error; err != nil {
		return nil, err
	}

	members := make([]domainCampaign.Member, 0, len(models))
	for _, m := range models {
		members = append(members, domainCampaign.Member{
			PostID:   m.PostID,
			Role:     domainCampaign.NarrativeRole(m.Role),
			Position: m.Position,
		})
	}
	sortMembersNarratively(members)
	return members, nil
}

// --- Planning ---

// slot is one candidate publication time with its engagement score.
type slot struct {
	at    time.Time
	score float64
}

func (s *campaignService) PlanCampaign(ctx context.Context, campaignID string, opts domainCampaign.PlanOptions) (domainCampaign.Plan, error) {
	campaign, err := s.GetByID(ctx, campaignID)
	if err != nil {
		return domainCampaign.Plan{}, err
	}
	members, err := s.Members(ctx, campaignID)
	if err != nil {
		return domainCampaign.Plan{}, err
	}
	if len(members) == 0 {
		return domainCampaign.Plan{}, pkgError.ValidationError(fmt.Sprintf("campaign %s has no members to plan", campaignID))
	}

	account, err := s.accounts.GetByID(ctx, campaign.AccountID)
	if err != nil {
		return domainCampaign.Plan{}, err
	}

	plan := s.buildPlan(ctx, campaign, members, account.Engagement, opts)

	if opts.Activate {
		s.activate(ctx, campaign, &plan)
	}
	if err := s.storePlan(ctx, plan); err != nil {
		return domainCampaign.Plan{}, err
	}
	s.cache.Set(ctx, campaignID, plan)

	logrus.Infof("[CAMPAIGN] plan for campaign %s generated: %d entries, %d conflicts",
		campaignID, len(plan.Entries), len(plan.Conflicts))
	return plan, nil
}

// Replan regenerates the plan from scratch. Tasks from a previous activation
// that have not entered publishing are canceled first.
func (s *campaignService) Replan(ctx context.Context, campaignID string, opts domainCampaign.PlanOptions) (domainCampaign.Plan, error) {
	if _, err := s.GetByID(ctx, campaignID); err != nil {
		return domainCampaign.Plan{}, err
	}

	var tasks []publicationTaskModel
	if err := s.db.WithContext(ctx).
		Where("campaign_id = ? AND state IN ?", campaignID, nonTerminalStates).
		Find(&tasks).Error; err != nil {
		return domainCampaign.Plan{}, fmt.Errorf("scan campaign tasks: %w", err)
	}
	for _, task := range tasks {
		err := s.scheduler.CancelTask(ctx, task.ID)
		if errors.Is(err, domainScheduler.ErrAlreadyPublishing) {
			logrus.Warnf("[CAMPAIGN] task %s is mid-publish, left untouched by replan", task.ID)
			continue
		}
		if err != nil {
			return domainCampaign.Plan{}, fmt.Errorf("cancel task %s: %w", task.ID, err)
		}
	}

	s.cache.Invalidate(ctx, campaignID)
	return s.PlanCampaign(ctx, campaignID, opts)
}

func (s *campaignService) GetPlan(ctx context.Context, campaignID string) (domainCampaign.Plan, error) {
	if plan, ok := s.cache.Get(ctx, campaignID); ok {
		return plan, nil
	}

	var model campaignPlanModel
	err := s.db.WithContext(ctx).First(&model, "campaign_id = ?", campaignID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainCampaign.Plan{}, pkgError.NotFoundError(fmt.Sprintf("no plan generated for campaign %s", campaignID))
	}
	if err != nil {
		return domainCampaign.Plan{}, err
	}

	plan := domainCampaign.Plan{
		CampaignID:  model.CampaignID,
		GeneratedAt: model.GeneratedAt,
	}
	if model.Entries != "" {
		if err := json.Unmarshal([]byte(model.Entries), &plan.Entries); err != nil {
			return domainCampaign.Plan{}, fmt.Errorf("decode plan entries: %w", err)
		}
	}
	if model.Conflicts != "" {
		if err := json.Unmarshal([]byte(model.Conflicts), &plan.Conflicts); err != nil {
			return domainCampaign.Plan{}, fmt.Errorf("decode plan conflicts: %w", err)
		}
	}
	s.cache.Set(ctx, campaignID, plan)
	return plan, nil
}

// buildPlan walks members in narrative order through the campaign's candidate
// slots. Intro and promotion posts take the best-scoring slot of the earliest
// day with room; content and conclusion posts take the earliest slot.
func (s *campaignService) buildPlan(ctx context.Context, campaign domainCampaign.Campaign, members []domainCampaign.Member, engagement domainAccount.EngagementProfile, opts domainCampaign.PlanOptions) domainCampaign.Plan {
	plan := domainCampaign.Plan{
		CampaignID:  campaign.ID,
		GeneratedAt: s.now().UTC(),
		Entries:     []domainCampaign.PlanEntry{},
	}

	slots := s.candidateSlots(campaign, engagement)
	busy := s.existingTaskTimes(ctx, campaign)

	dayCount := make(map[string]int)
	var cursor time.Time // earliest allowed time for the next member

	for _, member := range members {
		idx := s.pickSlot(slots, member.Role, cursor, dayCount, campaign.PostsPerDay, busy, opts.AllowConflicts)
		if idx < 0 {
			plan.Conflicts = append(plan.Conflicts, domainCampaign.Conflict{
				PostID: member.PostID,
				Reason: "no conflict-free slot remains inside the campaign date range",
			})
			continue
		}

		chosen := slots[idx]
		slots = append(slots[:idx], slots[idx+1:]...)
		dayCount[chosen.at.Format("2006-01-02")]++
		cursor = chosen.at.Add(s.cfg.MinimumGap)

		plan.Entries = append(plan.Entries, domainCampaign.PlanEntry{
			PostID:     member.PostID,
			Role:       member.Role,
			TargetTime: chosen.at,
			SlotScore:  chosen.score,
		})
	}
	return plan
}

// pickSlot returns the index of the best slot for the role, or -1.
func (s *campaignService) pickSlot(slots []slot, role domainCampaign.NarrativeRole, cursor time.Time, dayCount map[string]int, postsPerDay int, busy []time.Time, allowConflicts bool) int {
	preferScore := role == domainCampaign.RoleIntro || role == domainCampaign.RolePromotion

	best := -1
	var bestDay string
	for i, candidate := range slots {
		if candidate.at.Before(cursor) {
			continue
		}
		day := candidate.at.Format("2006-01-02")
		if dayCount[day] >= postsPerDay {
			continue
		}
		if !allowConflicts && s.collides(candidate.at, busy) {
			continue
		}

		if best < 0 {
			best, bestDay = i, day
			continue
		}
		if preferScore {
			// Stay on the earliest eligible day so the narrative keeps moving,
			// but take its best-scoring hour.
			if day == bestDay && candidate.score > slots[best].score {
				best = i
			}
		} else if candidate.at.Before(slots[best].at) {
			best = i
		}
	}
	return best
}

// collides reports whether the slot lands inside the collision window of an
// already-scheduled task on the same account.
func (s *campaignService) collides(at time.Time, busy []time.Time) bool {
	for _, taken := range busy {
		delta := at.Sub(taken)
		if delta < 0 {
			delta = -delta
		}
		if delta < s.cfg.ConflictWindow {
			return true
		}
	}
	return false
}

// candidateSlots expands the campaign date range into scored publication
// times, sorted chronologically. Accounts without engagement history fall
// back to the configured default hours.
func (s *campaignService) candidateSlots(campaign domainCampaign.Campaign, engagement domainAccount.EngagementProfile) []slot {
	hours := make(map[int]float64, len(engagement))
	for hour, score := range engagement {
		if hour >= 0 && hour < 24 {
			hours[hour] = score
		}
	}
	if len(hours) == 0 {
		for _, hour := range s.cfg.DefaultSlots {
			hours[hour] = 0
		}
	}

	start := campaign.StartDate.UTC()
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end := campaign.EndDate.UTC()

	var slots []slot
	for day := startDay; !day.After(end); day = day.AddDate(0, 0, 1) {
		for hour, score := range hours {
			at := day.Add(time.Duration(hour) * time.Hour)
			if at.Before(start) || at.After(end) {
				continue
			}
			slots = append(slots, slot{at: at, score: score})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].at.Before(slots[j].at) })
	return slots
}

// existingTaskTimes collects target times of the account's other pending
// tasks so plans do not pile onto them.
func (s *campaignService) existingTaskTimes(ctx context.Context, campaign domainCampaign.Campaign) []time.Time {
	var tasks []publicationTaskModel
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND campaign_id <> ? AND state IN ?",
			campaign.AccountID, campaign.ID, nonTerminalStates).
		Find(&tasks).Error
	if err != nil {
		logrus.WithError(err).Warnf("[CAMPAIGN] could not load existing tasks for account %s", campaign.AccountID)
		return nil
	}

	times := make([]time.Time, 0, len(tasks))
	for _, task := range tasks {
		times = append(times, task.TargetTime)
	}
	return times
}

// activate creates publication tasks for each plan entry. Entries whose post
// already has an active task surface as conflicts, not silent drops.
func (s *campaignService) activate(ctx context.Context, campaign domainCampaign.Campaign, plan *domainCampaign.Plan) {
	scheduled := plan.Entries[:0]
	for _, entry := range plan.Entries {
		_, err := s.scheduler.SchedulePost(ctx, domainScheduler.SchedulePostRequest{
			PostID:     entry.PostID,
			TargetTime: entry.TargetTime,
			CampaignID: campaign.ID,
		})
		if err != nil {
			plan.Conflicts = append(plan.Conflicts, domainCampaign.Conflict{
				PostID: entry.PostID,
				Reason: err.Error(),
			})
			continue
		}
		scheduled = append(scheduled, entry)
	}
	plan.Entries = scheduled

	if err := s.db.WithContext(ctx).Model(&campaignModel{}).
		Where("id = ?", campaign.ID).
		Update("is_active", true).Error; err != nil {
		logrus.WithError(err).Warnf("[CAMPAIGN] could not flag campaign %s active", campaign.ID)
	}
}

// storePlan replaces the campaign's plan row wholesale.
func (s *campaignService) storePlan(ctx context.Context, plan domainCampaign.Plan) error {
	model := campaignPlanModel{
		CampaignID:  plan.CampaignID,
		GeneratedAt: plan.GeneratedAt,
		Entries:     mustJSON(plan.Entries),
		Conflicts:   mustJSON(plan.Conflicts),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&campaignPlanModel{}, "campaign_id = ?", plan.CampaignID).Error; err != nil {
			return err
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("store campaign plan: %w", err)
	}
	return nil
}

func sortMembersNarratively(members []domainCampaign.Member) {
	sort.SliceStable(members, func(i, j int) bool {
		ri, rj := narrativeRank[members[i].Role], narrativeRank[members[j].Role]
		if ri != rj {
			return ri < rj
		}
		return members[i].Position < members[j].Position
	})
}

func campaignToDomain(m campaignModel) domainCampaign.Campaign {
	return domainCampaign.Campaign{
		ID:          m.ID,
		AccountID:   m.AccountID,
		Name:        m.Name,
		Description: m.Description,
		StartDate:   m.StartDate,
		EndDate:     m.EndDate,
		PostsPerDay: m.PostsPerDay,
		IsActive:    m.IsActive,
	}
}
