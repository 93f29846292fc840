package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kairosocial/kairo/core/config"
	domainCredential "github.com/kairosocial/kairo/domains/credential"
	domainPost "github.com/kairosocial/kairo/domains/post"
	domainScheduler "github.com/kairosocial/kairo/domains/scheduler"
	"github.com/kairosocial/kairo/infrastructure/instagram"
	pkgError "github.com/kairosocial/kairo/pkg/error"
	"github.com/kairosocial/kairo/pkg/events"
	"github.com/kairosocial/kairo/pkg/pubworker"
	"github.com/kairosocial/kairo/pkg/rategov"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type publicationTaskModel struct {
	ID             string    `gorm:"primaryKey;column:id"`
	PostID         string    `gorm:"column:post_id;not null;index"`
	AccountID      string    `gorm:"column:account_id;not null;index"`
	CampaignID     string    `gorm:"column:campaign_id;index"`
	TargetTime     time.Time `gorm:"column:target_time;not null"`
	State          string    `gorm:"column:state;not null;index"`
	AttemptCount   int       `gorm:"column:attempt_count;not null;default:0"`
	LastAttemptAt  time.Time `gorm:"column:last_attempt_at"`
	NextEligibleAt time.Time `gorm:"column:next_eligible_at;not null;index"`
	ErrorKind      string    `gorm:"column:error_kind"`
	ErrorMessage   string    `gorm:"column:error_message"`
	UserMessage    string    `gorm:"column:user_message"`
	ExternalPostID string    `gorm:"column:external_post_id"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (publicationTaskModel) TableName() string {
	return "publication_tasks"
}

var nonTerminalStates = []string{
	string(domainScheduler.StateDraft),
	string(domainScheduler.StateScheduled),
	string(domainScheduler.StateAdmitting),
	string(domainScheduler.StatePublishing),
	string(domainScheduler.StateAwaitingRetry),
}

var cancelableStates = []string{
	string(domainScheduler.StateDraft),
	string(domainScheduler.StateScheduled),
	string(domainScheduler.StateAdmitting),
	string(domainScheduler.StateAwaitingRetry),
}

// schedulerService owns PublicationTasks: it is the dispatcher and the only
// mutator of task state. Publication attempts run on an account-sharded
// worker pool, so per-account execution is serialized and admitted in
// non-decreasing target-time order.
type schedulerService struct {
	db          *gorm.DB
	governor    *rategov.Governor
	credentials domainCredential.ICredentialUsecase
	posts       domainPost.IPostUsecase
	platform    instagram.Client
	pool        *pubworker.PublishWorkerPool
	bus         *events.Bus
	cfg         config.PublishConfig

	// credentialRetryDelay re-arms tasks blocked on credentials at the token
	// refresh cadence; a different failure domain than publish backoff.
	credentialRetryDelay time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}

	// now is the clock; overridable in tests.
	now func() time.Time
}

func (s *schedulerService) initSchema() error {
	return s.db.AutoMigrate(&publicationTaskModel{})
}

func NewSchedulerService(
	db *gorm.DB,
	governor *rategov.Governor,
	credentials domainCredential.ICredentialUsecase,
	posts domainPost.IPostUsecase,
	platform instagram.Client,
	pool *pubworker.PublishWorkerPool,
	bus *events.Bus,
	cfg config.PublishConfig,
	credentialRetryDelay time.Duration,
) domainScheduler.ISchedulerUsecase {
	s := &schedulerService{
		db:                   db,
		governor:             governor,
		credentials:          credentials,
		posts:                posts,
		platform:             platform,
		pool:                 pool,
		bus:                  bus,
		cfg:                  cfg,
		credentialRetryDelay: credentialRetryDelay,
		stopCh:               make(chan struct{}),
		now:                  time.Now,
	}
	if err := s.initSchema(); err != nil {
		logrus.WithError(err).Fatal("[SCHEDULER] failed to migrate publication tasks schema")
	}
	return s
}

// --- External operations ---

func (s *schedulerService) SchedulePost(ctx context.Context, req domainScheduler.SchedulePostRequest) (domainScheduler.PublicationTask, error) {
	post, err := s.posts.GetByID(ctx, req.PostID)
	if err != nil {
		return domainScheduler.PublicationTask{}, err
	}

	// Exactly one non-terminal task may exist per post.
	var existing int64
	if err := s.db.WithContext(ctx).Model(&publicationTaskModel{}).
		Where("post_id = ? AND state IN ?", req.PostID, nonTerminalStates).
		Count(&existing).Error; err != nil {
		return domainScheduler.PublicationTask{}, err
	}
	if existing > 0 {
		return domainScheduler.PublicationTask{}, pkgError.ConflictError(
			fmt.Sprintf("post %s already has an active publication task", req.PostID))
	}

	target := req.TargetTime.UTC()
	model := publicationTaskModel{
		ID:             uuid.NewString(),
		PostID:         post.ID,
		AccountID:      post.AccountID,
		CampaignID:     req.CampaignID,
		TargetTime:     target,
		State:          string(domainScheduler.StateScheduled),
		NextEligibleAt: target,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domainScheduler.PublicationTask{}, fmt.Errorf("create publication task: %w", err)
	}

	logrus.Infof("[SCHEDULER] task %s scheduled for post %s at %s", model.ID, post.ID, target.Format(time.RFC3339))
	return taskToDomain(model), nil
}

func (s *schedulerService) CancelTask(ctx context.Context, taskID string) error {
	result := s.db.WithContext(ctx).Model(&publicationTaskModel{}).
		Where("id = ? AND state IN ?", taskID, cancelableStates).
		Update("state", string(domainScheduler.StateCanceled))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		logrus.Infof("[SCHEDULER] task %s canceled", taskID)
		return nil
	}

	task, err := s.GetTaskStatus(ctx, taskID)
	if err != nil {
		return err
	}
	switch task.State {
	case domainScheduler.StatePublishing:
		return domainScheduler.ErrAlreadyPublishing
	default:
		return pkgError.ConflictError(fmt.Sprintf("task %s is already %s", taskID, task.State))
	}
}

func (s *schedulerService) GetTaskStatus(ctx context.Context, taskID string) (domainScheduler.PublicationTask, error) {
	var model publicationTaskModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainScheduler.PublicationTask{}, pkgError.NotFoundError(fmt.Sprintf("task %s not found", taskID))
	}
	if err != nil {
		return domainScheduler.PublicationTask{}, err
	}
	return taskToDomain(model), nil
}

func (s *schedulerService) ListTasks(ctx context.Context, accountID string, states []domainScheduler.TaskState) ([]domainScheduler.PublicationTask, error) {
	query := s.db.WithContext(ctx).Order("target_time asc")
	if accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}
	if len(states) > 0 {
		raw := make([]string, 0, len(states))
		for _, st := range states {
			raw = append(raw, string(st))
		}
		query = query.Where("state IN ?", raw)
	}

	var models []publicationTaskModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	tasks := make([]domainScheduler.PublicationTask, 0, len(models))
	for _, m := range models {
		tasks = append(tasks, taskToDomain(m))
	}
	return tasks, nil
}

// --- Dispatcher ---

// DispatchOnce scans due tasks in per-account target-time order and hands
// each to the worker pool. Tasks that do not fit the pool stay due and are
// picked up next cycle.
func (s *schedulerService) DispatchOnce(ctx context.Context) error {
	now := s.now().UTC()

	var due []publicationTaskModel
	err := s.db.WithContext(ctx).
		Where("state IN ? AND next_eligible_at <= ?",
			[]string{string(domainScheduler.StateScheduled), string(domainScheduler.StateAwaitingRetry)}, now).
		Order("account_id asc, target_time asc").
		Limit(s.cfg.DispatchBatchSize).
		Find(&due).Error
	if err != nil {
		return fmt.Errorf("scan due tasks: %w", err)
	}

	for _, model := range due {
		claimed := s.db.WithContext(ctx).Model(&publicationTaskModel{}).
			Where("id = ? AND state IN ?", model.ID,
				[]string{string(domainScheduler.StateScheduled), string(domainScheduler.StateAwaitingRetry)}).
			Update("state", string(domainScheduler.StateAdmitting))
		if claimed.Error != nil {
			return claimed.Error
		}
		if claimed.RowsAffected == 0 {
			continue // canceled since the scan
		}

		taskID := model.ID
		dispatched := s.pool.TryDispatch(pubworker.PublishJob{
			TaskID:    taskID,
			AccountID: model.AccountID,
			Handler: func(jobCtx context.Context) error {
				return s.executeTask(jobCtx, taskID)
			},
		})
		if !dispatched {
			// Put it back; the pool is saturated.
			restored := s.db.WithContext(ctx).Model(&publicationTaskModel{}).
				Where("id = ? AND state = ?", taskID, string(domainScheduler.StateAdmitting)).
				Update("state", model.State)
			if restored.Error != nil {
				logrus.WithError(restored.Error).Errorf("[DISPATCHER] failed to restore task %s after pool saturation", taskID)
			}
		}
	}
	return nil
}

func (s *schedulerService) Start(ctx context.Context) {
	s.pool.Start(ctx)
	go func() {
		ticker := time.NewTicker(s.cfg.DispatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := s.DispatchOnce(ctx); err != nil {
					logrus.WithError(err).Error("[DISPATCHER] cycle failed")
				}
			}
		}
	}()
	logrus.Infof("[DISPATCHER] started, interval %s", s.cfg.DispatchInterval)
}

func (s *schedulerService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.pool.Stop()
	})
}

// --- State machine ---

// executeTask runs one admission-and-publish cycle for a claimed task. Every
// failure is classified before the state transition; nothing escapes as an
// uncaught error.
func (s *schedulerService) executeTask(ctx context.Context, taskID string) error {
	var model publicationTaskModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", taskID).Error; err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if model.State != string(domainScheduler.StateAdmitting) {
		return nil // canceled between claim and execution
	}

	now := s.now().UTC()

	// A task found overdue on its first evaluation (restart recovery) is
	// admitted immediately inside the grace window, terminal beyond it. Tasks
	// re-armed by an admission denial or a credential outage carry an error
	// kind and are past their window legitimately; they are not missed.
	if model.AttemptCount == 0 && model.ErrorKind == "" && now.Sub(model.TargetTime) > s.cfg.MissedGrace {
		s.failTask(ctx, &model, domainScheduler.KindMissedWindow,
			fmt.Sprintf("target time %s missed by more than %s", model.TargetTime.Format(time.RFC3339), s.cfg.MissedGrace),
			"This post missed its scheduled window and was not published.")
		return nil
	}

	// Admission. Denial re-arms without counting an attempt.
	decision := s.governor.TryAdmitPublish(model.AccountID, 1)
	if !decision.Admitted {
		s.awaitRetry(ctx, &model, decision.RetryAfter, domainScheduler.KindRateLimited, decision.Reason, false)
		return nil
	}

	// Credential fetch failures re-arm on the refresh cadence, not the
	// publish backoff curve.
	lease, err := s.credentials.GetValidCredential(ctx, model.AccountID)
	if err != nil {
		if errors.Is(err, domainCredential.ErrCredentialUnavailable) {
			s.awaitRetry(ctx, &model, s.credentialRetryDelay, domainScheduler.KindAuthExpired,
				"credential unavailable, refresh pending", false)
			return nil
		}
		s.awaitRetry(ctx, &model, s.credentialRetryDelay, domainScheduler.KindAuthExpired, err.Error(), false)
		return nil
	}

	post, err := s.posts.GetByID(ctx, model.PostID)
	if err != nil {
		s.failTask(ctx, &model, domainScheduler.KindPermanent, err.Error(),
			"The post behind this schedule no longer exists.")
		return nil
	}

	// Point of no return: once publishing, the external outcome is awaited.
	claimed := s.db.WithContext(ctx).Model(&publicationTaskModel{}).
		Where("id = ? AND state = ?", model.ID, string(domainScheduler.StateAdmitting)).
		Update("state", string(domainScheduler.StatePublishing))
	if claimed.Error != nil {
		return claimed.Error
	}
	if claimed.RowsAffected == 0 {
		return nil // canceled just in time; no external call was made
	}
	model.State = string(domainScheduler.StatePublishing)
	model.AttemptCount++
	model.LastAttemptAt = now

	result, pubErr := s.platform.Publish(ctx, instagram.PublishRequest{
		AccessToken: lease.Token,
		Caption:     post.Caption,
		Hashtags:    post.Hashtags,
		MediaURLs:   post.MediaURLs,
		PostType:    string(post.PostType),
	})
	if pubErr == nil {
		s.completePublished(ctx, &model, post, result)
		return nil
	}

	kind := instagram.KindTransient
	message := pubErr.Error()
	if apiErr, ok := instagram.AsAPIError(pubErr); ok {
		kind = apiErr.Kind
		message = apiErr.Message
	}

	switch kind {
	case instagram.KindPermanent:
		s.failTask(ctx, &model, domainScheduler.KindPermanent, message,
			"Instagram rejected this post. Check the media and caption against the platform's content rules.")

	case instagram.KindAuthExpired:
		if model.AttemptCount > s.cfg.RetryCeiling {
			s.failTask(ctx, &model, domainScheduler.KindAuthExpired, message,
				"Publishing kept failing because the Instagram connection is no longer valid. Reconnect the account.")
			return nil
		}
		s.awaitRetry(ctx, &model, s.credentialRetryDelay, domainScheduler.KindAuthExpired, message, true)

	default: // transient and platform-reported throttling share the publish backoff curve
		if model.AttemptCount > s.cfg.RetryCeiling {
			s.failTask(ctx, &model, domainScheduler.KindTransient, message,
				fmt.Sprintf("We couldn't publish this post after %d attempts. Instagram kept failing; try scheduling it again.", model.AttemptCount))
			return nil
		}
		s.awaitRetry(ctx, &model, s.backoff(model.AttemptCount), domainScheduler.KindTransient, message, true)
	}
	return nil
}

// backoff returns base×2^(attempt-1) capped, with up to 10% jitter.
func (s *schedulerService) backoff(attempt int) time.Duration {
	delay := s.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.BackoffCap {
			delay = s.cfg.BackoffCap
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

// awaitRetry re-arms the task. countAttempt is false for admission denials
// and credential-fetch failures, where no external call happened. The update
// is guarded on the state the task was loaded in, so a cancel landing while
// the task was admitting wins and the task stays canceled.
func (s *schedulerService) awaitRetry(ctx context.Context, model *publicationTaskModel, delay time.Duration, kind domainScheduler.ErrorKind, message string, countAttempt bool) {
	now := s.now().UTC()
	next := now.Add(delay)

	fields := map[string]any{
		"state":            string(domainScheduler.StateAwaitingRetry),
		"next_eligible_at": next,
		"error_kind":       string(kind),
		"error_message":    message,
	}
	if countAttempt {
		fields["attempt_count"] = model.AttemptCount
		fields["last_attempt_at"] = model.LastAttemptAt
	}

	rearmed := s.db.WithContext(ctx).Model(&publicationTaskModel{}).
		Where("id = ? AND state = ?", model.ID, model.State).Updates(fields)
	if rearmed.Error != nil {
		logrus.WithError(rearmed.Error).Errorf("[SCHEDULER] failed to re-arm task %s", model.ID)
		return
	}
	if rearmed.RowsAffected == 0 {
		logrus.Infof("[SCHEDULER] task %s left %s before re-arm; not rescheduling", model.ID, model.State)
		return
	}

	logrus.Infof("[SCHEDULER] task %s awaiting retry (%s): next attempt %s", model.ID, kind, humanize.Time(next))
}

func (s *schedulerService) failTask(ctx context.Context, model *publicationTaskModel, kind domainScheduler.ErrorKind, message, userMessage string) {
	fields := map[string]any{
		"state":         string(domainScheduler.StateFailed),
		"error_kind":    string(kind),
		"error_message": message,
		"user_message":  userMessage,
	}
	if model.AttemptCount > 0 {
		fields["attempt_count"] = model.AttemptCount
		fields["last_attempt_at"] = model.LastAttemptAt
	}

	failed := s.db.WithContext(ctx).Model(&publicationTaskModel{}).
		Where("id = ? AND state = ?", model.ID, model.State).Updates(fields)
	if failed.Error != nil {
		logrus.WithError(failed.Error).Errorf("[SCHEDULER] failed to mark task %s failed", model.ID)
		return
	}
	if failed.RowsAffected == 0 {
		logrus.Infof("[SCHEDULER] task %s left %s before failure could be recorded; leaving as is", model.ID, model.State)
		return
	}

	logrus.Warnf("[SCHEDULER] task %s failed terminally (%s): %s", model.ID, kind, message)
	s.bus.Publish(events.TypePostFailed, events.PostFailed{
		PostID:    model.PostID,
		TaskID:    model.ID,
		AccountID: model.AccountID,
		ErrorKind: string(kind),
		Message:   message,
	})
}

func (s *schedulerService) completePublished(ctx context.Context, model *publicationTaskModel, post domainPost.Post, result instagram.PublishResult) {
	updated := s.db.WithContext(ctx).Model(&publicationTaskModel{}).
		Where("id = ? AND state = ?", model.ID, string(domainScheduler.StatePublishing)).
		Updates(map[string]any{
			"state":            string(domainScheduler.StatePublished),
			"attempt_count":    model.AttemptCount,
			"last_attempt_at":  model.LastAttemptAt,
			"external_post_id": result.ExternalPostID,
			"error_kind":       "",
			"error_message":    "",
		})
	if updated.Error != nil {
		logrus.WithError(updated.Error).Errorf("[SCHEDULER] failed to record publish for task %s", model.ID)
		return
	}
	if updated.RowsAffected == 0 {
		// A cancel raced the publish and lost: the post is live. Record it as
		// published; there is no unpublish.
		logrus.Warnf("[SCHEDULER] task %s was canceled during publish but the post went live (anomaly); forcing published", model.ID)
		s.db.WithContext(ctx).Model(&publicationTaskModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{
				"state":            string(domainScheduler.StatePublished),
				"external_post_id": result.ExternalPostID,
			})
	}

	if err := s.posts.MarkPublished(ctx, post.ID, result.ExternalPostID, result.Permalink); err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] failed to record external id on post %s", post.ID)
	}

	publishedAt := s.now().UTC()
	logrus.Infof("[SCHEDULER] task %s published post %s as %s", model.ID, post.ID, result.ExternalPostID)
	s.bus.Publish(events.TypePostPublished, events.PostPublished{
		PostID:         post.ID,
		TaskID:         model.ID,
		AccountID:      model.AccountID,
		ExternalPostID: result.ExternalPostID,
		Permalink:      result.Permalink,
		PublishedAt:    publishedAt,
	})
}

func taskToDomain(m publicationTaskModel) domainScheduler.PublicationTask {
	return domainScheduler.PublicationTask{
		ID:             m.ID,
		PostID:         m.PostID,
		AccountID:      m.AccountID,
		CampaignID:     m.CampaignID,
		TargetTime:     m.TargetTime,
		State:          domainScheduler.TaskState(m.State),
		AttemptCount:   m.AttemptCount,
		LastAttemptAt:  m.LastAttemptAt,
		NextEligibleAt: m.NextEligibleAt,
		ErrorKind:      domainScheduler.ErrorKind(m.ErrorKind),
		ErrorMessage:   m.ErrorMessage,
		UserMessage:    m.UserMessage,
		ExternalPostID: m.ExternalPostID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
