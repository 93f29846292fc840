package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	domainAccount "github.com/kairosocial/kairo/domains/account"
	domainCredential "github.com/kairosocial/kairo/domains/credential"
	"github.com/kairosocial/kairo/core/config"
	"github.com/kairosocial/kairo/infrastructure/instagram"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/kairosocial/kairo/pkg/events"
)

// --- Persistence Model ---

type credentialLeaseModel struct {
	ID        string    `gorm:"primaryKey;column:id"`
	AccountID string    `gorm:"column:account_id;not null;uniqueIndex"`
	Token     string    `gorm:"column:token;not null"`
	IssuedAt  time.Time `gorm:"column:issued_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (credentialLeaseModel) TableName() string {
	return "credential_leases"
}

// credentialService is the token lifecycle manager. Leases are replaced on
// refresh, never mutated; refresh is deduplicated per account and retried a
// deliberately small number of times (a bad token burns rate-limit budget on
// every use) before the account is flagged for manual reconnection.
type credentialService struct {
	db       *gorm.DB
	platform instagram.Client
	accounts domainAccount.IAccountUsecase
	bus      *events.Bus
	cfg      config.TokenConfig

	mu       sync.Mutex
	inflight map[string]chan struct{}

	// now is the clock; overridable in tests.
	now func() time.Time
}

func (s *credentialService) initSchema() error {
	return s.db.AutoMigrate(&credentialLeaseModel{})
}

func NewCredentialService(
	db *gorm.DB,
	platform instagram.Client,
	accounts domainAccount.IAccountUsecase,
	bus *events.Bus,
	cfg config.TokenConfig,
) domainCredential.ICredentialUsecase {
	s := &credentialService{
		db:       db,
		platform: platform,
		accounts: accounts,
		bus:      bus,
		cfg:      cfg,
		inflight: make(map[string]chan struct{}),
		now:      time.Now,
	}
	if err := s.initSchema(); err != nil {
		logrus.WithError(err).Fatal("[CREDENTIAL] failed to migrate credential schema")
	}
	return s
}

func (s *credentialService) Connect(ctx context.Context, req domainCredential.ConnectRequest) (domainCredential.CredentialLease, error) {
	lease, err := s.platform.ExchangeAuthCode(ctx, req.AuthCode)
	if err != nil {
		return domainCredential.CredentialLease{}, fmt.Errorf("exchange auth code: %w", err)
	}

	stored, err := s.storeLease(ctx, req.AccountID, lease)
	if err != nil {
		return domainCredential.CredentialLease{}, err
	}

	// A fresh connection clears any pending manual-reconnect flag.
	if err := s.accounts.ClearCredentialDead(ctx, req.AccountID); err != nil {
		logrus.WithError(err).Warnf("[CREDENTIAL] failed to clear dead flag for account %s", req.AccountID)
	}

	logrus.Infof("[CREDENTIAL] account %s connected, lease valid until %s", req.AccountID, stored.ExpiresAt.Format(time.RFC3339))
	return stored, nil
}

func (s *credentialService) GetLease(ctx context.Context, accountID string) (domainCredential.CredentialLease, error) {
	var model credentialLeaseModel
	err := s.db.WithContext(ctx).First(&model, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainCredential.CredentialLease{}, domainCredential.ErrCredentialUnavailable
	}
	if err != nil {
		return domainCredential.CredentialLease{}, err
	}
	return s.toDomain(model), nil
}

// GetValidCredential returns the current lease immediately if valid; waits
// (bounded) for an in-flight refresh; fails fast otherwise.
func (s *credentialService) GetValidCredential(ctx context.Context, accountID string) (domainCredential.CredentialLease, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return domainCredential.CredentialLease{}, err
	}
	if acct.CredentialDead {
		return domainCredential.CredentialLease{}, domainCredential.ErrCredentialUnavailable
	}

	lease, err := s.GetLease(ctx, accountID)
	if err != nil {
		return domainCredential.CredentialLease{}, err
	}

	now := s.now().UTC()
	if lease.ExpiresAt.After(now) {
		return lease, nil
	}

	// Expired. If a refresh is running, wait for it; otherwise the sweep
	// missed its window (restart, clock jump) and we refresh inline.
	done := s.refreshAsync(accountID)

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.RefreshWait)
	defer cancel()
	select {
	case <-done:
	case <-waitCtx.Done():
		return domainCredential.CredentialLease{}, domainCredential.ErrCredentialUnavailable
	}

	lease, err = s.GetLease(ctx, accountID)
	if err != nil {
		return domainCredential.CredentialLease{}, err
	}
	if !lease.ExpiresAt.After(s.now().UTC()) {
		return domainCredential.CredentialLease{}, domainCredential.ErrCredentialUnavailable
	}
	return lease, nil
}

// SweepOnce scans all leases and refreshes any inside the safety margin.
// One cycle of the hourly background sweep.
func (s *credentialService) SweepOnce(ctx context.Context) error {
	var models []credentialLeaseModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return fmt.Errorf("scan leases: %w", err)
	}

	now := s.now().UTC()
	for _, model := range models {
		remaining := model.ExpiresAt.Sub(now)
		if remaining > s.cfg.RefreshMargin {
			continue
		}

		s.bus.Publish(events.TypeCredentialExpiring, events.CredentialExpiring{
			AccountID: model.AccountID,
			ExpiresAt: model.ExpiresAt,
		})
		logrus.Infof("[CREDENTIAL] lease for account %s inside refresh margin (%s remaining), refreshing",
			model.AccountID, remaining)

		<-s.refreshAsync(model.AccountID)
	}
	return nil
}

func (s *credentialService) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.SweepOnce(ctx); err != nil {
					logrus.WithError(err).Error("[CREDENTIAL] sweep cycle failed")
				}
			}
		}
	}()
	logrus.Infof("[CREDENTIAL] background sweep started, interval %s", s.cfg.SweepInterval)
}

// refreshAsync starts a refresh for the account unless one is already in
// flight, and returns a channel closed when that refresh finishes.
func (s *credentialService) refreshAsync(accountID string) <-chan struct{} {
	s.mu.Lock()
	if done, ok := s.inflight[accountID]; ok {
		s.mu.Unlock()
		return done
	}
	done := make(chan struct{})
	s.inflight[accountID] = done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, accountID)
			s.mu.Unlock()
			close(done)
		}()
		s.refresh(accountID)
	}()
	return done
}

// refresh exchanges the account's current token for a new lease, retrying
// transient failures up to the conservative ceiling. Permanent failure flags
// the account dead.
func (s *credentialService) refresh(accountID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	current, err := s.GetLease(ctx, accountID)
	if err != nil {
		logrus.WithError(err).Errorf("[CREDENTIAL] no lease to refresh for account %s", accountID)
		return
	}

	var fresh instagram.TokenLease
	err = retry.Do(
		func() error {
			var callErr error
			fresh, callErr = s.platform.RefreshToken(ctx, current.Token)
			if callErr == nil {
				return nil
			}
			if apiErr, ok := instagram.AsAPIError(callErr); ok {
				switch apiErr.Kind {
				case instagram.KindAuthExpired, instagram.KindPermanent:
					return retry.Unrecoverable(callErr)
				}
			}
			return callErr
		},
		retry.Attempts(uint(s.cfg.RefreshRetries+1)),
		retry.Delay(2*time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logrus.WithError(err).Warnf("[CREDENTIAL] refresh attempt %d failed for account %s", n+1, accountID)
		}),
	)
	if err != nil {
		logrus.WithError(err).Errorf("[CREDENTIAL] refresh permanently failed for account %s", accountID)
		if reportErr := s.accounts.ReportCredentialDead(ctx, accountID); reportErr != nil {
			logrus.WithError(reportErr).Errorf("[CREDENTIAL] failed to flag account %s dead", accountID)
		}
		s.bus.Publish(events.TypeCredentialDead, events.CredentialDead{
			AccountID: accountID,
			Reason:    err.Error(),
		})
		return
	}

	if _, err := s.storeLease(ctx, accountID, fresh); err != nil {
		logrus.WithError(err).Errorf("[CREDENTIAL] failed to store refreshed lease for account %s", accountID)
		return
	}
	logrus.Infof("[CREDENTIAL] refreshed lease for account %s, valid until %s", accountID, fresh.ExpiresAt.Format(time.RFC3339))
}

// storeLease replaces the account's lease wholesale inside a transaction.
func (s *credentialService) storeLease(ctx context.Context, accountID string, lease instagram.TokenLease) (domainCredential.CredentialLease, error) {
	model := credentialLeaseModel{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Token:     lease.AccessToken,
		IssuedAt:  s.now().UTC(),
		ExpiresAt: lease.ExpiresAt.UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&credentialLeaseModel{}, "account_id = ?", accountID).Error; err != nil {
			return err
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domainCredential.CredentialLease{}, fmt.Errorf("store lease: %w", err)
	}
	return s.toDomain(model), nil
}

func (s *credentialService) toDomain(model credentialLeaseModel) domainCredential.CredentialLease {
	s.mu.Lock()
	_, refreshing := s.inflight[model.AccountID]
	s.mu.Unlock()

	return domainCredential.CredentialLease{
		ID:                model.ID,
		AccountID:         model.AccountID,
		Token:             model.Token,
		IssuedAt:          model.IssuedAt,
		ExpiresAt:         model.ExpiresAt,
		RefreshInProgress: refreshing,
	}
}
