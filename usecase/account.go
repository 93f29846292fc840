package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainAccount "github.com/kairosocial/kairo/domains/account"
	pkgError "github.com/kairosocial/kairo/pkg/error"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type accountModel struct {
	ID             string    `gorm:"primaryKey;column:id"`
	Username       string    `gorm:"column:username;not null;uniqueIndex"`
	CredentialDead bool      `gorm:"column:credential_dead;not null;default:false"`
	Engagement     string    `gorm:"column:engagement"` // JSON hour -> score
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (accountModel) TableName() string {
	return "accounts"
}

type accountService struct {
	db *gorm.DB
}

func (s *accountService) initSchema() error {
	return s.db.AutoMigrate(&accountModel{})
}

func NewAccountService(db *gorm.DB) domainAccount.IAccountUsecase {
	s := &accountService{db: db}
	if err := s.initSchema(); err != nil {
		logrus.WithError(err).Fatal("[ACCOUNT] failed to migrate accounts schema")
	}
	return s
}

func (s *accountService) Create(ctx context.Context, req domainAccount.CreateAccountRequest) (domainAccount.Account, error) {
	if req.Username == "" {
		return domainAccount.Account{}, pkgError.ValidationError("username is required")
	}

	model := accountModel{
		ID:         uuid.NewString(),
		Username:   req.Username,
		Engagement: mustJSON(req.Engagement),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domainAccount.Account{}, fmt.Errorf("create account: %w", err)
	}
	return model.toDomain(), nil
}

func (s *accountService) GetByID(ctx context.Context, id string) (domainAccount.Account, error) {
	var model accountModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainAccount.Account{}, pkgError.NotFoundError(fmt.Sprintf("account %s not found", id))
	}
	if err != nil {
		return domainAccount.Account{}, err
	}
	return model.toDomain(), nil
}

func (s *accountService) List(ctx context.Context) ([]domainAccount.Account, error) {
	var models []accountModel
	if err := s.db.WithContext(ctx).Order("username").Find(&models).Error; err != nil {
		return nil, err
	}
	accounts := make([]domainAccount.Account, 0, len(models))
	for _, m := range models {
		accounts = append(accounts, m.toDomain())
	}
	return accounts, nil
}

func (s *accountService) UpdateEngagement(ctx context.Context, id string, profile domainAccount.EngagementProfile) error {
	return s.update(ctx, id, map[string]any{"engagement": mustJSON(profile)})
}

func (s *accountService) ReportCredentialDead(ctx context.Context, id string) error {
	logrus.Warnf("[ACCOUNT] credential reported dead for account %s; manual reconnection required", id)
	return s.update(ctx, id, map[string]any{"credential_dead": true})
}

func (s *accountService) ClearCredentialDead(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]any{"credential_dead": false})
}

func (s *accountService) update(ctx context.Context, id string, fields map[string]any) error {
	result := s.db.WithContext(ctx).Model(&accountModel{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgError.NotFoundError(fmt.Sprintf("account %s not found", id))
	}
	return nil
}

func (m accountModel) toDomain() domainAccount.Account {
	var profile domainAccount.EngagementProfile
	if m.Engagement != "" {
		_ = json.Unmarshal([]byte(m.Engagement), &profile)
	}
	return domainAccount.Account{
		ID:             m.ID,
		Username:       m.Username,
		CredentialDead: m.CredentialDead,
		Engagement:     profile,
	}
}
