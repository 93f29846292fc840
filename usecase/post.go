package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainPost "github.com/kairosocial/kairo/domains/post"
	domainScheduler "github.com/kairosocial/kairo/domains/scheduler"
	pkgError "github.com/kairosocial/kairo/pkg/error"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type postModel struct {
	ID             string    `gorm:"primaryKey;column:id"`
	AccountID      string    `gorm:"column:account_id;not null;index"`
	Caption        string    `gorm:"column:caption;not null"`
	Hashtags       string    `gorm:"column:hashtags"`   // JSON array
	MediaURLs      string    `gorm:"column:media_urls"` // JSON array
	PostType       string    `gorm:"column:post_type;not null"`
	ExternalPostID string    `gorm:"column:external_post_id;index"`
	Permalink      string    `gorm:"column:permalink"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (postModel) TableName() string {
	return "posts"
}

type postService struct {
	db *gorm.DB
}

func (s *postService) initSchema() error {
	// Delete touches publication tasks, so both tables are ensured here.
	return s.db.AutoMigrate(&postModel{}, &publicationTaskModel{})
}

func NewPostService(db *gorm.DB) domainPost.IPostUsecase {
	s := &postService{db: db}
	if err := s.initSchema(); err != nil {
		logrus.WithError(err).Fatal("[POST] failed to migrate posts schema")
	}
	return s
}

func (s *postService) Create(ctx context.Context, req domainPost.CreatePostRequest) (domainPost.Post, error) {
	if req.AccountID == "" {
		return domainPost.Post{}, pkgError.ValidationError("account_id is required")
	}
	if len(req.MediaURLs) == 0 {
		return domainPost.Post{}, pkgError.ValidationError("media_urls must not be empty")
	}
	postType := req.PostType
	if postType == "" {
		postType = domainPost.TypePhoto
	}

	model := postModel{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		Caption:   req.Caption,
		Hashtags:  mustJSON(req.Hashtags),
		MediaURLs: mustJSON(req.MediaURLs),
		PostType:  string(postType),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domainPost.Post{}, fmt.Errorf("create post: %w", err)
	}
	return model.toDomain(), nil
}

func (s *postService) GetByID(ctx context.Context, id string) (domainPost.Post, error) {
	var model postModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainPost.Post{}, pkgError.NotFoundError(fmt.Sprintf("post %s not found", id))
	}
	if err != nil {
		return domainPost.Post{}, err
	}
	return model.toDomain(), nil
}

func (s *postService) List(ctx context.Context, accountID string) ([]domainPost.Post, error) {
	query := s.db.WithContext(ctx).Order("created_at desc")
	if accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}

	var models []postModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	posts := make([]domainPost.Post, 0, len(models))
	for _, m := range models {
		posts = append(posts, m.toDomain())
	}
	return posts, nil
}

// Delete removes a post and cancels any live publication task pointing at it,
// so the scheduler never admits a post that no longer exists. A task already
// publishing is past the point of no return and is left to finish.
func (s *postService) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		canceled := tx.Model(&publicationTaskModel{}).
			Where("post_id = ? AND state IN ?", id, cancelableStates).
			Update("state", string(domainScheduler.StateCanceled))
		if canceled.Error != nil {
			return canceled.Error
		}
		if canceled.RowsAffected > 0 {
			logrus.Infof("[POST] canceled %d publication task(s) for deleted post %s", canceled.RowsAffected, id)
		}

		result := tx.Delete(&postModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgError.NotFoundError(fmt.Sprintf("post %s not found", id))
		}
		return nil
	})
}

func (s *postService) MarkPublished(ctx context.Context, id, externalPostID, permalink string) error {
	result := s.db.WithContext(ctx).Model(&postModel{}).Where("id = ?", id).Updates(map[string]any{
		"external_post_id": externalPostID,
		"permalink":        permalink,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgError.NotFoundError(fmt.Sprintf("post %s not found", id))
	}
	return nil
}

func (m postModel) toDomain() domainPost.Post {
	return domainPost.Post{
		ID:             m.ID,
		AccountID:      m.AccountID,
		Caption:        m.Caption,
		Hashtags:       fromJSONSlice(m.Hashtags),
		MediaURLs:      fromJSONSlice(m.MediaURLs),
		PostType:       domainPost.Type(m.PostType),
		ExternalPostID: m.ExternalPostID,
		Permalink:      m.Permalink,
	}
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func fromJSONSlice(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
