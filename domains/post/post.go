package post

import "context"

type Type string

const (
	TypePhoto    Type = "photo"
	TypeVideo    Type = "video"
	TypeCarousel Type = "carousel"
	TypeReel     Type = "reel"
)

// Post is the unit of content handed to the engine by the content-management
// collaborator. Content fields are read-only at scheduling time; the engine
// only ever touches status/scheduling fields on the task side.
type Post struct {
	ID        string   `json:"id"`
	AccountID string   `json:"account_id"`
	Caption   string   `json:"caption"`
	Hashtags  []string `json:"hashtags,omitempty"`
	MediaURLs []string `json:"media_urls"`
	PostType  Type     `json:"post_type"`

	// Set by the engine once published.
	ExternalPostID string `json:"external_post_id,omitempty"`
	Permalink      string `json:"permalink,omitempty"`
}

type CreatePostRequest struct {
	AccountID string   `json:"account_id"`
	Caption   string   `json:"caption"`
	Hashtags  []string `json:"hashtags"`
	MediaURLs []string `json:"media_urls"`
	PostType  Type     `json:"post_type"`
}

type IPostUsecase interface {
	Create(ctx context.Context, req CreatePostRequest) (Post, error)
	GetByID(ctx context.Context, id string) (Post, error)
	List(ctx context.Context, accountID string) ([]Post, error)
	Delete(ctx context.Context, id string) error
	// MarkPublished records the external id and permalink after a successful
	// publish. The only mutation the engine performs on a post.
	MarkPublished(ctx context.Context, id, externalPostID, permalink string) error
}
