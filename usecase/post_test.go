package usecase

import (
	"context"
	"testing"

	domainPost "github.com/kairosocial/kairo/domains/post"
	pkgError "github.com/kairosocial/kairo/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostService_CreateAndGet(t *testing.T) {
	db := openTestDB(t)
	svc := NewPostService(db)
	ctx := context.Background()

	created, err := svc.Create(ctx, domainPost.CreatePostRequest{
		AccountID: "acct-1",
		Caption:   "morning coffee",
		Hashtags:  []string{"coffee", "morning"},
		MediaURLs: []string{"https://cdn.example.com/coffee.jpg"},
		PostType:  domainPost.TypePhoto,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "morning coffee", got.Caption)
	assert.Equal(t, []string{"coffee", "morning"}, got.Hashtags)
	assert.Equal(t, domainPost.TypePhoto, got.PostType)
}

func TestPostService_GetUnknown(t *testing.T) {
	db := openTestDB(t)
	svc := NewPostService(db)

	_, err := svc.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.IsType(t, pkgError.NotFoundError(""), err)
}

func TestPostService_ListByAccount(t *testing.T) {
	db := openTestDB(t)
	svc := NewPostService(db)
	ctx := context.Background()

	for _, acct := range []string{"acct-1", "acct-1", "acct-2"} {
		_, err := svc.Create(ctx, domainPost.CreatePostRequest{
			AccountID: acct,
			Caption:   "c",
			MediaURLs: []string{"https://cdn.example.com/1.jpg"},
			PostType:  domainPost.TypePhoto,
		})
		require.NoError(t, err)
	}

	posts, err := svc.List(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestPostService_MarkPublished(t *testing.T) {
	db := openTestDB(t)
	svc := NewPostService(db)
	ctx := context.Background()

	created, err := svc.Create(ctx, domainPost.CreatePostRequest{
		AccountID: "acct-1",
		Caption:   "c",
		MediaURLs: []string{"https://cdn.example.com/1.jpg"},
		PostType:  domainPost.TypeReel,
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkPublished(ctx, created.ID, "ig-123", "https://instagram.com/p/ig-123"))

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ig-123", got.ExternalPostID)
	assert.Equal(t, "https://instagram.com/p/ig-123", got.Permalink)
}

func TestPostService_Delete(t *testing.T) {
	db := openTestDB(t)
	svc := NewPostService(db)
	ctx := context.Background()

	created, err := svc.Create(ctx, domainPost.CreatePostRequest{
		AccountID: "acct-1",
		Caption:   "c",
		MediaURLs: []string{"https://cdn.example.com/1.jpg"},
		PostType:  domainPost.TypePhoto,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.GetByID(ctx, created.ID)
	require.Error(t, err)
}
