package plancache

import (
	"context"
	"testing"
	"time"

	domainCampaign "github.com/kairosocial/kairo/domains/campaign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	_, ok := store.Get(ctx, "camp-1")
	require.False(t, ok)

	plan := domainCampaign.Plan{
		CampaignID: "camp-1",
		Entries: []domainCampaign.PlanEntry{
			{PostID: "post-1", Role: domainCampaign.RoleIntro, SlotScore: 0.9},
		},
	}
	store.Set(ctx, "camp-1", plan)

	got, ok := store.Get(ctx, "camp-1")
	require.True(t, ok)
	assert.Equal(t, plan, got)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	ctx := context.Background()
	store.Set(ctx, "camp-1", domainCampaign.Plan{CampaignID: "camp-1"})

	clock = clock.Add(30 * time.Minute)
	_, ok := store.Get(ctx, "camp-1")
	assert.True(t, ok)

	clock = clock.Add(31 * time.Minute)
	_, ok = store.Get(ctx, "camp-1")
	assert.False(t, ok, "entries past the TTL must miss")
}

func TestMemoryStore_Invalidate(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	store.Set(ctx, "camp-1", domainCampaign.Plan{CampaignID: "camp-1"})
	store.Invalidate(ctx, "camp-1")

	_, ok := store.Get(ctx, "camp-1")
	assert.False(t, ok)
}
