package plancache

import (
	"context"
	"sync"
	"time"

	domainCampaign "github.com/kairosocial/kairo/domains/campaign"
)

// Store caches the latest generated plan per campaign so reads skip the
// database. The database copy remains the source of truth; a cache miss is
// never an error.
type Store interface {
	Get(ctx context.Context, campaignID string) (domainCampaign.Plan, bool)
	Set(ctx context.Context, campaignID string, plan domainCampaign.Plan)
	Invalidate(ctx context.Context, campaignID string)
}

type memoryEntry struct {
	plan     domainCampaign.Plan
	expireAt time.Time
}

// MemoryStore is the in-process fallback used when no Valkey is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, campaignID string) (domainCampaign.Plan, bool) {
	s.mu.RLock()
	entry, ok := s.entries[campaignID]
	s.mu.RUnlock()
	if !ok {
		return domainCampaign.Plan{}, false
	}
	if s.now().After(entry.expireAt) {
		s.mu.Lock()
		delete(s.entries, campaignID)
		s.mu.Unlock()
		return domainCampaign.Plan{}, false
	}
	return entry.plan, true
}

func (s *MemoryStore) Set(_ context.Context, campaignID string, plan domainCampaign.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[campaignID] = memoryEntry{plan: plan, expireAt: s.now().Add(s.ttl)}
}

func (s *MemoryStore) Invalidate(_ context.Context, campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, campaignID)
}
