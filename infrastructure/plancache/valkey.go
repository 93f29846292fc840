package plancache

import (
	"context"
	"encoding/json"
	"time"

	domainCampaign "github.com/kairosocial/kairo/domains/campaign"
	"github.com/kairosocial/kairo/infrastructure/valkey"
	"github.com/sirupsen/logrus"
)

// ValkeyStore caches plans in Valkey so multiple instances see the same
// latest plan. Cache errors degrade to misses; they never fail the caller.
type ValkeyStore struct {
	client *valkey.Client
	prefix string
	ttl    time.Duration
}

func NewValkeyStore(client *valkey.Client, ttl time.Duration) *ValkeyStore {
	return &ValkeyStore{
		client: client,
		prefix: client.Key("plan") + ":",
		ttl:    ttl,
	}
}

func (s *ValkeyStore) fullKey(campaignID string) string {
	return s.prefix + campaignID
}

func (s *ValkeyStore) Get(ctx context.Context, campaignID string) (domainCampaign.Plan, bool) {
	cmd := s.client.Inner().B().Get().Key(s.fullKey(campaignID)).Build()
	data, err := s.client.Inner().Do(ctx, cmd).AsBytes()
	if err != nil {
		if !valkey.IsNil(err) {
			logrus.WithError(err).Warnf("[PLAN_CACHE] read failed for campaign %s", campaignID)
		}
		return domainCampaign.Plan{}, false
	}

	var plan domainCampaign.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		logrus.WithError(err).Warnf("[PLAN_CACHE] corrupt cached plan for campaign %s, dropping", campaignID)
		s.Invalidate(ctx, campaignID)
		return domainCampaign.Plan{}, false
	}
	return plan, true
}

func (s *ValkeyStore) Set(ctx context.Context, campaignID string, plan domainCampaign.Plan) {
	data, err := json.Marshal(plan)
	if err != nil {
		logrus.WithError(err).Warnf("[PLAN_CACHE] failed to marshal plan for campaign %s", campaignID)
		return
	}

	cmd := s.client.Inner().B().Set().
		Key(s.fullKey(campaignID)).
		Value(string(data)).
		Ex(s.ttl).
		Build()
	if err := s.client.Inner().Do(ctx, cmd).Error(); err != nil {
		logrus.WithError(err).Warnf("[PLAN_CACHE] write failed for campaign %s", campaignID)
	}
}

func (s *ValkeyStore) Invalidate(ctx context.Context, campaignID string) {
	cmd := s.client.Inner().B().Del().Key(s.fullKey(campaignID)).Build()
	if err := s.client.Inner().Do(ctx, cmd).Error(); err != nil {
		logrus.WithError(err).Warnf("[PLAN_CACHE] invalidate failed for campaign %s", campaignID)
	}
}
