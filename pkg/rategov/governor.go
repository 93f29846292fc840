package rategov

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
)

// Decision is the result of an admission check. Denied decisions carry the
// time until the limiting window rolls over.
type Decision struct {
	Admitted   bool          `json:"admitted"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// Config carries the per-account platform quotas.
type Config struct {
	HourlyCalls    int
	DailyPublishes int
	Shards         int
}

// accountWindows is the per-account quota state. Windows are fixed buckets:
// the hour bucket tracks every API call, the UTC-day bucket tracks publishes.
type accountWindows struct {
	hourStart time.Time
	hourUsed  int
	dayStart  time.Time
	dayUsed   int
}

type shard struct {
	mu       sync.Mutex
	accounts map[string]*accountWindows
}

// Governor enforces per-account call quotas over rolling windows. State is
// sharded by account id so unrelated accounts admit fully in parallel; no two
// goroutines may concurrently admit-and-consume for the same account.
type Governor struct {
	hourly int
	daily  int
	shards []*shard

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

func New(cfg Config) *Governor {
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{accounts: make(map[string]*accountWindows)}
	}
	return &Governor{
		hourly: cfg.HourlyCalls,
		daily:  cfg.DailyPublishes,
		shards: shards,
		Now:    time.Now,
	}
}

func (g *Governor) shardFor(accountID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(accountID))
	return g.shards[int(h.Sum32()%uint32(len(g.shards)))]
}

// TryAdmit checks the hourly call quota for the account and consumes cost on
// admission. Every external platform call, retries included, must pass here
// first.
func (g *Governor) TryAdmit(accountID string, cost int) Decision {
	return g.admit(accountID, cost, false)
}

// TryAdmitPublish additionally checks and consumes the daily publish budget.
// When both ceilings deny, the longer wait wins.
func (g *Governor) TryAdmitPublish(accountID string, cost int) Decision {
	return g.admit(accountID, cost, true)
}

func (g *Governor) admit(accountID string, cost int, publish bool) Decision {
	if cost <= 0 {
		cost = 1
	}
	now := g.Now().UTC()

	s := g.shardFor(accountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.accounts[accountID]
	if !ok {
		w = &accountWindows{}
		s.accounts[accountID] = w
	}
	w.roll(now)

	var denied []Decision
	if w.hourUsed+cost > g.hourly {
		denied = append(denied, Decision{
			RetryAfter: w.hourStart.Add(hourWindow).Sub(now),
			Reason:     "hourly call ceiling reached",
		})
	}
	if publish && w.dayUsed+1 > g.daily {
		denied = append(denied, Decision{
			RetryAfter: w.dayStart.Add(dayWindow).Sub(now),
			Reason:     "daily publish ceiling reached",
		})
	}
	if len(denied) > 0 {
		worst := denied[0]
		for _, d := range denied[1:] {
			if d.RetryAfter > worst.RetryAfter {
				worst = d
			}
		}
		logrus.Debugf("[RATE_GOVERNOR] denied account=%s reason=%q retry_after=%v", accountID, worst.Reason, worst.RetryAfter)
		return worst
	}

	w.hourUsed += cost
	if publish {
		w.dayUsed++
	}
	return Decision{Admitted: true}
}

// roll supersedes stale windows with fresh zero-consumption ones.
func (w *accountWindows) roll(now time.Time) {
	hourStart := now.Truncate(hourWindow)
	if !w.hourStart.Equal(hourStart) {
		w.hourStart = hourStart
		w.hourUsed = 0
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !w.dayStart.Equal(dayStart) {
		w.dayStart = dayStart
		w.dayUsed = 0
	}
}

// AccountStats is a point-in-time snapshot of one account's quota consumption.
type AccountStats struct {
	AccountID      string    `json:"account_id"`
	HourWindowFrom time.Time `json:"hour_window_from"`
	HourUsed       int       `json:"hour_used"`
	HourAllowed    int       `json:"hour_allowed"`
	DayWindowFrom  time.Time `json:"day_window_from"`
	DayUsed        int       `json:"day_used"`
	DayAllowed     int       `json:"day_allowed"`
}

// Stats returns quota snapshots for every tracked account.
func (g *Governor) Stats() []AccountStats {
	now := g.Now().UTC()
	var out []AccountStats
	for _, s := range g.shards {
		s.mu.Lock()
		for id, w := range s.accounts {
			w.roll(now)
			out = append(out, AccountStats{
				AccountID:      id,
				HourWindowFrom: w.hourStart,
				HourUsed:       w.hourUsed,
				HourAllowed:    g.hourly,
				DayWindowFrom:  w.dayStart,
				DayUsed:        w.dayUsed,
				DayAllowed:     g.daily,
			})
		}
		s.mu.Unlock()
	}
	return out
}
