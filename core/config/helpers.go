package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetAllSettings returns a map of the tunable scheduling settings currently
// loaded in memory. Consumed by the REST settings endpoint.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"rate_hourly_calls":      Global.RateLimit.HourlyCalls,
		"rate_daily_publishes":   Global.RateLimit.DailyPublishes,
		"publish_retry_ceiling":  Global.Publish.RetryCeiling,
		"publish_backoff_base":   Global.Publish.BackoffBase.String(),
		"publish_backoff_cap":    Global.Publish.BackoffCap.String(),
		"publish_missed_grace":   Global.Publish.MissedGrace.String(),
		"dispatch_interval":      Global.Publish.DispatchInterval.String(),
		"token_refresh_margin":   Global.Token.RefreshMargin.String(),
		"token_sweep_interval":   Global.Token.SweepInterval.String(),
		"campaign_minimum_gap":   Global.Campaign.MinimumGap.String(),
		"campaign_default_slots": Global.Campaign.DefaultSlots,
		"app_debug":              Global.App.Debug,
		"app_version":            Global.App.Version,
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvIntSlice(key string, fallback []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
