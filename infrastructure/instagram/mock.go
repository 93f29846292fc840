package instagram

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MockClient is a configurable platform client for tests and local
// development. Zero-value behavior publishes successfully.
type MockClient struct {
	mu sync.Mutex

	PublishFunc  func(ctx context.Context, req PublishRequest) (PublishResult, error)
	ExchangeFunc func(ctx context.Context, authCode string) (TokenLease, error)
	RefreshFunc  func(ctx context.Context, accessToken string) (TokenLease, error)

	PublishCalls  []PublishRequest
	RefreshCalls  []string
	ExchangeCalls []string
}

func (m *MockClient) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	m.mu.Lock()
	m.PublishCalls = append(m.PublishCalls, req)
	fn := m.PublishFunc
	n := len(m.PublishCalls)
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return PublishResult{ExternalPostID: "mock-media-" + strconv.Itoa(n)}, nil
}

func (m *MockClient) ExchangeAuthCode(ctx context.Context, authCode string) (TokenLease, error) {
	m.mu.Lock()
	m.ExchangeCalls = append(m.ExchangeCalls, authCode)
	fn := m.ExchangeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, authCode)
	}
	return TokenLease{AccessToken: "mock-token", ExpiresAt: time.Now().UTC().Add(60 * 24 * time.Hour)}, nil
}

func (m *MockClient) RefreshToken(ctx context.Context, accessToken string) (TokenLease, error) {
	m.mu.Lock()
	m.RefreshCalls = append(m.RefreshCalls, accessToken)
	fn := m.RefreshFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, accessToken)
	}
	return TokenLease{AccessToken: "mock-token-refreshed", ExpiresAt: time.Now().UTC().Add(60 * 24 * time.Hour)}, nil
}

// PublishCallCount returns how many publish attempts were made.
func (m *MockClient) PublishCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PublishCalls)
}
