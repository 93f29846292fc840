package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kairosocial/kairo/core/config"
	domainAccount "github.com/kairosocial/kairo/domains/account"
	domainCredential "github.com/kairosocial/kairo/domains/credential"
	"github.com/kairosocial/kairo/infrastructure/instagram"
	"github.com/kairosocial/kairo/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type credentialFixture struct {
	svc      *credentialService
	mock     *instagram.MockClient
	accounts domainAccount.IAccountUsecase
	bus      *events.Bus
	clock    time.Time
}

func newCredentialFixture(t *testing.T) *credentialFixture {
	t.Helper()
	f := &credentialFixture{
		clock: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	db := openTestDB(t)
	f.mock = &instagram.MockClient{
		ExchangeFunc: func(ctx context.Context, authCode string) (instagram.TokenLease, error) {
			return instagram.TokenLease{AccessToken: "fresh-token", ExpiresAt: f.clock.Add(60 * 24 * time.Hour)}, nil
		},
		RefreshFunc: func(ctx context.Context, accessToken string) (instagram.TokenLease, error) {
			return instagram.TokenLease{AccessToken: "refreshed-token", ExpiresAt: f.clock.Add(60 * 24 * time.Hour)}, nil
		},
	}
	f.bus = events.NewBus(32)
	t.Cleanup(f.bus.Close)
	f.accounts = NewAccountService(db)

	f.svc = NewCredentialService(db, f.mock, f.accounts, f.bus, config.TokenConfig{
		RefreshMargin:  24 * time.Hour,
		RefreshRetries: 1,
		RefreshWait:    2 * time.Second,
		SweepInterval:  time.Hour,
	}).(*credentialService)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *credentialFixture) account(t *testing.T) domainAccount.Account {
	t.Helper()
	acct, err := f.accounts.Create(context.Background(), domainAccount.CreateAccountRequest{Username: "kairo_test"})
	require.NoError(t, err)
	return acct
}

func (f *credentialFixture) connect(t *testing.T, accountID string) domainCredential.CredentialLease {
	t.Helper()
	lease, err := f.svc.Connect(context.Background(), domainCredential.ConnectRequest{
		AccountID: accountID,
		AuthCode:  "auth-code",
	})
	require.NoError(t, err)
	return lease
}

func TestConnect_StoresLeaseAndClearsDeadFlag(t *testing.T) {
	f := newCredentialFixture(t)
	acct := f.account(t)
	require.NoError(t, f.accounts.ReportCredentialDead(context.Background(), acct.ID))

	lease := f.connect(t, acct.ID)
	assert.Equal(t, "fresh-token", lease.Token)
	assert.Equal(t, f.clock.Add(60*24*time.Hour), lease.ExpiresAt)

	got, err := f.accounts.GetByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.False(t, got.CredentialDead, "a fresh connection clears the dead flag")
}

func TestConnect_ReplacesPreviousLease(t *testing.T) {
	f := newCredentialFixture(t)
	acct := f.account(t)

	first := f.connect(t, acct.ID)
	second := f.connect(t, acct.ID)
	require.NotEqual(t, first.ID, second.ID)

	got, err := f.svc.GetLease(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID, "only the newest lease survives")
}

func TestGetValidCredential_FastPath(t *testing.T) {
	f := newCredentialFixture(t)
	acct := f.account(t)
	f.connect(t, acct.ID)

	lease, err := f.svc.GetValidCredential(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", lease.Token)
	assert.Empty(t, f.mock.RefreshCalls, "a valid lease must not trigger a refresh")
}

func TestGetValidCredential_NoLease(t *testing.T) {
	f := newCredentialFixture(t)
	acct := f.account(t)

	_, err := f.svc.GetValidCredential(context.Background(), acct.ID)
	assert.ErrorIs(t, err, domainCredential.ErrCredentialUnavailable)
}

func TestGetValidCredential_DeadAccountFailsFast(t *testing.T) {
	f := newCredentialFixture(t)
	acct := f.account(t)
	f.connect(t, acct.ID)
	require.NoError(t, f.accounts.ReportCredentialDead(context.Background(), acct.ID))

	_, err := f.svc.GetValidCredential(context.Background(), acct.ID)
	assert.ErrorIs(t, err, domainCredential.ErrCredentialUnavailable)
	assert.Empty(t, f.mock.RefreshCalls)
}

func TestGetValidCredential_ExpiredLeaseRefreshesInline(t *testing.T) {
	f := newCredentialFixture(t)
	acct := f.account(t)
	f.connect(t, acct.ID)

	// Jump past the lease expiry; the sweep never ran.
	f.clock = f.clock.Add(61 * 24 * time.Hour)

	lease, err := f.svc.GetValidCredential(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", lease.Token)
	assert.Equal(t, []string{"fresh-token"}, f.mock.RefreshCalls)
}

func TestRefresh_PermanentFailureFlagsAccountDead(t *testing.T) {
	f := newCredentialFixture(t)
	acct := f.account(t)
	f.connect(t, acct.ID)

	eventCh := f.bus.Subscribe()
	f.mock.RefreshFunc = func(ctx context.Context, accessToken string) (instagram.TokenLease, error) {
		return instagram.TokenLease{}, &instagram.APIError{
			Kind:       instagram.KindAuthExpired,
			StatusCode: 401,
			Message:    "token has been invalidated",
		}
	}

	f.clock = f.clock.Add(61 * 24 * time.Hour)
	_, err := f.svc.GetValidCredential(context.Background(), acct.ID)
	assert.ErrorIs(t, err, domainCredential.ErrCredentialUnavailable)

	got, err := f.accounts.GetByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, got.CredentialDead, "an unrefreshable account needs manual reconnection")

	env := waitForEvent(t, eventCh, events.TypeCredentialDead)
	payload := env.Payload.(events.CredentialDead)
	assert.Equal(t, acct.ID, payload.AccountID)
}

func TestSweepOnce_RefreshesLeasesInsideMargin(t *testing.T) {
	f := newCredentialFixture(t)
	acct := f.account(t)

	f.mock.ExchangeFunc = func(ctx context.Context, authCode string) (instagram.TokenLease, error) {
		return instagram.TokenLease{AccessToken: "short-token", ExpiresAt: f.clock.Add(10 * time.Hour)}, nil
	}
	f.connect(t, acct.ID)

	eventCh := f.bus.Subscribe()
	require.NoError(t, f.svc.SweepOnce(context.Background()))

	waitForEvent(t, eventCh, events.TypeCredentialExpiring)
	assert.Equal(t, []string{"short-token"}, f.mock.RefreshCalls)

	lease, err := f.svc.GetLease(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", lease.Token)
}

func TestSweepOnce_SkipsHealthyLeases(t *testing.T) {
	f := newCredentialFixture(t)
	acct := f.account(t)
	f.connect(t, acct.ID)

	require.NoError(t, f.svc.SweepOnce(context.Background()))
	assert.Empty(t, f.mock.RefreshCalls)
}
