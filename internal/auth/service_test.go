package auth

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/davisshaver/siwe-login/internal/common/errors"
	"github.com/davisshaver/siwe-login/internal/common/events"
	"github.com/davisshaver/siwe-login/internal/config"
	"github.com/davisshaver/siwe-login/internal/user"
	"github.com/davisshaver/siwe-login/pkg/nonce"
	"github.com/davisshaver/siwe-login/pkg/siwe"
)

const testAddress = "0xfe15a1eC58947149F81c33d5f5B6D74d952bc0F2"

type fakeVerifier struct {
	ok    bool
	err   error
	calls int
}

func (f *fakeVerifier) Verify(message, signature, claimedAddress string) (bool, error) {
	f.calls++
	return f.ok, f.err
}

type fakeChain struct {
	balances map[string]*big.Int // ERC-20/721 balance by contract
	holdings map[string]*big.Int // ERC-1155 balance by token ID
	err      error
	calls    int
}

func (f *fakeChain) BalanceOf(_ context.Context, contract, _ string) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.balances[contract]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) BalanceOf1155(_ context.Context, _, _ string, tokenID *big.Int) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.holdings[tokenID.String()]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

type fakeSessions struct {
	token string
	err   error
	calls int
}

func (f *fakeSessions) Establish(_ context.Context, _ *user.User) (string, error) {
	f.calls++
	return f.token, f.err
}

type userEventRecord struct {
	topic string
	event events.UserEvent
}

type recordingPublisher struct {
	failures   []events.ValidationFailedEvent
	userEvents []userEventRecord
}

func (r *recordingPublisher) PublishValidationFailed(_ context.Context, e events.ValidationFailedEvent) {
	r.failures = append(r.failures, e)
}

func (r *recordingPublisher) PublishUser(_ context.Context, topic string, e events.UserEvent) {
	r.userEvents = append(r.userEvents, userEventRecord{topic: topic, event: e})
}

type fixture struct {
	svc       *Service
	users     *user.MemoryStore
	verifier  *fakeVerifier
	chain     *fakeChain
	sessions  *fakeSessions
	published *recordingPublisher
	issuer    *nonce.Issuer
}

func newFixture(t *testing.T, mutate func(*config.AuthConfig)) *fixture {
	t.Helper()

	cfg := config.AuthConfig{
		DefaultRole:      "subscriber",
		SetRoleOnLogin:   true,
		UsersCanRegister: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		users:     user.NewMemoryStore(),
		verifier:  &fakeVerifier{ok: true},
		chain:     &fakeChain{},
		sessions:  &fakeSessions{token: "session-token"},
		published: &recordingPublisher{},
		issuer:    nonce.NewIssuer([]byte("test-secret"), 10*time.Minute),
	}
	f.svc = NewService(
		cfg,
		f.issuer,
		nonce.NewMemoryStore(10*time.Minute),
		f.verifier,
		f.chain,
		f.users,
		f.sessions,
		f.published,
		zap.NewNop(),
	)
	return f
}

func (f *fixture) request() *LoginRequest {
	n := f.issuer.Issue()
	return &LoginRequest{
		Address:     testAddress,
		Signature:   "0x" + strings.Repeat("ab", 65),
		Nonce:       n,
		DisplayName: "vitalik.eth",
		Payload: siwe.Payload{
			Address:   testAddress,
			ChainID:   1,
			Domain:    "wp-rainbow.test",
			IssuedAt:  "2022-03-22T22:52:03.693Z",
			Nonce:     n,
			Statement: "Log In with Ethereum to WP Rainbow",
			URI:       "https://wp-rainbow.test",
			Version:   "1",
		},
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestLoginProvisionsNewUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.svc.Login(ctx, f.request())
	require.NoError(t, err)

	assert.Equal(t, "session-token", result.Token)
	assert.Equal(t, testAddress, result.Address)
	assert.Equal(t, "subscriber", result.Role)
	assert.True(t, result.Created)
	assert.Empty(t, result.RedirectURL)

	u, err := f.users.FindByAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(testAddress), u.Address)
	assert.Equal(t, "vitalik.eth", u.DisplayName)
	assert.True(t, u.WalletProvisioned)

	marker, err := f.users.GetMeta(ctx, u.Address, user.WalletProvisionedMeta)
	require.NoError(t, err)
	assert.Equal(t, "1", marker)

	require.Len(t, f.published.userEvents, 2)
	assert.Equal(t, events.TopicUserCreated, f.published.userEvents[0].topic)
	assert.Equal(t, events.TopicUserLogin, f.published.userEvents[1].topic)
}

func TestLoginRejectsForgedNonce(t *testing.T) {
	f := newFixture(t, nil)

	req := f.request()
	req.Nonce = "0123456789"
	req.Payload.Nonce = req.Nonce

	_, err := f.svc.Login(context.Background(), req)
	requireCode(t, err, "NONCE_INVALID")
	assert.Zero(t, f.verifier.calls)
}

func TestLoginRejectsMissingCredentials(t *testing.T) {
	f := newFixture(t, nil)

	req := f.request()
	req.Address = ""
	_, err := f.svc.Login(context.Background(), req)
	requireCode(t, err, "MALFORMED_REQUEST")

	req = f.request()
	req.Signature = ""
	_, err = f.svc.Login(context.Background(), req)
	requireCode(t, err, "MALFORMED_REQUEST")

	assert.Zero(t, f.verifier.calls)
}

func TestLoginRejectsIncompletePayload(t *testing.T) {
	f := newFixture(t, nil)

	req := f.request()
	req.Payload.Statement = ""

	_, err := f.svc.Login(context.Background(), req)
	requireCode(t, err, "INCOMPLETE_PAYLOAD")
	assert.Zero(t, f.verifier.calls, "incomplete payloads must never reach signature recovery")
}

func TestLoginRejectsNonceMismatch(t *testing.T) {
	f := newFixture(t, nil)

	req := f.request()
	req.Payload.Nonce = "aaaaaaaaaa"

	_, err := f.svc.Login(context.Background(), req)
	requireCode(t, err, "NONCE_MISMATCH")
}

func TestLoginRejectsNonceReplay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := f.request()
	_, err := f.svc.Login(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, req)
	requireCode(t, err, "NONCE_INVALID")
}

func TestLoginReleasesNonceOnFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.verifier.ok = false
	req := f.request()
	_, err := f.svc.Login(ctx, req)
	requireCode(t, err, "SIGNATURE_INVALID")

	require.Len(t, f.published.failures, 1)
	assert.Equal(t, testAddress, f.published.failures[0].Address)
	assert.Equal(t, req.Signature, f.published.failures[0].Signature)

	// The reservation was released, so the same nonce works once the
	// client retries with a good signature.
	f.verifier.ok = true
	_, err = f.svc.Login(ctx, req)
	require.NoError(t, err)
}

func TestLoginRegistrationDisabled(t *testing.T) {
	f := newFixture(t, func(cfg *config.AuthConfig) {
		cfg.UsersCanRegister = false
	})

	_, err := f.svc.Login(context.Background(), f.request())
	requireCode(t, err, "REGISTRATION_DISABLED")
	assert.Zero(t, f.sessions.calls)
}

func TestLoginRegistrationOverride(t *testing.T) {
	f := newFixture(t, func(cfg *config.AuthConfig) {
		cfg.UsersCanRegister = false
		cfg.OverrideUsersCanRegister = true
	})

	result, err := f.svc.Login(context.Background(), f.request())
	require.NoError(t, err)
	assert.True(t, result.Created)
}

func TestLoginExistingUserSkipsRegistrationCheck(t *testing.T) {
	f := newFixture(t, func(cfg *config.AuthConfig) {
		cfg.UsersCanRegister = false
	})
	ctx := context.Background()

	require.NoError(t, f.users.Create(ctx, &user.User{
		Address:     strings.ToLower(testAddress),
		DisplayName: "vitalik.eth",
		Role:        "subscriber",
	}))

	result, err := f.svc.Login(ctx, f.request())
	require.NoError(t, err)
	assert.False(t, result.Created)
}

func TestTokenGate(t *testing.T) {
	contract := "0x00000000000000000000000000000000000000aa"

	t.Run("insufficient balance", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.AuthConfig) {
			cfg.RequiredTokenContract = contract
			cfg.RequiredTokenQuantity = 5
		})
		f.chain.balances = map[string]*big.Int{contract: big.NewInt(3)}

		_, err := f.svc.Login(context.Background(), f.request())
		requireCode(t, err, "TOKEN_GATE_FAILED")
	})

	t.Run("exact balance passes", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.AuthConfig) {
			cfg.RequiredTokenContract = contract
			cfg.RequiredTokenQuantity = 5
		})
		f.chain.balances = map[string]*big.Int{contract: big.NewInt(5)}

		_, err := f.svc.Login(context.Background(), f.request())
		require.NoError(t, err)
	})

	t.Run("rpc error fails closed", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.AuthConfig) {
			cfg.RequiredTokenContract = contract
			cfg.RequiredTokenQuantity = 1
		})
		f.chain.err = errors.New("connection refused")

		_, err := f.svc.Login(context.Background(), f.request())
		requireCode(t, err, "TOKEN_GATE_FAILED")
	})

	t.Run("no chain client is a configuration error", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.AuthConfig) {
			cfg.RequiredTokenContract = contract
		})
		f.svc.chain = nil

		_, err := f.svc.Login(context.Background(), f.request())
		requireCode(t, err, "CONFIGURATION_ERROR")
	})
}

func TestRoleOverrides(t *testing.T) {
	f := newFixture(t, func(cfg *config.AuthConfig) {
		cfg.RoleOverrides = strings.ToLower(testAddress) + "=editor"
	})

	result, err := f.svc.Login(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, "editor", result.Role)
}

func TestERC1155RoleMapping(t *testing.T) {
	contract := "0x00000000000000000000000000000000000000bb"
	configure := func(cfg *config.AuthConfig) {
		cfg.ERC1155Contract = contract
		cfg.RoleMappings = "editor=1,administrator=2"
	}

	t.Run("single match", func(t *testing.T) {
		f := newFixture(t, configure)
		f.chain.holdings = map[string]*big.Int{"1": big.NewInt(1)}

		result, err := f.svc.Login(context.Background(), f.request())
		require.NoError(t, err)
		assert.Equal(t, "editor", result.Role)
	})

	t.Run("last match wins", func(t *testing.T) {
		f := newFixture(t, configure)
		f.chain.holdings = map[string]*big.Int{
			"1": big.NewInt(1),
			"2": big.NewInt(1),
		}

		result, err := f.svc.Login(context.Background(), f.request())
		require.NoError(t, err)
		assert.Equal(t, "administrator", result.Role)
		assert.Equal(t, 2, f.chain.calls, "every mapping entry must be checked")
	})

	t.Run("no match falls back to default role", func(t *testing.T) {
		f := newFixture(t, configure)

		result, err := f.svc.Login(context.Background(), f.request())
		require.NoError(t, err)
		assert.Equal(t, "subscriber", result.Role)
	})

	t.Run("no match redirects when configured", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.AuthConfig) {
			configure(cfg)
			cfg.RedirectURL = "https://example.com/denied"
		})

		result, err := f.svc.Login(context.Background(), f.request())
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/denied", result.RedirectURL)
		assert.Empty(t, result.Token)
		assert.Zero(t, f.sessions.calls)

		_, err = f.users.FindByAddress(context.Background(), testAddress)
		assert.ErrorIs(t, err, user.ErrNotFound, "redirected logins must not provision users")
	})

	t.Run("no match resets an elevated existing user", func(t *testing.T) {
		f := newFixture(t, configure)
		ctx := context.Background()

		require.NoError(t, f.users.Create(ctx, &user.User{
			Address:     strings.ToLower(testAddress),
			DisplayName: "vitalik.eth",
			Role:        "administrator",
		}))

		result, err := f.svc.Login(ctx, f.request())
		require.NoError(t, err)
		assert.Equal(t, "subscriber", result.Role)

		u, err := f.users.FindByAddress(ctx, testAddress)
		require.NoError(t, err)
		assert.Equal(t, "subscriber", u.Role)
	})

	t.Run("reset overrides disabled role updates", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.AuthConfig) {
			configure(cfg)
			cfg.DisableRoleUpdates = true
		})
		ctx := context.Background()

		require.NoError(t, f.users.Create(ctx, &user.User{
			Address:     strings.ToLower(testAddress),
			DisplayName: "vitalik.eth",
			Role:        "administrator",
		}))

		// DisableRoleUpdates suppresses the positive role-update-on-
		// login path only; the defensive no-match reset still lands.
		result, err := f.svc.Login(ctx, f.request())
		require.NoError(t, err)
		assert.Equal(t, "subscriber", result.Role)

		u, err := f.users.FindByAddress(ctx, testAddress)
		require.NoError(t, err)
		assert.Equal(t, "subscriber", u.Role)
	})

	t.Run("rpc error fails closed", func(t *testing.T) {
		f := newFixture(t, configure)
		f.chain.err = errors.New("connection refused")

		_, err := f.svc.Login(context.Background(), f.request())
		requireCode(t, err, "TOKEN_GATE_FAILED")
	})
}

func TestLoginUpdatesExistingUser(t *testing.T) {
	f := newFixture(t, func(cfg *config.AuthConfig) {
		cfg.RoleOverrides = strings.ToLower(testAddress) + "=editor"
	})
	ctx := context.Background()

	require.NoError(t, f.users.Create(ctx, &user.User{
		Address:     strings.ToLower(testAddress),
		DisplayName: "old name",
		Role:        "subscriber",
	}))

	result, err := f.svc.Login(ctx, f.request())
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, "editor", result.Role)

	u, err := f.users.FindByAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, "vitalik.eth", u.DisplayName)
	assert.Equal(t, "editor", u.Role)
}

func TestLoginRoleUpdatesDisabled(t *testing.T) {
	f := newFixture(t, func(cfg *config.AuthConfig) {
		cfg.RoleOverrides = strings.ToLower(testAddress) + "=editor"
		cfg.DisableRoleUpdates = true
	})
	ctx := context.Background()

	require.NoError(t, f.users.Create(ctx, &user.User{
		Address:     strings.ToLower(testAddress),
		DisplayName: "vitalik.eth",
		Role:        "subscriber",
	}))

	_, err := f.svc.Login(ctx, f.request())
	require.NoError(t, err)

	u, err := f.users.FindByAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, "subscriber", u.Role)
}

func TestLoginSanitizesDisplayName(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := f.request()
	req.DisplayName = "  <script>alert(1)</script>vitalik  "

	_, err := f.svc.Login(ctx, req)
	require.NoError(t, err)

	u, err := f.users.FindByAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, "alert(1)vitalik", u.DisplayName)
	assert.NotContains(t, u.DisplayName, "<")
}

func TestLoginEmptyDisplayNameFallsBackToAddress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := f.request()
	req.DisplayName = ""

	_, err := f.svc.Login(ctx, req)
	require.NoError(t, err)

	u, err := f.users.FindByAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, testAddress, u.DisplayName)
}
