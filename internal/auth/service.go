// Package auth implements the wallet login pipeline: nonce checks,
// signature recovery, token gating, role resolution, user provisioning
// and session establishment.
package auth

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/davisshaver/siwe-login/internal/common/errors"
	"github.com/davisshaver/siwe-login/internal/common/events"
	"github.com/davisshaver/siwe-login/internal/config"
	"github.com/davisshaver/siwe-login/internal/session"
	"github.com/davisshaver/siwe-login/internal/user"
	"github.com/davisshaver/siwe-login/pkg/chain"
	"github.com/davisshaver/siwe-login/pkg/ethaddr"
	"github.com/davisshaver/siwe-login/pkg/nonce"
)

// MessageVerifier checks that signature recovers to claimedAddress over
// message. Satisfied by siwe.Verifier.
type MessageVerifier interface {
	Verify(message, signature, claimedAddress string) (bool, error)
}

// Service runs the login pipeline. Stages run strictly in order and
// the first failing stage decides the error; no user state is touched
// before the signature and token gate have passed.
type Service struct {
	cfg        config.AuthConfig
	nonces     *nonce.Issuer
	nonceStore nonce.Store
	verifier   MessageVerifier
	chain      chain.Client
	users      user.Store
	sessions   session.Issuer
	events     events.Publisher
	logger     *zap.Logger

	resolvers    []RoleResolver
	roleMappings []config.RoleMapping
	attrMappings []config.AttributeMapping
}

func NewService(
	cfg config.AuthConfig,
	nonces *nonce.Issuer,
	nonceStore nonce.Store,
	verifier MessageVerifier,
	chainClient chain.Client,
	users user.Store,
	sessions session.Issuer,
	publisher events.Publisher,
	logger *zap.Logger,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &Service{
		cfg:          cfg,
		nonces:       nonces,
		nonceStore:   nonceStore,
		verifier:     verifier,
		chain:        chainClient,
		users:        users,
		sessions:     sessions,
		events:       publisher,
		logger:       logger,
		roleMappings: cfg.ParseRoleMappings(),
		attrMappings: cfg.ParseAttributeMappings(),
	}
	if overrides := cfg.ParseRoleOverrides(); len(overrides) > 0 {
		s.resolvers = append(s.resolvers, NewStaticResolver(overrides))
	}
	return s
}

// WithResolvers appends extra role resolvers after the built-in ones.
func (s *Service) WithResolvers(resolvers ...RoleResolver) *Service {
	s.resolvers = append(s.resolvers, resolvers...)
	return s
}

// Nonce issues a fresh login nonce.
func (s *Service) Nonce() string {
	return s.nonces.Issue()
}

// Login runs the full pipeline for one signed login request. On any
// failure after the nonce was reserved, the reservation is released so
// the client may retry with the same nonce inside its validity window.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	if !s.nonces.Validate(req.Nonce) {
		return nil, apperrors.NonceInvalid()
	}
	if req.Address == "" || req.Signature == "" {
		return nil, apperrors.MalformedRequest()
	}
	if err := req.Payload.Validate(); err != nil {
		return nil, apperrors.IncompletePayload().WithError(err)
	}
	if req.Payload.Nonce != req.Nonce {
		return nil, apperrors.NonceMismatch()
	}

	if err := s.nonceStore.Reserve(ctx, req.Nonce, req.Address); err != nil {
		if errors.Is(err, nonce.ErrAlreadyUsed) {
			return nil, apperrors.NonceInvalid()
		}
		return nil, apperrors.NonceInvalid().WithError(err)
	}

	result, err := s.authorize(ctx, req)
	if err != nil {
		if releaseErr := s.nonceStore.Release(ctx, req.Nonce, req.Address); releaseErr != nil {
			s.logger.Warn("failed to release nonce reservation", zap.Error(releaseErr))
		}
		return nil, err
	}
	if err := s.nonceStore.MarkUsed(ctx, req.Nonce, req.Address); err != nil {
		s.logger.Warn("failed to mark nonce as used", zap.Error(err))
	}
	return result, nil
}

func (s *Service) authorize(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	address, err := ethaddr.Checksum(req.Address)
	if err != nil {
		return nil, apperrors.MalformedRequest().WithError(err)
	}

	message := req.Payload.Message()
	ok, err := s.verifier.Verify(message, req.Signature, address)
	if err != nil || !ok {
		s.events.PublishValidationFailed(ctx, events.ValidationFailedEvent{
			Message:   message,
			Signature: req.Signature,
			Address:   address,
		})
		return nil, apperrors.SignatureInvalid().WithError(err)
	}

	if err := s.checkTokenGate(ctx, address); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByAddress(ctx, address)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return nil, apperrors.DBError(err)
	}

	role, redirect, err := s.resolveRole(ctx, address, existing)
	if err != nil {
		return nil, err
	}
	if redirect != "" {
		return &LoginResult{Address: address, RedirectURL: redirect}, nil
	}

	u, created, err := s.provision(ctx, address, role, existing, req)
	if err != nil {
		return nil, err
	}

	if err := s.applyAttributes(ctx, u, req.Attributes); err != nil {
		return nil, err
	}

	token, err := s.sessions.Establish(ctx, u)
	if err != nil {
		return nil, apperrors.Internal("failed to establish session").WithError(err)
	}

	s.events.PublishUser(ctx, events.TopicUserLogin, events.UserEvent{
		Address:     u.Address,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	})

	return &LoginResult{
		Token:   token,
		Address: address,
		Role:    u.Role,
		Created: created,
	}, nil
}

// checkTokenGate enforces the ERC-20/721 minimum-balance gate. RPC
// trouble fails closed: an unreachable chain never lets anyone in.
func (s *Service) checkTokenGate(ctx context.Context, address string) error {
	if s.cfg.RequiredTokenContract == "" {
		return nil
	}
	if s.chain == nil {
		return apperrors.ConfigurationError("token gate configured without a chain RPC client")
	}
	balance, err := s.chain.BalanceOf(ctx, s.cfg.RequiredTokenContract, address)
	if err != nil {
		s.logger.Warn("token gate balance check failed",
			zap.String("contract", s.cfg.RequiredTokenContract),
			zap.Error(err))
		return apperrors.TokenGateFailed().WithError(err)
	}
	required := big.NewInt(s.cfg.RequiredTokenQuantity)
	if balance.Cmp(required) < 0 {
		return apperrors.TokenGateFailed().WithDetails(map[string]any{
			"required": required.String(),
			"held":     balance.String(),
		})
	}
	return nil
}

// resolveRole computes the role for address. The resolver chain runs
// first, then the ERC-1155 mapping; each later source overrides the
// earlier ones when it produces a role. A non-empty redirect means the
// address holds none of the mapped tokens and login should not
// complete.
func (s *Service) resolveRole(ctx context.Context, address string, existing *user.User) (role, redirect string, err error) {
	role = s.cfg.DefaultRole
	for _, r := range s.resolvers {
		got, err := r.ResolveRole(ctx, address, role)
		if err != nil {
			return "", "", apperrors.Internal("role resolution failed").WithError(err)
		}
		if got != "" {
			role = got
		}
	}

	if s.cfg.ERC1155Contract == "" || len(s.roleMappings) == 0 {
		return role, "", nil
	}
	if s.chain == nil {
		return "", "", apperrors.ConfigurationError("role mapping configured without a chain RPC client")
	}

	matched := ""
	for _, m := range s.roleMappings {
		balance, err := s.chain.BalanceOf1155(ctx, s.cfg.ERC1155Contract, address, m.TokenID)
		if err != nil {
			s.logger.Warn("role mapping balance check failed",
				zap.String("contract", s.cfg.ERC1155Contract),
				zap.String("token_id", m.TokenID.String()),
				zap.Error(err))
			return "", "", apperrors.TokenGateFailed().WithError(err)
		}
		if balance.Sign() > 0 {
			matched = m.Role
		}
	}
	if matched != "" {
		return matched, "", nil
	}

	// No mapped token held. Existing accounts always drop back to the
	// default role, even when role updates on login are disabled: an
	// elevated role must not survive the mapped token being
	// transferred away.
	if existing != nil && existing.Role != s.cfg.DefaultRole {
		if err := s.users.UpdateRole(ctx, existing.Address, s.cfg.DefaultRole); err != nil {
			return "", "", apperrors.DBError(err)
		}
		existing.Role = s.cfg.DefaultRole
	}
	if s.cfg.RedirectURL != "" {
		return "", s.cfg.RedirectURL, nil
	}
	return s.cfg.DefaultRole, "", nil
}

// provision creates or refreshes the user record for a passing login.
func (s *Service) provision(ctx context.Context, address, role string, existing *user.User, req *LoginRequest) (*user.User, bool, error) {
	displayName := user.SanitizeDisplayName(req.DisplayName)
	if displayName == "" {
		displayName = address
	}

	if existing == nil {
		if !s.cfg.UsersCanRegister && !s.cfg.OverrideUsersCanRegister {
			return nil, false, apperrors.RegistrationDisabled()
		}
		u := &user.User{
			Address:           strings.ToLower(address),
			DisplayName:       displayName,
			Role:              role,
			WalletProvisioned: true,
		}
		err := s.users.Create(ctx, u)
		if err == nil {
			if metaErr := s.users.SetMeta(ctx, u.Address, user.WalletProvisionedMeta, "1"); metaErr != nil {
				s.logger.Warn("failed to set provisioning marker", zap.Error(metaErr))
			}
			s.events.PublishUser(ctx, events.TopicUserCreated, events.UserEvent{
				Address:     u.Address,
				DisplayName: u.DisplayName,
				Role:        u.Role,
			})
			return u, true, nil
		}
		if !errors.Is(err, user.ErrAlreadyExists) {
			return nil, false, apperrors.DBError(err)
		}
		// Lost a concurrent-registration race; the winner's record is
		// the user now.
		existing, err = s.users.FindByAddress(ctx, address)
		if err != nil {
			return nil, false, apperrors.DBError(err)
		}
	}

	updated := false
	if req.DisplayName != "" && existing.DisplayName != displayName {
		if err := s.users.UpdateDisplayName(ctx, existing.Address, displayName); err != nil {
			return nil, false, apperrors.DBError(err)
		}
		existing.DisplayName = displayName
		updated = true
	}
	if s.cfg.SetRoleOnLogin && !s.cfg.DisableRoleUpdates && existing.Role != role {
		if err := s.users.UpdateRole(ctx, existing.Address, role); err != nil {
			return nil, false, apperrors.DBError(err)
		}
		existing.Role = role
		updated = true
	}
	if updated {
		s.events.PublishUser(ctx, events.TopicUserUpdated, events.UserEvent{
			Address:     existing.Address,
			DisplayName: existing.DisplayName,
			Role:        existing.Role,
		})
	}
	return existing, false, nil
}
