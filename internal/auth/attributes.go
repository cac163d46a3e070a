package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	apperrors "github.com/davisshaver/siwe-login/internal/common/errors"
	"github.com/davisshaver/siwe-login/internal/user"
)

// applyAttributes copies submitted attributes (typically ENS text
// records resolved by the client) into the user record according to
// the configured mappings. Mappings targeting the email or url keys
// land in the dedicated profile columns; everything else is user meta.
// A mapping's no-overwrite flag, or the global DisableOverwriteUserMeta
// switch, protects values the user already has.
func (s *Service) applyAttributes(ctx context.Context, u *user.User, attrs map[string]string) error {
	if len(s.attrMappings) == 0 || len(attrs) == 0 {
		return nil
	}
	for _, m := range s.attrMappings {
		value, ok := attrs[m.AttributeKey]
		if !ok || value == "" {
			continue
		}
		preserve := m.NoOverwrite || s.cfg.DisableOverwriteUserMeta

		switch m.MetaKey {
		case user.MetaKeyEmail, user.MetaKeyURL:
			current := u.Email
			if m.MetaKey == user.MetaKeyURL {
				current = u.URL
			}
			if preserve && current != "" {
				continue
			}
			if current == value {
				continue
			}
			if err := s.users.UpdateProfileField(ctx, u.Address, m.MetaKey, value); err != nil {
				return apperrors.DBError(err)
			}
			if m.MetaKey == user.MetaKeyEmail {
				u.Email = value
			} else {
				u.URL = value
			}
		default:
			if preserve {
				current, err := s.users.GetMeta(ctx, u.Address, m.MetaKey)
				if err != nil && !errors.Is(err, user.ErrNotFound) {
					return apperrors.DBError(err)
				}
				if current != "" {
					continue
				}
			}
			if err := s.users.SetMeta(ctx, u.Address, m.MetaKey, value); err != nil {
				return apperrors.DBError(err)
			}
		}
		s.logger.Debug("applied attribute mapping",
			zap.String("address", u.Address),
			zap.String("attribute", m.AttributeKey),
			zap.String("meta_key", m.MetaKey))
	}
	return nil
}
