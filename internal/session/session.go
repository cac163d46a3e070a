// Package session establishes authenticated sessions for users who
// pass the login pipeline.
package session

import (
	"context"

	"github.com/davisshaver/siwe-login/internal/user"
)

// Issuer is the "establish authenticated session for user X"
// collaborator. The pipeline calls it exactly once, as the final step
// of a successful login.
type Issuer interface {
	Establish(ctx context.Context, u *user.User) (token string, err error)
}
