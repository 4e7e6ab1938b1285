// Package noop admits every request as the anonymous identity. The server
// uses it when rate limiting is enabled without authentication.
package noop

import (
	"context"

	"github.com/rhuss/kette/pkg/auth"
	"github.com/rhuss/kette/pkg/message"
)

type Authenticator struct{}

func (Authenticator) Authenticate(context.Context, *message.Request) auth.AuthResult {
	return auth.Accept(auth.Anonymous())
}
