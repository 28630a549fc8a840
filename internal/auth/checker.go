// Package auth gates HTTP endpoints on a request credential and stores secrets
// the tools need, such as the text-generation API key.
package auth

// file: internal/auth/checker.go

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/httputils"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/mcperror"
)

// DefaultHeader carries the credential when none is configured.
const DefaultHeader = "Authorization"

// ErrMissingCredential is returned for requests without a credential.
var ErrMissingCredential = errors.New("missing credential")

// CredentialChecker decides whether a presented credential is acceptable.
type CredentialChecker interface {
	Check(ctx context.Context, credential string) error
}

// CheckerFunc adapts a function to CredentialChecker.
type CheckerFunc func(ctx context.Context, credential string) error

// Check implements CredentialChecker.
func (f CheckerFunc) Check(ctx context.Context, credential string) error {
	return f(ctx, credential)
}

// PresenceChecker accepts any non-empty credential.
type PresenceChecker struct{}

// Check implements CredentialChecker.
func (PresenceChecker) Check(_ context.Context, credential string) error {
	if strings.TrimSpace(credential) == "" {
		return ErrMissingCredential
	}
	return nil
}

// Gate rejects requests whose credential header is absent or refused.
type Gate struct {
	header  string
	checker CredentialChecker
	logger  logging.Logger
}

// NewGate builds a gate reading header. A nil checker means PresenceChecker.
func NewGate(header string, checker CredentialChecker, logger logging.Logger) *Gate {
	if header == "" {
		header = DefaultHeader
	}
	if checker == nil {
		checker = PresenceChecker{}
	}
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &Gate{header: header, checker: checker, logger: logger.WithField("component", "auth_gate")}
}

// Authorize checks r and returns an mcperror AuthMissing error when it must be refused.
func (g *Gate) Authorize(r *http.Request) error {
	credential := strings.TrimSpace(r.Header.Get(g.header))
	if credential == "" {
		return mcperror.NewAuthMissingError(g.header)
	}
	if err := g.checker.Check(r.Context(), credential); err != nil {
		return mcperror.NewAuthMissingError(g.header).WithContext("reason", err.Error())
	}
	return nil
}

// Middleware wraps next with the gate; refused requests get 401 and never reach next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Authorize(r); err != nil {
			g.logger.Debug("Rejected unauthenticated request.", "path", r.URL.Path, "error", err)
			httputils.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
