package acceptor

import (
	"crypto/subtle"
	"strings"

	"github.com/vinayprograms/workkit/credentials"
	werrors "github.com/vinayprograms/workkit/errors"
)

// Channel names used for credential lookup.
const (
	ChannelHTTP      = "http"
	ChannelWebSocket = "websocket"
	ChannelBus       = "bus"
	ChannelStdio     = "stdio"
)

// ErrUnauthorized is returned when an activity fails authentication.
var ErrUnauthorized = werrors.New(werrors.ErrCodeUnauthorized, "unauthorized")

// Authenticator checks bearer tokens against per-channel credentials.
// A channel with no configured token accepts every caller.
type Authenticator struct {
	creds *credentials.Credentials
}

// NewAuthenticator creates an authenticator backed by creds.
func NewAuthenticator(creds *credentials.Credentials) *Authenticator {
	return &Authenticator{creds: creds}
}

// Authenticate validates an Authorization header value for a channel.
// A nil Authenticator accepts everything.
func (a *Authenticator) Authenticate(channel, authorization string) error {
	if a == nil {
		return nil
	}
	want := a.creds.Token(channel)
	if want == "" {
		return nil
	}

	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(want)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
