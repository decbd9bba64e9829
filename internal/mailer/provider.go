// Package mailer is the mail-provider boundary. It hides the two supported
// providers (Microsoft 365 and Gmail) behind one interface covering the
// four capabilities the engine needs: authorization-code exchange, token
// refresh, online validation, and message submission. Provider-specific
// error shapes are normalized to the Error kinds in errors.go.
package mailer

import (
	"context"
	"time"
)

// Provider names. Stored in credential rows, so these are part of the schema.
const (
	ProviderMicrosoft365 = "microsoft365"
	ProviderGmail        = "gmail"
)

// KnownProvider reports whether name is one of the supported providers.
func KnownProvider(name string) bool {
	return name == ProviderMicrosoft365 || name == ProviderGmail
}

// Token is the result of an authorization-code exchange or refresh.
type Token struct {
	AccessToken  string
	RefreshToken string // empty when the provider did not rotate it
	ExpiresAt    time.Time
}

// Identity is the authenticated mailbox identity reported by the provider.
type Identity struct {
	Email string
	Name  string
}

// Message is a single outbound notification. The engine always sends to the
// full resolved recipient set as one unit; per-address delivery semantics
// are the provider's concern.
type Message struct {
	From     string
	FromName string
	To       []string
	Subject  string
	Body     string
}

// Provider is one supported mail provider.
type Provider interface {
	// Name returns the provider identifier (ProviderMicrosoft365 or ProviderGmail).
	Name() string

	// AuthorizeURL builds the interactive authorization URL the console
	// opens in a popup. state round-trips through the flow untouched.
	AuthorizeURL(redirectURI, state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error)

	// Refresh exchanges a refresh token for fresh tokens.
	Refresh(ctx context.Context, refreshToken string) (Token, error)

	// UserInfo fetches the mailbox identity for an access token.
	UserInfo(ctx context.Context, accessToken string) (Identity, error)

	// Validate performs a lightweight authenticated call to confirm the
	// token is still accepted server-side. nil means valid; an *Error with
	// KindExpired or KindPermissionDenied is a definitive rejection;
	// KindNetwork means the check itself could not complete.
	Validate(ctx context.Context, accessToken string) error

	// Send submits the message using the given access token.
	Send(ctx context.Context, accessToken string, msg Message) error
}
