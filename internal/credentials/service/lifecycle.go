package service

import (
	"context"
	"time"

	"casebook_backend/internal/events"
	"casebook_backend/internal/mailer"
)

// The token lifecycle runs the same three steps for both credential models:
// skew-adjusted local expiry, refresh when a refresh token is present, and a
// best-effort online check otherwise. A transient network failure falls back
// to the local verdict unless the service runs fail-closed; a definitive
// provider rejection clears the stored credential so the console shows a
// reconnect prompt instead of silently failing sends.

type persistTokensFunc func(ctx context.Context, t mailer.Token) error
type clearCredentialFunc func(ctx context.Context, reason string)

// IsUsable reports whether the credential can authorize a send right now.
// It may refresh and persist tokens as a side effect.
func (s *Service) IsUsable(ctx context.Context, cred Credential) bool {
	_, ok := s.usableAccessToken(ctx, cred,
		s.persistMailboxTokens(cred),
		s.clearMailbox(cred),
	)
	return ok
}

// usableAccessToken resolves a live access token for the credential, or
// reports it unusable. persist and clear bind the outcome back to whichever
// store the credential came from.
func (s *Service) usableAccessToken(ctx context.Context, cred Credential, persist persistTokensFunc, clear clearCredentialFunc) (string, bool) {
	p, err := s.provider(cred.Provider)
	if err != nil {
		return "", false
	}

	locallyValid := time.Now().Add(s.expirySkew).Before(cred.ExpiresAt)

	if !locallyValid {
		if cred.RefreshToken == "" {
			// Expired with no way to renew. Left in place so the console
			// can show the expired state rather than "never connected".
			return "", false
		}
		token, err := p.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			switch mailer.KindOf(err) {
			case mailer.KindExpired, mailer.KindPermissionDenied:
				clear(ctx, "refresh rejected by provider")
			default:
				s.log.CredentialEvent("refresh", cred.Country, cred.Provider, false, err.Error())
			}
			return "", false
		}
		if token.RefreshToken == "" {
			token.RefreshToken = cred.RefreshToken
		}
		if err := persist(ctx, token); err != nil {
			s.log.CredentialEvent("refresh", cred.Country, cred.Provider, false, "persist: "+err.Error())
			// The token itself is good for this send even if storage lagged.
		}
		s.log.CredentialEvent("refresh", cred.Country, cred.Provider, true, "")
		return token.AccessToken, true
	}

	// Locally valid: revalidate online, since tokens can be revoked at the
	// provider long before their stamped expiry.
	if err := p.Validate(ctx, cred.AccessToken); err != nil {
		switch mailer.KindOf(err) {
		case mailer.KindExpired, mailer.KindPermissionDenied:
			clear(ctx, "token revoked at provider")
			return "", false
		case mailer.KindNetwork:
			if s.failClosed {
				s.log.CredentialEvent("validate", cred.Country, cred.Provider, false, "network error, fail-closed")
				return "", false
			}
			// Inconclusive check; trust the local expiry.
			return cred.AccessToken, true
		default:
			s.log.CredentialEvent("validate", cred.Country, cred.Provider, false, err.Error())
			return "", false
		}
	}
	return cred.AccessToken, true
}

func (s *Service) persistMailboxTokens(cred Credential) persistTokensFunc {
	return func(ctx context.Context, t mailer.Token) error {
		stored, err := s.encryptTokens(t)
		if err != nil {
			return err
		}
		return s.repo.UpdateMailboxTokens(ctx, cred.Country, cred.Provider, stored.access, stored.refresh, t.ExpiresAt)
	}
}

func (s *Service) clearMailbox(cred Credential) clearCredentialFunc {
	return func(ctx context.Context, reason string) {
		if err := s.repo.DeleteMailboxCredential(ctx, cred.Country, cred.Provider); err != nil {
			s.log.CredentialEvent("clear", cred.Country, cred.Provider, false, err.Error())
			return
		}
		s.log.CredentialEvent("clear", cred.Country, cred.Provider, true, reason)
		if s.bus != nil {
			s.bus.Publish(ctx, events.MailboxDisconnected{
				BaseEvent: events.NewBaseEvent(),
				Country:   cred.Country,
				Provider:  cred.Provider,
				Reason:    reason,
			})
		}
	}
}

func (s *Service) persistAdminTokens(cred Credential) persistTokensFunc {
	return func(ctx context.Context, t mailer.Token) error {
		stored, err := s.encryptTokens(t)
		if err != nil {
			return err
		}
		return s.repo.UpdateAdminTokens(ctx, cred.Country, stored.access, stored.refresh, t.ExpiresAt)
	}
}

func (s *Service) clearAdmin(cred Credential) clearCredentialFunc {
	return func(ctx context.Context, reason string) {
		if err := s.repo.DeleteAdminCredential(ctx, cred.Country); err != nil {
			s.log.CredentialEvent("clear-admin", cred.Country, cred.Provider, false, err.Error())
			return
		}
		s.log.CredentialEvent("clear-admin", cred.Country, cred.Provider, true, reason)
	}
}
