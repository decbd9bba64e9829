// Package service implements the credential engine: the interactive
// authorization flow, the token lifecycle (local expiry, refresh, online
// revalidation), and the centralized admin credential model. Two credential
// models coexist during the migration; resolution order lives in
// ActiveSendCredential.
package service

import (
	"context"
	"errors"
	"time"

	"casebook_backend/internal/credentials/repository"
	"casebook_backend/internal/credentials/tokencrypto"
	"casebook_backend/internal/events"
	"casebook_backend/internal/mailer"
	"casebook_backend/platform/apperr"
	"casebook_backend/platform/logger"
)

// Distinct authentication flow outcomes so the console can render an
// actionable next step instead of a generic failure.
var (
	// ErrAuthCancelled means the user aborted the interactive flow.
	ErrAuthCancelled = apperr.New(apperr.KindValidation, "authorization was cancelled")
	// ErrPopupBlocked means the console reported the popup never opened.
	ErrPopupBlocked = apperr.New(apperr.KindValidation, "authorization popup was blocked")
)

// Store is the persistence surface the service needs. Implemented by
// repository.Repository; tests substitute an in-memory fake.
type Store interface {
	GetMailboxCredential(ctx context.Context, country, provider string) (repository.MailboxCredential, error)
	ListMailboxCredentials(ctx context.Context, country string) ([]repository.MailboxCredential, error)
	UpsertMailboxCredential(ctx context.Context, c repository.MailboxCredential) error
	UpdateMailboxTokens(ctx context.Context, country, provider, accessToken string, refreshToken *string, expiresAt time.Time) error
	DeleteMailboxCredential(ctx context.Context, country, provider string) error
	GetAdminCredential(ctx context.Context, country string) (repository.AdminCredential, error)
	UpsertAdminCredential(ctx context.Context, c repository.AdminCredential) error
	UpdateAdminTokens(ctx context.Context, country, accessToken string, refreshToken *string, expiresAt time.Time) error
	DeleteAdminCredential(ctx context.Context, country string) error
}

// Credential is the decrypted view of a stored per-user credential.
type Credential struct {
	Country      string
	Provider     string
	AccessToken  string
	RefreshToken string // empty when the provider issued none
	ExpiresAt    time.Time
	MailboxEmail string
	MailboxName  string
	DisplayName  string
}

// Service orchestrates credential operations for all countries.
type Service struct {
	repo          Store
	providers     map[string]mailer.Provider
	bus           events.Bus
	log           *logger.Logger
	encryptionKey []byte
	expirySkew    time.Duration
	failClosed    bool
	redirectURL   string
}

// Config carries the settings the service reads at construction.
type Config struct {
	EncryptionKey []byte
	ExpirySkew    time.Duration
	// FailClosed switches the revalidation posture: when true, an
	// inconclusive online check reports the credential unusable instead of
	// falling back to the local expiry verdict.
	FailClosed  bool
	RedirectURL string
}

// New creates the credential service.
func New(repo Store, providers map[string]mailer.Provider, bus events.Bus, cfg Config, log *logger.Logger) *Service {
	skew := cfg.ExpirySkew
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	return &Service{
		repo:          repo,
		providers:     providers,
		bus:           bus,
		log:           log,
		encryptionKey: cfg.EncryptionKey,
		expirySkew:    skew,
		failClosed:    cfg.FailClosed,
		redirectURL:   cfg.RedirectURL,
	}
}

func (s *Service) provider(name string) (mailer.Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		if mailer.KnownProvider(name) {
			return nil, apperr.Configuration("mail provider " + name + " is not configured")
		}
		return nil, apperr.Validation("unknown mail provider: " + name)
	}
	return p, nil
}

// AuthorizeURL builds the interactive authorization URL for the console's
// popup. A provider without a configured client id is a configuration
// error surfaced before any flow is offered, never retried.
func (s *Service) AuthorizeURL(provider, state string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}
	return p.AuthorizeURL(s.redirectURL, state), nil
}

// Authenticate completes the authorization-code exchange for a country and
// provider, fetches the mailbox identity, and persists the credential,
// superseding any prior connection for the same (country, provider).
func (s *Service) Authenticate(ctx context.Context, country, provider, code, actor string) (Credential, error) {
	p, err := s.provider(provider)
	if err != nil {
		return Credential{}, err
	}

	token, err := p.ExchangeCode(ctx, code, s.redirectURL)
	if err != nil {
		s.log.CredentialEvent("exchange", country, provider, false, err.Error())
		return Credential{}, apperr.Wrap(apperr.KindUnauthorized, "authorization code exchange failed", err)
	}

	identity, err := p.UserInfo(ctx, token.AccessToken)
	if err != nil {
		s.log.CredentialEvent("userinfo", country, provider, false, err.Error())
		return Credential{}, apperr.Wrap(apperr.KindUnauthorized, "could not read mailbox identity", err)
	}

	stored, err := s.encryptTokens(token)
	if err != nil {
		return Credential{}, apperr.Wrap(apperr.KindInternal, "encrypt tokens", err)
	}

	rec := repository.MailboxCredential{
		Country:      country,
		Provider:     provider,
		AccessToken:  stored.access,
		RefreshToken: stored.refresh,
		ExpiresAt:    token.ExpiresAt,
		MailboxEmail: identity.Email,
		MailboxName:  identity.Name,
		DisplayName:  identity.Name,
		ConnectedBy:  actor,
	}
	if err := s.repo.UpsertMailboxCredential(ctx, rec); err != nil {
		return Credential{}, apperr.Wrap(apperr.KindInternal, "persist credential", err)
	}

	s.log.CredentialEvent("connect", country, provider, true, "")
	if s.bus != nil {
		s.bus.Publish(ctx, events.MailboxConnected{
			BaseEvent: events.NewBaseEvent(),
			Country:   country,
			Provider:  provider,
			Mailbox:   identity.Email,
		})
	}

	return s.decryptCredential(rec)
}

// Disconnect removes the stored per-user credential for (country, provider).
func (s *Service) Disconnect(ctx context.Context, country, provider string) error {
	if !mailer.KnownProvider(provider) {
		return apperr.Validation("unknown mail provider: " + provider)
	}
	if err := s.repo.DeleteMailboxCredential(ctx, country, provider); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("no mailbox connected for this provider")
		}
		return apperr.Wrap(apperr.KindInternal, "remove credential", err)
	}
	s.log.CredentialEvent("disconnect", country, provider, true, "")
	if s.bus != nil {
		s.bus.Publish(ctx, events.MailboxDisconnected{
			BaseEvent: events.NewBaseEvent(),
			Country:   country,
			Provider:  provider,
			Reason:    "disconnected by administrator",
		})
	}
	return nil
}

// ConnectionStatus describes one provider connection for the console.
type ConnectionStatus struct {
	Provider     string
	Connected    bool
	Usable       bool
	MailboxEmail string
	MailboxName  string
	ExpiresAt    time.Time
}

// Status reports the connection state for every supported provider in a
// country. The usable flag runs the full lifecycle check, so this call may
// refresh tokens as a side effect.
func (s *Service) Status(ctx context.Context, country string) ([]ConnectionStatus, error) {
	stored, err := s.repo.ListMailboxCredentials(ctx, country)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list credentials", err)
	}

	byProvider := make(map[string]repository.MailboxCredential, len(stored))
	for _, c := range stored {
		byProvider[c.Provider] = c
	}

	result := make([]ConnectionStatus, 0, len(s.providers))
	for _, name := range []string{mailer.ProviderMicrosoft365, mailer.ProviderGmail} {
		if _, configured := s.providers[name]; !configured {
			continue
		}
		rec, ok := byProvider[name]
		if !ok {
			result = append(result, ConnectionStatus{Provider: name})
			continue
		}
		cred, err := s.decryptCredential(rec)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "decrypt credential", err)
		}
		result = append(result, ConnectionStatus{
			Provider:     name,
			Connected:    true,
			Usable:       s.IsUsable(ctx, cred),
			MailboxEmail: cred.MailboxEmail,
			MailboxName:  cred.MailboxName,
			ExpiresAt:    cred.ExpiresAt,
		})
	}
	return result, nil
}

// ── token encryption helpers ──

type storedTokens struct {
	access  string
	refresh *string
}

// encryptTokens encrypts both tokens for storage. With no key configured
// the tokens pass through in the clear (development only).
func (s *Service) encryptTokens(t mailer.Token) (storedTokens, error) {
	out := storedTokens{access: t.AccessToken}
	if t.RefreshToken != "" {
		refresh := t.RefreshToken
		out.refresh = &refresh
	}
	if len(s.encryptionKey) == 0 {
		return out, nil
	}

	enc, err := tokencrypto.Encrypt(t.AccessToken, s.encryptionKey)
	if err != nil {
		return storedTokens{}, err
	}
	out.access = enc

	if out.refresh != nil {
		encRefresh, err := tokencrypto.Encrypt(*out.refresh, s.encryptionKey)
		if err != nil {
			return storedTokens{}, err
		}
		out.refresh = &encRefresh
	}
	return out, nil
}

func (s *Service) decryptToken(stored string) (string, error) {
	if len(s.encryptionKey) == 0 {
		return stored, nil
	}
	return tokencrypto.Decrypt(stored, s.encryptionKey)
}

func (s *Service) decryptCredential(rec repository.MailboxCredential) (Credential, error) {
	access, err := s.decryptToken(rec.AccessToken)
	if err != nil {
		return Credential{}, err
	}
	refresh := ""
	if rec.RefreshToken != nil && *rec.RefreshToken != "" {
		refresh, err = s.decryptToken(*rec.RefreshToken)
		if err != nil {
			return Credential{}, err
		}
	}
	return Credential{
		Country:      rec.Country,
		Provider:     rec.Provider,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    rec.ExpiresAt,
		MailboxEmail: rec.MailboxEmail,
		MailboxName:  rec.MailboxName,
		DisplayName:  rec.DisplayName,
	}, nil
}
