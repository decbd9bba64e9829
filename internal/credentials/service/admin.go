package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"casebook_backend/internal/credentials/repository"
	"casebook_backend/internal/mailer"
	"casebook_backend/platform/apperr"
)

// AdminConfig is the decrypted centralized credential for a country.
type AdminConfig struct {
	Country   string
	Provider  string
	ClientID  string
	TenantID  string
	FromEmail string
	FromName  string
	ExpiresAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

// AdminConfigInput carries the settings panel's submission. Code is the
// authorization code from the popup round-trip for the sending mailbox.
type AdminConfigInput struct {
	Country   string
	Provider  string
	ClientID  string
	TenantID  string
	Code      string
	FromEmail string
	FromName  string
	Actor     string
}

// SetAdminMailConfig exchanges the authorization code and stores the
// centralized credential, replacing any previous one for the country.
func (s *Service) SetAdminMailConfig(ctx context.Context, in AdminConfigInput) (*AdminConfig, error) {
	p, err := s.provider(in.Provider)
	if err != nil {
		return nil, err
	}
	if in.ClientID == "" {
		return nil, apperr.Configuration("mail provider client id is not configured")
	}

	token, err := p.ExchangeCode(ctx, in.Code, s.redirectURL)
	if err != nil {
		s.log.CredentialEvent("admin-exchange", in.Country, in.Provider, false, err.Error())
		return nil, apperr.Wrap(apperr.KindUnauthorized, "authorization code exchange failed", err)
	}

	fromEmail, fromName := in.FromEmail, in.FromName
	if fromEmail == "" {
		identity, err := p.UserInfo(ctx, token.AccessToken)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnauthorized, "could not read sending mailbox identity", err)
		}
		fromEmail = identity.Email
		if fromName == "" {
			fromName = identity.Name
		}
	}

	stored, err := s.encryptTokens(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "encrypt tokens", err)
	}

	rec := repository.AdminCredential{
		Country:      in.Country,
		Provider:     in.Provider,
		ClientID:     in.ClientID,
		AccessToken:  stored.access,
		RefreshToken: stored.refresh,
		ExpiresAt:    token.ExpiresAt,
		FromEmail:    fromEmail,
		FromName:     fromName,
		UpdatedBy:    in.Actor,
	}
	if in.TenantID != "" {
		tenant := in.TenantID
		rec.TenantID = &tenant
	}
	if err := s.repo.UpsertAdminCredential(ctx, rec); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "persist admin credential", err)
	}

	s.log.CredentialEvent("admin-set", in.Country, in.Provider, true, "by "+in.Actor)
	cfg := s.adminConfigView(rec)
	return &cfg, nil
}

// GetAdminMailConfig returns the stored centralized configuration, or
// (nil, nil) when the country has none. Tokens are never exposed.
func (s *Service) GetAdminMailConfig(ctx context.Context, country string) (*AdminConfig, error) {
	rec, err := s.repo.GetAdminCredential(ctx, country)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load admin credential", err)
	}
	cfg := s.adminConfigView(rec)
	return &cfg, nil
}

// RemoveAdminMailConfig deletes the centralized credential for a country.
func (s *Service) RemoveAdminMailConfig(ctx context.Context, country, actor string) error {
	if err := s.repo.DeleteAdminCredential(ctx, country); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("no centralized mail configuration for this country")
		}
		return apperr.Wrap(apperr.KindInternal, "remove admin credential", err)
	}
	s.log.CredentialEvent("admin-remove", country, "", true, "by "+actor)
	return nil
}

// TestResult reports a live test send. Kind carries the normalized provider
// diagnosis so the console can suggest a fix.
type TestResult struct {
	Success bool
	Kind    mailer.ErrorKind
	Message string
}

// TestAdminMailConfig performs a live send through the centralized
// credential to the given recipient.
func (s *Service) TestAdminMailConfig(ctx context.Context, country, recipient string) (TestResult, error) {
	rec, err := s.repo.GetAdminCredential(ctx, country)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TestResult{}, apperr.NotFound("no centralized mail configuration for this country")
		}
		return TestResult{}, apperr.Wrap(apperr.KindInternal, "load admin credential", err)
	}
	cred, err := s.decryptAdminCredential(rec)
	if err != nil {
		return TestResult{}, apperr.Wrap(apperr.KindInternal, "decrypt admin credential", err)
	}
	p, err := s.provider(cred.Provider)
	if err != nil {
		return TestResult{}, err
	}

	access, ok := s.usableAccessToken(ctx, cred, s.persistAdminTokens(cred), s.clearAdmin(cred))
	if !ok {
		return TestResult{Kind: mailer.KindExpired, Message: "stored credential is no longer usable, reconnect required"}, nil
	}

	msg := mailer.Message{
		From:     rec.FromEmail,
		FromName: rec.FromName,
		To:       []string{recipient},
		Subject:  "Case booking mail configuration test",
		Body: fmt.Sprintf("This is a test message confirming the %s mail configuration for %s is working.",
			cred.Provider, country),
	}
	if err := p.Send(ctx, access, msg); err != nil {
		kind := mailer.KindOf(err)
		s.log.CredentialEvent("admin-test", country, cred.Provider, false, err.Error())
		return TestResult{Kind: kind, Message: err.Error()}, nil
	}
	s.log.CredentialEvent("admin-test", country, cred.Provider, true, "")
	return TestResult{Success: true}, nil
}

// SendCredential is a resolved, ready-to-use sending identity.
type SendCredential struct {
	Provider    mailer.Provider
	AccessToken string
	FromEmail   string
	FromName    string
	// Source is "admin" or "mailbox", for logging.
	Source string
}

// ActiveSendCredential resolves the credential automated delivery should
// use for a country. The centralized admin credential wins; per-user
// connections are the fallback, tried in provider preference order. Every
// candidate passes through the full token lifecycle.
func (s *Service) ActiveSendCredential(ctx context.Context, country string) (SendCredential, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if rec, err := s.repo.GetAdminCredential(ctx, country); err == nil {
		cred, derr := s.decryptAdminCredential(rec)
		if derr != nil {
			return SendCredential{}, apperr.Wrap(apperr.KindInternal, "decrypt admin credential", derr)
		}
		if access, ok := s.usableAccessToken(ctx, cred, s.persistAdminTokens(cred), s.clearAdmin(cred)); ok {
			p, perr := s.provider(cred.Provider)
			if perr != nil {
				return SendCredential{}, perr
			}
			return SendCredential{
				Provider:    p,
				AccessToken: access,
				FromEmail:   rec.FromEmail,
				FromName:    rec.FromName,
				Source:      "admin",
			}, nil
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return SendCredential{}, apperr.Wrap(apperr.KindInternal, "load admin credential", err)
	}

	stored, err := s.repo.ListMailboxCredentials(ctx, country)
	if err != nil {
		return SendCredential{}, apperr.Wrap(apperr.KindInternal, "list credentials", err)
	}
	byProvider := make(map[string]repository.MailboxCredential, len(stored))
	for _, c := range stored {
		byProvider[c.Provider] = c
	}
	for _, name := range []string{mailer.ProviderMicrosoft365, mailer.ProviderGmail} {
		rec, ok := byProvider[name]
		if !ok {
			continue
		}
		cred, derr := s.decryptCredential(rec)
		if derr != nil {
			return SendCredential{}, apperr.Wrap(apperr.KindInternal, "decrypt credential", derr)
		}
		access, usable := s.usableAccessToken(ctx, cred, s.persistMailboxTokens(cred), s.clearMailbox(cred))
		if !usable {
			continue
		}
		p, perr := s.provider(name)
		if perr != nil {
			continue
		}
		return SendCredential{
			Provider:    p,
			AccessToken: access,
			FromEmail:   cred.MailboxEmail,
			FromName:    cred.MailboxName,
			Source:      "mailbox",
		}, nil
	}

	return SendCredential{}, apperr.Configuration("no usable mail credential for country " + country)
}

func (s *Service) adminConfigView(rec repository.AdminCredential) AdminConfig {
	cfg := AdminConfig{
		Country:   rec.Country,
		Provider:  rec.Provider,
		ClientID:  rec.ClientID,
		FromEmail: rec.FromEmail,
		FromName:  rec.FromName,
		ExpiresAt: rec.ExpiresAt,
		UpdatedBy: rec.UpdatedBy,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.TenantID != nil {
		cfg.TenantID = *rec.TenantID
	}
	return cfg
}

func (s *Service) decryptAdminCredential(rec repository.AdminCredential) (Credential, error) {
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
		MailboxEmail: rec.FromEmail,
		MailboxName:  rec.FromName,
	}, nil
}
