package delivery

import (
	"context"

	credsvc "casebook_backend/internal/credentials/service"
	"casebook_backend/internal/mailer"
	"casebook_backend/platform/cache"
	"casebook_backend/platform/config"
	"casebook_backend/platform/logger"
)

// CredentialSource resolves the sending credential for a country.
type CredentialSource interface {
	ActiveSendCredential(ctx context.Context, country string) (credsvc.SendCredential, error)
}

// Sender sends one message per resolved recipient set through the active
// credential for the country. Resolution results are held in a bounded TTL
// cache so a burst of notifications does not hammer the credential store
// and the providers' validation endpoints.
type Sender struct {
	source CredentialSource
	cache  *cache.TTL[string, credsvc.SendCredential]
	log    *logger.Logger
}

func NewSender(source CredentialSource, cfg config.DeliveryConfig, log *logger.Logger) *Sender {
	return &Sender{
		source: source,
		cache:  cache.NewTTL[string, credsvc.SendCredential](cfg.GetSenderCacheSize(), cfg.GetSenderCacheTTL()),
		log:    log,
	}
}

func (s *Sender) credentialFor(ctx context.Context, country string) (credsvc.SendCredential, error) {
	if cred, ok := s.cache.Get(country); ok {
		return cred, nil
	}
	cred, err := s.source.ActiveSendCredential(ctx, country)
	if err != nil {
		return credsvc.SendCredential{}, err
	}
	s.cache.Set(country, cred)
	return cred, nil
}

// Send delivers one message to the whole recipient set as a unit.
func (s *Sender) Send(ctx context.Context, country string, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}

	cred, err := s.credentialFor(ctx, country)
	if err != nil {
		return err
	}

	msg := mailer.Message{
		From:     cred.FromEmail,
		FromName: cred.FromName,
		To:       to,
		Subject:  subject,
		Body:     body,
	}

	err = cred.Provider.Send(ctx, cred.AccessToken, msg)
	if err == nil {
		s.log.MailEvent(country, subject, len(to), true, "")
		return nil
	}

	// A cached credential can go stale mid-TTL. Re-resolve once and retry
	// before reporting failure; resolution runs the full token lifecycle.
	if kind := mailer.KindOf(err); kind == mailer.KindExpired || kind == mailer.KindPermissionDenied {
		s.cache.Delete(country)
		cred, rerr := s.credentialFor(ctx, country)
		if rerr != nil {
			s.log.MailEvent(country, subject, len(to), false, rerr.Error())
			return rerr
		}
		msg.From = cred.FromEmail
		msg.FromName = cred.FromName
		if err = cred.Provider.Send(ctx, cred.AccessToken, msg); err == nil {
			s.log.MailEvent(country, subject, len(to), true, "")
			return nil
		}
	}

	s.log.MailEvent(country, subject, len(to), false, err.Error())
	return err
}
