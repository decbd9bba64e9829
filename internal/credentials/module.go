// Package credentials wires the mail credential bounded context: the
// per-user mailbox connections, the centralized admin credential, and the
// token lifecycle behind both.
package credentials

import (
	"casebook_backend/internal/credentials/handler"
	"casebook_backend/internal/credentials/repository"
	"casebook_backend/internal/credentials/service"
	"casebook_backend/internal/events"
	apphttp "casebook_backend/internal/http"
	"casebook_backend/internal/mailer"
	"casebook_backend/platform/config"
	"casebook_backend/platform/logger"
	"casebook_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig combines the config interfaces the module reads.
type ModuleConfig interface {
	config.MailProviderConfig
	config.CredentialConfig
}

type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

// NewModule builds the credential module. Providers without a configured
// client id are left out, so the console only offers flows that can finish.
func NewModule(pool *pgxpool.Pool, bus events.Bus, cfg ModuleConfig, log *logger.Logger, val *validator.Validator) *Module {
	providers := make(map[string]mailer.Provider)
	if cfg.GetMicrosoftClientID() != "" {
		providers[mailer.ProviderMicrosoft365] = mailer.NewMicrosoftProvider(
			cfg.GetMicrosoftClientID(), cfg.GetMicrosoftClientSecret(), cfg.GetMicrosoftTenantID())
	}
	if cfg.GetGoogleClientID() != "" {
		providers[mailer.ProviderGmail] = mailer.NewGmailProvider(
			cfg.GetGoogleClientID(), cfg.GetGoogleClientSecret())
	}

	svc := service.New(repository.New(pool), providers, bus, service.Config{
		EncryptionKey: cfg.GetTokenEncryptionKey(),
		ExpirySkew:    cfg.GetTokenExpirySkew(),
		FailClosed:    cfg.GetRevalidationFailClosed(),
		RedirectURL:   cfg.GetOAuthRedirectURL(),
	}, log)

	return &Module{
		svc:     svc,
		handler: handler.New(svc, val),
	}
}

func (m *Module) Name() string { return "credentials" }

// Service exposes the credential service to the delivery module.
func (m *Module) Service() *service.Service { return m.svc }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin)
}

var _ apphttp.Module = (*Module)(nil)
