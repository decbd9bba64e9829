// Package rules wires the notification rule matrix bounded context.
package rules

import (
	"time"

	apphttp "casebook_backend/internal/http"
	"casebook_backend/internal/rules/handler"
	"casebook_backend/internal/rules/repository"
	"casebook_backend/internal/rules/service"
	"casebook_backend/platform/cache"
	"casebook_backend/platform/logger"
	"casebook_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, log *logger.Logger, val *validator.Validator) *Module {
	fallback := cache.NewTTL[string, []service.Rule](64, 5*time.Minute)
	svc := service.New(repository.New(pool), log, fallback)
	return &Module{
		svc:     svc,
		handler: handler.New(svc, val),
	}
}

func (m *Module) Name() string { return "rules" }

// Service exposes the rule matrix to the delivery module.
func (m *Module) Service() *service.Service { return m.svc }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin)
}

var _ apphttp.Module = (*Module)(nil)
