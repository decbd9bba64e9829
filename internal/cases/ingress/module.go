package ingress

import (
	"casebook_backend/internal/events"
	apphttp "casebook_backend/internal/http"
	"casebook_backend/platform/logger"
	"casebook_backend/platform/validator"
)

// Module exposes the ingress endpoint the case-booking application calls
// when a case changes workflow status.
type Module struct {
	handler *Handler
}

var _ apphttp.Module = (*Module)(nil)

func NewModule(bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{handler: NewHandler(bus, val, log)}
}

func (m *Module) Name() string { return "cases" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.POST("/cases/status-changed", m.handler.StatusChanged)
}
