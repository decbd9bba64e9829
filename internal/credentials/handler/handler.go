package handler

import (
	"net/http"
	"strings"

	"casebook_backend/internal/credentials/service"
	"casebook_backend/internal/credentials/transport"
	"casebook_backend/platform/httpkit"
	"casebook_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/mail/:country/status", h.Status)
	rg.GET("/mail/:country/authorize-url", h.AuthorizeURL)
	rg.POST("/mail/:country/callback", h.Callback)
	rg.DELETE("/mail/:country/providers/:provider", h.Disconnect)
	rg.GET("/mail/:country/admin-config", h.GetAdminConfig)
	rg.PUT("/mail/:country/admin-config", h.SetAdminConfig)
	rg.DELETE("/mail/:country/admin-config", h.RemoveAdminConfig)
	rg.POST("/mail/:country/admin-config/test", h.TestAdminConfig)
}

// country normalizes the path segment to the uppercase country code.
func country(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("country")))
}

func (h *Handler) Status(c *gin.Context) {
	statuses, err := h.svc.Status(c.Request.Context(), country(c))
	if httpkit.HandleError(c, err) {
		return
	}

	connections := make([]transport.ConnectionResponse, 0, len(statuses))
	for _, s := range statuses {
		conn := transport.ConnectionResponse{
			Provider:     s.Provider,
			Connected:    s.Connected,
			Usable:       s.Usable,
			MailboxEmail: s.MailboxEmail,
			MailboxName:  s.MailboxName,
		}
		if s.Connected {
			expires := s.ExpiresAt
			conn.ExpiresAt = &expires
		}
		connections = append(connections, conn)
	}
	httpkit.OK(c, transport.StatusResponse{Country: country(c), Connections: connections})
}

func (h *Handler) AuthorizeURL(c *gin.Context) {
	provider := c.Query("provider")
	state := c.Query("state")
	if provider == "" {
		httpkit.Error(c, http.StatusBadRequest, "provider query parameter is required", nil)
		return
	}

	url, err := h.svc.AuthorizeURL(provider, state)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.AuthorizeURLResponse{URL: url})
}

func (h *Handler) Callback(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	// The popup reports failures through the error field so each outcome
	// gets a distinct, actionable response.
	switch req.Error {
	case "":
	case "access_denied":
		httpkit.HandleError(c, service.ErrAuthCancelled)
		return
	case "popup_blocked", "popup_closed":
		httpkit.HandleError(c, service.ErrPopupBlocked)
		return
	default:
		httpkit.Error(c, http.StatusBadRequest, "authorization failed: "+req.Error, nil)
		return
	}

	cred, err := h.svc.Authenticate(c.Request.Context(), country(c), req.Provider, req.Code, identity.Email())
	if httpkit.HandleError(c, err) {
		return
	}

	expires := cred.ExpiresAt
	httpkit.OK(c, transport.ConnectionResponse{
		Provider:     cred.Provider,
		Connected:    true,
		Usable:       true,
		MailboxEmail: cred.MailboxEmail,
		MailboxName:  cred.MailboxName,
		ExpiresAt:    &expires,
	})
}

func (h *Handler) Disconnect(c *gin.Context) {
	err := h.svc.Disconnect(c.Request.Context(), country(c), c.Param("provider"))
	if httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetAdminConfig(c *gin.Context) {
	cfg, err := h.svc.GetAdminMailConfig(c.Request.Context(), country(c))
	if httpkit.HandleError(c, err) {
		return
	}
	if cfg == nil {
		httpkit.OK(c, nil)
		return
	}
	httpkit.OK(c, adminConfigResponse(cfg))
}

func (h *Handler) SetAdminConfig(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.SetAdminConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	cfg, err := h.svc.SetAdminMailConfig(c.Request.Context(), service.AdminConfigInput{
		Country:   country(c),
		Provider:  req.Provider,
		ClientID:  req.ClientID,
		TenantID:  req.TenantID,
		Code:      req.Code,
		FromEmail: req.FromEmail,
		FromName:  req.FromName,
		Actor:     identity.Email(),
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, adminConfigResponse(cfg))
}

func (h *Handler) RemoveAdminConfig(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	err := h.svc.RemoveAdminMailConfig(c.Request.Context(), country(c), identity.Email())
	if httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) TestAdminConfig(c *gin.Context) {
	var req transport.TestSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	res, err := h.svc.TestAdminMailConfig(c.Request.Context(), country(c), req.Recipient)
	if httpkit.HandleError(c, err) {
		return
	}
	resp := transport.TestSendResponse{Success: res.Success, Message: res.Message}
	if !res.Success {
		resp.Kind = res.Kind.String()
	}
	httpkit.OK(c, resp)
}

func adminConfigResponse(cfg *service.AdminConfig) transport.AdminConfigResponse {
	return transport.AdminConfigResponse{
		Country:   cfg.Country,
		Provider:  cfg.Provider,
		ClientID:  cfg.ClientID,
		TenantID:  cfg.TenantID,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
		ExpiresAt: cfg.ExpiresAt,
		UpdatedBy: cfg.UpdatedBy,
		UpdatedAt: cfg.UpdatedAt,
	}
}
