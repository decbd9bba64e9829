package handler

import (
	"net/http"
	"strings"

	"casebook_backend/internal/cases"
	"casebook_backend/internal/delivery"
	"casebook_backend/internal/rules/service"
	"casebook_backend/internal/rules/transport"
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
	rg.GET("/notifications/:country/rules", h.GetMatrix)
	rg.PATCH("/notifications/:country/rules/:status", h.UpdateRule)
	rg.PUT("/notifications/:country/rules", h.SaveMatrix)
	rg.POST("/notifications/preview", h.Preview)
}

func country(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("country")))
}

func (h *Handler) GetMatrix(c *gin.Context) {
	rules, err := h.svc.GetRules(c.Request.Context(), country(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, matrixResponse(country(c), rules))
}

func (h *Handler) UpdateRule(c *gin.Context) {
	var req transport.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rule, err := h.svc.UpdateRule(c.Request.Context(), country(c), c.Param("status"), service.RulePatch{
		Enabled:               req.Enabled,
		Roles:                 req.Roles,
		Emails:                req.Emails,
		Departments:           req.Departments,
		IncludeSubmitter:      req.IncludeSubmitter,
		RequireSameDepartment: req.RequireSameDepartment,
		Subject:               req.Subject,
		Body:                  req.Body,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ruleResponse(rule))
}

func (h *Handler) SaveMatrix(c *gin.Context) {
	var req transport.SaveMatrixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	input := make([]service.MatrixInput, 0, len(req.Rules))
	for _, r := range req.Rules {
		input = append(input, service.MatrixInput{
			Status:                r.Status,
			Enabled:               r.Enabled,
			Roles:                 r.Roles,
			Emails:                r.Emails,
			Departments:           r.Departments,
			IncludeSubmitter:      r.IncludeSubmitter,
			RequireSameDepartment: r.RequireSameDepartment,
			Subject:               r.Subject,
			Body:                  r.Body,
		})
	}

	rules, err := h.svc.SaveMatrix(c.Request.Context(), country(c), input)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, matrixResponse(country(c), rules))
}

// Preview renders a draft template against a representative case so admins
// can check placeholder usage before saving.
func (h *Handler) Preview(c *gin.Context) {
	var req transport.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	sample := cases.Snapshot{
		Reference:     "SG-2024-001",
		Country:       "Singapore",
		Hospital:      "General Hospital",
		Department:    "Theatre",
		Status:        cases.StatusCaseBooked,
		SubmittedBy:   "nurse@hospital.example",
		Surgeon:       "Dr. Tan",
		ProcedureType: "Orthopaedic",
		ProcedureName: "Total knee replacement",
		SurgeryDate:   "2024-06-01",
		SurgeryTime:   "09:30",
	}
	httpkit.OK(c, transport.PreviewResponse{
		Subject: delivery.Render(req.Subject, sample),
		Body:    delivery.Render(req.Body, sample),
	})
}

func ruleResponse(r service.Rule) transport.RuleResponse {
	resp := transport.RuleResponse{
		Status:                r.Status,
		Enabled:               r.Enabled,
		Roles:                 r.Roles,
		Emails:                r.Emails,
		Departments:           r.Departments,
		IncludeSubmitter:      r.IncludeSubmitter,
		RequireSameDepartment: r.RequireSameDepartment,
		Subject:               r.Subject,
		Body:                  r.Body,
		Persisted:             r.Persisted,
	}
	if r.Persisted {
		updated := r.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

func matrixResponse(country string, rules []service.Rule) transport.MatrixResponse {
	out := transport.MatrixResponse{Country: country, Rules: make([]transport.RuleResponse, 0, len(rules))}
	for _, r := range rules {
		out.Rules = append(out.Rules, ruleResponse(r))
	}
	return out
}
