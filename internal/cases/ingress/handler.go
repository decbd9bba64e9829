package ingress

import (
	"net/http"

	"casebook_backend/internal/cases"
	"casebook_backend/internal/events"
	"casebook_backend/platform/httpkit"
	"casebook_backend/platform/logger"
	"casebook_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// statusChangedRequest is the payload the case-booking system posts when a
// case crosses a workflow transition.
type statusChangedRequest struct {
	CaseReference       string `json:"caseReference" validate:"required,max=100"`
	Country             string `json:"country" validate:"required,max=100"`
	Hospital            string `json:"hospital" validate:"omitempty,max=200"`
	Department          string `json:"department" validate:"omitempty,max=200"`
	Status              string `json:"status" validate:"required,max=50"`
	SubmittedBy         string `json:"submittedBy" validate:"omitempty,email"`
	Surgeon             string `json:"surgeon" validate:"omitempty,max=200"`
	ProcedureType       string `json:"procedureType" validate:"omitempty,max=200"`
	ProcedureName       string `json:"procedureName" validate:"omitempty,max=200"`
	SurgeryDate         string `json:"surgeryDate" validate:"omitempty,max=20"`
	SurgeryTime         string `json:"surgeryTime" validate:"omitempty,max=20"`
	SpecialInstructions string `json:"specialInstructions" validate:"omitempty,max=5000"`
}

type Handler struct {
	bus events.Bus
	val *validator.Validator
	log *logger.Logger
}

func NewHandler(bus events.Bus, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{bus: bus, val: val, log: log}
}

// StatusChanged accepts a transition report and hands it to the event bus.
// The notification pipeline picks it up from there; the caller gets a 202
// as soon as the event is accepted.
func (h *Handler) StatusChanged(c *gin.Context) {
	var req statusChangedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	if !cases.ValidStatus(cases.Status(req.Status)) {
		httpkit.Error(c, http.StatusBadRequest, "unknown workflow status: "+req.Status, nil)
		return
	}

	snapshot := cases.Snapshot{
		Reference:           req.CaseReference,
		Country:             req.Country,
		Hospital:            req.Hospital,
		Department:          req.Department,
		Status:              cases.Status(req.Status),
		SubmittedBy:         req.SubmittedBy,
		Surgeon:             req.Surgeon,
		ProcedureType:       req.ProcedureType,
		ProcedureName:       req.ProcedureName,
		SurgeryDate:         req.SurgeryDate,
		SurgeryTime:         req.SurgeryTime,
		SpecialInstructions: req.SpecialInstructions,
	}

	h.bus.Publish(c.Request.Context(), events.CaseStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		Case:      snapshot,
	})
	h.log.WithCountry(snapshot.Country).Info("case status change accepted",
		"case", snapshot.Reference, "status", snapshot.Status)

	c.Status(http.StatusAccepted)
}
