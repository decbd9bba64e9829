// Package cases defines the case-booking workflow vocabulary shared by the
// notification engine: the closed status enumeration and the case snapshot
// handed to recipient resolution and template rendering. The case-booking
// application itself (forms, status transitions, attachments) lives outside
// this service and communicates through events carrying these types.
package cases

import "strings"

// Status is one value in the fixed, ordered set of case lifecycle states.
type Status string

const (
	StatusCaseBooked        Status = "CaseBooked"
	StatusOrderPreparation  Status = "OrderPreparation"
	StatusOrderPrepared     Status = "OrderPrepared"
	StatusPendingDelivery   Status = "PendingDelivery"
	StatusDelivered         Status = "Delivered"
	StatusCaseCompleted     Status = "CaseCompleted"
	StatusDeliveredToOffice Status = "DeliveredToOffice"
	StatusToBeBilled        Status = "ToBeBilled"
	StatusCaseCancelled     Status = "CaseCancelled"
	StatusCaseClosed        Status = "CaseClosed"
)

// AllStatuses returns the full workflow enumeration in pipeline order,
// terminal states last. The order is part of the contract: the default
// rule matrix is generated from this slice, so it must be deterministic.
func AllStatuses() []Status {
	return []Status{
		StatusCaseBooked,
		StatusOrderPreparation,
		StatusOrderPrepared,
		StatusPendingDelivery,
		StatusDelivered,
		StatusCaseCompleted,
		StatusDeliveredToOffice,
		StatusToBeBilled,
		StatusCaseCancelled,
		StatusCaseClosed,
	}
}

// ValidStatus reports whether s names a known workflow status.
func ValidStatus(s Status) bool {
	for _, known := range AllStatuses() {
		if known == s {
			return true
		}
	}
	return false
}

// Label returns a human-readable form of the status for template defaults
// ("OrderPreparation" → "Order Preparation").
func (s Status) Label() string {
	var b strings.Builder
	for i, r := range string(s) {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Snapshot is the immutable view of a case record at the moment a status
// transition fires. Template placeholders resolve against Fields().
type Snapshot struct {
	Reference           string `json:"caseReference"`
	Country             string `json:"country"`
	Hospital            string `json:"hospital"`
	Department          string `json:"department"`
	Status              Status `json:"status"`
	SubmittedBy         string `json:"submittedBy"` // submitter email, may be empty
	Surgeon             string `json:"surgeon"`
	ProcedureType       string `json:"procedureType"`
	ProcedureName       string `json:"procedureName"`
	SurgeryDate         string `json:"surgeryDate"`
	SurgeryTime         string `json:"surgeryTime"`
	SpecialInstructions string `json:"specialInstructions"`
}

// Fields returns the placeholder-name to value mapping used by the template
// renderer. Keys are stored lowercased; lookups are case-insensitive.
func (s Snapshot) Fields() map[string]string {
	return map[string]string{
		"casereference":       s.Reference,
		"country":             s.Country,
		"hospital":            s.Hospital,
		"department":          s.Department,
		"status":              string(s.Status),
		"submittedby":         s.SubmittedBy,
		"surgeon":             s.Surgeon,
		"proceduretype":       s.ProcedureType,
		"procedurename":       s.ProcedureName,
		"surgerydate":         s.SurgeryDate,
		"surgerytime":         s.SurgeryTime,
		"specialinstructions": s.SpecialInstructions,
	}
}
