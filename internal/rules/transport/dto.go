package transport

import "time"

type RuleResponse struct {
	Status                string     `json:"status"`
	Enabled               bool       `json:"enabled"`
	Roles                 []string   `json:"roles"`
	Emails                []string   `json:"emails"`
	Departments           []string   `json:"departments"`
	IncludeSubmitter      bool       `json:"includeSubmitter"`
	RequireSameDepartment bool       `json:"requireSameDepartment"`
	Subject               string     `json:"subject"`
	Body                  string     `json:"body"`
	Persisted             bool       `json:"persisted"`
	UpdatedAt             *time.Time `json:"updatedAt,omitempty"`
}

type MatrixResponse struct {
	Country string         `json:"country"`
	Rules   []RuleResponse `json:"rules"`
}

type UpdateRuleRequest struct {
	Enabled               *bool     `json:"enabled"`
	Roles                 *[]string `json:"roles" validate:"omitempty,dive,required,max=100"`
	Emails                *[]string `json:"emails" validate:"omitempty,dive,email"`
	Departments           *[]string `json:"departments" validate:"omitempty,dive,required,max=200"`
	IncludeSubmitter      *bool     `json:"includeSubmitter"`
	RequireSameDepartment *bool     `json:"requireSameDepartment"`
	Subject               *string   `json:"subject" validate:"omitempty,max=500"`
	Body                  *string   `json:"body" validate:"omitempty,max=20000"`
}

type MatrixRuleInput struct {
	Status                string   `json:"status" validate:"required,max=50"`
	Enabled               bool     `json:"enabled"`
	Roles                 []string `json:"roles" validate:"omitempty,dive,required,max=100"`
	Emails                []string `json:"emails" validate:"omitempty,dive,email"`
	Departments           []string `json:"departments" validate:"omitempty,dive,required,max=200"`
	IncludeSubmitter      bool     `json:"includeSubmitter"`
	RequireSameDepartment bool     `json:"requireSameDepartment"`
	Subject               string   `json:"subject" validate:"required,max=500"`
	Body                  string   `json:"body" validate:"required,max=20000"`
}

type SaveMatrixRequest struct {
	Rules []MatrixRuleInput `json:"rules" validate:"required,min=1,dive"`
}

type PreviewRequest struct {
	Subject string `json:"subject" validate:"required,max=500"`
	Body    string `json:"body" validate:"required,max=20000"`
}

type PreviewResponse struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
