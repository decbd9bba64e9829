package transport

import "time"

type AuthorizeURLResponse struct {
	URL string `json:"url"`
}

// CallbackRequest carries the popup's round-trip result. Either Code or
// Error is set; the console forwards provider error strings verbatim.
type CallbackRequest struct {
	Provider string `json:"provider" validate:"required,oneof=microsoft365 gmail"`
	Code     string `json:"code" validate:"required_without=Error"`
	Error    string `json:"error" validate:"omitempty,max=100"`
}

type ConnectionResponse struct {
	Provider     string     `json:"provider"`
	Connected    bool       `json:"connected"`
	Usable       bool       `json:"usable"`
	MailboxEmail string     `json:"mailboxEmail,omitempty"`
	MailboxName  string     `json:"mailboxName,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

type StatusResponse struct {
	Country     string               `json:"country"`
	Connections []ConnectionResponse `json:"connections"`
}

type SetAdminConfigRequest struct {
	Provider  string `json:"provider" validate:"required,oneof=microsoft365 gmail"`
	ClientID  string `json:"clientId" validate:"required,max=200"`
	TenantID  string `json:"tenantId" validate:"omitempty,max=200"`
	Code      string `json:"code" validate:"required"`
	FromEmail string `json:"fromEmail" validate:"omitempty,email"`
	FromName  string `json:"fromName" validate:"omitempty,max=200"`
}

type AdminConfigResponse struct {
	Country   string    `json:"country"`
	Provider  string    `json:"provider"`
	ClientID  string    `json:"clientId"`
	TenantID  string    `json:"tenantId,omitempty"`
	FromEmail string    `json:"fromEmail"`
	FromName  string    `json:"fromName,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type TestSendRequest struct {
	Recipient string `json:"recipient" validate:"required,email"`
}

type TestSendResponse struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}
