package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	graphBaseURL      = "https://graph.microsoft.com/v1.0"
	microsoftLoginURL = "https://login.microsoftonline.com"
	graphScopes       = "offline_access openid email profile https://graph.microsoft.com/Mail.Send https://graph.microsoft.com/User.Read"
)

// MicrosoftProvider talks to the Microsoft identity platform and the Graph
// API. Message submission goes through /users/{mailbox}/sendMail so the
// centralized admin credential can send from a shared mailbox.
type MicrosoftProvider struct {
	clientID     string
	clientSecret string
	tenantID     string
	client       *http.Client
}

// NewMicrosoftProvider creates the Microsoft 365 provider. tenantID may be
// "common" for multi-tenant app registrations.
func NewMicrosoftProvider(clientID, clientSecret, tenantID string) *MicrosoftProvider {
	if tenantID == "" {
		tenantID = "common"
	}
	return &MicrosoftProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		tenantID:     tenantID,
		client:       &http.Client{Timeout: 20 * time.Second},
	}
}

func (p *MicrosoftProvider) Name() string { return ProviderMicrosoft365 }

func (p *MicrosoftProvider) AuthorizeURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", p.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", redirectURI)
	q.Set("response_mode", "query")
	q.Set("scope", graphScopes)
	q.Set("state", state)
	return fmt.Sprintf("%s/%s/oauth2/v2.0/authorize?%s", microsoftLoginURL, p.tenantID, q.Encode())
}

func (p *MicrosoftProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("scope", graphScopes)
	return p.tokenRequest(ctx, form)
}

func (p *MicrosoftProvider) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("scope", graphScopes)
	return p.tokenRequest(ctx, form)
}

func (p *MicrosoftProvider) tokenRequest(ctx context.Context, form url.Values) (Token, error) {
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", microsoftLoginURL, p.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, newError(KindUnknown, p.Name(), "build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return Token{}, newError(KindNetwork, p.Name(), "token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, newError(KindNetwork, p.Name(), "read token response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Token{}, newError(tokenErrorKind(body, resp.StatusCode), p.Name(),
			fmt.Sprintf("token endpoint status %d", resp.StatusCode), nil)
	}

	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Token{}, newError(KindUnknown, p.Name(), "decode token response", err)
	}

	return Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}

// tokenErrorKind inspects an OAuth error payload. invalid_grant means the
// code or refresh token is spent/expired; consent errors surface as
// permission denied so the console offers re-consent.
func tokenErrorKind(body []byte, status int) ErrorKind {
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		switch parsed.Error {
		case "invalid_grant", "interaction_required":
			return KindExpired
		case "consent_required", "access_denied":
			return KindPermissionDenied
		}
	}
	return classifyHTTPStatus(status)
}

func (p *MicrosoftProvider) UserInfo(ctx context.Context, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graphBaseURL+"/me", nil)
	if err != nil {
		return Identity{}, newError(KindUnknown, p.Name(), "build userinfo request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return Identity{}, newError(KindNetwork, p.Name(), "userinfo unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, newError(classifyHTTPStatus(resp.StatusCode), p.Name(),
			fmt.Sprintf("userinfo status %d", resp.StatusCode), nil)
	}

	var me struct {
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return Identity{}, newError(KindUnknown, p.Name(), "decode userinfo", err)
	}

	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	return Identity{Email: email, Name: me.DisplayName}, nil
}

// Validate issues a minimal authenticated /me call. A 401 is a definitive
// server-side rejection; transport failures report as KindNetwork so the
// caller can fall back to its local verdict.
func (p *MicrosoftProvider) Validate(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graphBaseURL+"/me?$select=id", nil)
	if err != nil {
		return newError(KindUnknown, p.Name(), "build validate request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return newError(KindNetwork, p.Name(), "validate unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return newError(classifyHTTPStatus(resp.StatusCode), p.Name(),
		fmt.Sprintf("validate status %d", resp.StatusCode), nil)
}

// graphMessage is the JSON payload for the Graph sendMail endpoint.
type graphMessage struct {
	Message struct {
		Subject      string           `json:"subject"`
		Body         graphBody        `json:"body"`
		ToRecipients []graphRecipient `json:"toRecipients"`
	} `json:"message"`
	SaveToSentItems bool `json:"saveToSentItems"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphAddress `json:"emailAddress"`
}

type graphAddress struct {
	Address string `json:"address"`
}

func (p *MicrosoftProvider) Send(ctx context.Context, accessToken string, msg Message) error {
	mailbox := msg.From
	if mailbox == "" {
		mailbox = "me"
	}
	endpoint := fmt.Sprintf("%s/users/%s/sendMail", graphBaseURL, url.PathEscape(mailbox))
	if mailbox == "me" {
		endpoint = graphBaseURL + "/me/sendMail"
	}

	var payload graphMessage
	payload.Message.Subject = msg.Subject
	payload.Message.Body = graphBody{ContentType: "Text", Content: msg.Body}
	for _, to := range msg.To {
		payload.Message.ToRecipients = append(payload.Message.ToRecipients,
			graphRecipient{EmailAddress: graphAddress{Address: to}})
	}
	payload.SaveToSentItems = true

	data, err := json.Marshal(payload)
	if err != nil {
		return newError(KindUnknown, p.Name(), "marshal sendMail payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return newError(KindUnknown, p.Name(), "build sendMail request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return newError(KindNetwork, p.Name(), "sendMail unreachable", err)
	}
	defer resp.Body.Close()

	// Graph returns 202 Accepted on success.
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return newError(classifyHTTPStatus(resp.StatusCode), p.Name(),
		fmt.Sprintf("sendMail status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
}

var _ Provider = (*MicrosoftProvider)(nil)
