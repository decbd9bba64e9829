package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	googleScopes      = "openid email profile https://mail.google.com/"

	gmailSMTPHost = "smtp.gmail.com"
	gmailSMTPPort = 587
)

// GmailProvider authenticates against Google's OAuth2 endpoints and submits
// messages over SMTP with XOAUTH2, the supported path for sending as the
// authenticated mailbox without the full Gmail API surface.
type GmailProvider struct {
	clientID     string
	clientSecret string
	client       *http.Client

	// smtpHost/smtpPort are swappable for tests.
	smtpHost string
	smtpPort int
}

// NewGmailProvider creates the Gmail provider.
func NewGmailProvider(clientID, clientSecret string) *GmailProvider {
	return &GmailProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 20 * time.Second},
		smtpHost:     gmailSMTPHost,
		smtpPort:     gmailSMTPPort,
	}
}

func (p *GmailProvider) Name() string { return ProviderGmail }

func (p *GmailProvider) AuthorizeURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", p.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", googleScopes)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("state", state)
	return googleAuthURL + "?" + q.Encode()
}

func (p *GmailProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	return p.tokenRequest(ctx, form)
}

func (p *GmailProvider) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return p.tokenRequest(ctx, form)
}

func (p *GmailProvider) tokenRequest(ctx context.Context, form url.Values) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL, strings.NewReader(form.Encode()))
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

func (p *GmailProvider) UserInfo(ctx context.Context, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
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

	var info struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Identity{}, newError(KindUnknown, p.Name(), "decode userinfo", err)
	}
	return Identity{Email: info.Email, Name: info.Name}, nil
}

// Validate hits the OpenID userinfo endpoint, the cheapest authenticated
// call Google offers for this scope set.
func (p *GmailProvider) Validate(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
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

func (p *GmailProvider) Send(ctx context.Context, accessToken string, msg Message) error {
	m := gomail.NewMsg()
	if err := m.FromFormat(msg.FromName, msg.From); err != nil {
		return newError(KindUnknown, p.Name(), fmt.Sprintf("invalid from address: %v", err), err)
	}
	if err := m.To(msg.To...); err != nil {
		return newError(KindUnknown, p.Name(), fmt.Sprintf("invalid to address: %v", err), err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	client, err := gomail.NewClient(p.smtpHost,
		gomail.WithPort(p.smtpPort),
		gomail.WithSMTPAuth(gomail.SMTPAuthXOAUTH2),
		gomail.WithUsername(msg.From),
		gomail.WithPassword(accessToken),
		gomail.WithTLSPortPolicy(gomail.TLSMandatory),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return newError(KindUnknown, p.Name(), "smtp client", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return newError(classifySMTPError(err), p.Name(), "smtp send", err)
	}
	return nil
}

// classifySMTPError maps SMTP submission failures onto the normalized kinds.
// Gmail reports a spent XOAUTH2 token as an authentication failure (535).
func classifySMTPError(err error) ErrorKind {
	if strings.Contains(err.Error(), "535") || strings.Contains(strings.ToLower(err.Error()), "authentication") {
		return KindExpired
	}
	if strings.Contains(err.Error(), "530") {
		return KindPermissionDenied
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}

var _ Provider = (*GmailProvider)(nil)
