package service

import (
	"context"
	"testing"
	"time"

	"casebook_backend/internal/credentials/repository"
	"casebook_backend/internal/mailer"
	"casebook_backend/platform/logger"
)

// fakeStore is an in-memory Store keyed the way the repository keys rows.
type fakeStore struct {
	mailbox map[string]repository.MailboxCredential // country|provider
	admin   map[string]repository.AdminCredential   // country

	mailboxTokenUpdates int
	adminTokenUpdates   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mailbox: make(map[string]repository.MailboxCredential),
		admin:   make(map[string]repository.AdminCredential),
	}
}

func (f *fakeStore) GetMailboxCredential(_ context.Context, country, provider string) (repository.MailboxCredential, error) {
	c, ok := f.mailbox[country+"|"+provider]
	if !ok {
		return repository.MailboxCredential{}, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) ListMailboxCredentials(_ context.Context, country string) ([]repository.MailboxCredential, error) {
	var out []repository.MailboxCredential
	for _, c := range f.mailbox {
		if c.Country == country {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertMailboxCredential(_ context.Context, c repository.MailboxCredential) error {
	f.mailbox[c.Country+"|"+c.Provider] = c
	return nil
}

func (f *fakeStore) UpdateMailboxTokens(_ context.Context, country, provider, accessToken string, refreshToken *string, expiresAt time.Time) error {
	key := country + "|" + provider
	c, ok := f.mailbox[key]
	if !ok {
		return repository.ErrNotFound
	}
	c.AccessToken = accessToken
	if refreshToken != nil {
		c.RefreshToken = refreshToken
	}
	c.ExpiresAt = expiresAt
	f.mailbox[key] = c
	f.mailboxTokenUpdates++
	return nil
}

func (f *fakeStore) DeleteMailboxCredential(_ context.Context, country, provider string) error {
	key := country + "|" + provider
	if _, ok := f.mailbox[key]; !ok {
		return repository.ErrNotFound
	}
	delete(f.mailbox, key)
	return nil
}

func (f *fakeStore) GetAdminCredential(_ context.Context, country string) (repository.AdminCredential, error) {
	c, ok := f.admin[country]
	if !ok {
		return repository.AdminCredential{}, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) UpsertAdminCredential(_ context.Context, c repository.AdminCredential) error {
	f.admin[c.Country] = c
	return nil
}

func (f *fakeStore) UpdateAdminTokens(_ context.Context, country, accessToken string, refreshToken *string, expiresAt time.Time) error {
	c, ok := f.admin[country]
	if !ok {
		return repository.ErrNotFound
	}
	c.AccessToken = accessToken
	if refreshToken != nil {
		c.RefreshToken = refreshToken
	}
	c.ExpiresAt = expiresAt
	f.admin[country] = c
	f.adminTokenUpdates++
	return nil
}

func (f *fakeStore) DeleteAdminCredential(_ context.Context, country string) error {
	if _, ok := f.admin[country]; !ok {
		return repository.ErrNotFound
	}
	delete(f.admin, country)
	return nil
}

// fakeProvider scripts every provider call.
type fakeProvider struct {
	name string

	refreshToken mailer.Token
	refreshErr   error
	refreshCalls int

	validateErr   error
	validateCalls int

	sendErr   error
	sentTo    [][]string
	sentToken string
	sentFrom  string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthorizeURL(redirectURI, state string) string {
	return "https://auth.example/authorize?state=" + state
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code, _ string) (mailer.Token, error) {
	return mailer.Token{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeProvider) Refresh(_ context.Context, _ string) (mailer.Token, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return mailer.Token{}, f.refreshErr
	}
	return f.refreshToken, nil
}

func (f *fakeProvider) UserInfo(_ context.Context, _ string) (mailer.Identity, error) {
	return mailer.Identity{Email: "mailbox@example.com", Name: "Mailbox"}, nil
}

func (f *fakeProvider) Validate(_ context.Context, _ string) error {
	f.validateCalls++
	return f.validateErr
}

func (f *fakeProvider) Send(_ context.Context, accessToken string, msg mailer.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTo = append(f.sentTo, msg.To)
	f.sentToken = accessToken
	f.sentFrom = msg.From
	return nil
}

func newTestService(store Store, p *fakeProvider, failClosed bool) *Service {
	return New(store, map[string]mailer.Provider{p.name: p}, nil, Config{
		ExpirySkew: 5 * time.Minute,
		FailClosed: failClosed,
	}, logger.New("development"))
}

func seedMailbox(store *fakeStore, provider string, expiresAt time.Time, refreshToken string) Credential {
	var refresh *string
	if refreshToken != "" {
		refresh = &refreshToken
	}
	store.mailbox["SG|"+provider] = repository.MailboxCredential{
		Country:      "SG",
		Provider:     provider,
		AccessToken:  "stored-access",
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		MailboxEmail: "sg@example.com",
	}
	return Credential{
		Country:      "SG",
		Provider:     provider,
		AccessToken:  "stored-access",
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		MailboxEmail: "sg@example.com",
	}
}

func TestIsUsableExpiredWithoutRefreshToken(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{name: mailer.ProviderMicrosoft365}
	svc := newTestService(store, p, false)

	cred := seedMailbox(store, p.name, time.Now().Add(-time.Minute), "")

	if svc.IsUsable(context.Background(), cred) {
		t.Fatal("expired credential without refresh token reported usable")
	}
	if p.refreshCalls != 0 || p.validateCalls != 0 {
		t.Fatalf("no provider calls expected, got refresh=%d validate=%d", p.refreshCalls, p.validateCalls)
	}
	if _, err := store.GetMailboxCredential(context.Background(), "SG", p.name); err != nil {
		t.Fatal("credential should remain stored so the console can show the expired state")
	}
}

func TestIsUsableRefreshesAndPersists(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{
		name: mailer.ProviderMicrosoft365,
		refreshToken: mailer.Token{
			AccessToken: "fresh-access",
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}
	svc := newTestService(store, p, false)

	cred := seedMailbox(store, p.name, time.Now().Add(time.Minute), "stored-refresh")

	if !svc.IsUsable(context.Background(), cred) {
		t.Fatal("refreshable credential reported unusable")
	}
	if p.refreshCalls != 1 {
		t.Fatalf("refresh calls = %d, want 1", p.refreshCalls)
	}
	if store.mailboxTokenUpdates != 1 {
		t.Fatalf("token updates = %d, want 1", store.mailboxTokenUpdates)
	}
	got, _ := store.GetMailboxCredential(context.Background(), "SG", p.name)
	if got.AccessToken != "fresh-access" {
		t.Fatalf("stored access token = %q, want the refreshed one", got.AccessToken)
	}
	// The provider returned no rotated refresh token, so the old one stays.
	if got.RefreshToken == nil || *got.RefreshToken != "stored-refresh" {
		t.Fatal("refresh token should be retained when the provider does not rotate it")
	}
}

func TestIsUsableDefinitiveRefreshRejectionClearsCredential(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{
		name:       mailer.ProviderMicrosoft365,
		refreshErr: &mailer.Error{Kind: mailer.KindExpired, Provider: mailer.ProviderMicrosoft365, Message: "invalid_grant"},
	}
	svc := newTestService(store, p, false)

	cred := seedMailbox(store, p.name, time.Now().Add(-time.Minute), "stored-refresh")

	if svc.IsUsable(context.Background(), cred) {
		t.Fatal("rejected credential reported usable")
	}
	if _, err := store.GetMailboxCredential(context.Background(), "SG", p.name); err == nil {
		t.Fatal("credential should be cleared after a definitive rejection")
	}
}

func TestIsUsableTransientRefreshFailureKeepsCredential(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{
		name:       mailer.ProviderMicrosoft365,
		refreshErr: &mailer.Error{Kind: mailer.KindNetwork, Provider: mailer.ProviderMicrosoft365, Message: "timeout"},
	}
	svc := newTestService(store, p, false)

	cred := seedMailbox(store, p.name, time.Now().Add(-time.Minute), "stored-refresh")

	if svc.IsUsable(context.Background(), cred) {
		t.Fatal("locally expired credential reported usable on transient refresh failure")
	}
	if _, err := store.GetMailboxCredential(context.Background(), "SG", p.name); err != nil {
		t.Fatal("transient failure must not clear the credential")
	}
}

func TestIsUsableValidRevalidatesOnline(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{name: mailer.ProviderMicrosoft365}
	svc := newTestService(store, p, false)

	cred := seedMailbox(store, p.name, time.Now().Add(time.Hour), "")

	if !svc.IsUsable(context.Background(), cred) {
		t.Fatal("valid credential reported unusable")
	}
	if p.validateCalls != 1 {
		t.Fatalf("validate calls = %d, want 1", p.validateCalls)
	}
}

func TestIsUsableRevocationDetectedOnlineClearsCredential(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{
		name:        mailer.ProviderMicrosoft365,
		validateErr: &mailer.Error{Kind: mailer.KindExpired, Provider: mailer.ProviderMicrosoft365, Message: "token revoked"},
	}
	svc := newTestService(store, p, false)

	cred := seedMailbox(store, p.name, time.Now().Add(time.Hour), "")

	if svc.IsUsable(context.Background(), cred) {
		t.Fatal("revoked credential reported usable")
	}
	if _, err := store.GetMailboxCredential(context.Background(), "SG", p.name); err == nil {
		t.Fatal("credential should be cleared after an online rejection")
	}
}

func TestIsUsableNetworkFailureFallsBackToLocalVerdict(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{
		name:        mailer.ProviderMicrosoft365,
		validateErr: &mailer.Error{Kind: mailer.KindNetwork, Provider: mailer.ProviderMicrosoft365, Message: "dial timeout"},
	}
	svc := newTestService(store, p, false)

	cred := seedMailbox(store, p.name, time.Now().Add(time.Hour), "")

	if !svc.IsUsable(context.Background(), cred) {
		t.Fatal("locally valid credential should stay usable when the online check is inconclusive")
	}
}

func TestIsUsableNetworkFailureFailClosed(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{
		name:        mailer.ProviderMicrosoft365,
		validateErr: &mailer.Error{Kind: mailer.KindNetwork, Provider: mailer.ProviderMicrosoft365, Message: "dial timeout"},
	}
	svc := newTestService(store, p, true)

	cred := seedMailbox(store, p.name, time.Now().Add(time.Hour), "")

	if svc.IsUsable(context.Background(), cred) {
		t.Fatal("fail-closed posture must report unusable on an inconclusive online check")
	}
	if _, err := store.GetMailboxCredential(context.Background(), "SG", p.name); err != nil {
		t.Fatal("fail-closed must not clear the credential")
	}
}
