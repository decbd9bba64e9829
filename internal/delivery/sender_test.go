package delivery

import (
	"context"
	"testing"
	"time"

	credsvc "casebook_backend/internal/credentials/service"
	"casebook_backend/internal/mailer"
	"casebook_backend/platform/logger"
)

type spyProvider struct {
	sendErrs  []error // popped per call
	sentWith  []string
	sentMsgs  []mailer.Message
	sendCalls int
}

func (p *spyProvider) Name() string                    { return mailer.ProviderMicrosoft365 }
func (p *spyProvider) AuthorizeURL(_, _ string) string { return "" }

func (p *spyProvider) ExchangeCode(_ context.Context, _, _ string) (mailer.Token, error) {
	return mailer.Token{}, nil
}
func (p *spyProvider) Refresh(_ context.Context, _ string) (mailer.Token, error) {
	return mailer.Token{}, nil
}
func (p *spyProvider) UserInfo(_ context.Context, _ string) (mailer.Identity, error) {
	return mailer.Identity{}, nil
}
func (p *spyProvider) Validate(_ context.Context, _ string) error { return nil }

func (p *spyProvider) Send(_ context.Context, accessToken string, msg mailer.Message) error {
	p.sendCalls++
	p.sentWith = append(p.sentWith, accessToken)
	p.sentMsgs = append(p.sentMsgs, msg)
	if len(p.sendErrs) > 0 {
		err := p.sendErrs[0]
		p.sendErrs = p.sendErrs[1:]
		return err
	}
	return nil
}

type fakeSource struct {
	creds []credsvc.SendCredential // popped per resolution
	calls int
}

func (f *fakeSource) ActiveSendCredential(_ context.Context, _ string) (credsvc.SendCredential, error) {
	f.calls++
	cred := f.creds[0]
	if len(f.creds) > 1 {
		f.creds = f.creds[1:]
	}
	return cred, nil
}

type testDeliveryConfig struct{}

func (testDeliveryConfig) GetSenderCacheTTL() time.Duration { return time.Minute }
func (testDeliveryConfig) GetSenderCacheSize() int          { return 8 }

func TestSendUsesResolvedCredential(t *testing.T) {
	p := &spyProvider{}
	source := &fakeSource{creds: []credsvc.SendCredential{{
		Provider:    p,
		AccessToken: "admin-token",
		FromEmail:   "noreply@example.com",
		FromName:    "Case Booking",
		Source:      "admin",
	}}}
	s := NewSender(source, testDeliveryConfig{}, logger.New("development"))

	err := s.Send(context.Background(), "SG", []string{"ops1@hosp.sg", "nurse@hosp.sg"}, "subject", "body")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if p.sendCalls != 1 {
		t.Fatalf("send calls = %d, want 1", p.sendCalls)
	}
	if p.sentWith[0] != "admin-token" {
		t.Fatalf("sent with token %q, want the resolved credential's", p.sentWith[0])
	}
	msg := p.sentMsgs[0]
	if msg.From != "noreply@example.com" || len(msg.To) != 2 {
		t.Fatalf("message = %+v, want the resolved sender and the full set", msg)
	}
}

func TestSendCachesCredentialResolution(t *testing.T) {
	p := &spyProvider{}
	source := &fakeSource{creds: []credsvc.SendCredential{{Provider: p, AccessToken: "t", FromEmail: "a@b.c"}}}
	s := NewSender(source, testDeliveryConfig{}, logger.New("development"))

	for i := 0; i < 3; i++ {
		if err := s.Send(context.Background(), "SG", []string{"x@y.z"}, "s", "b"); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if source.calls != 1 {
		t.Fatalf("resolution calls = %d, want 1 (cached)", source.calls)
	}
}

func TestSendRetriesOnceOnStaleCredential(t *testing.T) {
	p := &spyProvider{sendErrs: []error{
		&mailer.Error{Kind: mailer.KindExpired, Provider: mailer.ProviderMicrosoft365, Message: "401"},
	}}
	source := &fakeSource{creds: []credsvc.SendCredential{
		{Provider: p, AccessToken: "stale", FromEmail: "a@b.c"},
		{Provider: p, AccessToken: "fresh", FromEmail: "a@b.c"},
	}}
	s := NewSender(source, testDeliveryConfig{}, logger.New("development"))

	if err := s.Send(context.Background(), "SG", []string{"x@y.z"}, "s", "b"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if p.sendCalls != 2 {
		t.Fatalf("send calls = %d, want a retry after the stale token", p.sendCalls)
	}
	if p.sentWith[1] != "fresh" {
		t.Fatalf("retry used token %q, want the re-resolved one", p.sentWith[1])
	}
	if source.calls != 2 {
		t.Fatalf("resolution calls = %d, want 2", source.calls)
	}
}

func TestSendEmptyRecipientSetIsNoOp(t *testing.T) {
	p := &spyProvider{}
	source := &fakeSource{creds: []credsvc.SendCredential{{Provider: p}}}
	s := NewSender(source, testDeliveryConfig{}, logger.New("development"))

	if err := s.Send(context.Background(), "SG", nil, "s", "b"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if p.sendCalls != 0 || source.calls != 0 {
		t.Fatal("empty set must not resolve or send")
	}
}
