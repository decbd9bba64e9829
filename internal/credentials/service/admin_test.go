package service

import (
	"context"
	"testing"
	"time"

	"casebook_backend/internal/credentials/repository"
	"casebook_backend/internal/mailer"
)

func seedAdmin(store *fakeStore, provider string, expiresAt time.Time) {
	store.admin["SG"] = repository.AdminCredential{
		Country:     "SG",
		Provider:    provider,
		ClientID:    "client-123",
		AccessToken: "admin-access",
		ExpiresAt:   expiresAt,
		FromEmail:   "noreply@example.com",
		FromName:    "Case Booking",
	}
}

func TestActiveSendCredentialPrefersAdmin(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{name: mailer.ProviderMicrosoft365}
	svc := newTestService(store, p, false)

	seedMailbox(store, p.name, time.Now().Add(time.Hour), "")
	seedAdmin(store, p.name, time.Now().Add(time.Hour))

	got, err := svc.ActiveSendCredential(context.Background(), "SG")
	if err != nil {
		t.Fatalf("ActiveSendCredential: %v", err)
	}
	if got.Source != "admin" {
		t.Fatalf("source = %q, want admin", got.Source)
	}
	if got.AccessToken != "admin-access" {
		t.Fatalf("access token = %q, want the admin credential's", got.AccessToken)
	}
	if got.FromEmail != "noreply@example.com" {
		t.Fatalf("from = %q, want the admin sending address", got.FromEmail)
	}
}

func TestActiveSendCredentialFallsBackToMailbox(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{name: mailer.ProviderMicrosoft365}
	svc := newTestService(store, p, false)

	seedMailbox(store, p.name, time.Now().Add(time.Hour), "")

	got, err := svc.ActiveSendCredential(context.Background(), "SG")
	if err != nil {
		t.Fatalf("ActiveSendCredential: %v", err)
	}
	if got.Source != "mailbox" {
		t.Fatalf("source = %q, want mailbox", got.Source)
	}
	if got.FromEmail != "sg@example.com" {
		t.Fatalf("from = %q, want the connected mailbox", got.FromEmail)
	}
}

func TestActiveSendCredentialNoneConfigured(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{name: mailer.ProviderMicrosoft365}
	svc := newTestService(store, p, false)

	if _, err := svc.ActiveSendCredential(context.Background(), "SG"); err == nil {
		t.Fatal("expected an error when no credential exists for the country")
	}
}

func TestTestAdminMailConfigSendsToRecipient(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{name: mailer.ProviderMicrosoft365}
	svc := newTestService(store, p, false)

	seedAdmin(store, p.name, time.Now().Add(time.Hour))

	res, err := svc.TestAdminMailConfig(context.Background(), "SG", "admin@example.com")
	if err != nil {
		t.Fatalf("TestAdminMailConfig: %v", err)
	}
	if !res.Success {
		t.Fatalf("test send failed: %s", res.Message)
	}
	if len(p.sentTo) != 1 || p.sentTo[0][0] != "admin@example.com" {
		t.Fatalf("sent to %v, want the requested recipient", p.sentTo)
	}
	if p.sentFrom != "noreply@example.com" {
		t.Fatalf("sent from %q, want the configured address", p.sentFrom)
	}
}

func TestTestAdminMailConfigSurfacesProviderDiagnosis(t *testing.T) {
	cases := []struct {
		name    string
		sendErr error
		want    mailer.ErrorKind
	}{
		{
			name:    "expired",
			sendErr: &mailer.Error{Kind: mailer.KindExpired, Provider: mailer.ProviderMicrosoft365, Message: "401"},
			want:    mailer.KindExpired,
		},
		{
			name:    "permission denied",
			sendErr: &mailer.Error{Kind: mailer.KindPermissionDenied, Provider: mailer.ProviderMicrosoft365, Message: "403"},
			want:    mailer.KindPermissionDenied,
		},
		{
			name:    "network",
			sendErr: &mailer.Error{Kind: mailer.KindNetwork, Provider: mailer.ProviderMicrosoft365, Message: "timeout"},
			want:    mailer.KindNetwork,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			p := &fakeProvider{name: mailer.ProviderMicrosoft365, sendErr: tc.sendErr}
			svc := newTestService(store, p, false)
			seedAdmin(store, p.name, time.Now().Add(time.Hour))

			res, err := svc.TestAdminMailConfig(context.Background(), "SG", "admin@example.com")
			if err != nil {
				t.Fatalf("TestAdminMailConfig: %v", err)
			}
			if res.Success {
				t.Fatal("expected a failed test result")
			}
			if res.Kind != tc.want {
				t.Fatalf("kind = %v, want %v", res.Kind, tc.want)
			}
		})
	}
}

func TestGetAdminMailConfigAbsentReturnsNil(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{name: mailer.ProviderMicrosoft365}
	svc := newTestService(store, p, false)

	cfg, err := svc.GetAdminMailConfig(context.Background(), "SG")
	if err != nil {
		t.Fatalf("GetAdminMailConfig: %v", err)
	}
	if cfg != nil {
		t.Fatal("expected nil config when none is stored")
	}
}
