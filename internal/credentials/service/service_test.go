package service

import (
	"testing"

	"casebook_backend/internal/mailer"
	"casebook_backend/platform/apperr"
)

func TestAuthorizeURLUnconfiguredProviderIsConfigurationError(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{name: mailer.ProviderMicrosoft365}
	svc := newTestService(store, p, false)

	// Gmail is a supported provider but absent from the map, the way the
	// module leaves it out when no client id is set.
	_, err := svc.AuthorizeURL(mailer.ProviderGmail, "state-1")
	if err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("kind = %v, want configuration", apperr.GetKind(err))
	}
}

func TestAuthorizeURLUnknownProviderIsValidationError(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{name: mailer.ProviderMicrosoft365}
	svc := newTestService(store, p, false)

	_, err := svc.AuthorizeURL("carrier-pigeon", "state-1")
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("kind = %v, want validation", apperr.GetKind(err))
	}
}

func TestAuthorizeURLConfiguredProvider(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{name: mailer.ProviderMicrosoft365}
	svc := newTestService(store, p, false)

	u, err := svc.AuthorizeURL(mailer.ProviderMicrosoft365, "state-xyz")
	if err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}
	if u != "https://auth.example/authorize?state=state-xyz" {
		t.Fatalf("url = %q", u)
	}
}
