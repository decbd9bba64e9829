package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"casebook_backend/internal/cases"
	"casebook_backend/internal/rules/repository"
	"casebook_backend/platform/cache"
	"casebook_backend/platform/logger"
)

type fakeStore struct {
	rules map[string]repository.Rule // country|status

	replaceCalls int
	listErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rules: make(map[string]repository.Rule)}
}

func (f *fakeStore) ListRules(_ context.Context, country string) ([]repository.Rule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []repository.Rule
	for _, status := range cases.AllStatuses() {
		if r, ok := f.rules[country+"|"+string(status)]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRule(_ context.Context, country, status string) (repository.Rule, error) {
	r, ok := f.rules[country+"|"+status]
	if !ok {
		return repository.Rule{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) UpsertRule(_ context.Context, country string, u repository.RuleUpsert) (repository.Rule, error) {
	r := storedFromUpsert(country, u)
	f.rules[country+"|"+u.Status] = r
	return r, nil
}

func (f *fakeStore) ReplaceMatrix(ctx context.Context, country string, rules []repository.RuleUpsert) ([]repository.Rule, error) {
	f.replaceCalls++
	for key, r := range f.rules {
		if r.Country == country {
			delete(f.rules, key)
		}
	}
	for _, u := range rules {
		f.rules[country+"|"+u.Status] = storedFromUpsert(country, u)
	}
	return f.ListRules(ctx, country)
}

func storedFromUpsert(country string, u repository.RuleUpsert) repository.Rule {
	return repository.Rule{
		Country:               country,
		Status:                u.Status,
		Enabled:               u.Enabled,
		Roles:                 u.Roles,
		Emails:                u.Emails,
		Departments:           u.Departments,
		IncludeSubmitter:      u.IncludeSubmitter,
		RequireSameDepartment: u.RequireSameDepartment,
		Subject:               u.Subject,
		Body:                  u.Body,
		UpdatedAt:             time.Now(),
	}
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	fallback := cache.NewTTL[string, []Rule](8, time.Minute)
	return New(store, logger.New("development"), fallback), store
}

func TestGetRulesSynthesizesCompleteMatrix(t *testing.T) {
	svc, store := newTestService()

	rules, err := svc.GetRules(context.Background(), "SG")
	if err != nil {
		t.Fatalf("GetRules: %v", err)
	}

	statuses := cases.AllStatuses()
	if len(rules) != len(statuses) {
		t.Fatalf("got %d rules, want %d", len(rules), len(statuses))
	}
	for i, r := range rules {
		if r.Status != string(statuses[i]) {
			t.Fatalf("rule %d status = %q, want %q", i, r.Status, statuses[i])
		}
		if r.Enabled {
			t.Fatalf("synthesized rule %s must start disabled", r.Status)
		}
		if r.Persisted {
			t.Fatalf("synthesized rule %s must not be marked persisted", r.Status)
		}
		if len(r.Roles) != 0 || len(r.Emails) != 0 {
			t.Fatalf("synthesized rule %s must have empty recipients", r.Status)
		}
		if r.Subject == "" || r.Body == "" {
			t.Fatalf("synthesized rule %s must carry a template", r.Status)
		}
	}
	if len(store.rules) != 0 {
		t.Fatal("synthesizing defaults must not persist anything")
	}
}

func TestGetRulesIsIdempotent(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.GetRules(context.Background(), "SG")
	if err != nil {
		t.Fatalf("GetRules: %v", err)
	}
	second, err := svc.GetRules(context.Background(), "SG")
	if err != nil {
		t.Fatalf("GetRules: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated default synthesis must yield identical matrices")
	}
}

func TestUpdateRuleCreatesAbsentRuleFromDefaults(t *testing.T) {
	svc, store := newTestService()

	enabled := true
	roles := []string{"Admin"}
	rule, err := svc.UpdateRule(context.Background(), "SG", string(cases.StatusCaseBooked), RulePatch{
		Enabled: &enabled,
		Roles:   &roles,
	})
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if !rule.Enabled || !rule.Persisted {
		t.Fatal("patched rule should be enabled and persisted")
	}
	// Unpatched fields come from the default.
	if rule.Subject == "" {
		t.Fatal("patched rule should keep the default subject")
	}
	if len(store.rules) != 1 {
		t.Fatalf("exactly one rule should be stored, got %d", len(store.rules))
	}
}

func TestUpdateRuleLeavesSiblingsUntouched(t *testing.T) {
	svc, store := newTestService()

	enabled := true
	if _, err := svc.UpdateRule(context.Background(), "SG", string(cases.StatusCaseBooked), RulePatch{Enabled: &enabled}); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	subject := "Delivered!"
	if _, err := svc.UpdateRule(context.Background(), "SG", string(cases.StatusDelivered), RulePatch{Subject: &subject}); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}

	booked := store.rules["SG|"+string(cases.StatusCaseBooked)]
	if !booked.Enabled {
		t.Fatal("updating one status must not touch a sibling rule")
	}
	if len(store.rules) != 2 {
		t.Fatalf("two rules should be stored, got %d", len(store.rules))
	}
}

func TestUpdateRuleRejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.UpdateRule(context.Background(), "SG", "NotAStatus", RulePatch{}); err == nil {
		t.Fatal("expected a validation error for an unknown status")
	}
}

func TestSaveMatrixReplacesAtomicallyAndCompletes(t *testing.T) {
	svc, store := newTestService()

	saved, err := svc.SaveMatrix(context.Background(), "SG", []MatrixInput{
		{
			Status:  string(cases.StatusCaseBooked),
			Enabled: true,
			Roles:   []string{"Admin"},
			Subject: "New case {{caseReference}}",
			Body:    "A case was booked.",
		},
	})
	if err != nil {
		t.Fatalf("SaveMatrix: %v", err)
	}
	if store.replaceCalls != 1 {
		t.Fatalf("replace calls = %d, want 1", store.replaceCalls)
	}

	// The persisted matrix is complete: the omitted statuses were stored
	// as defaults alongside the provided rule.
	if len(store.rules) != len(cases.AllStatuses()) {
		t.Fatalf("stored %d rules, want the full matrix of %d", len(store.rules), len(cases.AllStatuses()))
	}

	read, err := svc.GetRules(context.Background(), "SG")
	if err != nil {
		t.Fatalf("GetRules: %v", err)
	}
	if len(read) != len(saved) {
		t.Fatalf("read %d rules, saved %d", len(read), len(saved))
	}
	for i := range read {
		if read[i].Status != saved[i].Status || read[i].Enabled != saved[i].Enabled {
			t.Fatalf("rule %d diverges between save result and re-read", i)
		}
	}
}

func TestSaveMatrixRejectsDuplicateStatus(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.SaveMatrix(context.Background(), "SG", []MatrixInput{
		{Status: string(cases.StatusCaseBooked), Subject: "a", Body: "b"},
		{Status: string(cases.StatusCaseBooked), Subject: "c", Body: "d"},
	})
	if err == nil {
		t.Fatal("expected a validation error for a duplicate status")
	}
}

func TestEnabledRuleIgnoresDisabledAndAbsentRules(t *testing.T) {
	svc, store := newTestService()

	if _, ok, err := svc.EnabledRule(context.Background(), "SG", string(cases.StatusCaseBooked)); err != nil || ok {
		t.Fatalf("absent rule: ok=%v err=%v, want no rule and no error", ok, err)
	}

	store.rules["SG|"+string(cases.StatusCaseBooked)] = storedFromUpsert("SG", defaultRule(cases.StatusCaseBooked))
	if _, ok, _ := svc.EnabledRule(context.Background(), "SG", string(cases.StatusCaseBooked)); ok {
		t.Fatal("disabled rule must not be returned as enabled")
	}

	enabled := true
	if _, err := svc.UpdateRule(context.Background(), "SG", string(cases.StatusCaseBooked), RulePatch{Enabled: &enabled}); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if _, ok, _ := svc.EnabledRule(context.Background(), "SG", string(cases.StatusCaseBooked)); !ok {
		t.Fatal("enabled stored rule should be returned")
	}
}

func TestGetRulesServesCachedMatrixWhenStoreUnreachable(t *testing.T) {
	svc, store := newTestService()

	first, err := svc.GetRules(context.Background(), "SG")
	if err != nil {
		t.Fatalf("GetRules: %v", err)
	}

	store.listErr = errors.New("connection refused")
	cached, err := svc.GetRules(context.Background(), "SG")
	if err != nil {
		t.Fatalf("GetRules with unreachable store: %v", err)
	}
	if !reflect.DeepEqual(first, cached) {
		t.Fatal("cached matrix differs from the last successful read")
	}
}

func TestGetRulesColdCachePropagatesStoreError(t *testing.T) {
	svc, store := newTestService()
	store.listErr = errors.New("connection refused")

	if _, err := svc.GetRules(context.Background(), "SG"); err == nil {
		t.Fatal("expected an error when the store is down and nothing is cached")
	}
}
