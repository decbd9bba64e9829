package delivery

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"testing"

	"casebook_backend/internal/cases"
	rulesvc "casebook_backend/internal/rules/service"
)

type fakeDirectory struct {
	// members per role, country-agnostic for tests.
	members map[string][]Member
}

func (f *fakeDirectory) MembersOfRole(_ context.Context, role, _ string) ([]Member, error) {
	return f.members[role], nil
}

func sortedLower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	sort.Strings(out)
	return out
}

func TestResolveRecipientsIsPureSetUnion(t *testing.T) {
	dir := &fakeDirectory{members: map[string][]Member{
		"ops": {
			{Email: "c@x.com"},
			{Email: "a@x.com"},
		},
	}}
	rule := rulesvc.Rule{
		Roles:            []string{"ops"},
		Emails:           []string{"a@x.com"},
		IncludeSubmitter: true,
	}
	snapshot := cases.Snapshot{Country: "SG", SubmittedBy: "b@x.com"}

	got, err := ResolveRecipients(context.Background(), rule, snapshot, dir)
	if err != nil {
		t.Fatalf("ResolveRecipients: %v", err)
	}
	want := []string{"a@x.com", "b@x.com", "c@x.com"}
	if !reflect.DeepEqual(sortedLower(got), want) {
		t.Fatalf("resolved = %v, want set %v", got, want)
	}
}

func TestResolveRecipientsDedupesCaseInsensitively(t *testing.T) {
	dir := &fakeDirectory{members: map[string][]Member{
		"ops": {{Email: "Ops1@Hosp.sg"}},
	}}
	rule := rulesvc.Rule{
		Roles:  []string{"ops"},
		Emails: []string{"ops1@hosp.sg"},
	}

	got, err := ResolveRecipients(context.Background(), rule, cases.Snapshot{Country: "SG"}, dir)
	if err != nil {
		t.Fatalf("ResolveRecipients: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("resolved = %v, want a single address", got)
	}
	// First spelling encountered wins.
	if got[0] != "Ops1@Hosp.sg" {
		t.Fatalf("resolved = %v, want the role expansion's spelling", got)
	}
}

func TestResolveRecipientsSingaporeCaseBooked(t *testing.T) {
	dir := &fakeDirectory{members: map[string][]Member{
		"Admin": {{Email: "ops1@hosp.sg"}},
	}}
	rule := rulesvc.Rule{
		Enabled:          true,
		Roles:            []string{"Admin"},
		IncludeSubmitter: true,
	}
	snapshot := cases.Snapshot{
		Reference:   "SG-2024-001",
		Country:     "Singapore",
		Status:      cases.StatusCaseBooked,
		SubmittedBy: "nurse@hosp.sg",
	}

	got, err := ResolveRecipients(context.Background(), rule, snapshot, dir)
	if err != nil {
		t.Fatalf("ResolveRecipients: %v", err)
	}
	want := []string{"nurse@hosp.sg", "ops1@hosp.sg"}
	if !reflect.DeepEqual(sortedLower(got), want) {
		t.Fatalf("resolved = %v, want %v", got, want)
	}

	if subject := Render("New case {{caseReference}}", snapshot); subject != "New case SG-2024-001" {
		t.Fatalf("rendered subject = %q", subject)
	}
}

func TestResolveRecipientsEmptySetIsValid(t *testing.T) {
	dir := &fakeDirectory{members: map[string][]Member{}}
	rule := rulesvc.Rule{Roles: []string{"ops"}}

	got, err := ResolveRecipients(context.Background(), rule, cases.Snapshot{Country: "SG"}, dir)
	if err != nil {
		t.Fatalf("ResolveRecipients: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("resolved = %v, want empty", got)
	}
}

func TestDepartmentFilterNarrowsNeverWidens(t *testing.T) {
	dir := &fakeDirectory{members: map[string][]Member{
		"ops": {
			{Email: "theatre@hosp.sg", Departments: []string{"Theatre"}},
			{Email: "ward@hosp.sg", Departments: []string{"Ward"}},
			{Email: "float@hosp.sg"},
		},
	}}
	snapshot := cases.Snapshot{Country: "SG", Department: "Theatre"}

	unfiltered, err := ResolveRecipients(context.Background(), rulesvc.Rule{Roles: []string{"ops"}}, snapshot, dir)
	if err != nil {
		t.Fatalf("ResolveRecipients: %v", err)
	}

	filtered, err := ResolveRecipients(context.Background(), rulesvc.Rule{
		Roles:       []string{"ops"},
		Departments: []string{"Theatre"},
	}, snapshot, dir)
	if err != nil {
		t.Fatalf("ResolveRecipients: %v", err)
	}

	unfilteredSet := make(map[string]struct{}, len(unfiltered))
	for _, a := range unfiltered {
		unfilteredSet[strings.ToLower(a)] = struct{}{}
	}
	for _, a := range filtered {
		if _, ok := unfilteredSet[strings.ToLower(a)]; !ok {
			t.Fatalf("filter added %q, which the unfiltered set lacks", a)
		}
	}
	if len(filtered) >= len(unfiltered) {
		t.Fatalf("filter kept %d of %d, expected narrowing here", len(filtered), len(unfiltered))
	}
}

func TestRequireSameDepartmentDropsOutsiders(t *testing.T) {
	dir := &fakeDirectory{members: map[string][]Member{
		"ops": {
			{Email: "theatre@hosp.sg", Departments: []string{"Theatre", "Recovery"}},
			{Email: "ward@hosp.sg", Departments: []string{"Ward"}},
		},
	}}
	rule := rulesvc.Rule{Roles: []string{"ops"}, RequireSameDepartment: true}
	snapshot := cases.Snapshot{Country: "SG", Department: "Theatre"}

	got, err := ResolveRecipients(context.Background(), rule, snapshot, dir)
	if err != nil {
		t.Fatalf("ResolveRecipients: %v", err)
	}
	if len(got) != 1 || got[0] != "theatre@hosp.sg" {
		t.Fatalf("resolved = %v, want only the same-department member", got)
	}
}
