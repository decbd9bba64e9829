package delivery

import (
	"context"
	"strings"

	"casebook_backend/internal/cases"
	rulesvc "casebook_backend/internal/rules/service"
)

// Member is one directory entry a role expands to.
type Member struct {
	Email       string
	Name        string
	Departments []string
}

// DirectoryReader is the lookup surface the resolver consumes.
type DirectoryReader interface {
	MembersOfRole(ctx context.Context, role, country string) ([]Member, error)
}

// ResolveRecipients computes the final recipient set for a rule and case:
// the union of expanded roles, explicit addresses, and the submitter when
// requested, deduplicated case-insensitively with first spelling kept. A
// role with zero members contributes nothing; an empty result is valid and
// means no message is sent.
func ResolveRecipients(ctx context.Context, rule rulesvc.Rule, snapshot cases.Snapshot, dir DirectoryReader) ([]string, error) {
	seen := make(map[string]struct{})
	var resolved []string

	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		resolved = append(resolved, addr)
	}

	for _, role := range rule.Roles {
		members, err := dir.MembersOfRole(ctx, role, snapshot.Country)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if rule.RequireSameDepartment && !hasDepartment(m, snapshot.Department) {
				continue
			}
			if len(rule.Departments) > 0 && !inAnyDepartment(m, rule.Departments) {
				continue
			}
			add(m.Email)
		}
	}

	for _, addr := range rule.Emails {
		add(addr)
	}

	if rule.IncludeSubmitter {
		add(snapshot.SubmittedBy)
	}

	return resolved, nil
}

func hasDepartment(m Member, department string) bool {
	if department == "" {
		return false
	}
	for _, d := range m.Departments {
		if strings.EqualFold(d, department) {
			return true
		}
	}
	return false
}

func inAnyDepartment(m Member, filter []string) bool {
	for _, want := range filter {
		for _, d := range m.Departments {
			if strings.EqualFold(d, want) {
				return true
			}
		}
	}
	return false
}
