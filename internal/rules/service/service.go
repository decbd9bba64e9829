// Package service owns the notification rule matrix: one rule per
// (country, status), synthesized from defaults until an admin persists it.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"casebook_backend/internal/cases"
	"casebook_backend/internal/rules/repository"
	"casebook_backend/platform/apperr"
	"casebook_backend/platform/cache"
	"casebook_backend/platform/logger"
)

// Store is the persistence surface the service needs.
type Store interface {
	ListRules(ctx context.Context, country string) ([]repository.Rule, error)
	GetRule(ctx context.Context, country, status string) (repository.Rule, error)
	UpsertRule(ctx context.Context, country string, u repository.RuleUpsert) (repository.Rule, error)
	ReplaceMatrix(ctx context.Context, country string, rules []repository.RuleUpsert) ([]repository.Rule, error)
}

// Rule is the matrix entry handed to callers. Persisted distinguishes a
// stored row from a synthesized default.
type Rule struct {
	Status                string
	Enabled               bool
	Roles                 []string
	Emails                []string
	Departments           []string
	IncludeSubmitter      bool
	RequireSameDepartment bool
	Subject               string
	Body                  string
	Persisted             bool
	UpdatedAt             time.Time
}

type Service struct {
	repo Store
	log  *logger.Logger

	// fallback holds the last matrix read per country so the console keeps
	// working while the database is unreachable. Reads only; never a source
	// of truth for writes.
	fallback *cache.TTL[string, []Rule]
}

func New(repo Store, log *logger.Logger, fallback *cache.TTL[string, []Rule]) *Service {
	return &Service{repo: repo, log: log, fallback: fallback}
}

// canonicalCountry normalizes the country scope so rows written through
// the admin console and lookups driven by case snapshots always agree.
func canonicalCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}

// GetRules returns exactly one rule per workflow status, in workflow order.
// Statuses with no stored row come back as synthesized defaults; nothing is
// written, so repeated calls are identical. When the store is unreachable
// the last successfully read matrix is served instead, if still cached.
func (s *Service) GetRules(ctx context.Context, country string) ([]Rule, error) {
	country = canonicalCountry(country)
	stored, err := s.repo.ListRules(ctx, country)
	if err != nil {
		if s.fallback != nil {
			if cached, ok := s.fallback.Get(country); ok {
				s.log.WithCountry(country).Warn("serving cached notification rules, store unreachable", "error", err)
				return cached, nil
			}
		}
		return nil, apperr.Wrap(apperr.KindInternal, "list notification rules", err)
	}

	byStatus := make(map[string]repository.Rule, len(stored))
	for _, r := range stored {
		byStatus[r.Status] = r
	}

	statuses := cases.AllStatuses()
	matrix := make([]Rule, 0, len(statuses))
	for _, status := range statuses {
		if r, ok := byStatus[string(status)]; ok {
			matrix = append(matrix, fromStored(r))
			continue
		}
		matrix = append(matrix, fromUpsert(defaultRule(status)))
	}

	if s.fallback != nil {
		s.fallback.Set(country, matrix)
	}
	return matrix, nil
}

// EnabledRule returns the stored rule for (country, status) when it exists
// and is enabled. Synthesized defaults are disabled, so an absent row never
// triggers delivery.
func (s *Service) EnabledRule(ctx context.Context, country, status string) (Rule, bool, error) {
	stored, err := s.repo.GetRule(ctx, canonicalCountry(country), status)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Rule{}, false, nil
		}
		return Rule{}, false, apperr.Wrap(apperr.KindInternal, "load notification rule", err)
	}
	if !stored.Enabled {
		return Rule{}, false, nil
	}
	return fromStored(stored), true, nil
}

// RulePatch is a partial update; nil fields keep their current value.
type RulePatch struct {
	Enabled               *bool
	Roles                 *[]string
	Emails                *[]string
	Departments           *[]string
	IncludeSubmitter      *bool
	RequireSameDepartment *bool
	Subject               *string
	Body                  *string
}

// UpdateRule patches the single addressed rule. An absent rule is created
// from its default first, so a patch against a never-saved matrix works the
// same as against a stored one. Siblings are untouched.
func (s *Service) UpdateRule(ctx context.Context, country, status string, patch RulePatch) (Rule, error) {
	country = canonicalCountry(country)
	if !cases.ValidStatus(cases.Status(status)) {
		return Rule{}, apperr.Validation("unknown workflow status: " + status)
	}

	current, err := s.repo.GetRule(ctx, country, status)
	var base repository.RuleUpsert
	switch {
	case err == nil:
		base = toUpsert(current)
	case errors.Is(err, repository.ErrNotFound):
		base = defaultRule(cases.Status(status))
	default:
		return Rule{}, apperr.Wrap(apperr.KindInternal, "load notification rule", err)
	}

	applyPatch(&base, patch)
	if base.Subject == "" || base.Body == "" {
		return Rule{}, apperr.Validation("subject and body must not be empty")
	}

	saved, err := s.repo.UpsertRule(ctx, country, base)
	if err != nil {
		return Rule{}, apperr.Wrap(apperr.KindInternal, "save notification rule", err)
	}
	if s.fallback != nil {
		s.fallback.Delete(country)
	}
	s.log.WithCountry(country).Info("notification rule updated", "status", status, "enabled", saved.Enabled)
	return fromStored(saved), nil
}

// MatrixInput is one rule of a full-matrix save.
type MatrixInput struct {
	Status                string
	Enabled               bool
	Roles                 []string
	Emails                []string
	Departments           []string
	IncludeSubmitter      bool
	RequireSameDepartment bool
	Subject               string
	Body                  string
}

// SaveMatrix replaces the country's matrix atomically. Each status may
// appear at most once; statuses missing from the input are stored as their
// defaults so the persisted matrix is always complete.
func (s *Service) SaveMatrix(ctx context.Context, country string, input []MatrixInput) ([]Rule, error) {
	country = canonicalCountry(country)
	byStatus := make(map[string]repository.RuleUpsert, len(input))
	for _, in := range input {
		if !cases.ValidStatus(cases.Status(in.Status)) {
			return nil, apperr.Validation("unknown workflow status: " + in.Status)
		}
		if _, dup := byStatus[in.Status]; dup {
			return nil, apperr.Validation("duplicate rule for status " + in.Status)
		}
		if in.Subject == "" || in.Body == "" {
			return nil, apperr.Validation("subject and body must not be empty for status " + in.Status)
		}
		byStatus[in.Status] = repository.RuleUpsert{
			Status:                in.Status,
			Enabled:               in.Enabled,
			Roles:                 emptyIfNil(in.Roles),
			Emails:                emptyIfNil(in.Emails),
			Departments:           emptyIfNil(in.Departments),
			IncludeSubmitter:      in.IncludeSubmitter,
			RequireSameDepartment: in.RequireSameDepartment,
			Subject:               in.Subject,
			Body:                  in.Body,
		}
	}

	defaults := defaultMatrix()
	full := make([]repository.RuleUpsert, 0, len(defaults))
	for _, def := range defaults {
		if u, ok := byStatus[def.Status]; ok {
			full = append(full, u)
			continue
		}
		full = append(full, def)
	}

	saved, err := s.repo.ReplaceMatrix(ctx, country, full)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "save notification matrix", err)
	}
	s.log.WithCountry(country).Info("notification matrix saved", "rules", len(saved))

	return s.GetRules(ctx, country)
}

func applyPatch(base *repository.RuleUpsert, patch RulePatch) {
	if patch.Enabled != nil {
		base.Enabled = *patch.Enabled
	}
	if patch.Roles != nil {
		base.Roles = emptyIfNil(*patch.Roles)
	}
	if patch.Emails != nil {
		base.Emails = emptyIfNil(*patch.Emails)
	}
	if patch.Departments != nil {
		base.Departments = emptyIfNil(*patch.Departments)
	}
	if patch.IncludeSubmitter != nil {
		base.IncludeSubmitter = *patch.IncludeSubmitter
	}
	if patch.RequireSameDepartment != nil {
		base.RequireSameDepartment = *patch.RequireSameDepartment
	}
	if patch.Subject != nil {
		base.Subject = *patch.Subject
	}
	if patch.Body != nil {
		base.Body = *patch.Body
	}
}

func fromStored(r repository.Rule) Rule {
	return Rule{
		Status:                r.Status,
		Enabled:               r.Enabled,
		Roles:                 emptyIfNil(r.Roles),
		Emails:                emptyIfNil(r.Emails),
		Departments:           emptyIfNil(r.Departments),
		IncludeSubmitter:      r.IncludeSubmitter,
		RequireSameDepartment: r.RequireSameDepartment,
		Subject:               r.Subject,
		Body:                  r.Body,
		Persisted:             true,
		UpdatedAt:             r.UpdatedAt,
	}
}

func fromUpsert(u repository.RuleUpsert) Rule {
	return Rule{
		Status:                u.Status,
		Enabled:               u.Enabled,
		Roles:                 emptyIfNil(u.Roles),
		Emails:                emptyIfNil(u.Emails),
		Departments:           emptyIfNil(u.Departments),
		IncludeSubmitter:      u.IncludeSubmitter,
		RequireSameDepartment: u.RequireSameDepartment,
		Subject:               u.Subject,
		Body:                  u.Body,
	}
}

func toUpsert(r repository.Rule) repository.RuleUpsert {
	return repository.RuleUpsert{
		Status:                r.Status,
		Enabled:               r.Enabled,
		Roles:                 emptyIfNil(r.Roles),
		Emails:                emptyIfNil(r.Emails),
		Departments:           emptyIfNil(r.Departments),
		IncludeSubmitter:      r.IncludeSubmitter,
		RequireSameDepartment: r.RequireSameDepartment,
		Subject:               r.Subject,
		Body:                  r.Body,
	}
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
