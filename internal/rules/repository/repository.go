// Package repository persists the per-country notification rule matrix.
// At most one row exists per (country, status); statuses without a row are
// synthesized by the service layer and never stored until saved.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Rule is one persisted (country, status) row.
type Rule struct {
	ID                    uuid.UUID
	Country               string
	Status                string
	Enabled               bool
	Roles                 []string
	Emails                []string
	Departments           []string
	IncludeSubmitter      bool
	RequireSameDepartment bool
	Subject               string
	Body                  string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// RuleUpsert is the writable subset of a rule.
type RuleUpsert struct {
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

// legacySettings is the retired per-row settings blob. Early deployments
// stored explicit addresses under its specific_emails key instead of the
// emails column; ListRules folds those into the column on first read.
type legacySettings struct {
	SpecificEmails []string `json:"specific_emails"`
}

const ruleColumns = `id, country, status, enabled, roles, emails, departments,
       include_submitter, require_same_department, subject, body, settings, created_at, updated_at`

// currentRuleColumns omits the settings blob for statements that just wrote
// it to NULL.
const currentRuleColumns = `id, country, status, enabled, roles, emails, departments,
       include_submitter, require_same_department, subject, body, created_at, updated_at`

func scanRule(row pgx.Row) (Rule, []byte, error) {
	var r Rule
	var settings []byte
	err := row.Scan(
		&r.ID, &r.Country, &r.Status, &r.Enabled, &r.Roles, &r.Emails, &r.Departments,
		&r.IncludeSubmitter, &r.RequireSameDepartment, &r.Subject, &r.Body, &settings,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, settings, err
}

func scanCurrentRule(row pgx.Row) (Rule, error) {
	var r Rule
	err := row.Scan(
		&r.ID, &r.Country, &r.Status, &r.Enabled, &r.Roles, &r.Emails, &r.Departments,
		&r.IncludeSubmitter, &r.RequireSameDepartment, &r.Subject, &r.Body,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// ListRules returns every persisted rule for a country in status order as
// stored. Legacy rows are normalized into the emails column before they are
// returned; the rewrite is persisted so the migration converges.
func (r *Repository) ListRules(ctx context.Context, country string) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
    SELECT `+ruleColumns+`
    FROM notification_rules
    WHERE country = $1
    ORDER BY status ASC
  `, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Rule
	var toNormalize []Rule
	for rows.Next() {
		rule, settings, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		if normalized := normalizeLegacyEmails(&rule, settings); normalized {
			toNormalize = append(toNormalize, rule)
		}
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rule := range toNormalize {
		if err := r.persistNormalizedEmails(ctx, rule); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *Repository) GetRule(ctx context.Context, country, status string) (Rule, error) {
	rule, settings, err := scanRule(r.pool.QueryRow(ctx, `
    SELECT `+ruleColumns+`
    FROM notification_rules
    WHERE country = $1 AND status = $2
  `, country, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	if err != nil {
		return Rule{}, err
	}
	if normalizeLegacyEmails(&rule, settings) {
		if err := r.persistNormalizedEmails(ctx, rule); err != nil {
			return Rule{}, err
		}
	}
	return rule, nil
}

// normalizeLegacyEmails merges specific_emails from the legacy settings
// blob into the emails column, preserving order and skipping duplicates.
// Returns true when the row needs rewriting.
func normalizeLegacyEmails(rule *Rule, settings []byte) bool {
	if len(settings) == 0 {
		return false
	}
	var legacy legacySettings
	if err := json.Unmarshal(settings, &legacy); err != nil || len(legacy.SpecificEmails) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(rule.Emails))
	for _, e := range rule.Emails {
		seen[e] = struct{}{}
	}
	for _, e := range legacy.SpecificEmails {
		if _, dup := seen[e]; dup {
			continue
		}
		rule.Emails = append(rule.Emails, e)
		seen[e] = struct{}{}
	}
	return true
}

func (r *Repository) persistNormalizedEmails(ctx context.Context, rule Rule) error {
	_, err := r.pool.Exec(ctx, `
    UPDATE notification_rules
    SET emails = $3, settings = NULL, updated_at = now()
    WHERE country = $1 AND status = $2
  `, rule.Country, rule.Status, rule.Emails)
	return err
}

// UpsertRule writes the single addressed rule, leaving siblings untouched.
func (r *Repository) UpsertRule(ctx context.Context, country string, u RuleUpsert) (Rule, error) {
	rule, err := scanCurrentRule(r.pool.QueryRow(ctx, `
    INSERT INTO notification_rules
      (country, status, enabled, roles, emails, departments,
       include_submitter, require_same_department, subject, body)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    ON CONFLICT (country, status) DO UPDATE SET
      enabled = EXCLUDED.enabled,
      roles = EXCLUDED.roles,
      emails = EXCLUDED.emails,
      departments = EXCLUDED.departments,
      include_submitter = EXCLUDED.include_submitter,
      require_same_department = EXCLUDED.require_same_department,
      subject = EXCLUDED.subject,
      body = EXCLUDED.body,
      settings = NULL,
      updated_at = now()
    RETURNING `+currentRuleColumns+`
  `, country, u.Status, u.Enabled, u.Roles, u.Emails, u.Departments,
		u.IncludeSubmitter, u.RequireSameDepartment, u.Subject, u.Body))
	if err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// ReplaceMatrix swaps the country's whole matrix in one transaction so
// concurrent readers observe either the old set or the new set.
func (r *Repository) ReplaceMatrix(ctx context.Context, country string, rules []RuleUpsert) ([]Rule, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM notification_rules WHERE country = $1`, country); err != nil {
		return nil, err
	}

	for _, u := range rules {
		if _, err := tx.Exec(ctx, `
      INSERT INTO notification_rules
        (country, status, enabled, roles, emails, departments,
         include_submitter, require_same_department, subject, body)
      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, country, u.Status, u.Enabled, u.Roles, u.Emails, u.Departments,
			u.IncludeSubmitter, u.RequireSameDepartment, u.Subject, u.Body); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return r.ListRules(ctx, country)
}
