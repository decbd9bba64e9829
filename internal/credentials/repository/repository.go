// Package repository persists mailbox credentials for both credential
// models: the per-user record keyed by (country, provider) and the
// centralized admin record keyed by country alone. Tokens are stored
// encrypted; this layer round-trips the ciphertext untouched.
package repository

import (
	"context"
	"errors"
	"time"

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

// MailboxCredential is one per-user provider connection for a country.
type MailboxCredential struct {
	Country      string
	Provider     string
	AccessToken  string // encrypted at rest
	RefreshToken *string
	ExpiresAt    time.Time
	MailboxEmail string
	MailboxName  string
	DisplayName  string
	ConnectedBy  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AdminCredential is the centralized credential used for automated sends.
type AdminCredential struct {
	Country      string
	Provider     string
	ClientID     string
	TenantID     *string
	AccessToken  string // encrypted at rest
	RefreshToken *string
	ExpiresAt    time.Time
	FromEmail    string
	FromName     string
	UpdatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Repository) GetMailboxCredential(ctx context.Context, country, provider string) (MailboxCredential, error) {
	var c MailboxCredential
	err := r.pool.QueryRow(ctx, `
    SELECT country, provider, access_token, refresh_token, expires_at,
           mailbox_email, mailbox_name, display_name, connected_by, created_at, updated_at
    FROM mailbox_credentials
    WHERE country = $1 AND provider = $2
  `, country, provider).Scan(
		&c.Country, &c.Provider, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt,
		&c.MailboxEmail, &c.MailboxName, &c.DisplayName, &c.ConnectedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return MailboxCredential{}, ErrNotFound
	}
	return c, err
}

// ListMailboxCredentials returns every per-user connection for a country,
// at most one per provider.
func (r *Repository) ListMailboxCredentials(ctx context.Context, country string) ([]MailboxCredential, error) {
	rows, err := r.pool.Query(ctx, `
    SELECT country, provider, access_token, refresh_token, expires_at,
           mailbox_email, mailbox_name, display_name, connected_by, created_at, updated_at
    FROM mailbox_credentials
    WHERE country = $1
    ORDER BY provider ASC
  `, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MailboxCredential
	for rows.Next() {
		var c MailboxCredential
		if err := rows.Scan(
			&c.Country, &c.Provider, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt,
			&c.MailboxEmail, &c.MailboxName, &c.DisplayName, &c.ConnectedBy, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// UpsertMailboxCredential stores a credential, superseding any prior row for
// the same (country, provider). Re-authorization replaces, never merges.
func (r *Repository) UpsertMailboxCredential(ctx context.Context, c MailboxCredential) error {
	_, err := r.pool.Exec(ctx, `
    INSERT INTO mailbox_credentials
      (country, provider, access_token, refresh_token, expires_at,
       mailbox_email, mailbox_name, display_name, connected_by)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    ON CONFLICT (country, provider) DO UPDATE SET
      access_token = EXCLUDED.access_token,
      refresh_token = EXCLUDED.refresh_token,
      expires_at = EXCLUDED.expires_at,
      mailbox_email = EXCLUDED.mailbox_email,
      mailbox_name = EXCLUDED.mailbox_name,
      display_name = EXCLUDED.display_name,
      connected_by = EXCLUDED.connected_by,
      updated_at = now()
  `, c.Country, c.Provider, c.AccessToken, c.RefreshToken, c.ExpiresAt,
		c.MailboxEmail, c.MailboxName, c.DisplayName, c.ConnectedBy)
	return err
}

// UpdateMailboxTokens replaces only the token fields after a refresh.
func (r *Repository) UpdateMailboxTokens(ctx context.Context, country, provider, accessToken string, refreshToken *string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
    UPDATE mailbox_credentials
    SET access_token = $3, refresh_token = COALESCE($4, refresh_token),
        expires_at = $5, updated_at = now()
    WHERE country = $1 AND provider = $2
  `, country, provider, accessToken, refreshToken, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteMailboxCredential(ctx context.Context, country, provider string) error {
	tag, err := r.pool.Exec(ctx, `
    DELETE FROM mailbox_credentials WHERE country = $1 AND provider = $2
  `, country, provider)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetAdminCredential(ctx context.Context, country string) (AdminCredential, error) {
	var c AdminCredential
	err := r.pool.QueryRow(ctx, `
    SELECT country, provider, client_id, tenant_id, access_token, refresh_token,
           expires_at, from_email, from_name, updated_by, created_at, updated_at
    FROM admin_mail_credentials
    WHERE country = $1
  `, country).Scan(
		&c.Country, &c.Provider, &c.ClientID, &c.TenantID, &c.AccessToken, &c.RefreshToken,
		&c.ExpiresAt, &c.FromEmail, &c.FromName, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return AdminCredential{}, ErrNotFound
	}
	return c, err
}

// UpsertAdminCredential stores the centralized credential for a country.
// At most one row per country; a new provider replaces the old one.
func (r *Repository) UpsertAdminCredential(ctx context.Context, c AdminCredential) error {
	_, err := r.pool.Exec(ctx, `
    INSERT INTO admin_mail_credentials
      (country, provider, client_id, tenant_id, access_token, refresh_token,
       expires_at, from_email, from_name, updated_by)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    ON CONFLICT (country) DO UPDATE SET
      provider = EXCLUDED.provider,
      client_id = EXCLUDED.client_id,
      tenant_id = EXCLUDED.tenant_id,
      access_token = EXCLUDED.access_token,
      refresh_token = EXCLUDED.refresh_token,
      expires_at = EXCLUDED.expires_at,
      from_email = EXCLUDED.from_email,
      from_name = EXCLUDED.from_name,
      updated_by = EXCLUDED.updated_by,
      updated_at = now()
  `, c.Country, c.Provider, c.ClientID, c.TenantID, c.AccessToken, c.RefreshToken,
		c.ExpiresAt, c.FromEmail, c.FromName, c.UpdatedBy)
	return err
}

// UpdateAdminTokens replaces only the token fields after a refresh.
func (r *Repository) UpdateAdminTokens(ctx context.Context, country, accessToken string, refreshToken *string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
    UPDATE admin_mail_credentials
    SET access_token = $2, refresh_token = COALESCE($3, refresh_token),
        expires_at = $4, updated_at = now()
    WHERE country = $1
  `, country, accessToken, refreshToken, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteAdminCredential(ctx context.Context, country string) error {
	tag, err := r.pool.Exec(ctx, `
    DELETE FROM admin_mail_credentials WHERE country = $1
  `, country)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
