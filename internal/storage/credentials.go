package storage

import (
	"context"
	"time"

	"github.com/nexconsult/quote-harvester/internal/models"
)

// CredentialRepository reads tenant portal credentials. Secrets stay encrypted.
type CredentialRepository struct {
	db *DB
}

func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// ListActive returns the active credentials of a portal ordered by tenant
func (r *CredentialRepository) ListActive(ctx context.Context, portalID int64) ([]models.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, portal_id, login, encrypted_secret, active
		FROM portal_credentials
		WHERE portal_id = ? AND active = ?
		ORDER BY tenant_id`, portalID, true)
	if err != nil {
		return nil, wrap("list credentials", err)
	}
	defer rows.Close()

	var creds []models.Credential
	for rows.Next() {
		var c models.Credential
		if err := rows.Scan(&c.TenantID, &c.PortalID, &c.Login, &c.EncryptedSecret, &c.Active); err != nil {
			return nil, wrap("list credentials", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list credentials", err)
	}
	return creds, nil
}

// Upsert stores or replaces the credential of a tenant on a portal
func (r *CredentialRepository) Upsert(ctx context.Context, c models.Credential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO portal_credentials (tenant_id, portal_id, login, encrypted_secret, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, portal_id) DO UPDATE SET
			login = excluded.login,
			encrypted_secret = excluded.encrypted_secret,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		c.TenantID, c.PortalID, c.Login, c.EncryptedSecret, c.Active, formatTimestamp(time.Now()))
	return wrap("upsert credential", err)
}
