package storage

import (
	"context"
	"time"
)

// TenantEventRepository links events to the tenants that can see them
type TenantEventRepository struct {
	db *DB
}

func NewTenantEventRepository(db *DB) *TenantEventRepository {
	return &TenantEventRepository{db: db}
}

// ListEventIDs returns the event ids already linked to a tenant on a portal
func (r *TenantEventRepository) ListEventIDs(ctx context.Context, tenantID, portalID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id FROM tenant_events WHERE tenant_id = ? AND portal_id = ? ORDER BY event_id`,
		tenantID, portalID)
	if err != nil {
		return nil, wrap("list tenant events", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrap("list tenant events", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list tenant events", err)
	}
	return ids, nil
}

// InsertIgnore links event ids to a tenant and returns the number of new links
func (r *TenantEventRepository) InsertIgnore(ctx context.Context, tenantID, portalID int64, eventIDs []int64) (int, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO tenant_events (tenant_id, event_id, portal_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`

	createdAt := formatTimestamp(time.Now())
	inserted := 0
	err := r.db.WithTx(ctx, func(tx *Tx) error {
		for _, id := range eventIDs {
			res, err := tx.ExecContext(ctx, query, tenantID, id, portalID, createdAt)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, wrap("link tenant events", err)
	}
	return inserted, nil
}
