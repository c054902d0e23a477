package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/nexconsult/quote-harvester/internal/models"
)

// EventRepository persists quotation events. The first write of an event id
// wins; later inserts of the same id are ignored.
type EventRepository struct {
	db  *DB
	now func() time.Time
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db, now: time.Now}
}

const eventColumns = `event_id, portal_id, tenant_id, detail_url, period_start, period_end, status, created_at`

// InsertIgnore inserts the events in one transaction and returns how many
// rows were actually written.
func (r *EventRepository) InsertIgnore(ctx context.Context, events []models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO events (event_id, portal_id, tenant_id, detail_url, period_start, period_end, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`

	inserted := 0
	err := r.db.WithTx(ctx, func(tx *Tx) error {
		for _, e := range events {
			status := e.Status
			if status == "" {
				status = models.EventPending
			}
			// created_at is always bound in UTC, the lookback filter compares
			// it against UTC strings whatever the session time zone is
			createdAt := e.CreatedAt
			if createdAt.IsZero() {
				createdAt = r.now()
			}

			res, err := tx.ExecContext(ctx, query,
				e.EventID, e.PortalID, e.TenantID, e.DetailURL,
				nullDate{e.PeriodStart}, nullDate{e.PeriodEnd}, string(status), formatTimestamp(createdAt),
			)
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
		return 0, wrap("insert events", err)
	}

	return inserted, nil
}

// Get returns an event by id, or nil when it does not exist
func (r *EventRepository) Get(ctx context.Context, eventID int64) (*models.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = ?`, eventID)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get event", err)
	}
	return e, nil
}

// ListPending returns every event of the portal whose items were not captured yet
func (r *EventRepository) ListPending(ctx context.Context, portalID int64) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE portal_id = ? AND status = ?
		ORDER BY event_id ASC`, portalID, string(models.EventPending))
	if err != nil {
		return nil, wrap("list pending events", err)
	}
	defer rows.Close()

	return collectEvents(rows, "list pending events")
}

// ListPendingForTenant returns pending events linked to a tenant and
// created at or after since.
func (r *EventRepository) ListPendingForTenant(ctx context.Context, tenantID, portalID int64, since time.Time) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.event_id, e.portal_id, e.tenant_id, e.detail_url, e.period_start, e.period_end, e.status, e.created_at
		FROM events e
		JOIN tenant_events te ON te.event_id = e.event_id AND te.portal_id = e.portal_id
		WHERE te.tenant_id = ? AND e.portal_id = ? AND e.status = ? AND e.created_at >= ?
		ORDER BY e.event_id ASC`,
		tenantID, portalID, string(models.EventPending), formatTimestamp(since))
	if err != nil {
		return nil, wrap("list tenant pending events", err)
	}
	defer rows.Close()

	return collectEvents(rows, "list tenant pending events")
}

// MarkIncluded flips a pending event to included. It reports whether a row changed.
func (r *EventRepository) MarkIncluded(ctx context.Context, eventID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET status = ? WHERE event_id = ? AND status = ?`,
		string(models.EventIncluded), eventID, string(models.EventPending))
	if err != nil {
		return false, wrap("mark event included", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("mark event included", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		e          models.Event
		tenantID   sql.NullInt64
		start, end nullDate
		status     string
		createdAt  dbTime
	)
	if err := row.Scan(&e.EventID, &e.PortalID, &tenantID, &e.DetailURL, &start, &end, &status, &createdAt); err != nil {
		return nil, err
	}
	if tenantID.Valid {
		id := tenantID.Int64
		e.TenantID = &id
	}
	e.PeriodStart = start.Time
	e.PeriodEnd = end.Time
	e.Status = models.EventStatus(status)
	e.CreatedAt = createdAt.Time
	return &e, nil
}

func collectEvents(rows *sql.Rows, op string) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return events, nil
}
