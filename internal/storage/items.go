package storage

import (
	"context"
	"database/sql"

	"github.com/nexconsult/quote-harvester/internal/models"
)

// ItemRepository persists line items keyed by event and row position
type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// InsertIgnore writes a line item unless its key already exists. It reports
// whether the row was written.
func (r *ItemRepository) InsertIgnore(ctx context.Context, item models.LineItem) (bool, error) {
	key := item.ItemKey
	if key == "" {
		key = models.ItemKey(item.EventID, item.Position)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO line_items (
			item_key, event_id, row_position, row_ref, description, quantity,
			delivery_location, details, period_start, period_end, captured_at,
			value, owner, workflow_status
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		key, item.EventID, item.Position, item.RowRef, item.Description, item.Quantity,
		item.DeliveryLocation, item.Details, nullDate{item.PeriodStart}, nullDate{item.PeriodEnd},
		formatTimestamp(item.CapturedAt), item.Value, item.Owner, item.WorkflowStatus,
	)
	if err != nil {
		return false, wrap("insert line item", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("insert line item", err)
	}
	return n > 0, nil
}

// ExistsForEvent reports whether any line item was captured for the event
func (r *ItemRepository) ExistsForEvent(ctx context.Context, eventID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM line_items WHERE event_id = ? LIMIT 1`, eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrap("check line items", err)
	}
	return true, nil
}

// ListByEvent returns the items of an event in row order
func (r *ItemRepository) ListByEvent(ctx context.Context, eventID int64) ([]models.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_key, event_id, row_position, row_ref, description, quantity,
		       delivery_location, details, period_start, period_end, captured_at,
		       value, owner, workflow_status
		FROM line_items
		WHERE event_id = ?
		ORDER BY row_position`, eventID)
	if err != nil {
		return nil, wrap("list line items", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var (
			it         models.LineItem
			start, end nullDate
			captured   dbTime
			value      sql.NullFloat64
			owner      sql.NullString
		)
		if err := rows.Scan(&it.ItemKey, &it.EventID, &it.Position, &it.RowRef, &it.Description, &it.Quantity,
			&it.DeliveryLocation, &it.Details, &start, &end, &captured, &value, &owner, &it.WorkflowStatus); err != nil {
			return nil, wrap("list line items", err)
		}
		it.PeriodStart = start.Time
		it.PeriodEnd = end.Time
		it.CapturedAt = captured.Time
		if value.Valid {
			v := value.Float64
			it.Value = &v
		}
		if owner.Valid {
			o := owner.String
			it.Owner = &o
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list line items", err)
	}
	return items, nil
}
