package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/quote-harvester/internal/config"
	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/utils"
)

// setupTestDB creates a named shared in-memory sqlite database with the
// schema applied. The name derives from t.Name() so tests stay isolated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenSQLite(MemoryDSN(t.Name()))
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db))

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func event(id int64) models.Event {
	return models.Event{
		EventID:     id,
		DetailURL:   fmt.Sprintf("https://portal.test/quotes/external_responses/%d", id),
		PeriodStart: utils.ParsePortalDate("03/07/25"),
		PeriodEnd:   utils.ParsePortalDate("03/21/25"),
		PortalID:    1,
	}
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", rebind(config.DriverPostgres, "SELECT 1 WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT 1 WHERE a = ?", rebind(config.DriverSQLite, "SELECT 1 WHERE a = ?"))
}

func TestEventRepository_InsertIgnoreFirstWriteWins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	first := event(100)
	n, err := repo.InsertIgnore(ctx, []models.Event{first, event(101)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	changed := event(100)
	changed.DetailURL = "https://elsewhere.test"
	changed.PeriodStart = nil
	n, err = repo.InsertIgnore(ctx, []models.Event{changed, event(102)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.Get(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.DetailURL, got.DetailURL)
	require.NotNil(t, got.PeriodStart)
	assert.Equal(t, "2025-03-07", got.PeriodStart.Format(time.DateOnly))
	assert.Equal(t, models.EventPending, got.Status)

	missing, err := repo.Get(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEventRepository_InsertIgnoreIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	batch := []models.Event{event(1), event(2), event(3)}
	n, err := repo.InsertIgnore(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repo.InsertIgnore(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEventRepository_PendingAndMarkIncluded(t *testing.T) {
	db := setupTestDB(t)
	events := NewEventRepository(db)
	links := NewTenantEventRepository(db)
	ctx := context.Background()

	old := event(10)
	old.CreatedAt = time.Now().AddDate(0, 0, -30)
	_, err := events.InsertIgnore(ctx, []models.Event{old, event(11), event(12)})
	require.NoError(t, err)

	_, err = links.InsertIgnore(ctx, 7, 1, []int64{10, 11})
	require.NoError(t, err)

	pending, err := events.ListPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	recent, err := events.ListPendingForTenant(ctx, 7, 1, time.Now().AddDate(0, 0, -10))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(11), recent[0].EventID)

	marked, err := events.MarkIncluded(ctx, 11)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = events.MarkIncluded(ctx, 11)
	require.NoError(t, err)
	assert.False(t, marked, "second mark is a no-op")

	pending, err = events.ListPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestEventRepository_CreatedAtBoundInUTC(t *testing.T) {
	db := setupTestDB(t)
	events := NewEventRepository(db)
	links := NewTenantEventRepository(db)
	ctx := context.Background()

	// a clock far from the database's own keeps CURRENT_TIMESTAMP out of the picture
	stamp := time.Date(2020, 5, 4, 21, 30, 0, 0, time.FixedZone("BRT", -3*60*60))
	events.now = func() time.Time { return stamp }

	_, err := events.InsertIgnore(ctx, []models.Event{event(40)})
	require.NoError(t, err)
	_, err = links.InsertIgnore(ctx, 7, 1, []int64{40})
	require.NoError(t, err)

	got, err := events.Get(ctx, 40)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.CreatedAt.Equal(stamp), "created_at %s", got.CreatedAt)

	inWindow, err := events.ListPendingForTenant(ctx, 7, 1, stamp.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, inWindow, 1)

	afterWindow, err := events.ListPendingForTenant(ctx, 7, 1, stamp.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, afterWindow)
}

func TestTenantEventRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := NewEventRepository(db).InsertIgnore(ctx, []models.Event{event(1), event(2), event(3), event(4)})
	require.NoError(t, err)

	repo := NewTenantEventRepository(db)

	n, err := repo.InsertIgnore(ctx, 5, 1, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repo.InsertIgnore(ctx, 5, 1, []int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := repo.ListEventIDs(ctx, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)

	other, err := repo.ListEventIDs(ctx, 6, 1)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestItemRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := NewEventRepository(db).InsertIgnore(ctx, []models.Event{event(50)})
	require.NoError(t, err)

	repo := NewItemRepository(db)

	exists, err := repo.ExistsForEvent(ctx, 50)
	require.NoError(t, err)
	assert.False(t, exists)

	item := models.LineItem{
		ItemKey:          models.ItemKey(50, 1),
		EventID:          50,
		Position:         1,
		RowRef:           "line-1",
		Description:      "Caixa de som",
		Quantity:         "4",
		DeliveryLocation: "Porto de Tubarão",
		PeriodStart:      utils.ParsePortalDate("03/07/25"),
		CapturedAt:       time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC),
	}

	ok, err := repo.InsertIgnore(ctx, item)
	require.NoError(t, err)
	assert.True(t, ok)

	item.Description = "changed"
	ok, err = repo.InsertIgnore(ctx, item)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err = repo.ExistsForEvent(ctx, 50)
	require.NoError(t, err)
	assert.True(t, exists)

	items, err := repo.ListByEvent(ctx, 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Caixa de som", items[0].Description)
	assert.Equal(t, "50-1", items[0].ItemKey)
	assert.Equal(t, models.ItemStatusNew, items[0].WorkflowStatus)
	assert.Nil(t, items[0].Value)
	assert.True(t, item.CapturedAt.Equal(items[0].CapturedAt))
}

func TestCredentialRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, models.Credential{TenantID: 2, PortalID: 1, Login: "b@x.io", EncryptedSecret: "tok-b", Active: true}))
	require.NoError(t, repo.Upsert(ctx, models.Credential{TenantID: 1, PortalID: 1, Login: "a@x.io", EncryptedSecret: "tok-a", Active: true}))
	require.NoError(t, repo.Upsert(ctx, models.Credential{TenantID: 3, PortalID: 1, Login: "c@x.io", EncryptedSecret: "tok-c", Active: false}))
	require.NoError(t, repo.Upsert(ctx, models.Credential{TenantID: 4, PortalID: 2, Login: "d@x.io", EncryptedSecret: "tok-d", Active: true}))

	creds, err := repo.ListActive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, int64(1), creds[0].TenantID)
	assert.Equal(t, "tok-a", creds[0].EncryptedSecret)

	require.NoError(t, repo.Upsert(ctx, models.Credential{TenantID: 1, PortalID: 1, Login: "a2@x.io", EncryptedSecret: "tok-a2", Active: true}))
	creds, err = repo.ListActive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "a2@x.io", creds[0].Login)
}

func TestStorageErrorWrapsDriverError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// line items reference events; a missing event violates the foreign key
	_, err := NewItemRepository(db).InsertIgnore(ctx, models.LineItem{EventID: 404, Position: 1, CapturedAt: time.Now()})
	require.Error(t, err)

	var storeErr *Error
	assert.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "insert line item", storeErr.Op)
}
