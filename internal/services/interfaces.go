package services

import (
	"context"
	"time"

	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/portal"
)

// CacheServiceInterface defines the interface for cache service
type CacheServiceInterface interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value in cache with the default TTL
	Set(ctx context.Context, key string, value string) error

	// SetIfAbsent stores value only when key is missing and reports whether it did
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// DeleteIfValue removes key only while it still holds value
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)

	// Clear clears all cache entries
	Clear(ctx context.Context) error

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)

	// GetStats returns cache statistics
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Health returns cache service health status
	Health() map[string]interface{}
}

// BrowserServiceInterface opens isolated browser sessions
type BrowserServiceInterface interface {
	// OpenSession starts a fresh browser with its own profile and returns
	// its page. release tears the browser down.
	OpenSession(ctx context.Context, tenantID int64) (page portal.Page, release func(), err error)

	// GetStats returns session statistics
	GetStats() map[string]interface{}

	// Health returns browser service health status
	Health() map[string]interface{}

	// Close stops every open session
	Close() error
}

// Authenticator establishes a portal session on a page
type Authenticator interface {
	Login(ctx context.Context, page portal.Page, creds models.PortalLogin) error
}

// Notifier delivers operator alerts
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Decrypter opens stored credential secrets
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// EventStore persists quotation events
type EventStore interface {
	InsertIgnore(ctx context.Context, events []models.Event) (int, error)
	ListPending(ctx context.Context, portalID int64) ([]models.Event, error)
	ListPendingForTenant(ctx context.Context, tenantID, portalID int64, since time.Time) ([]models.Event, error)
	MarkIncluded(ctx context.Context, eventID int64) (bool, error)
}

// TenantEventStore persists which tenant sees which event
type TenantEventStore interface {
	ListEventIDs(ctx context.Context, tenantID, portalID int64) ([]int64, error)
	InsertIgnore(ctx context.Context, tenantID, portalID int64, eventIDs []int64) (int, error)
}

// ItemStore persists event line items
type ItemStore interface {
	InsertIgnore(ctx context.Context, item models.LineItem) (bool, error)
	ExistsForEvent(ctx context.Context, eventID int64) (bool, error)
}

// CredentialStore reads tenant portal credentials
type CredentialStore interface {
	ListActive(ctx context.Context, portalID int64) ([]models.Credential, error)
}
