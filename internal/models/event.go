package models

import (
	"fmt"
	"time"
)

// EventStatus tracks whether the line items of an event were captured
type EventStatus string

const (
	EventPending  EventStatus = "pending"
	EventIncluded EventStatus = "included"
)

// ItemStatusNew is the workflow status of a freshly captured line item
const ItemStatusNew = 0

// Event is a quotation event as listed on the portal
type Event struct {
	EventID     int64       `json:"event_id"`
	DetailURL   string      `json:"detail_url"`
	PeriodStart *time.Time  `json:"period_start,omitempty"`
	PeriodEnd   *time.Time  `json:"period_end,omitempty"`
	TenantID    *int64      `json:"tenant_id,omitempty"`
	PortalID    int64       `json:"portal_id"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at,omitempty"`
}

// EventSummary is one listing row before it is attributed to a tenant
type EventSummary struct {
	EventID     int64      `json:"event_id"`
	DetailURL   string     `json:"detail_url"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

// Event attributes the summary to a tenant and portal as a pending event
func (s EventSummary) Event(tenantID *int64, portalID int64) Event {
	return Event{
		EventID:     s.EventID,
		DetailURL:   s.DetailURL,
		PeriodStart: s.PeriodStart,
		PeriodEnd:   s.PeriodEnd,
		TenantID:    tenantID,
		PortalID:    portalID,
		Status:      EventPending,
	}
}

// LineItem is one requested good or service inside an event
type LineItem struct {
	ItemKey          string     `json:"item_key"`
	EventID          int64      `json:"event_id"`
	Position         int        `json:"position"`
	RowRef           string     `json:"row_ref,omitempty"`
	Description      string     `json:"description"`
	Quantity         string     `json:"quantity"`
	DeliveryLocation string     `json:"delivery_location"`
	Details          string     `json:"details"`
	PeriodStart      *time.Time `json:"period_start,omitempty"`
	PeriodEnd        *time.Time `json:"period_end,omitempty"`
	CapturedAt       time.Time  `json:"captured_at"`
	Value            *float64   `json:"value,omitempty"`
	Owner            *string    `json:"owner,omitempty"`
	WorkflowStatus   int        `json:"workflow_status"`
}

// ItemKey identifies a line item by its event and 1-based row position
func ItemKey(eventID int64, position int) string {
	return fmt.Sprintf("%d-%d", eventID, position)
}

// Credential is a stored portal login for a tenant. The secret stays
// encrypted until a session is opened.
type Credential struct {
	TenantID        int64  `json:"tenant_id"`
	PortalID        int64  `json:"portal_id"`
	Login           string `json:"login"`
	EncryptedSecret string `json:"-"`
	Active          bool   `json:"active"`
}

// PortalLogin holds decrypted credentials for a single session
type PortalLogin struct {
	TenantID int64
	Login    string
	Password string
}

// String never prints the password
func (p PortalLogin) String() string {
	return fmt.Sprintf("PortalLogin{tenant=%d}", p.TenantID)
}
