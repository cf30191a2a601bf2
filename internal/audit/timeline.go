package audit

import (
	"encoding/json"
	"time"
)

// TimelineFilters narrows the audit trail. Zero values are ignored.
type TimelineFilters struct {
	OrganizationID int64
	From           time.Time
	To             time.Time
	ActorID        int64
	Entity         string
	EntityID       string
	Action         string
	Page           int
	PageSize       int
}

// TimelineRow is one audit_logs entry.
type TimelineRow struct {
	ID             int64           `json:"id"`
	At             time.Time       `json:"at"`
	OrganizationID *int64          `json:"organization_id,omitempty"`
	ActorID        *int64          `json:"actor_id,omitempty"`
	Action         string          `json:"action"`
	Entity         string          `json:"entity"`
	EntityID       string          `json:"entity_id"`
	Description    string          `json:"description,omitempty"`
	Changes        json.RawMessage `json:"changes,omitempty"`
	IPAddress      string          `json:"ip_address,omitempty"`
	UserAgent      string          `json:"user_agent,omitempty"`
}

// PagingInfo is window paging without a total count.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"items"`
	Paging PagingInfo    `json:"paging"`
}
