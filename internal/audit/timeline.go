// Package audit is the read side of the append-only audit log.
package audit

import (
	"encoding/json"
	"time"
)

// Entry is one immutable audit log row.
type Entry struct {
	ID       int64
	Table    string
	Op       string
	RecordID int64
	OldValue json.RawMessage
	NewValue json.RawMessage
	Actor    string
	At       time.Time
}

// Filters narrows the timeline window.
type Filters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Table    string
	Op       string
	Page     int
	PageSize int
}

// PagingInfo holds simple pagination metadata.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result bundles a timeline page with its paging info.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}
