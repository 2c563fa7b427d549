// Package members exposes the read side of member records. Member
// lifecycle is owned by the administration subsystem; the engine only
// needs identity and status.
package members

import "time"

// Status enumerates member lifecycle states.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Member is the engine's view of a member.
type Member struct {
	ID           int64
	MemberNumber string
	FirstName    string
	LastName     string
	Status       Status
	JoinedAt     time.Time
}

// Eligible reports whether the member can transact.
func (m Member) Eligible() bool {
	return m.Status == StatusActive
}
