package periods

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates valid period states. CLOSED is terminal; there is no
// reopen transition.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Period is a monthly accounting bucket scoped to a tenant. At most one
// period exists per (tenant, year, month).
type Period struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Year      int
	Month     int
	Quarter   int
	Status    Status
	ClosedBy  *uuid.UUID
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Name renders the period in YYYY-MM form for user-facing messages.
func (p Period) Name() string {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// QuarterOf derives the calendar quarter for a month.
func QuarterOf(month time.Month) int {
	return (int(month)-1)/3 + 1
}
