package domain

import "time"

type Task struct {
	ID          int64     `db:"id"`
	OwnerID     int64     `db:"owner_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Priority    int       `db:"priority"`
	DueDate     time.Time `db:"due_date"`
	IsComplete  bool      `db:"is_complete"`
	CreatedAt   time.Time `db:"created_at"`
	// UpdatedAt doubles as the "last notified at" marker: the scanner skips
	// tasks whose UpdatedAt already passed the eligibility bound.
	UpdatedAt *time.Time `db:"updated_at"`
}
