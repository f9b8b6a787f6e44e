package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget caps spending for one category over a recurring monthly period.
type Budget struct {
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ID         int64
	UserID     string
	CategoryID int
	Month      string // YYYY-MM
	Amount     decimal.Decimal
}

// GoalStatus tracks a savings goal's lifecycle.
type GoalStatus string

// Goal status constants.
const (
	GoalActive    GoalStatus = "ACTIVE"
	GoalCompleted GoalStatus = "COMPLETED"
	GoalAbandoned GoalStatus = "ABANDONED"
)

// Goal is a savings target with an optional deadline.
type Goal struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Deadline  *time.Time
	ID        int64
	UserID    string
	Name      string
	Status    GoalStatus
	Target    decimal.Decimal
	Saved     decimal.Decimal
}
