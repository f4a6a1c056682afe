package loan

import (
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive Status = "ACTIVE"
)

// Due days stop at 28 so every month has the day.
const (
	MinDueDay = 1
	MaxDueDay = 28
)

type Loan struct {
	LoanID     string           `json:"loanId"`
	CustomerID string           `json:"customerId"`
	DueDay     int              `json:"dueDay"`
	Amount     decimal.Decimal  `json:"amount"`
	Rate       decimal.Decimal  `json:"rate"`
	Interest   *decimal.Decimal `json:"interest,omitempty"`
	Notes      *string          `json:"notes,omitempty"`
	Status     Status           `json:"status"`
	CreatedAt  string           `json:"createdAt"`
	// Customer snapshot, only when the write policy embeds it.
	Customer map[string]any `json:"customer,omitempty"`
}

// IndexEntry is one element of the per-customer lookup index.
type IndexEntry struct {
	LoanID string `json:"loanId"`
	DueDay int    `json:"dueDay"`
}
