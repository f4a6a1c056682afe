package loan

import (
	"github.com/shopspring/decimal"
)

// CreateLoanInput is what the registrar accepts. DueDay stays a float so a
// fractional day reaches validation instead of being truncated upstream.
type CreateLoanInput struct {
	CustomerID string
	DueDay     float64
	Amount     *decimal.Decimal
	Rate       *decimal.Decimal
	Interest   *decimal.Decimal
	Notes      *string
}

type LoanDTO struct {
	LoanID     string           `json:"loanId"`
	CustomerID string           `json:"customerId"`
	DueDay     int              `json:"dueDay"`
	Amount     decimal.Decimal  `json:"amount"`
	Rate       decimal.Decimal  `json:"rate"`
	Interest   *decimal.Decimal `json:"interest,omitempty"`
	Notes      *string          `json:"notes,omitempty"`
	Status     string           `json:"status"`
	CreatedAt  string           `json:"createdAt"`
}
