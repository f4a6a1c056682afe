package loan

import (
	"fmt"
	"math"
	"strings"

	"loan-registrar/internal/domain/customer"
	"loan-registrar/internal/domain/kv"
	domain "loan-registrar/internal/domain/loan"
)

const (
	recordTypeLoan = "LOAN"
	attrLoans      = "loans"
)

// WritePolicy decides which items a registration writes and under which
// conditions. The set of policies is closed: SingleItem and DualItemWithIndex.
type WritePolicy interface {
	Name() string
	plan(l domain.Loan) []kv.Op
}

// SingleItem writes one loan item under partition LOAN.
type SingleItem struct {
	// EmbedCustomer nests the customer snapshot in the loan item.
	EmbedCustomer bool
}

func (p SingleItem) Name() string {
	if p.EmbedCustomer {
		return "single-embedded"
	}
	return "single"
}

func (p SingleItem) plan(l domain.Loan) []kv.Op {
	if !p.EmbedCustomer {
		l.Customer = nil
	}
	return []kv.Op{{
		Kind:      kv.OpPut,
		Key:       kv.Key{PK: recordTypeLoan, SK: loanSortKey(l.CustomerID, l.LoanID)},
		Item:      loanItem(l),
		Condition: kv.CondNotExists,
	}}
}

// DualItemWithIndex partitions loans by due day and appends a summary to
// the customer's lookup index in the same transaction.
type DualItemWithIndex struct{}

func (DualItemWithIndex) Name() string { return "dual" }

func (DualItemWithIndex) plan(l domain.Loan) []kv.Op {
	l.Customer = nil
	return []kv.Op{
		{
			Kind:      kv.OpPut,
			Key:       kv.Key{PK: DuePartition(l.DueDay), SK: loanSortKey(l.CustomerID, l.LoanID)},
			Item:      loanItem(l),
			Condition: kv.CondNotExists,
		},
		{
			Kind: kv.OpUpdate,
			Key:  customerKey(l.CustomerID),
			Append: &kv.ListAppend{
				Attr:  attrLoans,
				Value: domain.IndexEntry{LoanID: l.LoanID, DueDay: l.DueDay},
			},
			// a customer deleted after resolution must not gain an index entry
			Condition: kv.CondExists,
		},
	}
}

func ParsePolicy(s string) (WritePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return SingleItem{}, nil
	case "single-embedded":
		return SingleItem{EmbedCustomer: true}, nil
	case "dual", "":
		return DualItemWithIndex{}, nil
	default:
		return nil, fmt.Errorf("unknown write policy %q", s)
	}
}

func DuePartition(dueDay int) string { return fmt.Sprintf("%s#%d", recordTypeLoan, dueDay) }

func loanSortKey(customerID, loanID string) string {
	return "CUSTOMER#" + customerID + "#LOAN#" + loanID
}

func customerKey(customerID string) kv.Key {
	return kv.Key{PK: customer.RecordType, SK: customerID}
}

func loanItem(l domain.Loan) kv.Item {
	item := kv.Item{
		"loanId":     l.LoanID,
		"customerId": l.CustomerID,
		"dueDay":     l.DueDay,
		"amount":     l.Amount,
		"rate":       l.Rate,
		"status":     string(l.Status),
		"createdAt":  l.CreatedAt,
	}
	if l.Interest != nil {
		item["interest"] = *l.Interest
	}
	if l.Notes != nil {
		item["notes"] = *l.Notes
	}
	if l.Customer != nil {
		item["customer"] = l.Customer
	}
	return item
}

// presentNotes drops blank notes so they are stored as absent.
func presentNotes(n *string) *string {
	if n == nil || strings.TrimSpace(*n) == "" {
		return nil
	}
	return n
}

// validateDueDay accepts integral days in [MinDueDay, MaxDueDay].
func validateDueDay(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: dueDay must be an integer, got %v", domain.ErrInvalidInput, v)
	}
	if v < domain.MinDueDay || v > domain.MaxDueDay {
		return 0, fmt.Errorf("%w: dueDay must be between %d and %d, got %v",
			domain.ErrInvalidInput, domain.MinDueDay, domain.MaxDueDay, v)
	}
	return int(v), nil
}

func validateInput(in CreateLoanInput) (int, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return 0, fmt.Errorf("%w: customerId is required", domain.ErrInvalidInput)
	}
	if in.Amount == nil {
		return 0, fmt.Errorf("%w: amount is required", domain.ErrInvalidInput)
	}
	if in.Rate == nil {
		return 0, fmt.Errorf("%w: rate is required", domain.ErrInvalidInput)
	}
	return validateDueDay(in.DueDay)
}
