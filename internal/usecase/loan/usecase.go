package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"loan-registrar/internal/clock"
	"loan-registrar/internal/domain/kv"
	domain "loan-registrar/internal/domain/loan"
	"loan-registrar/internal/infrastructure/monitoring"
	"loan-registrar/pkg/id"
)

// Usecase is the loan registrar. It keeps no state between calls; every
// consistency guarantee comes from the store's conditional writes.
type Usecase struct {
	store  kv.Store
	clock  clock.Clock
	policy WritePolicy
	newID  func() string
	logger *slog.Logger
}

type Option func(*Usecase)

// WithIDGenerator replaces id.NewLoanID, e.g. to force a key collision in tests.
func WithIDGenerator(fn func() string) Option { return func(u *Usecase) { u.newID = fn } }

func WithLogger(l *slog.Logger) Option { return func(u *Usecase) { u.logger = l } }

func NewUsecase(store kv.Store, clk clock.Clock, policy WritePolicy, opts ...Option) *Usecase {
	u := &Usecase{
		store:  store,
		clock:  clk,
		policy: policy,
		newID:  id.NewLoanID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *Usecase) Policy() WritePolicy { return u.policy }

// Create registers one loan. The returned error wraps exactly one of
// ErrInvalidInput, ErrCustomerNotFound, ErrConflict or ErrTransport
// (ErrLookupFailed is reported as a transport error).
func (u *Usecase) Create(ctx context.Context, in CreateLoanInput) (dto *LoanDTO, err error) {
	var loanID string
	defer func() { u.record(in.CustomerID, loanID, err) }()

	dueDay, err := validateInput(in)
	if err != nil {
		return nil, err
	}

	loanID = u.newID()
	createdAt := clock.Timestamp(u.clock)

	cust, err := u.resolveCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}

	snapshot := cust.Snapshot()
	delete(snapshot, attrLoans)

	l := domain.Loan{
		LoanID:     loanID,
		CustomerID: in.CustomerID,
		DueDay:     dueDay,
		Amount:     *in.Amount,
		Rate:       *in.Rate,
		Interest:   in.Interest,
		Notes:      presentNotes(in.Notes),
		Status:     domain.StatusActive,
		CreatedAt:  createdAt,
		Customer:   snapshot,
	}

	if err := u.execute(ctx, u.policy.plan(l)); err != nil {
		return nil, err
	}
	return toDTO(l), nil
}

func (u *Usecase) record(customerID, loanID string, err error) {
	outcome := domain.Classify(err)
	monitoring.RecordRegistration(u.policy.Name(), string(outcome))

	attrs := []any{
		slog.String("policy", u.policy.Name()),
		slog.String("customer_id", customerID),
		slog.String("loan_id", loanID),
		slog.String("outcome", string(outcome)),
	}
	switch outcome {
	case domain.OutcomeCommitted:
		u.logger.Info("loan registered", attrs...)
	case domain.OutcomeTransportError:
		u.logger.Error("loan registration failed", append(attrs, slog.Any("error", err))...)
	default:
		u.logger.Warn("loan registration rejected", append(attrs, slog.Any("error", err))...)
	}
}

// ListCustomerLoans returns the lookup index of a customer, oldest first.
// Only the dual-item policy maintains the index.
func (u *Usecase) ListCustomerLoans(ctx context.Context, customerID string) ([]domain.IndexEntry, error) {
	item, err := u.store.Get(ctx, customerKey(customerID))
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, customerID)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	out := []domain.IndexEntry{}
	if raw, ok := item[attrLoans]; ok && raw != nil {
		if err := kv.Decode(raw, &out); err != nil {
			return nil, fmt.Errorf("%w: malformed lookup index for %s: %w", domain.ErrTransport, customerID, err)
		}
	}
	return out, nil
}

// ListLoansDueOn is a range query over the LOAN#<dueDay> partition written
// by the dual-item policy, ordered by customer then loan id.
func (u *Usecase) ListLoansDueOn(ctx context.Context, dueDay float64) ([]LoanDTO, error) {
	day, err := validateDueDay(dueDay)
	if err != nil {
		return nil, err
	}
	items, err := u.store.Query(ctx, DuePartition(day))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	out := make([]LoanDTO, 0, len(items))
	for _, it := range items {
		var dto LoanDTO
		if err := kv.Decode(it, &dto); err != nil {
			return nil, fmt.Errorf("%w: malformed loan item: %w", domain.ErrTransport, err)
		}
		out = append(out, dto)
	}
	return out, nil
}

func toDTO(l domain.Loan) *LoanDTO {
	return &LoanDTO{
		LoanID:     l.LoanID,
		CustomerID: l.CustomerID,
		DueDay:     l.DueDay,
		Amount:     l.Amount,
		Rate:       l.Rate,
		Interest:   l.Interest,
		Notes:      l.Notes,
		Status:     string(l.Status),
		CreatedAt:  l.CreatedAt,
	}
}
