package loan

import (
	"context"
	"errors"
	"fmt"

	"loan-registrar/internal/domain/customer"
	"loan-registrar/internal/domain/kv"
	domain "loan-registrar/internal/domain/loan"
)

// resolveCustomer is a point lookup; absence is ErrCustomerNotFound and any
// store fault is ErrLookupFailed.
func (u *Usecase) resolveCustomer(ctx context.Context, customerID string) (customer.Customer, error) {
	item, err := u.store.Get(ctx, customerKey(customerID))
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return customer.Customer{}, fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, customerID)
	case err != nil:
		return customer.Customer{}, fmt.Errorf("%w: %w", domain.ErrLookupFailed, err)
	}
	return customer.Customer{ID: customerID, Attributes: item}, nil
}
