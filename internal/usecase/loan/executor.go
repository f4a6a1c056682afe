package loan

import (
	"context"
	"errors"
	"fmt"

	"loan-registrar/internal/domain/kv"
	domain "loan-registrar/internal/domain/loan"
)

// execute submits ops as one atomic unit with no retry. A failed condition
// is ErrConflict; every other store error is ErrTransport.
func (u *Usecase) execute(ctx context.Context, ops []kv.Op) error {
	var err error
	if len(ops) == 1 && ops[0].Kind == kv.OpPut {
		err = u.store.Put(ctx, ops[0].Key, ops[0].Item, ops[0].Condition)
	} else {
		err = u.store.Transact(ctx, ops)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kv.ErrConditionFailed):
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
}
