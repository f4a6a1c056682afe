package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("item not found")
	ErrConditionFailed = errors.New("condition check failed")
	ErrInvalidOp       = errors.New("invalid store operation")
	ErrNotList         = errors.New("list attribute holds a non-list value")
)

// Key is a composite key: partition (PK) plus sort component (SK).
type Key struct {
	PK string
	SK string
}

func (k Key) String() string { return k.PK + "|" + k.SK }

// Item is a flat attribute mapping. Values must be JSON-encodable.
type Item map[string]any

type Condition int

const (
	CondNone Condition = iota
	CondNotExists
	CondExists
)

func (c Condition) String() string {
	switch c {
	case CondNotExists:
		return "not_exists"
	case CondExists:
		return "exists"
	default:
		return "none"
	}
}

type OpKind int

const (
	OpPut OpKind = iota
	OpUpdate
)

// ListAppend appends Value to the list attribute Attr, creating the list if
// absent. A present non-list value fails the whole call with ErrNotList.
type ListAppend struct {
	Attr  string
	Value any
}

// Op is one mutation inside a transaction.
type Op struct {
	Kind      OpKind
	Key       Key
	Item      Item        // OpPut
	Append    *ListAppend // OpUpdate
	Condition Condition
}

// Store is the key-value contract the registrar writes through.
type Store interface {
	// Get returns ErrNotFound when no item lives at key.
	Get(ctx context.Context, key Key) (Item, error)
	// Put writes item only if cond holds; otherwise ErrConditionFailed.
	Put(ctx context.Context, key Key, item Item, cond Condition) error
	// Transact applies every op or none of them.
	Transact(ctx context.Context, ops []Op) error
	// Query returns all items of one partition ordered by sort key.
	Query(ctx context.Context, partition string) ([]Item, error)
}

// ValidateOps rejects empty transactions, malformed ops and repeated keys.
func ValidateOps(ops []Op) error {
	if len(ops) == 0 {
		return fmt.Errorf("%w: empty transaction", ErrInvalidOp)
	}
	seen := make(map[Key]struct{}, len(ops))
	for i, op := range ops {
		if op.Key.PK == "" || op.Key.SK == "" {
			return fmt.Errorf("%w: op %d has incomplete key", ErrInvalidOp, i)
		}
		if _, dup := seen[op.Key]; dup {
			return fmt.Errorf("%w: key %s used more than once", ErrInvalidOp, op.Key)
		}
		seen[op.Key] = struct{}{}
		switch op.Kind {
		case OpPut:
			if len(op.Item) == 0 {
				return fmt.Errorf("%w: op %d puts an empty item", ErrInvalidOp, i)
			}
		case OpUpdate:
			if op.Append == nil || op.Append.Attr == "" {
				return fmt.Errorf("%w: op %d has no list append", ErrInvalidOp, i)
			}
		default:
			return fmt.Errorf("%w: op %d has unknown kind %d", ErrInvalidOp, i, op.Kind)
		}
	}
	return nil
}

// Decode converts an attribute value (as read back from a store) into out.
func Decode(v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
