package storemock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"loan-registrar/internal/domain/kv"
)

// Ensure compile-time compliance
var _ kv.Store = (*Store)(nil)

// Store is an in-memory kv.Store with call counters and fault hooks.
// Fill in the Fn fields to replace a method outright; FailOp injects a
// failure for one op of a transaction after earlier ops were staged.
type Store struct {
	GetFn      func(ctx context.Context, key kv.Key) (kv.Item, error)
	PutFn      func(ctx context.Context, key kv.Key, item kv.Item, cond kv.Condition) error
	TransactFn func(ctx context.Context, ops []kv.Op) error
	QueryFn    func(ctx context.Context, partition string) ([]kv.Item, error)

	// FailOp is consulted for every op while a write is staged; a non-nil
	// error aborts the whole write.
	FailOp func(i int, op kv.Op) error

	mu     sync.Mutex
	items  map[kv.Key]kv.Item
	reads  int
	writes int
}

func New() *Store { return &Store{items: map[kv.Key]kv.Item{}} }

// Convenience fluent setters
func (m *Store) WithGet(fn func(context.Context, kv.Key) (kv.Item, error)) *Store {
	m.GetFn = fn
	return m
}
func (m *Store) WithTransact(fn func(context.Context, []kv.Op) error) *Store {
	m.TransactFn = fn
	return m
}
func (m *Store) WithFailOp(fn func(int, kv.Op) error) *Store {
	m.FailOp = fn
	return m
}

// Seed stores item at key without counting a write.
func (m *Store) Seed(key kv.Key, item kv.Item) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[kv.Key]kv.Item{}
	}
	m.items[key] = clone(item)
	return m
}

// Writes counts Put and Transact calls, successful or not.
func (m *Store) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Store) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Len is the number of stored items.
func (m *Store) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Keys lists stored keys in PK, SK order.
func (m *Store) Keys() []kv.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]kv.Key, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PK != keys[j].PK {
			return keys[i].PK < keys[j].PK
		}
		return keys[i].SK < keys[j].SK
	})
	return keys
}

func (m *Store) Get(ctx context.Context, key kv.Key) (kv.Item, error) {
	m.mu.Lock()
	m.reads++
	m.mu.Unlock()
	if m.GetFn != nil {
		return m.GetFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return clone(it), nil
}

func (m *Store) Put(ctx context.Context, key kv.Key, item kv.Item, cond kv.Condition) error {
	m.mu.Lock()
	m.writes++
	m.mu.Unlock()
	if m.PutFn != nil {
		return m.PutFn(ctx, key, item, cond)
	}
	return m.apply([]kv.Op{{Kind: kv.OpPut, Key: key, Item: item, Condition: cond}})
}

func (m *Store) Transact(ctx context.Context, ops []kv.Op) error {
	m.mu.Lock()
	m.writes++
	m.mu.Unlock()
	if m.TransactFn != nil {
		return m.TransactFn(ctx, ops)
	}
	return m.apply(ops)
}

func (m *Store) Query(ctx context.Context, partition string) ([]kv.Item, error) {
	m.mu.Lock()
	m.reads++
	m.mu.Unlock()
	if m.QueryFn != nil {
		return m.QueryFn(ctx, partition)
	}
	var out []kv.Item
	for _, k := range m.Keys() {
		if k.PK != partition {
			continue
		}
		m.mu.Lock()
		out = append(out, clone(m.items[k]))
		m.mu.Unlock()
	}
	return out, nil
}

// apply stages every op on a copy and swaps it in only if all succeed.
func (m *Store) apply(ops []kv.Op) error {
	if err := kv.ValidateOps(ops); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[kv.Key]kv.Item{}
	}

	staged := make(map[kv.Key]kv.Item, len(ops))
	for i, op := range ops {
		cur, exists := m.items[op.Key]
		if (op.Condition == kv.CondNotExists && exists) || (op.Condition == kv.CondExists && !exists) {
			return fmt.Errorf("%w: %s on %s", kv.ErrConditionFailed, op.Condition, op.Key)
		}
		if m.FailOp != nil {
			if err := m.FailOp(i, op); err != nil {
				return err
			}
		}
		switch op.Kind {
		case kv.OpPut:
			staged[op.Key] = clone(op.Item)
		case kv.OpUpdate:
			next := clone(cur)
			if next == nil {
				next = kv.Item{}
			}
			var list []any
			if cur := next[op.Append.Attr]; cur != nil {
				l, ok := cur.([]any)
				if !ok {
					return fmt.Errorf("%w: %s on %s", kv.ErrNotList, op.Append.Attr, op.Key)
				}
				list = l
			}
			next[op.Append.Attr] = append(append([]any{}, list...), op.Append.Value)
			staged[op.Key] = next
		}
	}
	for k, v := range staged {
		m.items[k] = v
	}
	return nil
}

func clone(it kv.Item) kv.Item {
	if it == nil {
		return nil
	}
	out := make(kv.Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}
