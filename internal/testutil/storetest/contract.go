// Package storetest holds the behavioral contract every kv.Store adapter must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"loan-registrar/internal/domain/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	LoanID string `json:"loanId"`
	DueDay int    `json:"dueDay"`
}

func customerKey(id string) kv.Key { return kv.Key{PK: "CUSTOMER", SK: id} }

func loanKey(day int, id string) kv.Key {
	return kv.Key{PK: fmt.Sprintf("LOAN#%d", day), SK: "CUSTOMER#C1#LOAN#" + id}
}

func entries(t *testing.T, item kv.Item) []entry {
	t.Helper()
	var out []entry
	require.NoError(t, kv.Decode(item["loans"], &out))
	return out
}

// Run exercises newStore against the kv.Store contract. newStore must
// return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, customerKey("nope"))
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("put not exists then duplicate", func(t *testing.T) {
		s := newStore(t)
		k := kv.Key{PK: "LOAN", SK: "CUSTOMER#C1#LOAN#L1"}
		require.NoError(t, s.Put(ctx, k, kv.Item{"loanId": "L1", "amount": "1000"}, kv.CondNotExists))

		err := s.Put(ctx, k, kv.Item{"loanId": "L1", "amount": "9999"}, kv.CondNotExists)
		require.ErrorIs(t, err, kv.ErrConditionFailed)

		got, err := s.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, "1000", got["amount"], "duplicate put must not overwrite")
		assert.Equal(t, "L1", got["loanId"])
	})

	t.Run("put exists on missing item", func(t *testing.T) {
		s := newStore(t)
		err := s.Put(ctx, customerKey("C404"), kv.Item{"name": "x"}, kv.CondExists)
		require.ErrorIs(t, err, kv.ErrConditionFailed)
		_, err = s.Get(ctx, customerKey("C404"))
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("nested values round trip", func(t *testing.T) {
		s := newStore(t)
		k := kv.Key{PK: "LOAN", SK: "CUSTOMER#C1#LOAN#L2"}
		require.NoError(t, s.Put(ctx, k, kv.Item{
			"dueDay":   15,
			"customer": map[string]any{"name": "Ana", "tier": 2},
		}, kv.CondNone))

		got, err := s.Get(ctx, k)
		require.NoError(t, err)
		var day int
		require.NoError(t, kv.Decode(got["dueDay"], &day))
		assert.Equal(t, 15, day)
		var snap struct {
			Name string `json:"name"`
			Tier int    `json:"tier"`
		}
		require.NoError(t, kv.Decode(got["customer"], &snap))
		assert.Equal(t, "Ana", snap.Name)
		assert.Equal(t, 2, snap.Tier)
	})

	t.Run("transact put and append commit together", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, customerKey("C1"), kv.Item{"name": "Ana"}, kv.CondNone))

		for i, id := range []string{"L1", "L2"} {
			err := s.Transact(ctx, []kv.Op{
				{Kind: kv.OpPut, Key: loanKey(10+i, id), Item: kv.Item{"loanId": id}, Condition: kv.CondNotExists},
				{Kind: kv.OpUpdate, Key: customerKey("C1"), Append: &kv.ListAppend{Attr: "loans", Value: entry{LoanID: id, DueDay: 10 + i}}, Condition: kv.CondExists},
			})
			require.NoError(t, err)
		}

		cust, err := s.Get(ctx, customerKey("C1"))
		require.NoError(t, err)
		assert.Equal(t, "Ana", cust["name"], "append must not clobber other attributes")
		assert.Equal(t, []entry{{"L1", 10}, {"L2", 11}}, entries(t, cust))

		_, err = s.Get(ctx, loanKey(11, "L2"))
		require.NoError(t, err)
	})

	t.Run("transact append creates list on absent item", func(t *testing.T) {
		s := newStore(t)
		err := s.Transact(ctx, []kv.Op{
			{Kind: kv.OpUpdate, Key: customerKey("C2"), Append: &kv.ListAppend{Attr: "loans", Value: entry{LoanID: "L9", DueDay: 1}}},
		})
		require.NoError(t, err)
		cust, err := s.Get(ctx, customerKey("C2"))
		require.NoError(t, err)
		assert.Equal(t, []entry{{"L9", 1}}, entries(t, cust))
	})

	t.Run("transact failing condition writes nothing", func(t *testing.T) {
		s := newStore(t)
		// customer C3 does not exist, so the append condition fails after the put condition passed
		err := s.Transact(ctx, []kv.Op{
			{Kind: kv.OpPut, Key: loanKey(5, "L5"), Item: kv.Item{"loanId": "L5"}, Condition: kv.CondNotExists},
			{Kind: kv.OpUpdate, Key: customerKey("C3"), Append: &kv.ListAppend{Attr: "loans", Value: entry{LoanID: "L5", DueDay: 5}}, Condition: kv.CondExists},
		})
		require.ErrorIs(t, err, kv.ErrConditionFailed)

		_, err = s.Get(ctx, loanKey(5, "L5"))
		require.ErrorIs(t, err, kv.ErrNotFound, "loan must not be committed when the index update fails")
		_, err = s.Get(ctx, customerKey("C3"))
		require.ErrorIs(t, err, kv.ErrNotFound)

		items, err := s.Query(ctx, "LOAN#5")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("transact duplicate loan key leaves index untouched", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, customerKey("C1"), kv.Item{"name": "Ana"}, kv.CondNone))
		require.NoError(t, s.Put(ctx, loanKey(7, "L7"), kv.Item{"loanId": "L7"}, kv.CondNotExists))

		err := s.Transact(ctx, []kv.Op{
			{Kind: kv.OpPut, Key: loanKey(7, "L7"), Item: kv.Item{"loanId": "L7"}, Condition: kv.CondNotExists},
			{Kind: kv.OpUpdate, Key: customerKey("C1"), Append: &kv.ListAppend{Attr: "loans", Value: entry{LoanID: "L7", DueDay: 7}}, Condition: kv.CondExists},
		})
		require.ErrorIs(t, err, kv.ErrConditionFailed)

		cust, err := s.Get(ctx, customerKey("C1"))
		require.NoError(t, err)
		_, hasLoans := cust["loans"]
		assert.False(t, hasLoans, "index must not be appended when the loan put fails")
	})

	t.Run("append onto non-list fails and writes nothing", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, customerKey("C1"), kv.Item{"name": "Ana", "loans": "not-a-list"}, kv.CondNone))

		err := s.Transact(ctx, []kv.Op{
			{Kind: kv.OpPut, Key: loanKey(9, "L9"), Item: kv.Item{"loanId": "L9"}, Condition: kv.CondNotExists},
			{Kind: kv.OpUpdate, Key: customerKey("C1"), Append: &kv.ListAppend{Attr: "loans", Value: entry{LoanID: "L9", DueDay: 9}}, Condition: kv.CondExists},
		})
		require.ErrorIs(t, err, kv.ErrNotList)
		require.NotErrorIs(t, err, kv.ErrConditionFailed)

		_, err = s.Get(ctx, loanKey(9, "L9"))
		require.ErrorIs(t, err, kv.ErrNotFound, "loan must not be committed when the append target is not a list")
		items, err := s.Query(ctx, "LOAN#9")
		require.NoError(t, err)
		assert.Empty(t, items)

		cust, err := s.Get(ctx, customerKey("C1"))
		require.NoError(t, err)
		assert.Equal(t, "not-a-list", cust["loans"])
	})

	t.Run("invalid ops rejected", func(t *testing.T) {
		s := newStore(t)
		err := s.Transact(ctx, nil)
		require.True(t, errors.Is(err, kv.ErrInvalidOp), "got %v", err)
	})

	t.Run("query orders by sort key within one partition", func(t *testing.T) {
		s := newStore(t)
		for _, sk := range []string{"CUSTOMER#C2#LOAN#b", "CUSTOMER#C1#LOAN#z", "CUSTOMER#C1#LOAN#a"} {
			require.NoError(t, s.Put(ctx, kv.Key{PK: "LOAN#3", SK: sk}, kv.Item{"sk": sk}, kv.CondNotExists))
		}
		require.NoError(t, s.Put(ctx, kv.Key{PK: "LOAN#4", SK: "CUSTOMER#C1#LOAN#c"}, kv.Item{"sk": "other"}, kv.CondNotExists))

		items, err := s.Query(ctx, "LOAN#3")
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "CUSTOMER#C1#LOAN#a", items[0]["sk"])
		assert.Equal(t, "CUSTOMER#C1#LOAN#z", items[1]["sk"])
		assert.Equal(t, "CUSTOMER#C2#LOAN#b", items[2]["sk"])

		none, err := s.Query(ctx, "LOAN#28")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// RunConcurrentAppends checks that concurrent transactions appending to the
// same list never lose an element.
func RunConcurrentAppends(t *testing.T, s kv.Store, n int) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, customerKey("C1"), kv.Item{"name": "Ana"}, kv.CondNone))

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("L%03d", i)
			errs <- s.Transact(ctx, []kv.Op{
				{Kind: kv.OpPut, Key: loanKey(1+i%28, id), Item: kv.Item{"loanId": id}, Condition: kv.CondNotExists},
				{Kind: kv.OpUpdate, Key: customerKey("C1"), Append: &kv.ListAppend{Attr: "loans", Value: entry{LoanID: id, DueDay: 1 + i%28}}, Condition: kv.CondExists},
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	cust, err := s.Get(ctx, customerKey("C1"))
	require.NoError(t, err)
	got := entries(t, cust)
	require.Len(t, got, n, "lost update in lookup index")
	seen := make(map[string]bool, n)
	for _, e := range got {
		seen[e.LoanID] = true
	}
	assert.Len(t, seen, n)
}
