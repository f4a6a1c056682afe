package redis

import (
	"context"
	"testing"

	"loan-registrar/internal/domain/kv"
	"loan-registrar/internal/testutil/storetest"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewStore(rdb, "loans")
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) kv.Store {
		_, s := newTestStore(t)
		return s
	})
}

func TestStore_ConcurrentAppends(t *testing.T) {
	_, s := newTestStore(t)
	storetest.RunConcurrentAppends(t, s, 40)
}

func TestStore_KeyLayout(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	k := kv.Key{PK: "LOAN#15", SK: "CUSTOMER#C1#LOAN#L1"}
	require.NoError(t, s.Put(ctx, k, kv.Item{"loanId": "L1", "dueDay": 15}, kv.CondNotExists))

	require.True(t, mr.Exists("loans:item:LOAN#15:CUSTOMER#C1#LOAN#L1"))
	require.Equal(t, `"L1"`, mr.HGet("loans:item:LOAN#15:CUSTOMER#C1#LOAN#L1", "loanId"))
	require.Equal(t, "15", mr.HGet("loans:item:LOAN#15:CUSTOMER#C1#LOAN#L1", "dueDay"))

	members, err := mr.ZMembers("loans:part:LOAN#15")
	require.NoError(t, err)
	require.Equal(t, []string{"CUSTOMER#C1#LOAN#L1"}, members)
}

func TestNewStore_DefaultPrefix(t *testing.T) {
	s := NewStore(nil, "  ")
	require.Equal(t, "loans", s.prefix)
	s = NewStore(nil, "tenant-a:")
	require.Equal(t, "tenant-a:item:CUSTOMER:C1", s.itemKey(kv.Key{PK: "CUSTOMER", SK: "C1"}))
}

func TestStore_Unavailable(t *testing.T) {
	mr, s := newTestStore(t)
	mr.Close()

	ctx := context.Background()
	_, err := s.Get(ctx, kv.Key{PK: "CUSTOMER", SK: "C1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, kv.ErrNotFound)

	err = s.Put(ctx, kv.Key{PK: "LOAN", SK: "x"}, kv.Item{"a": 1}, kv.CondNotExists)
	require.Error(t, err)
	require.NotErrorIs(t, err, kv.ErrConditionFailed)
}

func TestStore_GetRejectsTrailingData(t *testing.T) {
	mr, s := newTestStore(t)
	k := kv.Key{PK: "CUSTOMER", SK: "C1"}
	mr.HSet(s.itemKey(k), "loans", `"a",{"loanId":"L1"}]`)

	_, err := s.Get(context.Background(), k)
	require.Error(t, err)
	require.NotErrorIs(t, err, kv.ErrNotFound)
}
