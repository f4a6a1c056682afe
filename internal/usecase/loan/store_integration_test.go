package loan_test

import (
	"context"
	"sync"
	"testing"
	"time"

	redisrepo "loan-registrar/internal/adapter/repository/redis"
	"loan-registrar/internal/clock"
	"loan-registrar/internal/domain/kv"
	domain "loan-registrar/internal/domain/loan"
	"loan-registrar/internal/infrastructure/logging"
	"loan-registrar/internal/usecase/loan"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func newRedisRegistrar(t *testing.T, p loan.WritePolicy) (*loan.Usecase, kv.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := redisrepo.NewStore(rdb, "loans")
	err := store.Put(context.Background(), kv.Key{PK: "CUSTOMER", SK: "C1"},
		kv.Item{"PK": "CUSTOMER", "SK": "C1", "name": "Ana"}, kv.CondNotExists)
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	uc := loan.NewUsecase(store, clock.NewFixed(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)), p,
		loan.WithLogger(logging.Discard()))
	return uc, store
}

func input(day float64) loan.CreateLoanInput {
	amount, rate := decimal.NewFromInt(1000), decimal.NewFromInt(5)
	return loan.CreateLoanInput{CustomerID: "C1", DueDay: day, Amount: &amount, Rate: &rate}
}

func TestRedis_DualItem_ConcurrentRegistrations(t *testing.T) {
	uc, _ := newRedisRegistrar(t, loan.DualItemWithIndex{})

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := uc.Create(context.Background(), input(float64(1+i%3))); err != nil {
				t.Errorf("create %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	idx, err := uc.ListCustomerLoans(context.Background(), "C1")
	if err != nil {
		t.Fatalf("ListCustomerLoans: %v", err)
	}
	if len(idx) != n {
		t.Fatalf("index has %d entries, want %d", len(idx), n)
	}

	total := 0
	for day := 1; day <= 3; day++ {
		loans, err := uc.ListLoansDueOn(context.Background(), float64(day))
		if err != nil {
			t.Fatalf("ListLoansDueOn(%d): %v", day, err)
		}
		for _, l := range loans {
			if l.DueDay != day || l.CustomerID != "C1" || l.CreatedAt != "2026-01-02T03:04:05.000Z" {
				t.Fatalf("unexpected loan on day %d: %+v", day, l)
			}
		}
		total += len(loans)
	}
	if total != n {
		t.Fatalf("due partitions hold %d loans, want %d", total, n)
	}
}

func TestRedis_SingleItem_ForcedDuplicate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := redisrepo.NewStore(rdb, "loans")
	_ = store.Put(context.Background(), kv.Key{PK: "CUSTOMER", SK: "C1"}, kv.Item{"name": "Ana"}, kv.CondNone)

	uc := loan.NewUsecase(store, clock.NewSystem(), loan.SingleItem{EmbedCustomer: true},
		loan.WithLogger(logging.Discard()),
		loan.WithIDGenerator(func() string { return "0190aaaa-0000-7000-8000-000000000000" }))

	if _, err := uc.Create(context.Background(), input(10)); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := uc.Create(context.Background(), input(11))
	if domain.Classify(err) != domain.OutcomeConflict {
		t.Fatalf("want conflict, got %v", err)
	}

	item, err := store.Get(context.Background(), kv.Key{PK: "LOAN", SK: "CUSTOMER#C1#LOAN#0190aaaa-0000-7000-8000-000000000000"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var day int
	if err := kv.Decode(item["dueDay"], &day); err != nil || day != 10 {
		t.Fatalf("loan overwritten: dueDay=%v err=%v", item["dueDay"], err)
	}
}

func TestRedis_Unavailable_IsTransportError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	store := redisrepo.NewStore(rdb, "loans")
	mr.Close()

	uc := loan.NewUsecase(store, clock.NewSystem(), loan.DualItemWithIndex{}, loan.WithLogger(logging.Discard()))
	_, err := uc.Create(context.Background(), input(5))
	if domain.Classify(err) != domain.OutcomeTransportError {
		t.Fatalf("want transport error, got %v", err)
	}
}
