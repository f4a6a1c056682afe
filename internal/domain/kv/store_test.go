package kv

import (
	"errors"
	"testing"
)

func TestValidateOps(t *testing.T) {
	put := Op{Kind: OpPut, Key: Key{PK: "LOAN", SK: "a"}, Item: Item{"x": 1}, Condition: CondNotExists}
	upd := Op{Kind: OpUpdate, Key: Key{PK: "CUSTOMER", SK: "c1"}, Append: &ListAppend{Attr: "loans", Value: 1}}

	if err := ValidateOps([]Op{put, upd}); err != nil {
		t.Fatalf("valid ops rejected: %v", err)
	}

	cases := map[string][]Op{
		"empty":        nil,
		"missing sk":   {{Kind: OpPut, Key: Key{PK: "LOAN"}, Item: Item{"x": 1}}},
		"empty item":   {{Kind: OpPut, Key: Key{PK: "LOAN", SK: "a"}}},
		"no append":    {{Kind: OpUpdate, Key: Key{PK: "LOAN", SK: "a"}}},
		"repeated key": {put, put},
		"unknown kind": {{Kind: OpKind(9), Key: Key{PK: "LOAN", SK: "a"}}},
	}
	for name, ops := range cases {
		if err := ValidateOps(ops); !errors.Is(err, ErrInvalidOp) {
			t.Fatalf("%s: want ErrInvalidOp, got %v", name, err)
		}
	}
}

func TestDecode(t *testing.T) {
	var out []struct {
		LoanID string `json:"loanId"`
		DueDay int    `json:"dueDay"`
	}
	raw := []any{map[string]any{"loanId": "L1", "dueDay": 15}}
	if err := Decode(raw, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != 1 || out[0].LoanID != "L1" || out[0].DueDay != 15 {
		t.Fatalf("unexpected decode: %+v", out)
	}
}

func TestConditionString(t *testing.T) {
	if CondNotExists.String() != "not_exists" || CondExists.String() != "exists" || CondNone.String() != "none" {
		t.Fatal("unexpected condition names")
	}
}
