package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"loan-registrar/internal/domain/kv"
	"loan-registrar/internal/infrastructure/monitoring"

	goredis "github.com/redis/go-redis/v9"
)

// transactScript checks every condition before it writes anything, so a
// failed condition leaves all keys untouched. Returns 0 on commit, the
// 1-based index of the first op whose condition failed, or the negated
// index of the first append whose target attribute is not a list.
//
// KEYS: per op, item hash key then partition zset key.
// ARGV: op count, then per op: kind, condition, sort key, and either
// field count + field/value pairs (put) or attr + JSON element (append).
var transactScript = goredis.NewScript(`
local n = tonumber(ARGV[1])
local ops = {}
local p = 2
for i = 1, n do
  local op = {key = KEYS[2*i-1], part = KEYS[2*i], kind = ARGV[p], cond = ARGV[p+1], sk = ARGV[p+2]}
  p = p + 3
  if op.kind == "put" then
    local nf = tonumber(ARGV[p])
    p = p + 1
    op.fields = {}
    for j = 1, nf * 2 do
      op.fields[j] = ARGV[p]
      p = p + 1
    end
  else
    op.attr = ARGV[p]
    op.value = ARGV[p+1]
    p = p + 2
  end
  ops[i] = op
end

for i = 1, n do
  local op = ops[i]
  local exists = redis.call("EXISTS", op.key) == 1
  if (op.cond == "not_exists" and exists) or (op.cond == "exists" and not exists) then
    return i
  end
  if op.kind ~= "put" then
    local cur = redis.call("HGET", op.key, op.attr)
    op.list = "[]"
    if cur and cur ~= "null" then
      local ok, decoded = pcall(cjson.decode, cur)
      if not ok or type(decoded) ~= "table" or not string.match(cur, "^%s*%[") then
        return -i
      end
      op.list = string.gsub(cur, "%s+$", "")
      if #decoded == 0 then
        op.list = "[]"
      end
    end
  end
end

for i = 1, n do
  local op = ops[i]
  if op.kind == "put" then
    redis.call("DEL", op.key)
    redis.call("HSET", op.key, unpack(op.fields))
  else
    local cur = op.list
    if cur == "[]" then
      cur = "[" .. op.value .. "]"
    else
      cur = string.sub(cur, 1, -2) .. "," .. op.value .. "]"
    end
    redis.call("HSET", op.key, op.attr, cur)
  end
  redis.call("ZADD", op.part, 0, op.sk)
end
return 0
`)

// Store keeps each item as a hash of JSON-encoded attributes and each
// partition as a lexicographically ordered zset of sort keys.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

var _ kv.Store = (*Store)(nil)

func NewStore(client goredis.UniversalClient, prefix string) *Store {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = "loans"
	}
	return &Store{client: client, prefix: p}
}

func (s *Store) itemKey(k kv.Key) string { return s.prefix + ":item:" + k.PK + ":" + k.SK }

func (s *Store) partitionKey(pk string) string { return s.prefix + ":part:" + pk }

func (s *Store) Get(ctx context.Context, key kv.Key) (item kv.Item, err error) {
	defer observe("get", time.Now(), &err)
	raw, err := s.client.HGetAll(ctx, s.itemKey(key)).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, kv.ErrNotFound
	}
	return decodeItem(raw)
}

func (s *Store) Put(ctx context.Context, key kv.Key, item kv.Item, cond kv.Condition) (err error) {
	defer observe("put", time.Now(), &err)
	return s.run(ctx, []kv.Op{{Kind: kv.OpPut, Key: key, Item: item, Condition: cond}})
}

func (s *Store) Transact(ctx context.Context, ops []kv.Op) (err error) {
	defer observe("transact", time.Now(), &err)
	return s.run(ctx, ops)
}

func (s *Store) Query(ctx context.Context, partition string) (items []kv.Item, err error) {
	defer observe("query", time.Now(), &err)
	sks, err := s.client.ZRange(ctx, s.partitionKey(partition), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(sks) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(sks))
	_, err = s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, sk := range sks {
			cmds[i] = p.HGetAll(ctx, s.itemKey(kv.Key{PK: partition, SK: sk}))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	items = make([]kv.Item, 0, len(sks))
	for _, cmd := range cmds {
		raw := cmd.Val()
		if len(raw) == 0 {
			continue
		}
		it, err := decodeItem(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *Store) run(ctx context.Context, ops []kv.Op) error {
	if err := kv.ValidateOps(ops); err != nil {
		return err
	}
	keys := make([]string, 0, 2*len(ops))
	args := []any{len(ops)}
	for _, op := range ops {
		keys = append(keys, s.itemKey(op.Key), s.partitionKey(op.Key.PK))
		switch op.Kind {
		case kv.OpPut:
			args = append(args, "put", op.Condition.String(), op.Key.SK, len(op.Item))
			for attr, v := range op.Item {
				enc, err := json.Marshal(v)
				if err != nil {
					return fmt.Errorf("encode attribute %q: %w", attr, err)
				}
				args = append(args, attr, string(enc))
			}
		case kv.OpUpdate:
			enc, err := json.Marshal(op.Append.Value)
			if err != nil {
				return fmt.Errorf("encode list element for %q: %w", op.Append.Attr, err)
			}
			args = append(args, "append", op.Condition.String(), op.Key.SK, op.Append.Attr, string(enc))
		}
	}

	res, err := transactScript.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return err
	}
	if res < 0 {
		failed := ops[-res-1]
		return fmt.Errorf("%w: %s on %s", kv.ErrNotList, failed.Append.Attr, failed.Key)
	}
	if res != 0 {
		failed := ops[res-1]
		return fmt.Errorf("%w: %s on %s", kv.ErrConditionFailed, failed.Condition, failed.Key)
	}
	return nil
}

func decodeItem(raw map[string]string) (kv.Item, error) {
	item := make(kv.Item, len(raw))
	for attr, enc := range raw {
		var v any
		dec := json.NewDecoder(strings.NewReader(enc))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode attribute %q: %w", attr, err)
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode attribute %q: trailing data after JSON value", attr)
		}
		item[attr] = v
	}
	return item, nil
}

func observe(call string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
	}
	monitoring.RecordStoreCall(call, status, time.Since(start))
}
