package mysql

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

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// itemRow is one key-value item; attributes are a JSON object.
type itemRow struct {
	PK        string    `gorm:"column:pk;primaryKey;size:191"`
	SK        string    `gorm:"column:sk;primaryKey;size:191"`
	Attrs     string    `gorm:"column:attrs;type:longtext;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ItemStore implements kv.Store on a single SQL table keyed by (pk, sk).
type ItemStore struct {
	db    *gorm.DB
	table string
	// SELECT ... FOR UPDATE on rows that already exist; sqlite has no row
	// locks and serializes writers anyway.
	lockRows bool
}

var _ kv.Store = (*ItemStore)(nil)

func NewItemStore(db *gorm.DB, table string) *ItemStore {
	return &ItemStore{db: db, table: table, lockRows: db.Dialector.Name() == "mysql"}
}

// Migrate creates the item table if it does not exist.
func (s *ItemStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Table(s.table).AutoMigrate(&itemRow{})
}

func (s *ItemStore) Get(ctx context.Context, key kv.Key) (item kv.Item, err error) {
	defer observe("get", time.Now(), &err)
	var row itemRow
	err = s.db.WithContext(ctx).Table(s.table).
		Where("pk = ? AND sk = ?", key.PK, key.SK).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeAttrs(row.Attrs)
}

func (s *ItemStore) Put(ctx context.Context, key kv.Key, item kv.Item, cond kv.Condition) (err error) {
	defer observe("put", time.Now(), &err)
	return s.tx(ctx, []kv.Op{{Kind: kv.OpPut, Key: key, Item: item, Condition: cond}})
}

func (s *ItemStore) Transact(ctx context.Context, ops []kv.Op) (err error) {
	defer observe("transact", time.Now(), &err)
	return s.tx(ctx, ops)
}

func (s *ItemStore) Query(ctx context.Context, partition string) (items []kv.Item, err error) {
	defer observe("query", time.Now(), &err)
	var rows []itemRow
	err = s.db.WithContext(ctx).Table(s.table).
		Where("pk = ?", partition).
		Order("sk ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	items = make([]kv.Item, 0, len(rows))
	for _, r := range rows {
		it, err := decodeAttrs(r.Attrs)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// tx runs all ops in one database transaction; any failure rolls back every op.
func (s *ItemStore) tx(ctx context.Context, ops []kv.Op) error {
	if err := kv.ValidateOps(ops); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			if err := s.apply(tx, op); err != nil {
				return err
			}
		}
		return nil
	})
	if isConflict(err) {
		return fmt.Errorf("%w: %v", kv.ErrConditionFailed, err)
	}
	return err
}

func (s *ItemStore) apply(tx *gorm.DB, op kv.Op) error {
	if op.Kind == kv.OpPut && op.Condition == kv.CondNotExists {
		return s.insert(tx, op)
	}
	q := tx.Table(s.table)
	if s.lockRows {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []itemRow
	if err := q.Where("pk = ? AND sk = ?", op.Key.PK, op.Key.SK).Limit(1).Find(&rows).Error; err != nil {
		return err
	}
	exists := len(rows) == 1

	if (op.Condition == kv.CondNotExists && exists) || (op.Condition == kv.CondExists && !exists) {
		return fmt.Errorf("%w: %s on %s", kv.ErrConditionFailed, op.Condition, op.Key)
	}

	var attrs kv.Item
	switch op.Kind {
	case kv.OpPut:
		attrs = op.Item
	case kv.OpUpdate:
		attrs = kv.Item{}
		if exists {
			cur, err := decodeAttrs(rows[0].Attrs)
			if err != nil {
				return err
			}
			attrs = cur
		}
		list, err := appendElement(attrs[op.Append.Attr], op.Append.Value)
		if err != nil {
			return err
		}
		attrs[op.Append.Attr] = list
	}

	enc, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", op.Key, err)
	}
	if exists {
		return tx.Table(s.table).
			Where("pk = ? AND sk = ?", op.Key.PK, op.Key.SK).
			Update("attrs", string(enc)).Error
	}
	return tx.Table(s.table).Create(&itemRow{PK: op.Key.PK, SK: op.Key.SK, Attrs: string(enc)}).Error
}

// insert writes a new row without reading first. A locking read of a missing
// row takes a gap lock on InnoDB, and two writers holding the same gap then
// deadlock on their inserts; the primary key alone decides who wins.
func (s *ItemStore) insert(tx *gorm.DB, op kv.Op) error {
	enc, err := json.Marshal(op.Item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", op.Key, err)
	}
	res := tx.Table(s.table).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "pk"}, {Name: "sk"}}, DoNothing: true}).
		Create(&itemRow{PK: op.Key.PK, SK: op.Key.SK, Attrs: string(enc)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s on %s", kv.ErrConditionFailed, op.Condition, op.Key)
	}
	return nil
}

func appendElement(cur any, v any) ([]any, error) {
	var list []any
	if cur != nil {
		if err := kv.Decode(cur, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", kv.ErrNotList, err)
		}
	}
	return append(list, v), nil
}

func decodeAttrs(s string) (kv.Item, error) {
	item := kv.Item{}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&item); err != nil {
		return nil, fmt.Errorf("decode item attributes: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode item attributes: trailing data after JSON object")
	}
	return item, nil
}

// isConflict reports condition failures plus races the database resolved
// for us: a concurrent insert of the same key, or a deadlock/lock timeout
// between two writers of the same rows.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, kv.ErrConditionFailed) {
		return false // already wrapped
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1062, 1205, 1213: // duplicate entry, lock wait timeout, deadlock
			return true
		}
	}
	return false
}

func observe(call string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
	}
	monitoring.RecordStoreCall(call, status, time.Since(start))
}
