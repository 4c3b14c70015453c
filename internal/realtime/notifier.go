package realtime

import (
	"context"
	"reflect"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Publisher accepts change events.
type Publisher interface {
	Publish(event ChangeEvent)
}

// NotifierConfig describes the change-notifier plugin.
type NotifierConfig struct {
	Publisher Publisher
	// Tables restricts notifications; empty means every table.
	Tables []string
	// Redact rewrites a row in place before it leaves the process.
	Redact func(table string, row map[string]any)
	Clock  func() time.Time
	Logger *zap.Logger
}

// Notifier is a gorm plugin that turns successful create, update and delete
// statements into ChangeEvents. Updates are reported with the reloaded row, so
// they are only emitted when the statement model carries its primary key.
//
// Inside an explicit transaction the event is emitted when the statement
// finishes, before the outer commit, unless the statement context came from
// DeferEvents.
type Notifier struct {
	publisher Publisher
	tables    map[string]struct{}
	redact    func(table string, row map[string]any)
	now       func() time.Time
	logger    *zap.Logger
}

var _ gorm.Plugin = (*Notifier)(nil)

// NewNotifier constructs the plugin. Register it with db.Use.
func NewNotifier(cfg NotifierConfig) *Notifier {
	tables := make(map[string]struct{}, len(cfg.Tables))
	for _, table := range cfg.Tables {
		tables[table] = struct{}{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{publisher: cfg.Publisher, tables: tables, redact: cfg.Redact, now: clock, logger: logger}
}

// Name implements gorm.Plugin.
func (n *Notifier) Name() string {
	return "safeyak:realtime_notifier"
}

// Initialize implements gorm.Plugin.
func (n *Notifier) Initialize(db *gorm.DB) error {
	const after = "gorm:commit_or_rollback_transaction"
	if err := db.Callback().Create().After(after).Register("safeyak:notify_create", n.afterCreate); err != nil {
		return err
	}
	if err := db.Callback().Update().After(after).Register("safeyak:notify_update", n.afterUpdate); err != nil {
		return err
	}
	return db.Callback().Delete().After(after).Register("safeyak:notify_delete", n.afterDelete)
}

func (n *Notifier) watches(db *gorm.DB) bool {
	if n.publisher == nil || db.Error != nil || db.RowsAffected == 0 || db.Statement.Schema == nil {
		return false
	}
	if len(n.tables) == 0 {
		return true
	}
	_, ok := n.tables[db.Statement.Table]
	return ok
}

func (n *Notifier) afterCreate(db *gorm.DB) {
	if !n.watches(db) {
		return
	}
	for _, row := range rowsOf(db.Statement.Context, db.Statement.Schema, db.Statement.ReflectValue) {
		n.publish(db.Statement.Context, db.Statement.Table, EventInsert, row, nil)
	}
}

func (n *Notifier) afterUpdate(db *gorm.DB) {
	if !n.watches(db) {
		return
	}
	stmt := db.Statement
	primary := stmt.Schema.PrioritizedPrimaryField
	if primary == nil || stmt.Model == nil {
		return
	}
	model := reflect.Indirect(reflect.ValueOf(stmt.Model))
	if model.Kind() != reflect.Struct {
		return
	}
	id, isZero := primary.ValueOf(stmt.Context, model)
	if isZero {
		return
	}

	fresh := reflect.New(stmt.Schema.ModelType)
	err := db.Session(&gorm.Session{NewDB: true, Context: stmt.Context}).
		Table(stmt.Table).
		Where(clause.Eq{Column: clause.Column{Name: primary.DBName}, Value: id}).
		Take(fresh.Interface()).
		Error
	if err != nil {
		n.logger.Warn("realtime reload failed", zap.String("table", stmt.Table), zap.Any("id", id), zap.Error(err))
		return
	}
	n.publish(stmt.Context, stmt.Table, EventUpdate, rowOf(stmt.Context, stmt.Schema, fresh.Elem()), nil)
}

func (n *Notifier) afterDelete(db *gorm.DB) {
	if !n.watches(db) {
		return
	}
	primary := db.Statement.Schema.PrioritizedPrimaryField
	for _, row := range rowsOf(db.Statement.Context, db.Statement.Schema, db.Statement.ReflectValue) {
		if primary != nil {
			if value := row[primary.DBName]; value == nil || reflect.ValueOf(value).IsZero() {
				continue
			}
		}
		n.publish(db.Statement.Context, db.Statement.Table, EventDelete, nil, row)
	}
}

func (n *Notifier) publish(ctx context.Context, table string, eventType EventType, newRow, oldRow map[string]any) {
	if n.redact != nil {
		for _, row := range []map[string]any{newRow, oldRow} {
			if row != nil {
				n.redact(table, row)
			}
		}
	}
	event := ChangeEvent{
		Table:           table,
		Type:            eventType,
		New:             newRow,
		Old:             oldRow,
		CommitTimestamp: n.now().UTC(),
	}
	if buffer := deferredFrom(ctx); buffer != nil {
		buffer.add(n.publisher, event)
		return
	}
	publishedEventCount.WithLabelValues(table, string(eventType)).Inc()
	n.publisher.Publish(event)
}

func rowsOf(ctx context.Context, sch *schema.Schema, value reflect.Value) []map[string]any {
	value = reflect.Indirect(value)
	switch value.Kind() {
	case reflect.Struct:
		return []map[string]any{rowOf(ctx, sch, value)}
	case reflect.Slice, reflect.Array:
		rows := make([]map[string]any, 0, value.Len())
		for i := 0; i < value.Len(); i++ {
			item := reflect.Indirect(value.Index(i))
			if item.Kind() == reflect.Struct {
				rows = append(rows, rowOf(ctx, sch, item))
			}
		}
		return rows
	default:
		return nil
	}
}

func rowOf(ctx context.Context, sch *schema.Schema, value reflect.Value) map[string]any {
	row := make(map[string]any, len(sch.DBNames))
	for _, field := range sch.Fields {
		if field.DBName == "" {
			continue
		}
		fieldValue, _ := field.ValueOf(ctx, value)
		row[field.DBName] = dereference(fieldValue)
	}
	return row
}

func dereference(value any) any {
	reflected := reflect.ValueOf(value)
	if reflected.Kind() != reflect.Pointer {
		return value
	}
	if reflected.IsNil() {
		return nil
	}
	return reflected.Elem().Interface()
}
