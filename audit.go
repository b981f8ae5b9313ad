package packdb

import (
	"context"
	"fmt"
	"time"
)

// AuditType is the kind of state transition an audit entry records.
type AuditType int

const (
	AuditCreate AuditType = iota
	AuditUpdate
	AuditDelete
	AuditUndelete
	AuditRollback
)

func (t AuditType) String() string {
	switch t {
	case AuditCreate:
		return "create"
	case AuditUpdate:
		return "update"
	case AuditDelete:
		return "delete"
	case AuditUndelete:
		return "undelete"
	case AuditRollback:
		return "rollback"
	}
	return "unknown"
}

// MarshalText renders the type by name in CLI output and JSON logs.
func (t AuditType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (t *AuditType) UnmarshalText(data []byte) error {
	for c := AuditCreate; c <= AuditRollback; c++ {
		if c.String() == string(data) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown audit type %q", data)
}

// AuditProperty is the before and after value of one field.
type AuditProperty struct {
	Name string `msgpack:"name" json:"name"`
	Old  any    `msgpack:"old" json:"old"`
	New  any    `msgpack:"new" json:"new"`
}

// AuditEntry records one state transition of a record.
type AuditEntry struct {
	Type        AuditType       `msgpack:"type" json:"type"`
	Changes     []AuditProperty `msgpack:"changes" json:"changes"`
	Timestamp   time.Time       `msgpack:"ts" json:"timestamp"`
	OperationID UUID            `msgpack:"op" json:"operation_id"`
}

// AuditLog is the append-only history of a single record.
type AuditLog struct {
	Entries []AuditEntry `msgpack:"entries" json:"entries"`
}

// AuditGenerator appends entries to audit logs using the schema's declared fields.
type AuditGenerator[T Record] struct {
	schema *Schema[T]
	now    func() time.Time
}

// NewAuditGenerator returns a generator for the given schema.
func NewAuditGenerator[T Record](schema *Schema[T]) *AuditGenerator[T] {
	return &AuditGenerator[T]{schema: schema, now: time.Now}
}

// NewLog starts a log with a Create entry.
func (g *AuditGenerator[T]) NewLog(ctx context.Context, rec T) AuditLog {
	return g.append(ctx, AuditLog{}, AuditCreate, func(f Field[T]) (any, any) {
		return nil, f.Value(rec)
	})
}

// UpdateLog appends an Update entry with every field's old and new value.
func (g *AuditGenerator[T]) UpdateLog(ctx context.Context, newRec, oldRec T, current AuditLog) AuditLog {
	return g.append(ctx, current, AuditUpdate, func(f Field[T]) (any, any) {
		return f.Value(oldRec), f.Value(newRec)
	})
}

// DeleteLog appends a Delete entry.
func (g *AuditGenerator[T]) DeleteLog(ctx context.Context, rec T, current AuditLog) AuditLog {
	return g.append(ctx, current, AuditDelete, func(f Field[T]) (any, any) {
		return f.Value(rec), nil
	})
}

// UndeleteLog appends an Undelete entry.
func (g *AuditGenerator[T]) UndeleteLog(ctx context.Context, rec T, current AuditLog) AuditLog {
	return g.append(ctx, current, AuditUndelete, func(f Field[T]) (any, any) {
		return nil, f.Value(rec)
	})
}

// RollbackLog appends a Rollback entry.
func (g *AuditGenerator[T]) RollbackLog(ctx context.Context, rec T, current AuditLog) AuditLog {
	return g.append(ctx, current, AuditRollback, func(f Field[T]) (any, any) {
		return nil, f.Value(rec)
	})
}

func (g *AuditGenerator[T]) append(ctx context.Context, current AuditLog, t AuditType, values func(Field[T]) (any, any)) AuditLog {
	changes := make([]AuditProperty, 0, len(g.schema.Fields))
	for _, f := range g.schema.Fields {
		oldValue, newValue := values(f)
		changes = append(changes, AuditProperty{Name: f.Name, Old: oldValue, New: newValue})
	}
	entries := make([]AuditEntry, len(current.Entries), len(current.Entries)+1)
	copy(entries, current.Entries)
	entries = append(entries, AuditEntry{
		Type:        t,
		Changes:     changes,
		Timestamp:   g.now().UTC(),
		OperationID: OperationID(ctx),
	})
	return AuditLog{Entries: entries}
}
