package packdb

import (
	"fmt"
	"strings"
)

// Record is implemented by every type kept in a store. The id is unique within its type.
type Record interface {
	GetID() int
}

// Field declares one property of a record type and how to read it.
type Field[T any] struct {
	Name  string
	Value func(T) any
}

// IndexSpec marks a field as indexed.
type IndexSpec struct {
	Field  string
	Unique bool
}

// Schema is the static metadata of a record type, attached when the type is registered.
type Schema[T Record] struct {
	// Name is the folder the type's files live in.
	Name string
	// Fields lists every declared property in the order audit entries report them.
	Fields []Field[T]
	// Indexes lists the indexed fields. Each gets its own index file.
	Indexes []IndexSpec
	// Audited turns on the append-only change log.
	Audited bool
	// AuditAttempts bounds audit log retries. Zero means UnboundedAttempts.
	AuditAttempts int
	// SoftDelete makes deletes rename the data file instead of removing it.
	SoftDelete bool
	// MaxAttempts bounds record file retries. Values below 1 mean a single attempt.
	MaxAttempts int
}

// Validate checks that names are usable as file names and indexes refer to declared fields.
func (s *Schema[T]) Validate() error {
	if err := validName(s.Name); err != nil {
		return fmt.Errorf("schema name: %w", err)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if err := validName(f.Name); err != nil {
			return fmt.Errorf("schema %s field: %w", s.Name, err)
		}
		if f.Value == nil {
			return fmt.Errorf("schema %s field %s has no value func", s.Name, f.Name)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("schema %s declares field %s twice", s.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	indexed := make(map[string]struct{}, len(s.Indexes))
	for _, idx := range s.Indexes {
		if _, ok := seen[idx.Field]; !ok {
			return fmt.Errorf("schema %s indexes unknown field %s", s.Name, idx.Field)
		}
		if _, ok := indexed[idx.Field]; ok {
			return fmt.Errorf("schema %s indexes field %s twice", s.Name, idx.Field)
		}
		indexed[idx.Field] = struct{}{}
	}
	if s.AuditAttempts < UnboundedAttempts {
		return fmt.Errorf("schema %s has invalid audit attempts %d", s.Name, s.AuditAttempts)
	}
	return nil
}

// Field returns the declared field with the given name.
func (s *Schema[T]) Field(name string) (Field[T], bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field[T]{}, false
}

// Index returns the index declared on the given field.
func (s *Schema[T]) Index(field string) (IndexSpec, bool) {
	for _, idx := range s.Indexes {
		if idx.Field == field {
			return idx, true
		}
	}
	return IndexSpec{}, false
}

// RecordAttempts is the effective number of attempts for record file operations.
func (s *Schema[T]) RecordAttempts() int {
	if s.MaxAttempts < 1 {
		return 1
	}
	return s.MaxAttempts
}

// AuditLogAttempts is the effective number of attempts for audit log operations.
func (s *Schema[T]) AuditLogAttempts() int {
	if s.AuditAttempts == 0 {
		return UnboundedAttempts
	}
	return s.AuditAttempts
}

func validName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case name == "." || name == "..":
		return fmt.Errorf("invalid name %q", name)
	case strings.ContainsAny(name, `/\:`):
		return fmt.Errorf("name %q contains a path separator", name)
	}
	return nil
}
