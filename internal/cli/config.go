package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/packdb/packdb"
)

// FileConfig is the YAML configuration of the CLI.
type FileConfig struct {
	packdb.Options `yaml:",inline"`
	Types          []TypeConfig `yaml:"types"`
}

// TypeConfig declares one record type.
type TypeConfig struct {
	Name          string        `yaml:"name"`
	Fields        []string      `yaml:"fields"`
	Indexes       []IndexConfig `yaml:"indexes"`
	Audited       bool          `yaml:"audited"`
	AuditAttempts int           `yaml:"audit_attempts"`
	SoftDelete    bool          `yaml:"soft_delete"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

// IndexConfig declares an index on one field.
type IndexConfig struct {
	Field  string `yaml:"field"`
	Unique bool   `yaml:"unique"`
}

// LoadConfig reads a YAML configuration file. An empty path yields the defaults.
func LoadConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{Options: packdb.DefaultOptions("")}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(cfg.Types))
	for _, tc := range cfg.Types {
		if _, ok := seen[tc.Name]; ok {
			return nil, fmt.Errorf("config %s declares type %s twice", path, tc.Name)
		}
		seen[tc.Name] = struct{}{}
	}
	return cfg, nil
}

// Type returns the declared type with the given name.
func (c *FileConfig) Type(name string) (TypeConfig, bool) {
	for _, tc := range c.Types {
		if tc.Name == name {
			return tc, true
		}
	}
	return TypeConfig{}, false
}

// Schema builds the document schema of the type.
func (tc TypeConfig) Schema() *packdb.Schema[Document] {
	s := &packdb.Schema[Document]{
		Name:          tc.Name,
		Audited:       tc.Audited,
		AuditAttempts: tc.AuditAttempts,
		SoftDelete:    tc.SoftDelete,
		MaxAttempts:   tc.MaxAttempts,
	}
	for _, name := range tc.Fields {
		s.Fields = append(s.Fields, packdb.Field[Document]{Name: name, Value: fieldOf(name)})
	}
	for _, idx := range tc.Indexes {
		s.Indexes = append(s.Indexes, packdb.IndexSpec{Field: idx.Field, Unique: idx.Unique})
	}
	return s
}

func fieldOf(name string) func(Document) any {
	return func(d Document) any {
		return d.Fields[name]
	}
}
