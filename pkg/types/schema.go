package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Schema validation errors.
var (
	ErrSchemaNameEmpty     = errors.New("table name must not be empty")
	ErrSchemaNoColumns     = errors.New("table must have at least one column")
	ErrInvalidIdentifier   = errors.New("identifier contains invalid characters")
	ErrDuplicateColumn     = errors.New("duplicate column name")
	ErrInvalidTriggerEvent = errors.New("trigger event is not a recognized timing and operation")
)

// identRe matches the identifiers accepted in schema descriptors. Keeping
// identifiers to this set means DDL can be rendered by interpolation
// without quoting or injection concerns.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// triggerEvents enumerates the accepted Trigger.Event values: a timing
// keyword and an operation, interpolated into DDL only after this check.
var triggerEvents = map[string]bool{
	"BEFORE INSERT": true, "BEFORE UPDATE": true, "BEFORE DELETE": true,
	"AFTER INSERT": true, "AFTER UPDATE": true, "AFTER DELETE": true,
	"INSTEAD OF INSERT": true, "INSTEAD OF UPDATE": true, "INSTEAD OF DELETE": true,
}

// Column describes one column of a table.
type Column struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"` // TEXT, INTEGER, REAL, BLOB
	NotNull    bool   `json:"not_null" yaml:"not_null"`
	PrimaryKey bool   `json:"primary_key" yaml:"primary_key"`

	// Default is the literal rendered into the DDL, e.g. "0" or "''".
	// Rows carried forward by a migration that did not have this column
	// receive this value.
	Default string `json:"default" yaml:"default"`
}

// Index describes a secondary index on a table.
type Index struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
	Unique  bool     `json:"unique" yaml:"unique"`
}

// Trigger describes a trigger attached to a table. Body is the full
// trigger body between BEGIN and END.
type Trigger struct {
	Name  string `json:"name" yaml:"name"`
	Event string `json:"event" yaml:"event"` // e.g. "AFTER UPDATE"
	Body  string `json:"body" yaml:"body"`
}

// TableSchema is a typed table definition: the only way table structure is
// created or evolved. Migrations compare descriptors column-by-column
// instead of rewriting SQL text.
type TableSchema struct {
	Name     string    `json:"name" yaml:"name"`
	Columns  []Column  `json:"columns" yaml:"columns"`
	Indexes  []Index   `json:"indexes" yaml:"indexes"`
	Triggers []Trigger `json:"triggers" yaml:"triggers"`
}

// Validate checks the descriptor for empty or malformed identifiers and
// duplicate columns.
func (s TableSchema) Validate() error {
	if s.Name == "" {
		return ErrSchemaNameEmpty
	}
	if !identRe.MatchString(s.Name) {
		return fmt.Errorf("table %q: %w", s.Name, ErrInvalidIdentifier)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("table %q: %w", s.Name, ErrSchemaNoColumns)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, col := range s.Columns {
		if col.Name == "" || !identRe.MatchString(col.Name) {
			return fmt.Errorf("table %q column %q: %w", s.Name, col.Name, ErrInvalidIdentifier)
		}
		if seen[col.Name] {
			return fmt.Errorf("table %q column %q: %w", s.Name, col.Name, ErrDuplicateColumn)
		}
		seen[col.Name] = true
	}
	for _, idx := range s.Indexes {
		if idx.Name == "" || !identRe.MatchString(idx.Name) {
			return fmt.Errorf("table %q index %q: %w", s.Name, idx.Name, ErrInvalidIdentifier)
		}
		for _, col := range idx.Columns {
			if !seen[col] {
				return fmt.Errorf("table %q index %q references unknown column %q", s.Name, idx.Name, col)
			}
		}
	}
	for _, trg := range s.Triggers {
		if trg.Name == "" || !identRe.MatchString(trg.Name) {
			return fmt.Errorf("table %q trigger %q: %w", s.Name, trg.Name, ErrInvalidIdentifier)
		}
		event := strings.ToUpper(strings.Join(strings.Fields(trg.Event), " "))
		if !triggerEvents[event] {
			return fmt.Errorf("table %q trigger %q event %q: %w", s.Name, trg.Name, trg.Event, ErrInvalidTriggerEvent)
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// HasColumn reports whether the schema declares the named column.
func (s TableSchema) HasColumn(name string) bool {
	for _, col := range s.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// CreateSQL renders the CREATE TABLE statement for the descriptor under
// the given table name. The name parameter lets a migration create the
// same shape under a temporary name.
func (s TableSchema) CreateSQL(tableName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", tableName)
	for i, col := range s.Columns {
		fmt.Fprintf(&b, "    %s %s", col.Name, col.Type)
		if col.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if col.NotNull {
			b.WriteString(" NOT NULL")
		}
		if col.Default != "" {
			fmt.Fprintf(&b, " DEFAULT %s", col.Default)
		}
		if i < len(s.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String()
}

// IndexSQL renders the CREATE INDEX statements for the descriptor.
func (s TableSchema) IndexSQL() []string {
	stmts := make([]string, 0, len(s.Indexes))
	for _, idx := range s.Indexes {
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s(%s);",
			unique, idx.Name, s.Name, strings.Join(idx.Columns, ", ")))
	}
	return stmts
}

// TriggerSQL renders the CREATE TRIGGER statements for the descriptor.
func (s TableSchema) TriggerSQL() []string {
	stmts := make([]string, 0, len(s.Triggers))
	for _, trg := range s.Triggers {
		stmts = append(stmts, fmt.Sprintf("CREATE TRIGGER IF NOT EXISTS %s %s ON %s BEGIN %s END;",
			trg.Name, trg.Event, s.Name, trg.Body))
	}
	return stmts
}
