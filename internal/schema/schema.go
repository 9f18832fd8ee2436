// Package schema introspects the connected PostgreSQL database and caches a
// snapshot of its structure for use as language-model context.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Column describes one table column.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primaryKey"`
	Comment    string `json:"comment,omitempty"`
}

// ForeignKey describes a column-level reference to another table.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"refTable"`
	RefColumn string `json:"refColumn"`
}

// Table describes a base table in the public schema.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreignKeys,omitempty"`
	RowEstimate int64        `json:"rowEstimate,omitempty"`
}

// Snapshot is an immutable view of the schema at one refresh. It can be
// rendered and shared without further locking.
type Snapshot struct {
	Tables []Table   `json:"tables"`
	Taken  time.Time `json:"taken"`
}

// TableCount reports the number of tables in the snapshot.
func (s Snapshot) TableCount() int { return len(s.Tables) }

// HasTable reports whether a table with the given name exists,
// case-insensitively.
func (s Snapshot) HasTable(name string) bool {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// Text serializes the snapshot for inclusion in a prompt.
func (s Snapshot) Text() string {
	if len(s.Tables) == 0 {
		return "(no tables found)"
	}
	var sb strings.Builder
	for i, t := range s.Tables {
		if i > 0 {
			sb.WriteString("\n")
		}
		writeTable(&sb, t)
	}
	return sb.String()
}

func writeTable(sb *strings.Builder, t Table) {
	sb.WriteString("TABLE " + t.Name)
	if t.RowEstimate > 0 {
		fmt.Fprintf(sb, " (~%d rows)", t.RowEstimate)
	}
	sb.WriteString("\n")

	refs := make(map[string]ForeignKey, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		refs[fk.Column] = fk
	}

	for _, col := range t.Columns {
		fmt.Fprintf(sb, "  %s %s", col.Name, col.Type)
		if col.PrimaryKey {
			sb.WriteString(" PK")
		}
		if !col.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if fk, ok := refs[col.Name]; ok {
			fmt.Fprintf(sb, " -> %s.%s", fk.RefTable, fk.RefColumn)
		}
		if col.Comment != "" {
			sb.WriteString(" -- " + col.Comment)
		}
		sb.WriteString("\n")
	}
}

// Cache holds the latest snapshot and refreshes it on demand.
type Cache struct {
	mu   sync.RWMutex
	snap Snapshot
	log  zerolog.Logger
}

// NewCache creates an empty cache.
func NewCache(log zerolog.Logger) *Cache {
	return &Cache{log: log}
}

// Refresh introspects the database and swaps in a new snapshot.
func (c *Cache) Refresh(ctx context.Context, db *sql.DB) error {
	snap, err := introspect(ctx, db, c.log)
	if err != nil {
		return fmt.Errorf("introspect schema: %w", err)
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	c.log.Info().Int("tables", snap.TableCount()).Msg("schema snapshot refreshed")
	return nil
}

// Snapshot returns the latest snapshot. The zero Snapshot (no tables) is
// returned before the first successful Refresh.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}
