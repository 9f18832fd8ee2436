package nlsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dbchat/dbchat/internal/chat"
	"github.com/dbchat/dbchat/internal/schema"
)

const (
	defaultQueryTimeout = 8 * time.Second
	defaultMaxRows      = 50
)

var (
	errEmptySQL     = errors.New("model produced an empty query")
	errNotSelectSQL = errors.New("only SELECT / CTE queries are allowed")
)

// Chain is the query processor: prompt the model with schema context and
// conversation history, validate the generated SQL, run it, and format the
// result set as a readable answer.
type Chain struct {
	provider     Provider
	db           *sql.DB
	schema       *schema.Cache
	log          zerolog.Logger
	queryTimeout time.Duration
	maxRows      int
	maxTokens    int
}

// ChainOption customizes a Chain.
type ChainOption func(*Chain)

// WithQueryTimeout bounds SQL execution time per question.
func WithQueryTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.queryTimeout = d
		}
	}
}

// WithMaxRows caps the number of rows included in an answer.
func WithMaxRows(n int) ChainOption {
	return func(c *Chain) {
		if n > 0 {
			c.maxRows = n
		}
	}
}

// WithMaxTokens caps the model completion size.
func WithMaxTokens(n int) ChainOption {
	return func(c *Chain) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewChain builds a chain over the given provider, database handle, and
// schema cache.
func NewChain(provider Provider, db *sql.DB, cache *schema.Cache, log zerolog.Logger, opts ...ChainOption) *Chain {
	c := &Chain{
		provider:     provider,
		db:           db,
		schema:       cache,
		log:          log,
		queryTimeout: defaultQueryTimeout,
		maxRows:      defaultMaxRows,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process implements chat.Processor. The history slice holds prior turns
// only; question is the in-flight user message.
func (c *Chain) Process(ctx context.Context, question string, history []chat.Turn) (string, error) {
	snap := c.schema.Snapshot()

	messages := make([]Message, 0, len(history)+1)
	for _, t := range history {
		messages = append(messages, Message{Role: string(t.Role), Content: t.Content})
	}
	messages = append(messages, Message{Role: string(chat.RoleUser), Content: question})

	start := time.Now()
	result, err := c.provider.Complete(ctx, CompletionRequest{
		System:    systemPrompt(snap.Text()),
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", &chat.ProcessError{Kind: classify(err, chat.FailGeneration), Err: err}
	}

	completion := ParseCompletion(result.Text)
	if completion.Missing != "" {
		c.log.Info().
			Str("provider", c.provider.Name()).
			Int("tokens", result.Tokens).
			Msg("model reported unanswerable question")
		return "I can't answer that from this database: " + completion.Missing, nil
	}

	query, err := ValidateSelect(completion.SQL)
	if err != nil {
		return "", &chat.ProcessError{Kind: chat.FailValidation, Err: fmt.Errorf("generated SQL rejected: %w (sql: %s)", err, completion.SQL)}
	}

	table, err := c.execute(ctx, query)
	if err != nil {
		return "", &chat.ProcessError{Kind: classify(err, chat.FailExecution), Err: fmt.Errorf("execute generated SQL: %w (sql: %s)", err, query)}
	}

	c.log.Info().
		Str("provider", c.provider.Name()).
		Int("tokens", result.Tokens).
		Int("rows", len(table.rows)).
		Dur("elapsed", time.Since(start)).
		Msg("question answered")

	return renderAnswer(query, table), nil
}

func classify(err error, fallback chat.FailKind) chat.FailKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return chat.FailTimeout
	}
	return fallback
}

// ValidateSelect trims the query and rejects anything that is not a SELECT
// or WITH statement.
func ValidateSelect(raw string) (string, error) {
	query := strings.TrimSpace(raw)
	if query == "" {
		return "", errEmptySQL
	}
	lower := strings.ToLower(query)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return "", errNotSelectSQL
	}
	return query, nil
}

type resultTable struct {
	columns   []string
	rows      [][]string
	truncated bool
}

// execute runs the query with the chain's timeout and scans up to maxRows
// rows into display strings.
func (c *Chain) execute(ctx context.Context, query string) (resultTable, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return resultTable{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return resultTable{}, err
	}

	table := resultTable{columns: columns}
	for rows.Next() {
		if len(table.rows) >= c.maxRows {
			table.truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return resultTable{}, err
		}
		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = formatValue(v)
		}
		table.rows = append(table.rows, record)
	}
	if err := rows.Err(); err != nil {
		return resultTable{}, err
	}
	return table, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderAnswer formats the executed SQL and its result set as the assistant
// turn content: a code fence with the query followed by a markdown table.
func renderAnswer(query string, table resultTable) string {
	var sb strings.Builder
	sb.WriteString("```sql\n")
	sb.WriteString(query)
	sb.WriteString("\n```\n\n")

	if len(table.rows) == 0 {
		sb.WriteString("The query returned no rows.")
		return sb.String()
	}

	sb.WriteString("| " + strings.Join(table.columns, " | ") + " |\n")
	sep := make([]string, len(table.columns))
	for i := range sep {
		sep[i] = "---"
	}
	sb.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range table.rows {
		sb.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}

	if table.truncated {
		fmt.Fprintf(&sb, "\n(showing the first %d rows)", len(table.rows))
	} else if len(table.rows) == 1 && len(table.columns) == 1 {
		// Single-value answers read better called out.
		fmt.Fprintf(&sb, "\n**%s: %s**", table.columns[0], table.rows[0][0])
	}
	return sb.String()
}

func escapeCells(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		cell = strings.ReplaceAll(cell, "\n", " ")
		out[i] = strings.ReplaceAll(cell, "|", "\\|")
	}
	return out
}
