package schema

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
)

func introspect(ctx context.Context, db *sql.DB, log zerolog.Logger) (Snapshot, error) {
	names, err := tableNames(ctx, db)
	if err != nil {
		return Snapshot{}, err
	}
	cols, err := tableColumns(ctx, db)
	if err != nil {
		return Snapshot{}, err
	}
	pks, err := primaryKeyColumns(ctx, db)
	if err != nil {
		return Snapshot{}, err
	}
	fks, err := foreignKeys(ctx, db)
	if err != nil {
		return Snapshot{}, err
	}
	estimates, err := rowEstimates(ctx, db)
	if err != nil {
		// Estimates only flavor the prompt; keep going without them.
		log.Warn().Err(err).Msg("row estimates unavailable")
		estimates = nil
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		t := Table{
			Name:        name,
			Columns:     cols[name],
			ForeignKeys: fks[name],
			RowEstimate: estimates[name],
		}
		pkSet := make(map[string]bool, len(pks[name]))
		for _, pk := range pks[name] {
			pkSet[pk] = true
		}
		for i := range t.Columns {
			if pkSet[t.Columns[i].Name] {
				t.Columns[i].PrimaryKey = true
			}
		}
		tables = append(tables, t)
	}

	return Snapshot{Tables: tables, Taken: time.Now()}, nil
}

const tableNamesQuery = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`

func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, tableNamesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

const tableColumnsQuery = `
SELECT
	c.table_name,
	c.column_name,
	c.data_type,
	c.is_nullable = 'YES' AS nullable,
	COALESCE(d.description, '') AS comment
FROM information_schema.columns c
LEFT JOIN pg_catalog.pg_statio_all_tables st
	ON st.schemaname = c.table_schema AND st.relname = c.table_name
LEFT JOIN pg_catalog.pg_description d
	ON d.objoid = st.relid AND d.objsubid = c.ordinal_position
WHERE c.table_schema = 'public'
ORDER BY c.table_name, c.ordinal_position`

func tableColumns(ctx context.Context, db *sql.DB) (map[string][]Column, error) {
	rows, err := db.QueryContext(ctx, tableColumnsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string][]Column)
	for rows.Next() {
		var table string
		var col Column
		if err := rows.Scan(&table, &col.Name, &col.Type, &col.Nullable, &col.Comment); err != nil {
			return nil, err
		}
		cols[table] = append(cols[table], col)
	}
	return cols, rows.Err()
}

const primaryKeysQuery = `
SELECT tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
	ON tc.constraint_name = kcu.constraint_name
	AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public'
ORDER BY tc.table_name, kcu.ordinal_position`

func primaryKeyColumns(ctx context.Context, db *sql.DB) (map[string][]string, error) {
	rows, err := db.QueryContext(ctx, primaryKeysQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pks := make(map[string][]string)
	for rows.Next() {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return nil, err
		}
		pks[table] = append(pks[table], col)
	}
	return pks, rows.Err()
}

const foreignKeysQuery = `
SELECT
	tc.table_name,
	kcu.column_name,
	ccu.table_name AS ref_table,
	ccu.column_name AS ref_column
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
	ON tc.constraint_name = kcu.constraint_name
	AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
	ON tc.constraint_name = ccu.constraint_name
	AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'`

func foreignKeys(ctx context.Context, db *sql.DB) (map[string][]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, foreignKeysQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := make(map[string][]ForeignKey)
	for rows.Next() {
		var table string
		var fk ForeignKey
		if err := rows.Scan(&table, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, err
		}
		fks[table] = append(fks[table], fk)
	}
	return fks, rows.Err()
}

const rowEstimatesQuery = `
SELECT relname, reltuples::bigint
FROM pg_class
WHERE relnamespace = 'public'::regnamespace AND relkind = 'r'`

func rowEstimates(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, rowEstimatesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	estimates := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		if count > 0 {
			estimates[name] = count
		}
	}
	return estimates, rows.Err()
}
