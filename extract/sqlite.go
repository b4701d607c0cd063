package extract

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/levandor/ferret/detect"
)

// SqliteExtractor reads only catalog metadata (sqlite_master, PRAGMA calls)
// and per-table row counts during summarization. Row data is never scanned,
// which bounds cost independent of table size. Deep extraction dumps the full
// schema plus row data.
type SqliteExtractor struct{}

func (e *SqliteExtractor) Name() string { return "sqlite" }

func (e *SqliteExtractor) CanHandle(category detect.Category, mimeType string) bool {
	return category == detect.CategoryDatabase && strings.Contains(mimeType, "sqlite")
}

func (e *SqliteExtractor) Summarize(path string) (*Summary, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	version := "unknown"
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		version = "unknown"
	}

	var pageSize int64
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		pageSize = 4096
	}

	tables, err := e.readTables(db)
	if err != nil {
		// Partial summary with whatever catalog data was recovered
		return &Summary{
			Kind:    e.Name(),
			Preview: fmt.Sprintf("SQLite database (version %s)", version),
			Sqlite:  &SqliteSummary{Tables: tables, PageSize: pageSize, Version: version},
		}, err
	}

	var totalRows int64
	tableNames := make([]string, 0, len(tables))
	for _, t := range tables {
		totalRows += t.RowCount
		tableNames = append(tableNames, t.Name)
	}

	preview := fmt.Sprintf("SQLite database: %d tables, %d total rows. Tables: %s",
		len(tables), totalRows, strings.Join(tableNames, ", "))

	return &Summary{
		Kind:    e.Name(),
		Preview: truncatePreview(preview),
		Sqlite: &SqliteSummary{
			Tables:    tables,
			TotalRows: totalRows,
			PageSize:  pageSize,
			Version:   version,
		},
	}, nil
}

// Deep dumps the full schema and all row data, table by table. Unlike
// Summarize this is proportional to database size.
func (e *SqliteExtractor) Deep(path string) (string, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	tables, err := e.readTables(db)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, table := range tables {
		columnNames := make([]string, 0, len(table.Columns))
		for _, col := range table.Columns {
			columnNames = append(columnNames, fmt.Sprintf("%s %s", col.Name, col.DataType))
		}
		fmt.Fprintf(&sb, "== table %s (%d rows)\n", table.Name, table.RowCount)
		fmt.Fprintf(&sb, "columns: %s\n", strings.Join(columnNames, ", "))

		if err := e.dumpRows(db, table.Name, &sb); err != nil {
			fmt.Fprintf(&sb, "error reading rows: %s\n", err)
		}
		sb.WriteByte('\n')
	}

	return sb.String(), nil
}

func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&immutable=0", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return db, nil
}

func (e *SqliteExtractor) readTables(db *sql.DB) ([]TableInfo, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("failed to read sqlite_master: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]TableInfo, 0, len(names))
	for _, name := range names {
		columns, err := e.readColumns(db, name)
		if err != nil {
			return tables, err
		}
		rowCount, err := e.countRows(db, name)
		if err != nil {
			return tables, err
		}
		indexes, err := e.readIndexes(db, name)
		if err != nil {
			return tables, err
		}

		tables = append(tables, TableInfo{
			Name:     name,
			Columns:  columns,
			RowCount: rowCount,
			Indexes:  indexes,
		})
	}

	return tables, nil
}

func (e *SqliteExtractor) readColumns(db *sql.DB, table string) ([]ColumnInfo, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read table_info for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue sql.NullString
			primaryKey   int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &primaryKey); err != nil {
			return nil, err
		}
		columns = append(columns, ColumnInfo{
			Name:       name,
			DataType:   dataType,
			Nullable:   notNull == 0,
			PrimaryKey: primaryKey == 1,
		})
	}

	return columns, rows.Err()
}

func (e *SqliteExtractor) countRows(db *sql.DB, table string) (int64, error) {
	var count int64
	err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

func (e *SqliteExtractor) readIndexes(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA index_list(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read index_list for %s: %w", table, err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var indexes []string
	for rows.Next() {
		values := make([]any, len(columnNames))
		pointers := make([]any, len(columnNames))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		// index_list columns: seq, name, unique, origin, partial
		if len(values) > 1 {
			if name, ok := values[1].(string); ok {
				indexes = append(indexes, name)
			}
		}
	}

	return indexes, rows.Err()
}

func (e *SqliteExtractor) dumpRows(db *sql.DB, table string, sb *strings.Builder) error {
	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s", quoteIdent(table)))
	if err != nil {
		return err
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return err
	}

	for rows.Next() {
		values := make([]any, len(columnNames))
		pointers := make([]any, len(columnNames))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return err
		}

		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = formatCell(v)
		}
		fmt.Fprintf(sb, "%s\n", strings.Join(cells, " | "))
	}

	return rows.Err()
}

func formatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(c)
	default:
		return fmt.Sprintf("%v", c)
	}
}

// quoteIdent wraps an identifier from sqlite_master in double quotes so table
// names with spaces or keywords stay valid in PRAGMA and SELECT statements.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
