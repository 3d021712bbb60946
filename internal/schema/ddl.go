package schema

import (
	"fmt"
	"strings"

	"tzindexer/internal/michelson"
)

// typeToSQL maps a SimpleExprTy leaf's Kind to its column's SQL type,
// per spec.md §4.3's table. KStop never reaches here: the storage
// processor skips it entirely and the schema compiler never adds a
// column for it.
func typeToSQL(k michelson.Kind) (string, error) {
	switch k {
	case michelson.KAddress, michelson.KKeyHash:
		return "VARCHAR(127)", nil
	case michelson.KBool:
		return "BOOLEAN", nil
	case michelson.KBytes, michelson.KString:
		return "TEXT", nil
	case michelson.KInt, michelson.KNat, michelson.KMutez:
		return "NUMERIC(64)", nil
	case michelson.KTimestamp:
		return "TIMESTAMP", nil
	case michelson.KUnit:
		return "VARCHAR(128)", nil
	default:
		return "", fmt.Errorf("schema: no SQL type for %s", k)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateTableDDL emits `CREATE TABLE` plus its uniqueness index for one
// table, qualified under schemaName (the per-contract Postgres schema).
func CreateTableDDL(schemaName string, t *Table) (string, error) {
	var b strings.Builder
	qualified := quoteIdent(schemaName) + "." + quoteIdent(t.Name)

	fmt.Fprintf(&b, "CREATE TABLE %s (\n", qualified)
	fmt.Fprintf(&b, "\tid BIGINT,\n\ttx_context_id BIGINT")

	if parent, ok := ParentName(t.Name); ok {
		fmt.Fprintf(&b, ",\n\t%s BIGINT", quoteIdent(parent+"_id"))
	}

	for _, col := range t.Columns() {
		sqlType, err := typeToSQL(col.ColumnType)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		fmt.Fprintf(&b, ",\n\t%s %s NULL", quoteIdent(col.Name), sqlType)
	}

	if !t.ContainsSnapshots() {
		fmt.Fprintf(&b, ",\n\tdeleted BOOLEAN NOT NULL DEFAULT FALSE")
		fmt.Fprintf(&b, ",\n\tbigmap_id INT")
	}

	for _, fk := range t.ForeignKeys() {
		fmt.Fprintf(&b, ",\n\tFOREIGN KEY (%s) REFERENCES %s.%s(%s)",
			quoteIdent(fk.Column), quoteIdent(schemaName), quoteIdent(fk.RefTable), quoteIdent(fk.RefColumn))
	}

	b.WriteString("\n);\n")

	if t.HasUniqueness() {
		cols := append(append([]string{}, t.Indices...), "tx_context_id")
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = quoteIdent(c)
		}
		fmt.Fprintf(&b, "CREATE UNIQUE INDEX ON %s(%s);\n", qualified, strings.Join(quoted, ", "))
	}

	return b.String(), nil
}

// CreateLiveViewDDL emits the `<table>_live` view selecting the
// most-recent row (by monotonic id) per index-column tuple. The root
// "storage" table has no parent key tuple to group by and gets no view.
func CreateLiveViewDDL(schemaName string, t *Table) (string, error) {
	if t.Name == "storage" || len(t.Indices) == 0 {
		return "", nil
	}
	qualified := quoteIdent(schemaName) + "." + quoteIdent(t.Name)
	viewName := quoteIdent(schemaName) + "." + quoteIdent(t.Name+"_live")

	quoted := make([]string, len(t.Indices))
	for i, c := range t.Indices {
		quoted[i] = quoteIdent(c)
	}
	group := strings.Join(quoted, ", ")

	return fmt.Sprintf(`CREATE VIEW %s AS (
	SELECT t1.* FROM %s t1
	INNER JOIN (
		SELECT %s, MAX(id) AS id FROM %s GROUP BY %s
	) t2 ON t1.id = t2.id
);
`, viewName, qualified, group, qualified, group), nil
}

// CommonTablesDDL emits the per-database tables every schema shares:
// contracts, levels, contract_levels, contract_deps, tx_contexts, txs,
// max_id, bigmap_keyhashes, bigmap_meta_actions — spec.md §6's "SQL schema (persisted state layout)".
func CommonTablesDDL() string {
	return `
CREATE TABLE IF NOT EXISTS contracts (
	name TEXT PRIMARY KEY,
	address VARCHAR(127) NOT NULL
);

CREATE TABLE IF NOT EXISTS levels (
	level INT PRIMARY KEY,
	hash VARCHAR(127),
	prev_hash VARCHAR(127),
	baked_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS contract_levels (
	contract TEXT NOT NULL,
	level INT NOT NULL,
	is_origination BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (contract, level)
);

CREATE TABLE IF NOT EXISTS contract_deps (
	level INT NOT NULL,
	dependency TEXT NOT NULL,
	contract TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tx_contexts (
	id BIGINT PRIMARY KEY,
	level INT NOT NULL,
	contract TEXT NOT NULL,
	operation_hash VARCHAR(127),
	operation_group_number INT NOT NULL,
	operation_number INT NOT NULL,
	content_number INT NOT NULL,
	internal_number INT,
	source VARCHAR(127),
	destination VARCHAR(127),
	entrypoint TEXT
);

CREATE TABLE IF NOT EXISTS txs (
	tx_context_id BIGINT PRIMARY KEY REFERENCES tx_contexts(id),
	entrypoint TEXT,
	parameters TEXT
);

CREATE TABLE IF NOT EXISTS max_id (
	max_id BIGINT NOT NULL
);
INSERT INTO max_id (max_id) SELECT 0 WHERE NOT EXISTS (SELECT 1 FROM max_id);

CREATE TABLE IF NOT EXISTS bigmap_keyhashes (
	bigmap_id INT NOT NULL,
	tx_context_id BIGINT NOT NULL REFERENCES tx_contexts(id),
	keyhash VARCHAR(127) NOT NULL,
	key TEXT NOT NULL,
	value TEXT
);

CREATE TABLE IF NOT EXISTS bigmap_meta_actions (
	bigmap_id INT NOT NULL,
	tx_context_id BIGINT NOT NULL REFERENCES tx_contexts(id),
	action VARCHAR(16) NOT NULL,
	detail TEXT
);
`
}

// SchemaDDL emits the full DDL for one contract's generated tables: a
// dedicated Postgres schema, every table and its uniqueness index, then
// every table's _live view (views must follow all tables since they
// reference table data, and a table's own foreign keys must follow its
// parent's CREATE TABLE — SortedNames already orders "storage" first,
// which is every other table's eventual ancestor).
func SchemaDDL(schemaName string, s *Schema) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE SCHEMA IF NOT EXISTS %s;\n\n", quoteIdent(schemaName))

	names := s.SortedNames()
	for _, name := range names {
		ddl, err := CreateTableDDL(schemaName, s.Tables[name])
		if err != nil {
			return "", err
		}
		b.WriteString(ddl)
		b.WriteString("\n")
	}
	for _, name := range names {
		view, err := CreateLiveViewDDL(schemaName, s.Tables[name])
		if err != nil {
			return "", err
		}
		if view != "" {
			b.WriteString(view)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
