package engine

import (
	"fmt"
	"strings"
)

// Schema contains the SQL definitions of the triple store. Every statement
// is idempotent so InitSchema can run against an initialized store.

// Table and column names of the triple store.
const (
	KeysTable    = "NSFKeys"
	ValuesTable  = "NSFValues"
	IndexesTable = "NSFIndexes"

	ColumnKey       = "NSFKey"
	ColumnSnapshot  = "NSFKeyedArchive"
	ColumnTypeTag   = "NSFObjectClass"
	ColumnCreatedAt = "NSFCalendarDate"
	ColumnAttribute = "NSFAttribute"
	ColumnValue     = "NSFValue"
	ColumnDatatype  = "NSFDatatype"
	ColumnIndexName = "NSFIndexName"
)

// CreateKeysTableSQL creates the Keys relation: one row per document holding
// the snapshot that reconstruction decodes.
const CreateKeysTableSQL = `
CREATE TABLE IF NOT EXISTS NSFKeys (
    NSFKey TEXT PRIMARY KEY,
    NSFKeyedArchive BLOB NOT NULL,
    NSFObjectClass TEXT NOT NULL,
    NSFCalendarDate TEXT NOT NULL
)`

// CreateValuesTableSQL creates the Values relation: one row per leaf. The
// value column has no declared type so every value keeps its storage class
// and numbers compare numerically.
const CreateValuesTableSQL = `
CREATE TABLE IF NOT EXISTS NSFValues (
    NSFKey TEXT NOT NULL,
    NSFAttribute TEXT NOT NULL,
    NSFValue,
    NSFDatatype TEXT NOT NULL
)`

// CreateIndexesTableSQL creates the metadata relation recording which
// attribute paths carry a secondary index.
const CreateIndexesTableSQL = `
CREATE TABLE IF NOT EXISTS NSFIndexes (
    NSFAttribute TEXT PRIMARY KEY,
    NSFIndexName TEXT NOT NULL UNIQUE,
    NSFCalendarDate TEXT NOT NULL
)`

// StandardIndex is one of the indexes every store carries.
type StandardIndex struct {
	Name string
	SQL  string
}

// StandardIndexes lists the indexes dropped by ClearIndexes and recreated by
// RebuildIndexes.
var StandardIndexes = []StandardIndex{
	// Keys lookups by class (filterClass, class listings and counts)
	{"idx_nsfkeys_class", `CREATE INDEX IF NOT EXISTS idx_nsfkeys_class ON NSFKeys(NSFObjectClass)`},

	// Added-date searches
	{"idx_nsfkeys_date", `CREATE INDEX IF NOT EXISTS idx_nsfkeys_date ON NSFKeys(NSFCalendarDate)`},

	// Values by document (removal, bag scoping)
	{"idx_nsfvalues_key", `CREATE INDEX IF NOT EXISTS idx_nsfvalues_key ON NSFValues(NSFKey)`},

	// Values by attribute and value (the common search access path)
	{"idx_nsfvalues_attr_value", `CREATE INDEX IF NOT EXISTS idx_nsfvalues_attr_value ON NSFValues(NSFAttribute, NSFValue)`},

	// Values by value alone (value-only searches across attributes)
	{"idx_nsfvalues_value", `CREATE INDEX IF NOT EXISTS idx_nsfvalues_value ON NSFValues(NSFValue)`},
}

// AttributeIndexSQL returns the DDL of a partial index covering the values of
// one attribute path. The path is inlined as a literal because the planner
// only uses a partial index when the query repeats its WHERE term verbatim.
func AttributeIndexSQL(name, attribute string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON NSFValues(NSFValue, NSFKey) WHERE NSFAttribute = %s`,
		QuoteIdentifier(name), QuoteLiteral(attribute))
}

// QuoteIdentifier quotes an SQL identifier.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes an SQL string literal.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// AnalyzeSQL refreshes the planner statistics.
const AnalyzeSQL = `ANALYZE`

// AllSchemaSQL returns all SQL statements needed to initialize a store.
func AllSchemaSQL() []string {
	statements := []string{
		CreateKeysTableSQL,
		CreateValuesTableSQL,
		CreateIndexesTableSQL,
	}
	for _, idx := range StandardIndexes {
		statements = append(statements, idx.SQL)
	}
	return statements
}
