package database

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// RequiredColumns lists the columns the chat store reads or writes, per table.
var RequiredColumns = map[string][]string{
	"users":              {"id", "username"},
	"chat_conversations": {"id", "customer_id", "priority", "created_at"},
	"chat_messages": {
		"id", "conversation_id", "sender_id", "sender_type", "content",
		"media_url", "media_type", "timestamp", "is_read",
	},
}

// RequiredIndexes backs the listing, history and unread-count queries.
var RequiredIndexes = []string{
	"idx_conversations_customer",
	"idx_messages_conversation_time",
	"idx_messages_sender",
	"idx_messages_unread",
}

// SchemaValidator checks a live database against what the chat store expects.
type SchemaValidator struct {
	db      *sql.DB
	dialect string
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB, dialect string) *SchemaValidator {
	return &SchemaValidator{db: db, dialect: dialect}
}

// Validate runs every check in order and stops at the first failure.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	if err := v.ValidateIndexes(); err != nil {
		return err
	}
	return v.ValidateConstraints()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	tables := append(sortedTables(), "schema_migrations")
	for _, table := range tables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateTableStructure verifies every required column is present.
// Column types differ per dialect and are not compared.
func (v *SchemaValidator) ValidateTableStructure() error {
	for _, table := range sortedTables() {
		found, err := v.columns(table)
		if err != nil {
			return fmt.Errorf("%s table structure: %w", table, err)
		}
		for _, col := range RequiredColumns[table] {
			if !found[col] {
				return fmt.Errorf("%s table structure invalid: column %s not found", table, col)
			}
		}
	}
	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range RequiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

// ValidateConstraints probes the priority and sender_type checks inside a
// transaction that is always rolled back.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin constraint probe: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		"INSERT INTO chat_conversations (customer_id, priority, created_at) VALUES (?, ?, ?)",
		0, "urgent", 0,
	); err == nil {
		return fmt.Errorf("check constraint not enforced: conversation priority")
	}

	// A failed statement leaves the transaction open in both dialects.
	res, err := tx.Exec(
		"INSERT INTO chat_conversations (customer_id, priority, created_at) VALUES (?, ?, ?)",
		0, "medium", 0,
	)
	if err != nil {
		return fmt.Errorf("failed to insert probe conversation: %w", err)
	}
	convID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read probe conversation id: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO chat_messages (conversation_id, sender_id, sender_type, content, timestamp, is_read) VALUES (?, ?, ?, ?, ?, ?)",
		convID, 0, "robot", "", 0, 0,
	); err == nil {
		return fmt.Errorf("check constraint not enforced: message sender_type")
	}
	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if v.dialect == DialectMySQL {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	}
	var count int
	if err := v.db.QueryRow(query, tableName).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?"
	if v.dialect == DialectMySQL {
		query = "SELECT COUNT(*) FROM information_schema.statistics WHERE table_schema = DATABASE() AND index_name = ?"
	}
	var count int
	if err := v.db.QueryRow(query, indexName).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) columns(tableName string) (map[string]bool, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if v.dialect == DialectMySQL {
		rows, err = v.db.Query(
			"SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?",
			tableName,
		)
	} else {
		rows, err = v.db.Query("SELECT name FROM pragma_table_info(?)", tableName)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found[strings.ToLower(name)] = true
	}
	return found, rows.Err()
}

func sortedTables() []string {
	tables := make([]string, 0, len(RequiredColumns))
	for table := range RequiredColumns {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}
