package db

import (
	"encoding/json"
	"fmt"

	"github.com/careerpilot-app/credits-api/internal/models"
	internalsettings "github.com/careerpilot-app/credits-api/internal/settings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// autoMigrateModels applies the shared schema via AutoMigrate.
func autoMigrateModels(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.Account{},
		&models.LedgerEntry{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrateModels(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}
	if errSeed := ensureRateLimitSettings(conn); errSeed != nil {
		return errSeed
	}

	_ = conn.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`).Error

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_ledger_entries_account_id_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_id_created_at
				ON ledger_entries (account_id, created_at DESC)
			`,
		},
		{
			name: "idx_ledger_entries_account_id_type",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_id_type
				ON ledger_entries (account_id, type)
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
		{
			name: "idx_accounts_last_daily_grant_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_accounts_last_daily_grant_at
				ON accounts (last_daily_grant_at)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	// trgmIndex defines trigram and fallback index statements.
	type trgmIndex struct {
		name     string // Logical index name.
		trgmSQL  string // Trigram index SQL.
		lowerSQL string // Lowercase fallback index SQL.
	}
	trgmIndexes := []trgmIndex{
		{
			name: "idx_accounts_email",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_accounts_email_trgm
				ON accounts USING gin (LOWER(email) gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_accounts_email_lower
				ON accounts (LOWER(email))
			`,
		},
		{
			name: "idx_accounts_external_id",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_accounts_external_id_trgm
				ON accounts USING gin (external_id gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_accounts_external_id_lower
				ON accounts (LOWER(external_id))
			`,
		},
	}
	for _, item := range trgmIndexes {
		if errIdx := conn.Exec(item.trgmSQL).Error; errIdx != nil {
			if errLower := conn.Exec(item.lowerSQL).Error; errLower != nil {
				return fmt.Errorf("db: create index %s: %w", item.name, errLower)
			}
		}
	}

	return nil
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrateModels(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}
	if errSeed := ensureRateLimitSettings(conn); errSeed != nil {
		return errSeed
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_ledger_entries_account_id_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_id_created_at
				ON ledger_entries (account_id, created_at DESC)
			`,
		},
		{
			name: "idx_ledger_entries_account_id_type",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_id_type
				ON ledger_entries (account_id, type)
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
		{
			name: "idx_accounts_email_lower",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_accounts_email_lower
				ON accounts (LOWER(email))
			`,
		},
		{
			name: "idx_accounts_last_daily_grant_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_accounts_last_daily_grant_at
				ON accounts (last_daily_grant_at)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}

// ensureRateLimitSettings seeds the default rate limit settings rows.
func ensureRateLimitSettings(conn *gorm.DB) error {
	defaults := map[string]any{
		internalsettings.RateLimitKey:             internalsettings.DefaultRateLimit,
		internalsettings.RateLimitRedisEnabledKey: false,
		internalsettings.RateLimitRedisAddrKey:    "",
		internalsettings.RateLimitRedisPrefixKey:  internalsettings.DefaultRateLimitRedisPrefix,
	}
	for key, value := range defaults {
		payload, errMarshal := json.Marshal(value)
		if errMarshal != nil {
			return fmt.Errorf("db: marshal setting %s: %w", key, errMarshal)
		}
		row := models.Setting{Key: key, Value: datatypes.JSON(payload)}
		if errCreate := conn.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&row).Error; errCreate != nil {
			return fmt.Errorf("db: seed setting %s: %w", key, errCreate)
		}
	}
	return nil
}
