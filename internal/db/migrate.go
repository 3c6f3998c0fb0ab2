package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sensorops/userdir/internal/models"
	"github.com/sensorops/userdir/internal/settings"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	conn = conn.WithContext(ctx)
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.UserGroup{},
		&models.UserRecord{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultUserGroup(conn); errSeed != nil {
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
			name: "idx_user_records_updated_at_id",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_user_records_updated_at_id
				ON user_records (updated_at DESC, id DESC)
			`,
		},
		{
			name: "idx_user_records_enabled_id",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_user_records_enabled_id
				ON user_records (id)
				WHERE enabled = true
			`,
		},
		{
			name: "idx_user_records_api_token_set",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_user_records_api_token_set
				ON user_records (api_token)
				WHERE api_token <> ''
			`,
		},
		{
			name: "idx_user_records_content_department",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_user_records_content_department
				ON user_records ((content->>'department'))
			`,
		},
		{
			name: "idx_user_groups_default_true",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_user_groups_default_true
				ON user_groups (id)
				WHERE is_default = true
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
			name: "idx_user_records_name",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_user_records_name_trgm
				ON user_records USING gin (name gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_user_records_name_lower
				ON user_records (LOWER(name))
			`,
		},
		{
			name: "idx_user_records_e_mail_address",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_user_records_e_mail_address_trgm
				ON user_records USING gin (e_mail_address gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_user_records_e_mail_address_lower
				ON user_records (LOWER(e_mail_address))
			`,
		},
		{
			name: "idx_admins_username",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_admins_username_trgm
				ON admins USING gin (username gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_admins_username_lower
				ON admins (LOWER(username))
			`,
		},
		{
			name: "idx_user_groups_name",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_user_groups_name_trgm
				ON user_groups USING gin (name gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_user_groups_name_lower
				ON user_groups (LOWER(name))
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
	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.UserGroup{},
		&models.UserRecord{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultUserGroup(conn); errSeed != nil {
		return errSeed
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_user_records_updated_at_id",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_user_records_updated_at_id
				ON user_records (updated_at DESC, id DESC)
			`,
		},
		{
			name: "idx_user_records_api_token_set",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_user_records_api_token_set
				ON user_records (api_token)
				WHERE api_token <> ''
			`,
		},
		{
			name: "idx_user_groups_default_true",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_user_groups_default_true
				ON user_groups (id)
				WHERE is_default = true
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

// ensureDefaultUserGroup ensures a default user group exists and is marked default.
func ensureDefaultUserGroup(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.UserGroup{}).Where("is_default = ?", true).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: check default user group: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	var existing models.UserGroup
	if errFind := conn.Where("name = ?", settings.DefaultUserGroupName).First(&existing).Error; errFind == nil {
		if errUpdate := conn.Model(&existing).Update("is_default", true).Error; errUpdate != nil {
			return fmt.Errorf("db: set default user group: %w", errUpdate)
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query user group: %w", errFind)
	}

	now := time.Now().UTC()
	group := models.UserGroup{
		Name:      settings.DefaultUserGroupName,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&group).Error; errCreate != nil {
		return fmt.Errorf("db: create default user group: %w", errCreate)
	}
	return nil
}
