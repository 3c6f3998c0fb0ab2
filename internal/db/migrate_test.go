package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sensorops/userdir/internal/models"
)

func TestOpenAndMigrate_SeedsDefaultGroup(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "userdir-test.db")
	conn, err := Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(context.Background(), conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	var group models.UserGroup
	if errFind := conn.Where("is_default = ?", true).First(&group).Error; errFind != nil {
		t.Fatalf("find default group: %v", errFind)
	}
	if group.Name != "Default" {
		t.Fatalf("expected default group name Default, got %q", group.Name)
	}

	// Migrate is idempotent.
	if errMigrate := Migrate(context.Background(), conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}
	var count int64
	if errCount := conn.Model(&models.UserGroup{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count groups: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected 1 group, got %d", count)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
