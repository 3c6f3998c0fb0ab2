package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sensorops/userdir/internal/config"
	"github.com/sensorops/userdir/internal/db"
	"github.com/sensorops/userdir/internal/models"
	"gorm.io/gorm"
)

func newAppDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "userdir-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(context.Background(), conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestCreateAdminUser_FirstIsSuperAdmin(t *testing.T) {
	conn := newAppDB(t)
	ctx := context.Background()

	if errCreate := CreateAdminUser(ctx, conn, "admin", "password"); errCreate != nil {
		t.Fatalf("CreateAdminUser: %v", errCreate)
	}
	if errCreate := CreateAdminUser(ctx, conn, "operator", "password"); errCreate != nil {
		t.Fatalf("CreateAdminUser second: %v", errCreate)
	}

	var first models.Admin
	if errFind := conn.Where("username = ?", "admin").First(&first).Error; errFind != nil {
		t.Fatalf("find admin: %v", errFind)
	}
	if !first.IsSuperAdmin {
		t.Fatalf("expected first admin to be super admin")
	}

	var second models.Admin
	if errFind := conn.Where("username = ?", "operator").First(&second).Error; errFind != nil {
		t.Fatalf("find operator: %v", errFind)
	}
	if second.IsSuperAdmin {
		t.Fatalf("expected later admins to not be super admin")
	}
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	conn := newAppDB(t)
	ctx := context.Background()

	// No credentials configured: nothing happens.
	if errEnsure := EnsureBootstrapAdmin(ctx, conn, config.BootstrapAdmin{}); errEnsure != nil {
		t.Fatalf("EnsureBootstrapAdmin empty: %v", errEnsure)
	}
	initialized, errInit := HasAdminInitialized(ctx, conn)
	if errInit != nil {
		t.Fatalf("HasAdminInitialized: %v", errInit)
	}
	if initialized {
		t.Fatalf("expected no admins without bootstrap credentials")
	}

	bootstrap := config.BootstrapAdmin{Username: "root", Password: "secret"}
	if errEnsure := EnsureBootstrapAdmin(ctx, conn, bootstrap); errEnsure != nil {
		t.Fatalf("EnsureBootstrapAdmin: %v", errEnsure)
	}
	initialized, errInit = HasAdminInitialized(ctx, conn)
	if errInit != nil {
		t.Fatalf("HasAdminInitialized: %v", errInit)
	}
	if !initialized {
		t.Fatalf("expected bootstrap admin to exist")
	}

	// Second run is a no-op even with different credentials.
	if errEnsure := EnsureBootstrapAdmin(ctx, conn, config.BootstrapAdmin{Username: "other", Password: "x"}); errEnsure != nil {
		t.Fatalf("EnsureBootstrapAdmin rerun: %v", errEnsure)
	}
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected exactly one admin, got %d", count)
	}
}
