package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sensorops/userdir/internal/config"
	"github.com/sensorops/userdir/internal/models"
	"github.com/sensorops/userdir/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HasAdminInitialized reports whether at least one admin account exists.
func HasAdminInitialized(ctx context.Context, conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.Admin{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// CreateAdminUser creates an admin account. The first account created gets
// super admin rights.
func CreateAdminUser(ctx context.Context, conn *gorm.DB, username, password string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("create admin: missing username")
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("create admin: missing password")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	initialized, errInit := HasAdminInitialized(ctx, conn)
	if errInit != nil {
		return errInit
	}

	now := time.Now().UTC()
	admin := models.Admin{
		Username:     username,
		Password:     hashedPassword,
		Active:       true,
		IsSuperAdmin: !initialized,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("create admin: %w", errCreate)
	}
	return nil
}

// EnsureBootstrapAdmin creates the configured admin account on first run.
// A database that already has admins is left untouched.
func EnsureBootstrapAdmin(ctx context.Context, conn *gorm.DB, bootstrap config.BootstrapAdmin) error {
	initialized, errInit := HasAdminInitialized(ctx, conn)
	if errInit != nil {
		return errInit
	}
	if initialized {
		return nil
	}
	if strings.TrimSpace(bootstrap.Username) == "" || strings.TrimSpace(bootstrap.Password) == "" {
		log.Warn("no admin accounts exist and no bootstrap admin is configured")
		return nil
	}
	if errCreate := CreateAdminUser(ctx, conn, bootstrap.Username, bootstrap.Password); errCreate != nil {
		return errCreate
	}
	log.WithField("username", strings.TrimSpace(bootstrap.Username)).Info("bootstrap admin created")
	return nil
}
