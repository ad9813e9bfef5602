package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/careerpilot-app/credits-api/internal/models"
	"github.com/careerpilot-app/credits-api/internal/security"

	"gorm.io/gorm"
)

// HasAdminInitialized reports whether at least one operator account exists.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.Admin{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// EnsureBootstrapAdmin seeds the first operator account when none exists.
func EnsureBootstrapAdmin(conn *gorm.DB, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	if initialized {
		return nil
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	now := time.Now().UTC()
	admin := models.Admin{
		Username:  username,
		Password:  hashedPassword,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("create admin: %w", errCreate)
	}
	return nil
}
