package app

import (
	"path/filepath"
	"testing"

	"github.com/careerpilot-app/credits-api/internal/db"
	"github.com/careerpilot-app/credits-api/internal/models"
	"github.com/careerpilot-app/credits-api/internal/security"

	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestHasAdminInitialized(t *testing.T) {
	conn := openTestDB(t)

	initialized, err := HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("check init: %v", err)
	}
	if initialized {
		t.Fatalf("expected empty database to be uninitialized")
	}

	if errSeed := EnsureBootstrapAdmin(conn, "root", "secret-pass"); errSeed != nil {
		t.Fatalf("seed admin: %v", errSeed)
	}

	initialized, err = HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("check init: %v", err)
	}
	if !initialized {
		t.Fatalf("expected initialized after bootstrap")
	}
}

func TestEnsureBootstrapAdminIdempotent(t *testing.T) {
	conn := openTestDB(t)

	if errSeed := EnsureBootstrapAdmin(conn, "root", "secret-pass"); errSeed != nil {
		t.Fatalf("seed admin: %v", errSeed)
	}
	if errSeed := EnsureBootstrapAdmin(conn, "other", "other-pass"); errSeed != nil {
		t.Fatalf("second seed: %v", errSeed)
	}

	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count admins: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected a single bootstrap admin, got %d", count)
	}

	var admin models.Admin
	if errFind := conn.First(&admin).Error; errFind != nil {
		t.Fatalf("load admin: %v", errFind)
	}
	if admin.Username != "root" || !admin.Active {
		t.Fatalf("unexpected admin record: %+v", admin)
	}
	if !security.VerifyPassword(admin.Password, "secret-pass") {
		t.Fatalf("stored password hash does not verify")
	}
	if admin.Password == "secret-pass" {
		t.Fatalf("password must not be stored in plaintext")
	}
}

func TestEnsureBootstrapAdminSkipsBlankCredentials(t *testing.T) {
	conn := openTestDB(t)

	if errSeed := EnsureBootstrapAdmin(conn, "  ", "pass"); errSeed != nil {
		t.Fatalf("blank username: %v", errSeed)
	}
	if errSeed := EnsureBootstrapAdmin(conn, "root", " "); errSeed != nil {
		t.Fatalf("blank password: %v", errSeed)
	}

	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count admins: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected no admin rows, got %d", count)
	}
}
