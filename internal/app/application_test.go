package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"examboard/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "examboard.db")
	cfg.Storage.Root = filepath.Join(dir, "files")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	return cfg
}

func TestNewApplicationRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.Port = -1

	application, err := NewApplication(cfg)
	if err == nil {
		t.Error("invalid configuration should be rejected")
	}
	if application != nil {
		t.Error("no application should be returned on config error")
	}
}

func TestApplicationLifecycle(t *testing.T) {
	application, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := application.Stop(shutdownCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestApplicationBootstrapsFirstAdmin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.BootstrapPassword = "first-login"

	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	defer application.dbManager.Close()

	if err := application.adminSvc.VerifyPassword(context.Background(), "admin", "first-login"); err != nil {
		t.Errorf("bootstrap admin should verify: %v", err)
	}
}
