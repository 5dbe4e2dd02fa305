package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/sledilnik/internal/store"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLevelRouterEnabled(t *testing.T) {
	lr := &levelRouter{min: slog.LevelWarn}
	if lr.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn")
	}
	if !lr.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn")
	}
}

func TestInitDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	database, password, err := initDatabase(path, "root")
	if err != nil {
		t.Fatalf("initDatabase: %v", err)
	}
	defer database.Close()

	if len(password) != 16 {
		t.Errorf("expected 16 char password, got %d", len(password))
	}

	user, err := store.GetUserByUsername(context.Background(), database, "root")
	if err != nil || user == nil {
		t.Fatalf("expected admin user, got %v, %v", user, err)
	}
	if user.Role != "admin" {
		t.Errorf("expected admin role, got %q", user.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		t.Error("generated password does not match stored hash")
	}
}
