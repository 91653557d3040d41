package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cestas/internal/config"
	"cestas/internal/core"
)

func TestBackendType(t *testing.T) {
	tests := []struct {
		in   BackendType
		want bool
	}{
		{SQLiteBackend, true},
		{MemoryBackend, true},
		{"sheets", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.in.IsValid(); got != tt.want {
			t.Errorf("%q.IsValid() = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := GetBackendTypeStrings(); len(got) != 2 || got[0] != "sqlite" || got[1] != "memory" {
		t.Errorf("GetBackendTypeStrings() = %v", got)
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "postgres"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:  "sqlite",
		SQLiteDBPath: "/tmp/x.db",
		AMQPURL:      "amqp://localhost/",
		DataDir:      "seed",
	})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "/tmp/x.db" || cfg.AMQPURL != "amqp://localhost/" || cfg.DataDirectory != "seed" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	if _, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend}); err == nil {
		t.Error("expected error for sqlite without path")
	}

	t.Run("memory", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "seed_institutions.txt"), []byte("Cáritas\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, DataDirectory: dir})
		if err != nil {
			t.Fatalf("CreateBackend: %v", err)
		}
		names, _ := res.Backend.ListInstitutionNames(ctx)
		if len(names) != 1 || names[0] != "Cáritas" {
			t.Errorf("names = %v", names)
		}
		if res.Cleanup != nil || res.Ready != nil {
			t.Error("memory backend should not need cleanup or readiness")
		}
	})

	t.Run("sqlite without amqp", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{
			Type:         SQLiteBackend,
			SQLiteDBPath: filepath.Join(t.TempDir(), "cestas.db"),
		})
		if err != nil {
			t.Fatalf("CreateBackend: %v", err)
		}
		defer res.Cleanup()

		if err := res.Ready(ctx); err != nil {
			t.Fatalf("Ready: %v", err)
		}
		inst, err := res.Backend.CreateInstitution(ctx, core.Institution{Name: "Abrigo"})
		if err != nil {
			t.Fatalf("CreateInstitution: %v", err)
		}
		if inst.ID == 0 {
			t.Errorf("expected persisted ID")
		}
	})
}
