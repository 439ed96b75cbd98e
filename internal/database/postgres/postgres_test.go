//go:build integration

package postgres

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/photo-dedup/internal/config"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestFeatureCache(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	cache := NewFeatureCache(pool)
	hash := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

	t.Run("Miss", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, hash, "clip")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if ok {
			t.Error("expected cache miss")
		}
	})

	t.Run("PutAndGet", func(t *testing.T) {
		embedding := make([]float32, 512)
		for i := range embedding {
			embedding[i] = float32(i) / 512.0
		}

		if err := cache.Put(ctx, hash, "clip", embedding); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, ok, err := cache.Get(ctx, hash, "clip")
		if err != nil || !ok {
			t.Fatalf("Get failed: ok=%v err=%v", ok, err)
		}
		if len(got) != len(embedding) {
			t.Fatalf("expected %d dims, got %d", len(embedding), len(got))
		}
		for i := range got {
			if math.Abs(float64(got[i]-embedding[i])) > 1e-6 {
				t.Fatalf("dimension %d: expected %f, got %f", i, embedding[i], got[i])
			}
		}
	})

	t.Run("ModelsAreSeparate", func(t *testing.T) {
		if _, ok, _ := cache.Get(ctx, hash, "other-model"); ok {
			t.Error("expected miss for a different model")
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		if err := cache.Put(ctx, hash, "clip", []float32{1, 0, 0}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, _, err := cache.Get(ctx, hash, "clip")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("expected replaced 3-dim embedding, got %d dims", len(got))
		}
	})

	t.Run("PutEmpty", func(t *testing.T) {
		if err := cache.Put(ctx, hash, "clip", nil); err == nil {
			t.Error("expected error for empty embedding")
		}
	})

	t.Run("CountAndPurge", func(t *testing.T) {
		count, err := cache.Count(ctx, "clip")
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 cached vector, got %d", count)
		}

		removed, err := cache.Purge(ctx, "clip")
		if err != nil {
			t.Fatalf("Purge failed: %v", err)
		}
		if removed != 1 {
			t.Errorf("expected 1 removed, got %d", removed)
		}
		if count, _ := cache.Count(ctx, "clip"); count != 0 {
			t.Errorf("expected empty cache after purge, got %d", count)
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_feature_vectors.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	// Running again is a no-op.
	if err := pool.Migrate(ctx); err != nil {
		t.Errorf("second Migrate failed: %v", err)
	}
}
