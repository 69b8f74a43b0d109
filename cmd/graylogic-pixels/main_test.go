package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-pixels/internal/audit"
	"github.com/nerrad567/gray-logic-pixels/internal/auth"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/database"
)

// writeConfig writes content to a temp config file and points
// GRAYLOGIC_CONFIG at it for the rest of the test.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", configPath)
	return tmpDir
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, `
site:
  id: test-site
database:
  enabled: true
  path: ""
mqtt:
  enabled: false
logging:
  level: error
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_OfflineStartupAndShutdown runs the whole service with only the
// database and a dummy device, then shuts it down via the context.
func TestRun_OfflineStartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "pixels.db")

	writeConfig(t, `
site:
  id: test-site
database:
  enabled: true
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: false
influxdb:
  enabled: false
logging:
  level: error
  format: text
devices:
  - id: desk
    type: dummy
    config:
      name: Desk
      pixel_count: 8
      refresh_rate: 100
  - id: broken
    type: no-such-type
    config:
      name: Broken
  - id: shelf
    type: mqtt
    config:
      name: Shelf
      pixel_count: 8
`)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	// The database was created and fully migrated.
	db, err := database.Open(context.Background(), database.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	_, pending, err := db.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending migrations = %d, want 0", len(pending))
	}

	// Only the dummy device loads; the unknown type and the mqtt device
	// without a broker are skipped.
	created, err := audit.NewSQLiteRepository(db.DB).List(context.Background(), audit.Filter{Action: "device_created"})
	if err != nil {
		t.Fatalf("listing audit entries: %v", err)
	}
	if created.Total != 1 || created.Entries[0].DeviceID != "desk" {
		t.Errorf("device_created entries = %+v, want only desk", created.Entries)
	}

	cleared, err := audit.NewSQLiteRepository(db.DB).List(context.Background(), audit.Filter{Action: "effects_cleared"})
	if err != nil {
		t.Fatalf("listing audit entries: %v", err)
	}
	if cleared.Total == 0 {
		t.Error("no effects_cleared entry recorded at shutdown")
	}
}

// TestRun_ContextCancelledDuringStartup verifies cancellation while the
// broker connection is still being attempted.
func TestRun_ContextCancelledDuringStartup(t *testing.T) {
	writeConfig(t, `
site:
  id: test-site
database:
  enabled: false
mqtt:
  enabled: true
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-client"
logging:
  level: error
`)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when the broker is unreachable before the context ends")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GRAYLOGIC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestDeviceEntries(t *testing.T) {
	in := []config.DeviceEntry{
		{ID: "desk", Type: "dummy", Config: map[string]any{"name": "Desk"}},
		{Type: "mqtt"},
	}

	out := deviceEntries(in)
	if len(out) != 2 {
		t.Fatalf("len(deviceEntries()) = %d, want 2", len(out))
	}
	if out[0].ID != "desk" || out[0].Type != "dummy" || out[0].Config["name"] != "Desk" {
		t.Errorf("entry 0 = %+v", out[0])
	}
	if out[1].ID != "" || out[1].Type != "mqtt" {
		t.Errorf("entry 1 = %+v", out[1])
	}
}

// TestHealthCheck_AllDisabled verifies health check passes with no services.
func TestHealthCheck_AllDisabled(t *testing.T) {
	if err := healthCheck(context.Background(), nil, nil, nil); err != nil {
		t.Errorf("healthCheck() error = %v", err)
	}
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestRun_APIServesDevices starts the service with the HTTP API enabled and
// reads the configured devices back over HTTP.
func TestRun_APIServesDevices(t *testing.T) {
	port := freePort(t)
	writeConfig(t, `
site:
  id: test-site
database:
  enabled: false
mqtt:
  enabled: false
logging:
  level: error
api:
  enabled: true
  host: 127.0.0.1
  port: `+strconv.Itoa(port)+`
devices:
  - id: desk
    type: dummy
    config:
      name: Desk
      pixel_count: 4
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/devices/desk", port)
	var status int
	for deadline := time.Now().Add(3 * time.Second); time.Now().Before(deadline); time.Sleep(20 * time.Millisecond) {
		resp, err := http.Get(url) //nolint:noctx // test helper
		if err != nil {
			continue
		}
		status = resp.StatusCode
		resp.Body.Close()
		break
	}
	if status != http.StatusOK {
		t.Errorf("GET %s status = %d, want 200", url, status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestRunToken(t *testing.T) {
	const secret = "main-test-secret-main-test-secret-01"
	writeConfig(t, `
site:
  id: test-site
api:
  auth:
    jwt_secret: "`+secret+`"
    token_ttl: 5
`)

	var out bytes.Buffer
	if err := runToken([]string{"-subject", "wall-panel", "-scope", "viewer"}, &out); err != nil {
		t.Fatalf("runToken() error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), secret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "wall-panel" || claims.Scope != auth.ScopeViewer {
		t.Errorf("claims = %+v, want wall-panel/viewer", claims)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 5*time.Minute {
		t.Errorf("ttl = %v, want 5m", ttl)
	}

	if err := runToken([]string{"-scope", "root"}, &out); err == nil {
		t.Error("runToken() should reject an unknown scope")
	}
}

func TestRunToken_NoSecret(t *testing.T) {
	writeConfig(t, `
site:
  id: test-site
`)

	var out bytes.Buffer
	if err := runToken(nil, &out); err == nil {
		t.Error("runToken() should fail without api.auth.jwt_secret")
	}
}
