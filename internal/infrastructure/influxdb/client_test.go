package influxdb_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/frostlux/frostlux/internal/infrastructure/config"
	"github.com/frostlux/frostlux/internal/infrastructure/influxdb"
)

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "frostlux-dev-token",
		Org:           "frostlux",
		Bucket:        "telemetry",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the server in FROSTLUX_TEST_INFLUXDB_URL.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	url := os.Getenv("FROSTLUX_TEST_INFLUXDB_URL")
	if url == "" {
		t.Skip("FROSTLUX_TEST_INFLUXDB_URL not set")
	}
	cfg := testConfig()
	cfg.URL = url
	if token := os.Getenv("FROSTLUX_TEST_INFLUXDB_TOKEN"); token != "" {
		cfg.Token = token
	}

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnectDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestZeroClientIsInert(t *testing.T) {
	var c influxdb.Client

	// None of these may panic on a client that never connected.
	c.WritePoint("command", map[string]string{"light_id": "65537"}, map[string]any{"attempts": 1})
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if c.IsConnected() {
		t.Error("zero client reports connected")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestWriteAndHealth(t *testing.T) {
	client := connectOrSkip(t)

	var mu sync.Mutex
	var writeErr error
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() = %v", err)
	}

	client.WritePointWithTime("command",
		map[string]string{"light_id": "65537", "outcome": "confirmed"},
		map[string]any{"attempts": 1, "latency_ms": 42.0},
		time.Now())
	client.Flush()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("write error = %v", writeErr)
	}
}
