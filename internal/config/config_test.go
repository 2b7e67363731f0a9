package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputDir != "outputs" || cfg.Runtime != RuntimeCommand || cfg.LogLevel != "error" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AwaitTimeout != 10*time.Minute || cfg.StopTimeout != 10*time.Second {
		t.Fatalf("unexpected timeouts: await=%s stop=%s", cfg.AwaitTimeout, cfg.StopTimeout)
	}
	if cfg.Postgres.Enabled || cfg.ObjectStore.Enabled {
		t.Fatalf("sinks must be opt-in")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DSE_RUNTIME", "DryRun")
	t.Setenv("DSE_OUTPUT_DIR", "/tmp/dse")
	t.Setenv("DSE_AWAIT_TIMEOUT", "30s")
	t.Setenv("DSE_DRYRUN_FAILURE_PERCENT", "25")
	t.Setenv("DSE_RECIPE_COWS", "true")
	t.Setenv("DSE_METRICS_TEXTFILE", "/tmp/dse.prom")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime != RuntimeDryRun || cfg.OutputDir != "/tmp/dse" || cfg.AwaitTimeout != 30*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.FailurePercent != 25 || !cfg.RecipeCows || cfg.MetricsTextfile != "/tmp/dse.prom" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "runtime", key: "DSE_RUNTIME", val: "docker", want: "DSE_RUNTIME"},
		{name: "log level", key: "DSE_LOG_LEVEL", val: "loud", want: "DSE_LOG_LEVEL"},
		{name: "await timeout", key: "DSE_AWAIT_TIMEOUT", val: "-1s", want: "DSE_AWAIT_TIMEOUT"},
		{name: "failure percent", key: "DSE_DRYRUN_FAILURE_PERCENT", val: "150", want: "DSE_DRYRUN_FAILURE_PERCENT"},
		{name: "ready timeout", key: "DSE_DAEMON_READY_TIMEOUT", val: "0s", want: "DSE_DAEMON_READY_TIMEOUT"},
		{name: "unparsable duration", key: "DSE_STOP_TIMEOUT", val: "soon", want: "DSE_STOP_TIMEOUT"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestValidateMinioRequiresBucket(t *testing.T) {
	cfg := Config{OutputDir: "outputs", LogLevel: "info", Runtime: RuntimeDryRun, AwaitTimeout: time.Second, ReadyTimeout: time.Second, StopTimeout: time.Second}
	cfg.ObjectStore.Enabled = true
	cfg.ObjectStore.Endpoint = "minio:9000"
	cfg.ObjectStore.AccessKey = "a"
	cfg.ObjectStore.SecretKey = "b"
	cfg.ObjectStore.Region = "us-east-1"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("err=%v, want bucket error", err)
	}
}
