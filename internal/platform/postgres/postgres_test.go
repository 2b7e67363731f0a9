package postgres

import "testing"

func TestConfigFromEnv_DisabledByDefault(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Enabled {
		t.Fatalf("expected postgres disabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled skips checks", cfg: Config{}, wantErr: false},
		{name: "ok", cfg: Config{Enabled: true, URL: "postgres://x", PingTimeout: 1, MaxOpenConns: 2, MaxIdleConns: 1}, wantErr: false},
		{name: "missing url", cfg: Config{Enabled: true, PingTimeout: 1, MaxOpenConns: 1}, wantErr: true},
		{name: "idle above open", cfg: Config{Enabled: true, URL: "postgres://x", PingTimeout: 1, MaxOpenConns: 1, MaxIdleConns: 2}, wantErr: true},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
			t.Fatalf("%s: expected err=%v, got %v", tt.name, tt.wantErr, err)
		}
	}
}

func TestConfigFromEnv_InvalidInt(t *testing.T) {
	t.Setenv("DSE_DATABASE_MAX_OPEN_CONNS", "many")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected parse error")
	}
}
