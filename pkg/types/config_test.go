package types

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "postgres", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:    "valid sqlite config",
			config:  Config{Backend: "sqlite", DataDir: "/tmp/data"},
			wantErr: nil,
		},
		{
			name:    "sqlite with empty DataDir is valid at config level",
			config:  Config{Backend: "sqlite", DataDir: ""},
			wantErr: nil,
		},
		{
			name:    "memory backend is valid",
			config:  Config{Backend: "memory"},
			wantErr: nil,
		},
		{
			name:    "negative poll interval returns ErrPollIntervalInvalid",
			config:  Config{Backend: "sqlite", PollInterval: -time.Second},
			wantErr: ErrPollIntervalInvalid,
		},
		{
			name:    "negative max keys returns ErrMaxKeysInvalid",
			config:  Config{Backend: "memory", MaxKeys: -1},
			wantErr: ErrMaxKeysInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigGetPollInterval(t *testing.T) {
	if got := (Config{}).GetPollInterval(); got != DefaultPollInterval {
		t.Fatalf("expected default %v, got %v", DefaultPollInterval, got)
	}
	if got := (Config{PollInterval: 50 * time.Millisecond}).GetPollInterval(); got != 50*time.Millisecond {
		t.Fatalf("expected 50ms, got %v", got)
	}
}
