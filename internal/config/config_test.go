package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultDeadline, cfg.Deadline)
	assert.Equal(t, DefaultNumWorkers, cfg.NumWorkers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{name: "valid", cfg: Config{Deadline: time.Second, NumWorkers: 1}},
		{name: "negative deadline", cfg: Config{Deadline: -time.Second, NumWorkers: 1}, wantErr: []string{"deadline"}},
		{
			name:    "everything wrong",
			cfg:     Config{Deadline: time.Second, NumWorkers: -1, NumDevices: -2, LogLevel: "loud", LogFormat: "xml"},
			wantErr: []string{"worker count", "device count", "log level", "log format"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if len(tc.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tc.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "value", line["key"])
}
