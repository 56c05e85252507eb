package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/die-net/socksgate/internal/config"
)

func TestParseTCPKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{}},
		{in: "45:45:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 45 * time.Second, Count: 3}},
		{in: "", wantErr: true},
		{in: "1:2", wantErr: true},
		{in: "0:1:1", wantErr: true},
		{in: "a:1:1", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseTCPKeepAlive(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socksgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 127.0.0.1:2000\nauth: userpass\nusername: alice\n"), 0o644))

	cfg, err := loadConfig([]string{"--config", path, "--listen", "127.0.0.1:3000"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:3000", cfg.Listen, "flag beats file")
	assert.Equal(t, config.AuthUserPass, cfg.Auth, "file beats default")
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "Tech1324", cfg.Password, "default kept")
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := loadConfig([]string{"--auth", "kerberos"})
	assert.Error(t, err)
}
