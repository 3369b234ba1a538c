package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AssistChat/internal/config"
)

func TestApplyFlags_OnlyChangedFlagsWin(t *testing.T) {
	opts := &options{flags: config.Default()}
	cmd := buildRootCmd(opts)
	require.NoError(t, cmd.ParseFlags([]string{
		"--endpoint", "ws://localhost:9000/chat",
		"--plain",
		"--journal=false",
		"--config", "/tmp/assistchat.toml",
	}))

	// as if read from a config file
	cfg := config.Default()
	cfg.TimeoutSecs = 15
	cfg.Debug = true

	applyFlags(cmd, cfg, opts.flags)

	assert.Equal(t, "/tmp/assistchat.toml", opts.configPath)
	assert.Equal(t, "ws://localhost:9000/chat", cfg.Endpoint)
	assert.True(t, cfg.Plain)
	assert.False(t, cfg.Journal)
	assert.Equal(t, 15, cfg.TimeoutSecs)
	assert.True(t, cfg.Debug)
}

func TestApplyFlags_NoFlags(t *testing.T) {
	opts := &options{flags: config.Default()}
	cmd := buildRootCmd(opts)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := config.Default()
	cfg.Endpoint = "https://assistant.example.com/chat/send"
	applyFlags(cmd, cfg, opts.flags)

	assert.Equal(t, "https://assistant.example.com/chat/send", cfg.Endpoint)
}
