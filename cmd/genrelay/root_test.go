package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"genrelay/internal/config"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestVersionCommand(t *testing.T) {
	root := buildRootCmd(envMap(nil))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != "genrelay "+version {
		t.Fatalf("out=%q", out.String())
	}
}

func TestServe_MissingCredentialFailsFast(t *testing.T) {
	root := buildRootCmd(envMap(nil))
	root.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})
	err := root.Execute()
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(p, []byte("addr: :7000\napi_key: file-key\nlog_level: warn\nupstream_url: http://file/v1/chat/completions\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root := buildRootCmd(envMap(map[string]string{
		"GROQ_API_KEY":       "env-key",
		"GENRELAY_LOG_LEVEL": "error",
	}))
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("find serve: %v", err)
	}
	if err := serve.ParseFlags([]string{"--config", p, "--log-level", "debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfgPath, _ := serve.Flags().GetString("config")
	level, _ := serve.Flags().GetString("log-level")
	cfg, err := loadConfig(serveFlags{configPath: cfgPath, logLevel: level}, envMap(map[string]string{
		"GROQ_API_KEY":       "env-key",
		"GENRELAY_LOG_LEVEL": "error",
	}), serve)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("file value lost: addr=%q", cfg.Addr)
	}
	if cfg.APIKey != "env-key" {
		t.Fatalf("env should override file: key=%q", cfg.APIKey)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("flag should override env: level=%q", cfg.LogLevel)
	}
	if cfg.UpstreamURL != "http://file/v1/chat/completions" {
		t.Fatalf("unset flag must not override: url=%q", cfg.UpstreamURL)
	}
}

func TestLoadConfig_BadFile(t *testing.T) {
	_, err := loadConfig(serveFlags{configPath: filepath.Join(t.TempDir(), "nope.yaml")}, envMap(nil), nil)
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestRunServe_StopsOnContextCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Addr = "127.0.0.1:0"
	cfg.APIKey = "k"
	cfg.ShutdownTimeoutSeconds = 1
	ctx, cancel := context.WithCancel(context.Background())
	var logs bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, &logs) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
}

func TestRunServe_ListenError(t *testing.T) {
	cfg := config.Defaults()
	cfg.Addr = "256.0.0.1:bad"
	cfg.APIKey = "k"
	if err := runServe(context.Background(), cfg, &bytes.Buffer{}); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestLoadConfig_EnvConfigPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(p, []byte(`{"api_key":"json-key","addr":":9100"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := loadConfig(serveFlags{}, envMap(map[string]string{"GENRELAY_CONFIG": p}), nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.APIKey != "json-key" || cfg.Addr != ":9100" {
		t.Fatalf("cfg=%+v", cfg)
	}
}
