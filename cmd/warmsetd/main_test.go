package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"warmsetd/internal/config"
	"warmsetd/internal/quality"
	"warmsetd/internal/registry"
	"warmsetd/internal/repo"
	"warmsetd/internal/snapshot"
	"warmsetd/pkg/types"
)

func writeFile(t *testing.T, path string, content []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) { v, ok := env[k]; return v, ok }
}

func TestResolveConfig_Precedence(t *testing.T) {
	p := writeFile(t, filepath.Join(t.TempDir(), "cfg.yaml"), []byte("addr: :7001\nprefetch_depth: 3\ndefault_max_tokens: 64\n"))
	env := map[string]string{
		"WARMSETD_ADDR":               ":7002",
		"WARMSETD_CACHE_BUDGET_BYTES": "4096",
		"WARMSETD_PREFETCH_DEPTH":     "5",
	}
	cfg, err := resolveConfig(p, lookupFrom(env), config.Config{PrefetchDepth: 7})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":7001" {
		t.Fatalf("file should override env, got addr %q", cfg.Addr)
	}
	if cfg.CacheBudgetBytes != 4096 {
		t.Fatalf("env should override defaults, got budget %d", cfg.CacheBudgetBytes)
	}
	if cfg.PrefetchDepth != 7 {
		t.Fatalf("flags should override file, got depth %d", cfg.PrefetchDepth)
	}
	if cfg.DefaultMaxTokens != 64 || cfg.LogLevel != "info" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestResolveConfig_Errors(t *testing.T) {
	if _, err := resolveConfig("", lookupFrom(map[string]string{"WARMSETD_PREFETCH_DEPTH": "x"}), config.Config{}); err == nil {
		t.Fatalf("expected environment error")
	}
	if _, err := resolveConfig(filepath.Join(t.TempDir(), "missing.yaml"), lookupFrom(nil), config.Config{}); err == nil {
		t.Fatalf("expected missing file error")
	}
	if _, err := resolveConfig("", lookupFrom(nil), config.Config{RepoURL: "http://r", RepoDir: "/m"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestOpenRepo(t *testing.T) {
	c, err := openRepo(config.Config{})
	if err != nil || c != nil {
		t.Fatalf("expected no repository, got %v, %v", c, err)
	}
	c, err = openRepo(config.Config{RepoURL: "http://repo.example/", RepoTimeoutSeconds: 3})
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if hc, ok := c.(*repo.HTTPClient); !ok || hc.BaseURL() != "http://repo.example" {
		t.Fatalf("unexpected client %T", c)
	}
	c, err = openRepo(config.Config{RepoDir: t.TempDir()})
	if err != nil {
		t.Fatalf("dir: %v", err)
	}
	if _, ok := c.(*registry.Dir); !ok {
		t.Fatalf("unexpected client %T", c)
	}
	if _, err := openRepo(config.Config{RepoDir: filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestRequestLogLevelMapping(t *testing.T) {
	cases := map[string]string{"trace": "debug", "debug": "debug", "info": "info", "": "info", "warn": "error", "error": "error", "off": "off"}
	for in, want := range cases {
		if got := requestLogLevel(in); got != want {
			t.Fatalf("requestLogLevel(%q) = %q, want %q", in, got, want)
		}
	}
	if newLogger("off").GetLevel() != zerolog.Disabled || newLogger("debug").GetLevel() != zerolog.DebugLevel || newLogger("bogus").GetLevel() != zerolog.InfoLevel {
		t.Fatalf("unexpected logger levels")
	}
}

func blobFile(t *testing.T, dir, name string, ratio, acc float32) string {
	t.Helper()
	return writeFile(t, filepath.Join(dir, name), quality.Encode(quality.Model{
		Config:           quality.Config{TargetBits: 1.5, NumSubspaces: 2, CodebookSizeL1: 16, CodebookSizeL2: 4},
		CompressionRatio: ratio,
		BitAccuracy:      acc,
	}))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	// .env lookups resolve against a directory without one.
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := root.Execute()
	return out.String(), err
}

func TestScoreCommandJSON(t *testing.T) {
	d := t.TempDir()
	good := blobFile(t, d, "good.novaq", 383.3, 0.95)
	poor := blobFile(t, d, "poor.novaq", 2, 0.1)
	out, err := execute(t, "score", "--json", "--model-id", "m", good, poor)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 results, got %q", out)
	}
	var first, second types.ValidationResult
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("json: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("json: %v", err)
	}
	if first.ModelID != "m" || !first.ValidationPassed || second.ValidationPassed || len(second.Issues) == 0 {
		t.Fatalf("unexpected results: %+v %+v", first, second)
	}
}

func TestScoreCommandTable(t *testing.T) {
	d := t.TempDir()
	good := blobFile(t, d, "good.novaq", 383.3, 0.95)
	bad := writeFile(t, filepath.Join(d, "bad.novaq"), []byte{1, 2, 3})
	out, err := execute(t, "score", good, bad)
	if err == nil || !quality.IsParseFailure(err) {
		t.Fatalf("expected parse failure for %s, got %v", bad, err)
	}
	if !strings.Contains(out, "MODEL") || !strings.Contains(out, good) || !strings.Contains(out, "true") {
		t.Fatalf("unexpected table: %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "warmsetd "+version {
		t.Fatalf("unexpected output %q", out)
	}
}

// writeModelDir lays out an n-chunk model under root in the registry format.
func writeModelDir(t *testing.T, root, modelID string, n int) {
	t.Helper()
	mf := types.ModelManifest{ModelID: modelID, Version: "1", Digest: "d-" + modelID, State: types.ModelActive}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", modelID, i)
		data := []byte(fmt.Sprintf("chunk %d of %s", i, modelID))
		s := sha256.Sum256(data)
		mf.Chunks = append(mf.Chunks, types.ChunkDescriptor{ID: id, Size: uint64(len(data)), SHA256: hex.EncodeToString(s[:])})
		writeFile(t, filepath.Join(root, modelID, "chunks", id), data)
	}
	b, err := json.Marshal(mf)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	writeFile(t, filepath.Join(root, modelID, "manifest.json"), b)
}

func TestRunServeBindsAndWritesSnapshot(t *testing.T) {
	root := t.TempDir()
	writeModelDir(t, root, "m", 4)
	snap := filepath.Join(t.TempDir(), "warmset.db")

	cfg := config.Defaults()
	cfg.Addr = "127.0.0.1:0"
	cfg.RepoDir = root
	cfg.BindOnStart = "m"
	cfg.SnapshotPath = snap

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, zerolog.Nop()) }()
	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServe did not stop after cancel")
	}

	store, err := snapshot.Open(snap)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer store.Close()
	st, ok, err := store.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load snapshot: ok=%v err=%v", ok, err)
	}
	if st.Binding == nil || st.Binding.ModelID != "m" || st.Binding.ChunksLoaded != 2 {
		t.Fatalf("unexpected binding: %+v", st.Binding)
	}
	if len(st.Entries) != 2 {
		t.Fatalf("expected 2 cached chunks, got %d", len(st.Entries))
	}
}
