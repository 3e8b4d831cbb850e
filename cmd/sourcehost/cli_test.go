package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/woxQAQ/sourcehost/internal/plugin"
	"github.com/woxQAQ/sourcehost/internal/wasmtest"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

const cliManifest = `id: en.cli
name: CLI Source
version: 3
language: en
wasm:
  file: main.wasm
capabilities: [std, aidoku]
`

// cliModule builds two manga on every list call and returns no page
// record.
func cliModule(t *testing.T) []byte {
	b := wasmtest.New(t)
	manga := b.Host("aidoku", "manga")

	m1p, m1l := b.Str(16, "m1")
	m2p, m2l := b.Str(24, "m2")
	firstP, firstL := b.Str(32, "First")
	secondP, secondL := b.Str(40, "Second")

	mangaArgs := func(idP, idL, titleP, titleL int32) []byte {
		return wasmtest.Args(idP, idL, 0, 0, titleP, titleL,
			0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0,
			1, 0, 0,
		)
	}

	i32 := wasmtest.I32
	b.Export("get_manga_list", wasmtest.Types(i32, i32), wasmtest.Types(i32), nil,
		mangaArgs(m1p, m1l, firstP, firstL), wasmtest.Call(manga), wasmtest.Drop(),
		mangaArgs(m2p, m2l, secondP, secondL), wasmtest.Call(manga), wasmtest.Drop(),
		wasmtest.I32Const(-1),
	)
	return b.Bytes()
}

// writeEnv lays out a plugin directory and a config file pointing at it,
// and returns the config path.
func writeEnv(t *testing.T, withPlugin bool) string {
	t.Helper()
	root := t.TempDir()
	plugins := filepath.Join(root, "plugins")
	if err := os.MkdirAll(plugins, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if withPlugin {
		writeCLIPlugin(t, filepath.Join(plugins, "cli"))
	}

	cfg := fmt.Sprintf(`plugin_paths:
  - %s
log_level: error
settings:
  driver: sqlite
  path: %s
`, plugins, filepath.Join(root, "settings.db"))
	path := filepath.Join(root, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func writeCLIPlugin(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(cliManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.wasm"), cliModule(t), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}
}

func assertContains(t *testing.T, output string, phrases ...string) {
	t.Helper()
	for _, phrase := range phrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("expected output to contain %q, got:\n%s", phrase, output)
		}
	}
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertContains(t, output,
		"sourcehost",
		"plugins",
		"search",
		"settings",
		"abi",
		"--config",
	)
}

func TestCLIABI(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "abi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertContains(t, output,
		"std:",
		"aidoku:",
		"create_string(ptr i32, len i32) -> i32",
		"exports:",
		"get_manga_list",
	)
}

func TestCLIABI_Namespace(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "abi", "net")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(output, "std:") || strings.Contains(output, "exports:") {
		t.Errorf("expected only the net namespace, got:\n%s", output)
	}
	assertContains(t, output, "net:")

	if _, err := executeCommand(newRootCmd(), "abi", "nope"); err == nil {
		t.Fatal("expected error for unknown namespace")
	}
}

func TestCLIPluginsList(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "plugins", "list", "-c", writeEnv(t, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertContains(t, output, "ID", "CAPABILITIES", "en.cli", "CLI Source", "safe", "std,aidoku")
}

func TestCLIPluginsList_Empty(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "plugins", "list", "-c", writeEnv(t, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertContains(t, output, "No plugins found.")
}

func TestCLIPluginsValidate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cli")
	writeCLIPlugin(t, dir)

	output, err := executeCommand(newRootCmd(), "plugins", "validate", dir,
		"-c", writeEnv(t, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertContains(t, output, "ok: en.cli v3 (1 imports, 1 exports)")
}

func TestCLIPluginsValidate_Missing(t *testing.T) {
	_, err := executeCommand(newRootCmd(), "plugins", "validate", t.TempDir(),
		"-c", writeEnv(t, false))
	if err == nil {
		t.Fatal("expected error for a directory without a manifest")
	}
}

func TestCLISearch(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "search", "en.cli", "first", "-c", writeEnv(t, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertContains(t, output, "id: m1", "title: First", "id: m2", "has_more: false")
}

func TestCLISearch_UnknownPlugin(t *testing.T) {
	_, err := executeCommand(newRootCmd(), "search", "en.nope", "-c", writeEnv(t, true))
	if err == nil {
		t.Fatal("expected error for unknown plugin")
	}
}

func TestCLISettings(t *testing.T) {
	cfg := writeEnv(t, false)

	if _, err := executeCommand(newRootCmd(), "settings", "set", "en.cli", "pageSize", "20", "-c", cfg); err != nil {
		t.Fatalf("set: %v", err)
	}
	output, err := executeCommand(newRootCmd(), "settings", "get", "en.cli", "pageSize", "-c", cfg)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(output) != "20" {
		t.Errorf("get = %q, want 20", output)
	}

	if _, err := executeCommand(newRootCmd(), "settings", "delete", "en.cli", "pageSize", "-c", cfg); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := executeCommand(newRootCmd(), "settings", "get", "en.cli", "pageSize", "-c", cfg); err == nil {
		t.Fatal("expected error after delete")
	}
}
