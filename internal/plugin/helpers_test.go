package plugin

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// sourceWasm exports one page of memory and an empty initialize function.
var sourceWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: () -> ()
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	// function: one of type 0
	0x03, 0x02, 0x01, 0x00,
	// memory: one page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export: memory, initialize
	0x07, 0x17, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x0a, 'i', 'n', 'i', 't', 'i', 'a', 'l', 'i', 'z', 'e', 0x00, 0x00,
	// code: empty body
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

// netWasm is sourceWasm plus an import of net.init.
var netWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: () -> (), (i32) -> i32
	0x01, 0x09, 0x02, 0x60, 0x00, 0x00, 0x60, 0x01, 0x7f, 0x01, 0x7f,
	// import: net.init
	0x02, 0x0c, 0x01, 0x03, 'n', 'e', 't', 0x04, 'i', 'n', 'i', 't', 0x00, 0x01,
	// function: one of type 0
	0x03, 0x02, 0x01, 0x00,
	// memory: one page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export: memory, initialize (function 1, after the import)
	0x07, 0x17, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x0a, 'i', 'n', 'i', 't', 'i', 'a', 'l', 'i', 'z', 'e', 0x00, 0x01,
	// code: empty body
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

const exampleManifest = `
id: en.example
name: Example
version: 2
language: en
url: https://example.com
nsfw: 1
author: someone
wasm:
  file: main.wasm
capabilities: [std, json, net, aidoku, defaults]
listings:
  - name: Latest
  - name: Popular
    flags: 1
settings:
  language: en
  pageSize: 20
  blockedTags: [gore]
network:
  allowed_hosts: [example.com]
  rate_limit: 5
  rate_limit_period: 1
`

// manifestWith replaces top-level keys of exampleManifest, including any
// indented block below them, e.g. manifestWith("id: en.other").
func manifestWith(lines ...string) string {
	out := exampleManifest
	for _, line := range lines {
		key := strings.SplitN(line, ":", 2)[0] + ":"
		var kept []string
		replaced, skipping := false, false
		for _, l := range strings.Split(out, "\n") {
			if skipping && strings.HasPrefix(l, " ") {
				continue
			}
			skipping = false
			if strings.HasPrefix(l, key) {
				kept = append(kept, line)
				replaced, skipping = true, true
				continue
			}
			kept = append(kept, l)
		}
		if !replaced {
			kept = append(kept, line)
		}
		out = strings.Join(kept, "\n")
	}
	return out
}

// writePlugin creates root/name with a manifest and, when wasm is non-nil,
// main.wasm.
func writePlugin(t *testing.T, root, name, manifest string, wasm []byte) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if wasm != nil {
		if err := os.WriteFile(filepath.Join(dir, "main.wasm"), wasm, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}
