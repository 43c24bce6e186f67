package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeStub(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, executableName(name))
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), mode); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present", 0o755)
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank result: %#v", results[2])
	}
}

func TestCheckChromeFindsChromiumOnPath(t *testing.T) {
	binDir := t.TempDir()
	chromium := writeStub(t, binDir, "chromium", 0o755)
	t.Setenv("PATH", binDir)

	status := CheckChrome("")
	if !status.Available {
		t.Fatalf("expected chromium to resolve, got detail %q", status.Detail)
	}
	if status.Command != chromium {
		t.Fatalf("expected %q, got %q", chromium, status.Command)
	}
}

func TestCheckChromeConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	exe := writeStub(t, dir, "my-chrome", 0o755)
	if status := CheckChrome(exe); !status.Available {
		t.Fatalf("expected configured path to pass, got %q", status.Detail)
	}

	if runtime.GOOS != "windows" {
		plain := writeStub(t, dir, "not-exec", 0o644)
		if status := CheckChrome(plain); status.Available {
			t.Fatal("expected non-executable path to fail")
		}
	}
	if status := CheckChrome(filepath.Join(dir, "missing")); status.Available || status.Detail == "" {
		t.Fatalf("expected missing configured path to fail, got %#v", status)
	}
}

func TestCheckChromeNotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	status := CheckChrome("")
	if status.Available {
		t.Fatal("expected chrome resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when chrome is unavailable")
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
