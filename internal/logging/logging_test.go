package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHelpersAreNopWithoutDebugMode(t *testing.T) {
	if err := Initialize(Options{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// Must not panic or write anywhere.
	Loop("quiet %d", 1)
	LoopError("quiet %d", 2)
}

func TestInitializeWritesToLogFile(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(Options{DebugMode: true, Level: "debug", Dir: dir}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Loop("hello from the loop")
	L(CategoryLoop).Sync()

	data, err := os.ReadFile(filepath.Join(dir, "querynerd.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from the loop") {
		t.Fatalf("log line missing from file:\n%s", data)
	}
	if !strings.Contains(string(data), `"cat":"loop"`) {
		t.Fatalf("category field missing from file:\n%s", data)
	}
}

func TestCategoryFiltering(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(Options{
		DebugMode:  true,
		Dir:        dir,
		Categories: map[string]bool{string(CategoryLoop): true},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Loop("loop line")
	Memory("memory line")
	L(CategoryLoop).Sync()

	data, err := os.ReadFile(filepath.Join(dir, "querynerd.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "loop line") {
		t.Fatal("enabled category suppressed")
	}
	if strings.Contains(string(data), "memory line") {
		t.Fatal("disabled category written")
	}
}
