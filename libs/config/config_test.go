package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("expected fallback 8080, got %q (%v)", p, err)
	}
}

func TestIntBoolDurationList(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BOOL", "yes")
	t.Setenv("TEST_DUR", "90s")
	t.Setenv("TEST_LIST", " a, ,b ")

	if n, err := Int("TEST_INT", 1); err != nil || n != 42 {
		t.Fatalf("Int: got %d (%v)", n, err)
	}
	if !Bool("TEST_BOOL", false) {
		t.Fatal("Bool: expected true")
	}
	if d, err := Duration("TEST_DUR", time.Second); err != nil || d != 90*time.Second {
		t.Fatalf("Duration: got %s (%v)", d, err)
	}
	if l := List("TEST_LIST"); len(l) != 2 || l[0] != "a" || l[1] != "b" {
		t.Fatalf("List: got %v", l)
	}

	t.Setenv("TEST_INT", "x")
	if _, err := Int("TEST_INT", 1); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFirstString(t *testing.T) {
	t.Setenv("TEST_A", "")
	t.Setenv("TEST_B", "second")
	if v := FirstString("none", "TEST_A", "TEST_B"); v != "second" {
		t.Fatalf("got %q", v)
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("DOTENV_SET=from-file\nDOTENV_NEW=new\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOTENV_SET", "from-env")
	t.Setenv("DOTENV_NEW", "")
	os.Unsetenv("DOTENV_NEW")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if os.Getenv("DOTENV_SET") != "from-env" {
		t.Fatal("existing variable was overridden")
	}
	if os.Getenv("DOTENV_NEW") != "new" {
		t.Fatal("new variable was not loaded")
	}
}
