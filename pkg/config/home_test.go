package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("TAPRESOLVER_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_FallbackToCwd(t *testing.T) {
	ResetHome()
	t.Setenv("TAPRESOLVER_HOME", "")

	got := GetHome()
	cwd, _ := os.Getwd()

	// When not in a bin/ directory and no env var, should fall back to
	// cwd (unless the test binary happens to sit in a bin/ directory).
	if got == "" {
		t.Error("GetHome() returned empty string")
	}
	_ = cwd
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("TAPRESOLVER_HOME", "/first")

	first := GetHome()

	// Change env; should NOT affect cached value.
	t.Setenv("TAPRESOLVER_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestGetConfidencePath(t *testing.T) {
	ResetHome()
	t.Setenv("TAPRESOLVER_HOME", "/test/home")

	got := GetConfidencePath()
	want := filepath.Join("/test/home", "confidence.yaml")
	if got != want {
		t.Errorf("GetConfidencePath() = %q, want %q", got, want)
	}
}

func TestGetReportsDir(t *testing.T) {
	ResetHome()
	t.Setenv("TAPRESOLVER_HOME", "/test/home")

	got := GetReportsDir()
	want := filepath.Join("/test/home", "reports")
	if got != want {
		t.Errorf("GetReportsDir() = %q, want %q", got, want)
	}
}
