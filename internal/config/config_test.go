package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatal(err)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Layer.ID != "reportsLayer" {
		t.Fatalf("layer id = %q", cfg.Layer.ID)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critters.yaml")
	body := `
templates:
  - name: Owl
    attributes:
      critter_type: owl
  - name: Fox
    attributes:
      critter_type: fox
slider:
  start: 2020-01-01T00:00:00Z
  end: 2020-02-01T00:00:00Z
  stop: 30m
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"owl", "fox"}, cfg.Categories()); diff != "" {
		t.Fatalf("categories (-want +got):\n%s", diff)
	}
	if cfg.Slider.Stop != 30*time.Minute {
		t.Fatalf("stop = %v", cfg.Slider.Stop)
	}
	if cfg.Layer.ID != "reportsLayer" {
		t.Fatal("unset sections keep defaults")
	}
	if _, ok := cfg.Template("Owl"); !ok {
		t.Fatal("template Owl missing")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	body := `
layer:
  id: ""
templates:
  - name: Fox
  - name: Fox
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"layer.id", "duplicate name"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
