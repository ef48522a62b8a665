package profiles

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuiltins(t *testing.T) {
	c := NewCatalogue()
	if got := c.Names(); len(got) != 2 || got[0] != Cooperative || got[1] != NonCooperator {
		t.Fatalf("names = %v", got)
	}
	for _, p := range c.All() {
		if err := p.Validate(); err != nil {
			t.Fatalf("builtin %s invalid: %v", p.Name, err)
		}
	}
	coop, _ := c.Get(Cooperative)
	minute := float64(time.Minute)
	// 60s / avg(3,6)
	if want := time.Duration(minute / 4.5); coop.Interval() != want {
		t.Fatalf("interval = %s, want %s", coop.Interval(), want)
	}
	nc, _ := c.Get(NonCooperator)
	if nc.ResponsePatterns.IgnoreRate != 0.5 || nc.Interval() != time.Duration(minute/3.5) {
		t.Fatalf("non-cooperator = %+v", nc)
	}
}

func TestResponseHelpers(t *testing.T) {
	c := NewCatalogue()
	coop, _ := c.Get(Cooperative)
	nc, _ := c.Get(NonCooperator)
	rng := rand.New(rand.NewSource(1))

	ignored := 0
	for i := 0; i < 1000; i++ {
		if !coop.ShouldRespond(rng) {
			t.Fatalf("cooperative profile ignored a message")
		}
		if !nc.ShouldRespond(rng) {
			ignored++
		}
		d := nc.ResponseDelay(rng)
		if d < 5*time.Second || d > 15*time.Second {
			t.Fatalf("delay %s outside range", d)
		}
	}
	if ignored < 400 || ignored > 600 {
		t.Fatalf("non-cooperator ignored %d/1000", ignored)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	data := `
profiles:
  - name: confuser
    description: sows confusion
    action_frequency: {min_per_minute: 4, max_per_minute: 8}
    response_patterns:
      ignore_rate: 0.2
      response_delay: {min_ms: 1000, max_ms: 3000}
    behaviors: [go-to-wrong-locations, start-then-change-direction, collect-wrong-resources]
  - name: cooperative
    action_frequency: {min_per_minute: 1, max_per_minute: 1}
    behaviors: [assist-with-tasks]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewCatalogue()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	p, ok := c.Get("confuser")
	if !ok || len(p.Behaviors) != 3 || p.Interval() != 10*time.Second {
		t.Fatalf("confuser = %+v", p)
	}
	coop, _ := c.Get(Cooperative)
	if coop.Interval() != time.Minute || len(coop.Behaviors) != 1 {
		t.Fatalf("override not applied: %+v", coop)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"min>max":     "profiles: [{name: x, action_frequency: {min_per_minute: 5, max_per_minute: 2}, behaviors: [a]}]",
		"ignore rate": "profiles: [{name: x, action_frequency: {min_per_minute: 1, max_per_minute: 2}, response_patterns: {ignore_rate: 1.5}, behaviors: [a]}]",
		"empty":       "profiles: [{name: x, action_frequency: {min_per_minute: 1, max_per_minute: 2}}]",
		"zero freq":   "profiles: [{name: x, behaviors: [a]}]",
	}
	for name, data := range cases {
		path := filepath.Join(t.TempDir(), "p.yaml")
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		c := NewCatalogue()
		if err := c.LoadFile(path); err == nil {
			t.Fatalf("%s: LoadFile accepted invalid profile", name)
		}
		if c.Has("x") {
			t.Fatalf("%s: invalid profile registered", name)
		}
	}
}
