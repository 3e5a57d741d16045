package profile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"reqmon/internal/profile"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return p
}

const jsonProfile = `{
  "domains": ["x.com", "api.x.com"],
  "rules": [
    {"type": "url-regex", "name": "AdminAccess", "severity": "high", "pattern": "/admin"}
  ]
}`

func TestFileProviderLoad(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name        string
		file        string
		content     string
		wantDomains int
		wantRules   int
	}{
		{"json", "profile.json", jsonProfile, 2, 1},
		{"yaml", "profile.yaml", `
domains: [x.com]
rules:
  - type: url-regex
    name: AdminAccess
    severity: high
    pattern: /admin
  - type: method
    name: Writes
    severity: low
    methods: [POST, PUT]
`, 1, 2},
		{"null lists", "nulls.json", `{"domains": null}`, 0, 0},
		{"corrupt json", "corrupt.json", `{"domains": [`, 0, 0},
		{"corrupt yaml", "corrupt.yml", "domains: [x.com\nrules: {", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profile.NewFileProvider(writeFile(t, dir, tt.file, tt.content)).Load(context.Background())
			if p.Domains == nil || p.Rules == nil {
				t.Fatalf("expected non-nil lists, got %+v", p)
			}
			if len(p.Domains) != tt.wantDomains || len(p.Rules) != tt.wantRules {
				t.Errorf("got %d domains / %d rules, want %d / %d",
					len(p.Domains), len(p.Rules), tt.wantDomains, tt.wantRules)
			}
		})
	}
}

func TestFileProviderMissingFile(t *testing.T) {
	p := profile.NewFileProvider(filepath.Join(t.TempDir(), "absent.json")).Load(context.Background())
	if len(p.Domains) != 0 || len(p.Rules) != 0 {
		t.Errorf("expected empty profile, got %+v", p)
	}
}

func TestFileProviderYAMLRulesAreJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "profile.yml", `
rules:
  - {type: url-regex, name: A, severity: high, pattern: "/admin"}
`)
	p := profile.NewFileProvider(path).Load(context.Background())
	if len(p.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(p.Rules))
	}
	want := `{"name":"A","pattern":"/admin","severity":"high","type":"url-regex"}`
	if string(p.Rules[0]) != want {
		t.Errorf("rule record = %s, want %s", p.Rules[0], want)
	}
}

type countingProvider struct {
	mu    sync.Mutex
	loads int
	next  func(n int) *profile.Profile
}

func (c *countingProvider) Load(context.Context) *profile.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	if c.next == nil {
		return nil
	}
	return c.next(c.loads)
}

func (c *countingProvider) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func TestCacheCurrent(t *testing.T) {
	provider := &countingProvider{next: func(n int) *profile.Profile {
		p := profile.Empty()
		for i := 0; i < n; i++ {
			p.Domains = append(p.Domains, "x.com")
		}
		return p
	}}
	cache := profile.NewCache(provider, time.Minute)

	if _, err := cache.Current(); !errors.Is(err, profile.ErrNoProfile) {
		t.Fatalf("Current() before refresh error = %v, want ErrNoProfile", err)
	}

	cache.Refresh(context.Background())
	first, err := cache.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if len(first.Domains) != 1 {
		t.Errorf("expected 1 domain, got %d", len(first.Domains))
	}
	if cache.LoadedAt().IsZero() {
		t.Error("LoadedAt() is zero after refresh")
	}

	cache.Refresh(context.Background())
	second, _ := cache.Current()
	if len(second.Domains) != 2 {
		t.Errorf("expected 2 domains after second refresh, got %d", len(second.Domains))
	}
	// Earlier snapshots are never mutated by a refresh.
	if len(first.Domains) != 1 {
		t.Errorf("previous snapshot changed: %v", first.Domains)
	}
}

func TestCacheRefreshNilProfile(t *testing.T) {
	cache := profile.NewCache(&countingProvider{}, time.Minute)
	cache.Refresh(context.Background())

	p, err := cache.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if len(p.Domains) != 0 || len(p.Rules) != 0 {
		t.Errorf("expected empty profile, got %+v", p)
	}
}

func TestCacheRun(t *testing.T) {
	provider := &countingProvider{next: func(int) *profile.Profile { return profile.Empty() }}
	cache := profile.NewCache(provider, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cache.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for provider.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if provider.count() < 3 {
		t.Errorf("expected at least 3 loads, got %d", provider.count())
	}
	if _, err := cache.Current(); err != nil {
		t.Errorf("Current() error = %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "profile.json", `{"domains": ["a.com"], "rules": []}`)

	cache := profile.NewCache(profile.NewFileProvider(path), time.Hour)
	cache.Refresh(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = profile.Watch(ctx, path, cache) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "profile.json", jsonProfile)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		p, _ := cache.Current()
		if len(p.Domains) == 2 && len(p.Rules) == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	p, _ := cache.Current()
	t.Fatalf("profile not reloaded, current = %+v", p)
}
