package rules_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"reqmon/internal/models"
	"reqmon/internal/rules"
)

func newEngine(registry *rules.Registry) (*rules.Engine, *bytes.Buffer) {
	var buf bytes.Buffer
	return rules.NewEngine(registry, rules.WithLogger(zerolog.New(&buf))), &buf
}

func countLines(buf *bytes.Buffer, msg string) int {
	n := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, msg) {
			n++
		}
	}
	return n
}

func TestEngineExecuteNoRules(t *testing.T) {
	e, _ := newEngine(rules.DefaultRegistry())

	for _, defs := range [][]rules.Definition{nil, {}} {
		got := e.Execute(request("https://x.com/admin"), defs)
		if got == nil || len(got) != 0 {
			t.Errorf("Execute() = %#v, want empty non-nil slice", got)
		}
	}
}

func TestEngineExecuteSkipsUnhandledTypes(t *testing.T) {
	e, buf := newEngine(rules.DefaultRegistry())
	defs := []rules.Definition{
		rules.Base{Name: "A", Type: "future-type", Severity: "low"},
		rules.Base{Name: "B", Type: "other-type", Severity: "low"},
		rules.Base{Name: "C", Type: "future-type", Severity: "high"},
	}

	got := e.Execute(request("https://x.com/admin"), defs)
	if len(got) != 0 {
		t.Errorf("expected no alerts, got %v", got)
	}
	if n := countLines(buf, "no handler for rule type"); n != len(defs) {
		t.Errorf("expected %d skip warnings, got %d:\n%s", len(defs), n, buf.String())
	}
}

func TestEngineExecuteConstructibleTypeWithoutHandler(t *testing.T) {
	registry := rules.NewRegistry(map[string]rules.Handler{
		rules.TypeURLRegex: lookup(t, rules.TypeURLRegex),
	})
	e, buf := newEngine(registry)

	def, err := rules.DefaultFactory().Build(json.RawMessage(
		`{"type":"method","name":"Writes","severity":"low","methods":["GET"]}`))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	got := e.Execute(request("https://x.com/"), []rules.Definition{def})
	if len(got) != 0 {
		t.Errorf("expected no alerts, got %v", got)
	}
	if n := countLines(buf, "no handler for rule type"); n != 1 {
		t.Errorf("expected 1 skip warning, got %d", n)
	}
}

func TestEngineExecutePreservesOrder(t *testing.T) {
	e, _ := newEngine(rules.DefaultRegistry())
	defs := []rules.Definition{
		urlRule("Third", "login"),
		urlRule("Miss", "/user"),
		urlRule("First", "x\\.com"),
		urlRule("Second", "^https://"),
	}

	got := e.Execute(request("https://x.com/admin/login"), defs)
	var names []string
	for _, a := range got {
		names = append(names, a.Name())
	}
	if diff := cmp.Diff([]string{"Third", "First", "Second"}, names); diff != "" {
		t.Errorf("alert order mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineExecuteIsDeterministic(t *testing.T) {
	e, _ := newEngine(rules.DefaultRegistry())
	req := request("https://x.com/admin/login")
	defs := []rules.Definition{
		urlRule("A", "/admin"),
		urlRule("B", "login"),
		rules.MethodMatch{Base: rules.Base{Name: "C", Type: rules.TypeMethod, Severity: "low"}, Methods: []string{"get"}},
	}

	first := e.Execute(req, defs)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, e.Execute(req, defs)); diff != "" {
			t.Fatalf("Execute() not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestEngineExecuteIsolatesFaultyRules(t *testing.T) {
	registry := rules.NewRegistry(map[string]rules.Handler{
		rules.TypeURLRegex: lookup(t, rules.TypeURLRegex),
		"panics": rules.HandlerFunc(func(models.RequestDescriptor, rules.Definition) (models.Alert, error) {
			panic("boom")
		}),
	})
	e, buf := newEngine(registry)

	defs := []rules.Definition{
		urlRule("Before", "/admin"),
		urlRule("BadPattern", "(unclosed"),
		rules.Base{Name: "Panicky", Type: "panics", Severity: "low"},
		rules.Base{Name: "Mismatched", Type: rules.TypeURLRegex, Severity: "low"},
		urlRule("After", "login"),
	}

	got := e.Execute(request("https://x.com/admin/login"), defs)
	var names []string
	for _, a := range got {
		names = append(names, a.Name())
	}
	if diff := cmp.Diff([]string{"Before", "After"}, names); diff != "" {
		t.Errorf("alerts mismatch (-want +got):\n%s", diff)
	}
	if n := countLines(buf, "rule evaluation failed"); n != 3 {
		t.Errorf("expected 3 failure logs, got %d:\n%s", n, buf.String())
	}
}

func TestEngineExecuteUnknownTypeAlongsideValid(t *testing.T) {
	f := rules.DefaultFactory()
	defs, errs := f.BuildAll([]json.RawMessage{
		json.RawMessage(`{"type":"future-type","name":"Later","severity":"low","pattern":"/admin"}`),
		json.RawMessage(`{"type":"url-regex","name":"AdminAccess","severity":"high","pattern":"/admin"}`),
	})
	if len(errs) != 0 {
		t.Fatalf("BuildAll() errors = %v", errs)
	}

	e, _ := newEngine(rules.DefaultRegistry())
	got := e.Execute(request("https://x.com/admin"), defs)
	if len(got) != 1 || got[0].Name() != "AdminAccess" {
		t.Errorf("expected only AdminAccess alert, got %v", got)
	}
}

func TestEngineExecuteConcurrent(t *testing.T) {
	e, _ := newEngine(rules.DefaultRegistry())
	defs := []rules.Definition{urlRule("Admin", "/admin"), urlRule("Login", "login")}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := "https://x.com/user"
			want := 0
			if i%2 == 0 {
				url = "https://x.com/admin/login"
				want = 2
			}
			if got := e.Execute(request(url), defs); len(got) != want {
				t.Errorf("goroutine %d: expected %d alerts, got %d", i, want, len(got))
			}
		}(i)
	}
	wg.Wait()
}
