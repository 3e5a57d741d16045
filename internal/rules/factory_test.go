package rules_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"reqmon/internal/rules"
)

func TestFactoryBuild(t *testing.T) {
	f := rules.DefaultFactory()

	tests := []struct {
		name   string
		record string
		want   rules.Definition
	}{
		{
			name:   "url regex",
			record: `{"type":"url-regex","name":"AdminAccess","severity":"high","pattern":"/admin"}`,
			want: rules.URLRegex{
				Base:    rules.Base{Name: "AdminAccess", Type: "url-regex", Severity: "high"},
				Pattern: "/admin",
			},
		},
		{
			name:   "undeclared fields are ignored",
			record: `{"type":"url-regex","name":"A","severity":"low","pattern":"x","owner":"sec","tags":[1,2]}`,
			want: rules.URLRegex{
				Base:    rules.Base{Name: "A", Type: "url-regex", Severity: "low"},
				Pattern: "x",
			},
		},
		{
			name:   "unknown type falls back to base",
			record: `{"type":"future-type","name":"Later","severity":"medium","pattern":"x"}`,
			want:   rules.Base{Name: "Later", Type: "future-type", Severity: "medium"},
		},
		{
			name:   "empty name is accepted",
			record: `{"type":"url-regex","name":"","severity":"","pattern":""}`,
			want:   rules.URLRegex{Base: rules.Base{Type: "url-regex"}},
		},
		{
			name:   "header regex",
			record: `{"type":"header-regex","name":"Curl","severity":"low","header":"User-Agent","pattern":"^curl/"}`,
			want: rules.HeaderRegex{
				Base:    rules.Base{Name: "Curl", Type: "header-regex", Severity: "low"},
				Header:  "User-Agent",
				Pattern: "^curl/",
			},
		},
		{
			name:   "method",
			record: `{"type":"method","name":"Writes","severity":"medium","methods":["POST","delete"]}`,
			want: rules.MethodMatch{
				Base:    rules.Base{Name: "Writes", Type: "method", Severity: "medium"},
				Methods: []string{"POST", "delete"},
			},
		},
		{
			name:   "repeated key takes the last value",
			record: `{"type":"url-regex","name":"A","severity":"low","pattern":"/nomatch","pattern":"/admin"}`,
			want: rules.URLRegex{
				Base:    rules.Base{Name: "A", Type: "url-regex", Severity: "low"},
				Pattern: "/admin",
			},
		},
		{
			name:   "nested keys do not shadow top level",
			record: `{"type":"url-regex","name":"A","severity":"low","meta":{"pattern":"inner"},"pattern":"outer"}`,
			want: rules.URLRegex{
				Base:    rules.Base{Name: "A", Type: "url-regex", Severity: "low"},
				Pattern: "outer",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Build(json.RawMessage(tt.record))
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Build() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFactoryBuildErrors(t *testing.T) {
	f := rules.DefaultFactory()

	tests := []struct {
		name      string
		record    string
		wantErr   error
		wantField string
	}{
		{"not json", `{"type":`, rules.ErrMalformedRecord, ""},
		{"not an object", `["url-regex"]`, rules.ErrMalformedRecord, ""},
		{"missing type", `{"name":"A","severity":"high"}`, rules.ErrMissingField, "type"},
		{"missing name", `{"type":"url-regex","severity":"high","pattern":"x"}`, rules.ErrMissingField, "name"},
		{"missing severity", `{"type":"url-regex","name":"A","pattern":"x"}`, rules.ErrMissingField, "severity"},
		{"mistyped name", `{"type":"url-regex","name":7,"severity":"high","pattern":"x"}`, rules.ErrFieldType, "name"},
		{"null type", `{"type":null,"name":"A","severity":"high"}`, rules.ErrFieldType, "type"},
		{"missing pattern", `{"type":"url-regex","name":"A","severity":"high"}`, rules.ErrMissingField, "pattern"},
		{"mistyped pattern", `{"type":"url-regex","name":"A","severity":"high","pattern":["x"]}`, rules.ErrFieldType, "pattern"},
		{"missing header", `{"type":"header-regex","name":"A","severity":"high","pattern":"x"}`, rules.ErrMissingField, "header"},
		{"methods not array", `{"type":"method","name":"A","severity":"high","methods":"POST"}`, rules.ErrFieldType, "methods"},
		{"methods not strings", `{"type":"method","name":"A","severity":"high","methods":["POST",1]}`, rules.ErrFieldType, "methods"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := f.Build(json.RawMessage(tt.record))
			if err == nil {
				t.Fatalf("Build() = %#v, want error", def)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
			var buildErr *rules.BuildError
			if !errors.As(err, &buildErr) {
				t.Fatalf("Build() error %T is not *BuildError", err)
			}
			if buildErr.Field != tt.wantField {
				t.Errorf("BuildError.Field = %q, want %q", buildErr.Field, tt.wantField)
			}
		})
	}
}

func TestFactoryBuildIsDeterministic(t *testing.T) {
	f := rules.DefaultFactory()
	record := json.RawMessage(`{"type":"method","name":"W","severity":"low","methods":["PUT"]}`)

	first, err := f.Build(record)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := f.Build(record)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("Build() not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestFactoryBuildAll(t *testing.T) {
	f := rules.DefaultFactory()
	records := []json.RawMessage{
		json.RawMessage(`{"type":"url-regex","name":"One","severity":"high","pattern":"/a"}`),
		json.RawMessage(`{"type":"url-regex","name":"Broken","severity":"high"}`),
		json.RawMessage(`{"type":"future-type","name":"Two","severity":"low"}`),
	}

	defs, errs := f.BuildAll(records)
	if len(errs) != 1 {
		t.Fatalf("expected 1 build error, got %d: %v", len(errs), errs)
	}
	var names []string
	for _, d := range defs {
		names = append(names, d.RuleName())
	}
	if diff := cmp.Diff([]string{"One", "Two"}, names); diff != "" {
		t.Errorf("BuildAll() names mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultFactoryAndRegistryAgree(t *testing.T) {
	if diff := cmp.Diff(rules.DefaultFactory().Types(), rules.DefaultRegistry().Types()); diff != "" {
		t.Errorf("factory and registry types differ (-factory +registry):\n%s", diff)
	}
}
