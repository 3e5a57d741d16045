package rules

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"
)

// Builder constructs one rule variant from a record whose common fields
// have already been validated into base.
type Builder func(base Base, rec gjson.Result) (Definition, error)

// Factory turns untyped rule records into typed Definitions. A Factory is
// immutable after construction and safe for concurrent use.
type Factory struct {
	builders map[string]Builder
}

// NewFactory returns a factory that knows the given rule types. Types
// without a builder fall back to Base.
func NewFactory(builders map[string]Builder) *Factory {
	f := &Factory{builders: make(map[string]Builder, len(builders))}
	for ruleType, b := range builders {
		f.builders[ruleType] = b
	}
	return f
}

// DefaultFactory returns a factory for every built-in rule type.
func DefaultFactory() *Factory {
	return NewFactory(map[string]Builder{
		TypeURLRegex:    buildURLRegex,
		TypeHeaderRegex: buildHeaderRegex,
		TypeMethod:      buildMethodMatch,
	})
}

// Types returns the rule types this factory constructs, sorted.
func (f *Factory) Types() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build constructs the Definition for one record. Fields not declared by
// the target variant are ignored; missing or mistyped declared fields yield
// a *BuildError.
func (f *Factory) Build(record json.RawMessage) (Definition, error) {
	if !gjson.ValidBytes(record) {
		return nil, &BuildError{Err: ErrMalformedRecord}
	}
	rec := gjson.ParseBytes(record)
	if !rec.IsObject() {
		return nil, &BuildError{Err: ErrMalformedRecord}
	}

	// Best effort identifiers for error messages.
	name, ruleType := field(rec, "name").String(), field(rec, "type").String()

	var base Base
	for _, field := range []struct {
		key string
		dst *string
	}{
		{"type", &base.Type},
		{"name", &base.Name},
		{"severity", &base.Severity},
	} {
		v, err := requireString(rec, field.key)
		if err != nil {
			return nil, &BuildError{Name: name, Type: ruleType, Field: field.key, Err: err}
		}
		*field.dst = v
	}

	build, ok := f.builders[base.Type]
	if !ok {
		return base, nil
	}
	return build(base, rec)
}

// BuildAll builds every record in order. Records that fail are left out of
// the returned definitions and reported in errs.
func (f *Factory) BuildAll(records []json.RawMessage) (defs []Definition, errs []error) {
	defs = make([]Definition, 0, len(records))
	for _, rec := range records {
		def, err := f.Build(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}

func buildURLRegex(base Base, rec gjson.Result) (Definition, error) {
	pattern, err := requireString(rec, "pattern")
	if err != nil {
		return nil, &BuildError{Name: base.Name, Type: base.Type, Field: "pattern", Err: err}
	}
	return URLRegex{Base: base, Pattern: pattern}, nil
}

func buildHeaderRegex(base Base, rec gjson.Result) (Definition, error) {
	header, err := requireString(rec, "header")
	if err != nil {
		return nil, &BuildError{Name: base.Name, Type: base.Type, Field: "header", Err: err}
	}
	pattern, err := requireString(rec, "pattern")
	if err != nil {
		return nil, &BuildError{Name: base.Name, Type: base.Type, Field: "pattern", Err: err}
	}
	return HeaderRegex{Base: base, Header: header, Pattern: pattern}, nil
}

func buildMethodMatch(base Base, rec gjson.Result) (Definition, error) {
	v := field(rec, "methods")
	if !v.Exists() {
		return nil, &BuildError{Name: base.Name, Type: base.Type, Field: "methods", Err: ErrMissingField}
	}
	if !v.IsArray() {
		return nil, &BuildError{Name: base.Name, Type: base.Type, Field: "methods", Err: ErrFieldType}
	}
	items := v.Array()
	methods := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type != gjson.String {
			return nil, &BuildError{Name: base.Name, Type: base.Type, Field: "methods", Err: ErrFieldType}
		}
		methods = append(methods, item.Str)
	}
	return MethodMatch{Base: base, Methods: methods}, nil
}

// requireString returns the string at key, which must be present and a
// JSON string. Empty strings are accepted.
func requireString(rec gjson.Result, key string) (string, error) {
	v := field(rec, key)
	if !v.Exists() {
		return "", ErrMissingField
	}
	if v.Type != gjson.String {
		return "", ErrFieldType
	}
	return v.Str, nil
}

// field returns the value of key in the object rec. A repeated key yields
// its last value, as encoding/json decodes it.
func field(rec gjson.Result, key string) gjson.Result {
	var last gjson.Result
	rec.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			last = v
		}
		return true
	})
	return last
}
