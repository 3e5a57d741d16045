// Package rules holds the typed rule model, the factory that builds it from
// untyped profile records, the handlers that match each rule type against a
// request and the engine that runs an ordered rule set.
package rules

// Rule types understood by the default factory and registry.
const (
	TypeURLRegex    = "url-regex"
	TypeHeaderRegex = "header-regex"
	TypeMethod      = "method"
)

// Definition is a typed rule. Every variant carries the common metadata;
// handlers type-assert to the variant they evaluate.
type Definition interface {
	RuleName() string
	RuleType() string
	RuleSeverity() string
}

// Base is the payload-less variant. Records with an unrecognized type
// decode to Base and can never match.
type Base struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
}

func (b Base) RuleName() string     { return b.Name }
func (b Base) RuleType() string     { return b.Type }
func (b Base) RuleSeverity() string { return b.Severity }

// URLRegex matches a case-insensitive regular expression against the
// request URL.
type URLRegex struct {
	Base
	Pattern string `json:"pattern"`
}

// HeaderRegex matches a case-insensitive regular expression against the
// value of one request header. Header is looked up with its exact key.
type HeaderRegex struct {
	Base
	Header  string `json:"header"`
	Pattern string `json:"pattern"`
}

// MethodMatch fires when the request method is one of Methods, compared
// case-insensitively.
type MethodMatch struct {
	Base
	Methods []string `json:"methods"`
}
