package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"reqmon/internal/models"
)

// Alert evidence keys
const (
	AlertKeyPattern       = "pattern"
	AlertKeyMatchedURL    = "matched_url"
	AlertKeyHeader        = "header"
	AlertKeyMatchedValue  = "matched_value"
	AlertKeyMatchedMethod = "matched_method"
)

// Handler evaluates one rule variant against a request. A nil alert with a
// nil error means the rule did not match.
type Handler interface {
	Match(req models.RequestDescriptor, def Definition) (models.Alert, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req models.RequestDescriptor, def Definition) (models.Alert, error)

func (f HandlerFunc) Match(req models.RequestDescriptor, def Definition) (models.Alert, error) {
	return f(req, def)
}

// Registry maps a rule type to its handler. It is read-only once built.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns a registry holding a copy of handlers.
func NewRegistry(handlers map[string]Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for ruleType, h := range handlers {
		r.handlers[ruleType] = h
	}
	return r
}

// DefaultRegistry returns a registry with a handler for every type built by
// DefaultFactory.
func DefaultRegistry() *Registry {
	patterns := newPatternCache(maxCachedPatterns)
	return NewRegistry(map[string]Handler{
		TypeURLRegex:    &URLRegexHandler{patterns: patterns},
		TypeHeaderRegex: &HeaderRegexHandler{patterns: patterns},
		TypeMethod:      HandlerFunc(matchMethod),
	})
}

// Lookup returns the handler for ruleType.
func (r *Registry) Lookup(ruleType string) (Handler, bool) {
	h, ok := r.handlers[ruleType]
	return h, ok
}

// Types returns the registered rule types, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// URLRegexHandler searches the request URL for a URLRegex pattern.
type URLRegexHandler struct {
	patterns *patternCache
}

func (h *URLRegexHandler) Match(req models.RequestDescriptor, def Definition) (models.Alert, error) {
	rule, ok := def.(URLRegex)
	if !ok {
		return nil, fmt.Errorf("%w: url-regex handler expects URLRegex, got %T", ErrInvalidArgument, def)
	}

	re, err := h.patterns.compile(rule.Name, rule.Pattern)
	if err != nil {
		return nil, err
	}
	if !re.MatchString(req.URL) {
		return nil, nil
	}

	alert := models.NewAlert(rule.Name, rule.Type, rule.Severity)
	alert[AlertKeyPattern] = rule.Pattern
	alert[AlertKeyMatchedURL] = req.URL
	return alert, nil
}

// HeaderRegexHandler searches one header value for a HeaderRegex pattern.
// A request without the header never matches.
type HeaderRegexHandler struct {
	patterns *patternCache
}

func (h *HeaderRegexHandler) Match(req models.RequestDescriptor, def Definition) (models.Alert, error) {
	rule, ok := def.(HeaderRegex)
	if !ok {
		return nil, fmt.Errorf("%w: header-regex handler expects HeaderRegex, got %T", ErrInvalidArgument, def)
	}

	re, err := h.patterns.compile(rule.Name, rule.Pattern)
	if err != nil {
		return nil, err
	}
	value, present := req.Headers[rule.Header]
	if !present || !re.MatchString(value) {
		return nil, nil
	}

	alert := models.NewAlert(rule.Name, rule.Type, rule.Severity)
	alert[AlertKeyHeader] = rule.Header
	alert[AlertKeyPattern] = rule.Pattern
	alert[AlertKeyMatchedValue] = value
	alert[AlertKeyMatchedURL] = req.URL
	return alert, nil
}

func matchMethod(req models.RequestDescriptor, def Definition) (models.Alert, error) {
	rule, ok := def.(MethodMatch)
	if !ok {
		return nil, fmt.Errorf("%w: method handler expects MethodMatch, got %T", ErrInvalidArgument, def)
	}

	for _, m := range rule.Methods {
		if strings.EqualFold(req.Method, m) {
			alert := models.NewAlert(rule.Name, rule.Type, rule.Severity)
			alert[AlertKeyMatchedMethod] = req.Method
			alert[AlertKeyMatchedURL] = req.URL
			return alert, nil
		}
	}
	return nil, nil
}

// maxCachedPatterns bounds the compiled pattern cache. Profile reloads can
// replace every pattern, so old entries must not accumulate.
const maxCachedPatterns = 1024

// patternCache memoizes compiled case-insensitive patterns. Compiled
// regexps are safe for concurrent use; invalid patterns are not cached.
// When the cache is full it is emptied and refilled from the patterns in
// current use.
type patternCache struct {
	limit int

	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
}

func newPatternCache(limit int) *patternCache {
	return &patternCache{
		limit:    limit,
		compiled: make(map[string]*regexp.Regexp),
	}
}

func (c *patternCache) compile(ruleName, pattern string) (*regexp.Regexp, error) {
	if c != nil {
		c.mu.RLock()
		re, ok := c.compiled[pattern]
		c.mu.RUnlock()
		if ok {
			return re, nil
		}
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, &PatternError{Rule: ruleName, Pattern: pattern, Err: err}
	}
	if c != nil {
		c.mu.Lock()
		if len(c.compiled) >= c.limit {
			clear(c.compiled)
		}
		c.compiled[pattern] = re
		c.mu.Unlock()
	}
	return re, nil
}

// size returns the number of cached patterns.
func (c *patternCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.compiled)
}
