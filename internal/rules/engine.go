package rules

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"reqmon/internal/logger"
	"reqmon/internal/metrics"
	"reqmon/internal/models"
)

// Engine evaluates an ordered rule set against one request. It holds no
// per-call state and may be shared by concurrent evaluations.
type Engine struct {
	registry *Registry
	log      zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger overrides the engine logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an engine dispatching through registry.
func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	e := &Engine{
		registry: registry,
		log:      logger.WithComponent("rules_engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs defs against req in order and returns the alerts of the
// matching rules in the same order. Rules without a handler and rules whose
// handler fails are logged and skipped. The result is never nil.
func (e *Engine) Execute(req models.RequestDescriptor, defs []Definition) []models.Alert {
	e.log.Debug().
		Int("rules", len(defs)).
		Str("url", req.URL).
		Msg("executing rules")

	alerts := make([]models.Alert, 0)
	for _, def := range defs {
		if def == nil {
			continue
		}

		handler, ok := e.registry.Lookup(def.RuleType())
		if !ok {
			e.log.Warn().
				Str("rule", def.RuleName()).
				Str("rule_type", def.RuleType()).
				Msg("no handler for rule type, rule skipped")
			metrics.RulesSkippedTotal.WithLabelValues("no_handler").Inc()
			continue
		}

		alert, err := invoke(handler, req, def)
		if err != nil {
			e.log.Error().
				Err(err).
				Str("rule", def.RuleName()).
				Str("rule_type", def.RuleType()).
				Msg("rule evaluation failed, rule skipped")
			metrics.RulesSkippedTotal.WithLabelValues("handler_error").Inc()
			metrics.RulesEvaluatedTotal.WithLabelValues(def.RuleType(), "error").Inc()
			continue
		}

		if alert == nil {
			metrics.RulesEvaluatedTotal.WithLabelValues(def.RuleType(), "no_match").Inc()
			continue
		}

		e.log.Info().
			Str("rule", def.RuleName()).
			Str("rule_type", def.RuleType()).
			Str("severity", def.RuleSeverity()).
			Str("url", req.URL).
			Msg("rule matched")
		metrics.RulesEvaluatedTotal.WithLabelValues(def.RuleType(), "match").Inc()
		metrics.AlertsGeneratedTotal.WithLabelValues(def.RuleType(), def.RuleSeverity()).Inc()
		alerts = append(alerts, alert)
	}

	e.log.Debug().
		Int("alerts", len(alerts)).
		Msg("rules execution completed")
	return alerts
}

// invoke calls the handler, turning a panic into an error so one faulty
// rule cannot abort the rest of the batch.
func invoke(h Handler, req models.RequestDescriptor, def Definition) (alert models.Alert, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("rule_handler").Inc()
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h.Match(req, def)
}
