package models

// Alert keys present on every alert
const (
	AlertKeyName     = "name"
	AlertKeyType     = "type"
	AlertKeySeverity = "severity"
)

// Alert is the evidence produced by one matching rule. Besides name, type
// and severity it carries variant-specific fields such as pattern and
// matched_url.
type Alert map[string]string

// NewAlert returns an alert populated with the common rule metadata.
func NewAlert(name, ruleType, severity string) Alert {
	return Alert{
		AlertKeyName:     name,
		AlertKeyType:     ruleType,
		AlertKeySeverity: severity,
	}
}

// Name returns the name of the rule that fired.
func (a Alert) Name() string { return a[AlertKeyName] }

// Type returns the rule type that fired.
func (a Alert) Type() string { return a[AlertKeyType] }

// Severity returns the severity of the rule that fired.
func (a Alert) Severity() string { return a[AlertKeySeverity] }
