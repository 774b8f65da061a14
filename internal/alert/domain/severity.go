package domain

import thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"

// DecideSeverity checks critical before warning. A zero level is disabled.
// A nil threshold never alerts.
func DecideSeverity(value float64, t *thresholddomain.Threshold) Severity {
	if t == nil {
		return SeverityNone
	}
	if t.Critical > 0 && value >= t.Critical {
		return SeverityCritical
	}
	if t.Warning > 0 && value >= t.Warning {
		return SeverityWarning
	}
	return SeverityNone
}
