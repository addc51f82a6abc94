package alerting

import "monitor-engine/internal/model"

// Verdict is the outcome of evaluating one sample against its thresholds.
type Verdict struct {
	IsWarning  bool           `json:"is_warning"`
	IsCritical bool           `json:"is_critical"`
	Severity   model.Severity `json:"severity"`
}

// Breaching reports whether the verdict should reach the alert manager.
func (v Verdict) Breaching() bool {
	return v.Severity != model.SeverityNormal
}

// Evaluate applies the breach rule: critical when the value meets the
// critical threshold, high when it meets the warning threshold, otherwise
// normal. Pure function so ingestion and any replay path agree on the rule.
func Evaluate(sample *model.MetricSample) Verdict {
	v := Verdict{
		IsWarning:  sample.IsWarning(),
		IsCritical: sample.IsCritical(),
		Severity:   model.SeverityNormal,
	}

	switch {
	case v.IsCritical:
		v.Severity = model.SeverityCritical
	case v.IsWarning:
		v.Severity = model.SeverityHigh
	}

	return v
}
