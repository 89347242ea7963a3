// Package alertengine implements the alert engine (C8): the five alert
// rules from §4.7, each independently evaluated against a freshly
// persisted ScanRecord and its immediately-prior ONLINE record.
package alertengine

import (
	"fmt"
	"strings"

	"github.com/duskwatch/duskwatch/internal/correlate"
	"github.com/duskwatch/duskwatch/internal/model"
)

// threatIncreaseThreshold is the minimum score jump that fires rule 2.
const threatIncreaseThreshold = 20

// Evaluate applies every alert rule to curr (with optional prev) and the
// reuse signals raised by the Correlator for this scan, returning zero or
// more Alerts ready to persist. At most one alert per AlertType is
// produced except AlertIOCReuse, which produces one per reuse signal.
func Evaluate(curr *model.ScanRecord, prev *model.ScanRecord, reuseSignals []correlate.ReuseSignal) []*model.Alert {
	var alerts []*model.Alert

	if curr.ThreatIndicators.MalwareDetected {
		alerts = append(alerts, malwareAlert(curr))
	}

	threatIncreaseFired := false
	if prev != nil {
		increase := curr.ThreatScore - prev.ThreatScore
		if increase >= threatIncreaseThreshold {
			alerts = append(alerts, threatIncreaseAlert(curr, prev, increase))
			threatIncreaseFired = true
		}
	}

	if prev != nil && prev.URLStatus != curr.URLStatus {
		alerts = append(alerts, statusChangeAlert(curr, prev))
	}

	if curr.ContentChanged && !threatIncreaseFired {
		alerts = append(alerts, contentChangeAlert(curr))
	}

	for _, signal := range reuseSignals {
		alerts = append(alerts, iocReuseAlert(curr, signal))
	}

	return alerts
}

func malwareAlert(curr *model.ScanRecord) *model.Alert {
	var names []string
	for _, fa := range curr.FileAnalyses {
		for _, threat := range fa.Malware.Threats {
			names = append(names, threat.Name)
		}
	}
	reason := "malware detected in downloaded file"
	if len(names) > 0 {
		reason = fmt.Sprintf("malware detected: %s", strings.Join(names, ", "))
	}
	return &model.Alert{
		Target:      curr.Target,
		AlertType:   model.AlertMalware,
		Severity:    model.RiskHigh,
		Reason:      reason,
		ThreatScore: curr.ThreatScore,
		Timestamp:   curr.Timestamp,
		Status:      model.AlertStatusNew,
		Details:     map[string]interface{}{"threat_names": names},
	}
}

func threatIncreaseAlert(curr, prev *model.ScanRecord, increase int) *model.Alert {
	return &model.Alert{
		Target:        curr.Target,
		AlertType:     model.AlertThreatIncrease,
		Severity:      curr.RiskLevel,
		Reason:        fmt.Sprintf("threat score increased by %d since previous scan", increase),
		ThreatScore:   curr.ThreatScore,
		PreviousScore: prev.ThreatScore,
		ScoreIncrease: increase,
		Timestamp:     curr.Timestamp,
		Status:        model.AlertStatusNew,
	}
}

func statusChangeAlert(curr, prev *model.ScanRecord) *model.Alert {
	return &model.Alert{
		Target:      curr.Target,
		AlertType:   model.AlertStatusChange,
		Severity:    model.RiskMedium,
		Reason:      fmt.Sprintf("status changed from %s to %s", prev.URLStatus, curr.URLStatus),
		ThreatScore: curr.ThreatScore,
		Timestamp:   curr.Timestamp,
		Status:      model.AlertStatusNew,
		Details: map[string]interface{}{
			"previous_status": prev.URLStatus,
			"current_status":  curr.URLStatus,
		},
	}
}

func contentChangeAlert(curr *model.ScanRecord) *model.Alert {
	return &model.Alert{
		Target:      curr.Target,
		AlertType:   model.AlertContentChange,
		Severity:    model.RiskLow,
		Reason:      "page content changed since previous scan",
		ThreatScore: curr.ThreatScore,
		Timestamp:   curr.Timestamp,
		Status:      model.AlertStatusNew,
	}
}

func iocReuseAlert(curr *model.ScanRecord, signal correlate.ReuseSignal) *model.Alert {
	return &model.Alert{
		Target:      curr.Target,
		AlertType:   model.AlertIOCReuse,
		Severity:    signal.Severity,
		Reason:      fmt.Sprintf("%s %q reused across %d distinct targets", signal.IOCType, signal.IOCValue, signal.ReuseCount),
		ThreatScore: curr.ThreatScore,
		Timestamp:   curr.Timestamp,
		Status:      model.AlertStatusNew,
		Details: map[string]interface{}{
			"ioc_type":    signal.IOCType,
			"ioc_value":   signal.IOCValue,
			"reuse_count": signal.ReuseCount,
		},
	}
}
