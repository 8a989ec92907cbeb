// Package search derives console event-search filters from a deployment phase.
package search

import (
	"strings"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/policy"
)

// Event actions as reported by the search endpoints.
const (
	ActionDetected  = "DETECTED"
	ActionPrevented = "PREVENTED"
)

var (
	severities = []string{"MODERATE", "HIGH", "VERY_HIGH"}

	// SUSPICIOUS_SCRIPT_EXCECUTION is the console's own spelling.
	baselineTypes = []string{
		"STATIC_ANALYSIS",
		"RANSOMWARE_FILE_ENCRYPTION",
		"SUSPICIOUS_SCRIPT_EXCECUTION",
		"MALICIOUS_POWERSHELL_COMMAND_EXECUTION",
	}

	advancedTypes = []string{
		"REMOTE_CODE_INJECTION_EXECUTION",
		"KNOWN_SHELLCODE_PAYLOADS",
		"ARBITRARY_SHELLCODE",
		"REFLECTIVE_DLL",
		"REFLECTIVE_DOTNET",
		"AMSI_BYPASS",
		"DIRECT_SYSTEMCALLS",
		"CREDENTIAL_DUMP",
	}

	scriptFileTypes = []string{"ACTIVE_SCRIPT", "HTML_APPLICATION"}
)

// EventFilter returns the open-event criteria for devices in phase. Phases
// with no telemetry expectations only carry the status and severity terms.
func EventFilter(phase policy.Phase) console.Filter {
	f := console.Filter{
		Status:         []string{console.StatusOpen},
		ThreatSeverity: clone(severities),
	}
	switch phase {
	case policy.PhaseDetection:
		f.Type = clone(baselineTypes)
		f.Action = []string{ActionDetected}
	case policy.PhasePreventionEssentials:
		f.Type = clone(baselineTypes)
		f.Action = []string{ActionPrevented}
	case policy.PhaseDetectionAdvanced:
		f.Type = clone(advancedTypes)
		f.Action = []string{ActionPrevented, ActionDetected}
	}
	return f
}

// SuspiciousFilter returns the suspicious-event criteria for phase, or nil
// when the phase enables no script heuristics.
func SuspiciousFilter(phase policy.Phase) *console.Filter {
	if phase != policy.PhaseDetectionAdvanced {
		return nil
	}
	return &console.Filter{
		Status:   []string{console.StatusOpen},
		Action:   []string{ActionDetected},
		FileType: clone(scriptFileTypes),
	}
}

// Criteria flattens a filter into name/value rows for export.
func Criteria(f console.Filter) [][2]string {
	rows := [][2]string{
		{"type", join(f.Type)},
		{"status", join(f.Status)},
		{"threat_severity", join(f.ThreatSeverity)},
	}
	if len(f.Action) > 0 {
		rows = append(rows, [2]string{"action", join(f.Action)})
	}
	if len(f.FileType) > 0 {
		rows = append(rows, [2]string{"file_type", join(f.FileType)})
	}
	return rows
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}

func join(values []string) string {
	return strings.Join(values, ", ")
}
