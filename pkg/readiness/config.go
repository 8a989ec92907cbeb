// Package readiness decides which devices of a deployment phase may move on
// to the next one.
package readiness

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/policy"
)

var (
	ErrSuspiciousUnset     = errors.New("include_suspicious_events must be set explicitly")
	ErrInvalidTargetPhase  = errors.New("target phase must be 1, 1.5 or 2")
	ErrNegativeThreshold   = errors.New("thresholds must not be negative")
	ErrMalformedTimestamps = errors.New("devices with malformed timestamps")
)

// Config holds the operator thresholds for one evaluation run.
type Config struct {
	TargetPhase             policy.Phase `yaml:"target_phase"`
	MaxDaysSinceLastContact int          `yaml:"max_days_since_last_contact"`
	MaxOpenEventQuantity    int          `yaml:"max_open_event_quantity"`

	// IncludeSuspiciousEvents has no default; nil fails validation.
	IncludeSuspiciousEvents *bool `yaml:"include_suspicious_events"`
}

// DefaultConfig returns the documented thresholds. TargetPhase and
// IncludeSuspiciousEvents are left for the operator.
func DefaultConfig() Config {
	return Config{
		MaxDaysSinceLastContact: 3,
		MaxOpenEventQuantity:    0,
	}
}

func (c Config) Validate() error {
	switch c.TargetPhase {
	case policy.PhaseDetection, policy.PhasePreventionEssentials, policy.PhaseDetectionAdvanced:
	default:
		return fmt.Errorf("%w: got %s", ErrInvalidTargetPhase, c.TargetPhase)
	}
	if c.MaxDaysSinceLastContact < 0 || c.MaxOpenEventQuantity < 0 {
		return ErrNegativeThreshold
	}
	if c.IncludeSuspiciousEvents == nil {
		return ErrSuspiciousUnset
	}
	return nil
}

// IncludeSuspicious reports the toggle, treating unset as false. Callers
// are expected to have validated the config.
func (c Config) IncludeSuspicious() bool {
	return c.IncludeSuspiciousEvents != nil && *c.IncludeSuspiciousEvents
}

// Rows renders the config as name/value pairs for export.
func (c Config) Rows() [][2]string {
	suspicious := "unset"
	if c.IncludeSuspiciousEvents != nil {
		suspicious = strconv.FormatBool(*c.IncludeSuspiciousEvents)
	}
	return [][2]string{
		{"deployment_phase", c.TargetPhase.String()},
		{"max_days_since_last_contact", strconv.Itoa(c.MaxDaysSinceLastContact)},
		{"max_open_event_quantity", strconv.Itoa(c.MaxOpenEventQuantity)},
		{"include_suspicious_events", suspicious},
	}
}
