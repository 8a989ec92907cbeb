// Package posture joins devices with their policy phase and open-event counts.
package posture

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/policy"
)

var ErrMissingTimestamp = errors.New("timestamp is empty")

// TimestampError reports a device timestamp that could not be parsed.
type TimestampError struct {
	DeviceID int64
	Field    string
	Value    string
	Err      error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("device %d: %s %q: %v", e.DeviceID, e.Field, e.Value, e.Err)
}

func (e *TimestampError) Unwrap() error { return e.Err }

// DevicePosture is a device annotated with everything readiness is decided on.
type DevicePosture struct {
	Device console.Device

	// Classified is false when the device has no policy or its policy was
	// not among the fetched policies. Phase is meaningless in that case.
	Classified bool
	Phase      policy.Phase

	EventCount          int
	LastContactDaysAgo  int
	DaysSinceDeployment int

	// Err is set when either timestamp failed to parse. The day counts are
	// then unset rather than zero.
	Err error
}

// DeviceScoped is anything counted against a device.
type DeviceScoped interface {
	DeviceRef() int64
}

// CountByDevice indexes items by device id.
func CountByDevice[T DeviceScoped](items []T) map[int64]int {
	counts := make(map[int64]int)
	for _, item := range items {
		counts[item.DeviceRef()]++
	}
	return counts
}

// MergeCounts adds every count in src to dst.
func MergeCounts(dst, src map[int64]int) map[int64]int {
	if dst == nil {
		dst = make(map[int64]int, len(src))
	}
	for id, n := range src {
		dst[id] += n
	}
	return dst
}

// CountByPolicy counts devices per assigned policy id.
func CountByPolicy(devices []console.Device) map[int64]int {
	counts := make(map[int64]int)
	for _, d := range devices {
		if d.PolicyID != 0 {
			counts[d.PolicyID]++
		}
	}
	return counts
}

// Aggregate annotates every device. now is read once by the caller so all
// day counts in a run share the same reference point.
func Aggregate(now time.Time, devices []console.Device, phases map[int64]policy.Phase, counts map[int64]int) []DevicePosture {
	out := make([]DevicePosture, 0, len(devices))
	for _, d := range devices {
		p := DevicePosture{Device: d, EventCount: counts[d.ID]}
		if d.PolicyID != 0 {
			p.Phase, p.Classified = phases[d.PolicyID]
		}

		contact, errContact := ParseTimestamp(d.LastContact)
		registered, errRegistered := ParseTimestamp(d.LastRegistration)
		switch {
		case errContact != nil:
			p.Err = &TimestampError{DeviceID: d.ID, Field: "last_contact", Value: d.LastContact, Err: errContact}
		case errRegistered != nil:
			p.Err = &TimestampError{DeviceID: d.ID, Field: "last_registration", Value: d.LastRegistration, Err: errRegistered}
		default:
			p.LastContactDaysAgo = DaysBetween(contact, now)
			p.DaysSinceDeployment = DaysBetween(registered, now)
		}
		out = append(out, p)
	}
	return out
}

// DaysBetween returns the number of whole days from then to now, floored, so
// a timestamp 36 hours old is one day ago and one 12 hours in the future is
// minus one.
func DaysBetween(then, now time.Time) int {
	return int(math.Floor(now.Sub(then).Hours() / 24))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts the ISO-8601 variants the console emits. Values
// without a zone are taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrMissingTimestamp
	}
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
