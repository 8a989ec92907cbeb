package readiness

import (
	"errors"
	"fmt"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/posture"
)

// Partition splits the devices of the target phase. Devices of any other
// phase, and unclassified devices, appear in neither slice.
type Partition struct {
	Ready    []posture.DevicePosture
	NotReady []posture.DevicePosture
}

// Total is the number of devices in the target phase.
func (p Partition) Total() int { return len(p.Ready) + len(p.NotReady) }

// Ready reports whether d passes every threshold. The gate is conjunctive.
func Ready(d posture.DevicePosture, cfg Config) bool {
	return d.LastContactDaysAgo <= cfg.MaxDaysSinceLastContact &&
		d.EventCount <= cfg.MaxOpenEventQuantity
}

// InScope reports whether d takes part in an evaluation for cfg.
func InScope(d posture.DevicePosture, cfg Config) bool {
	return d.Classified && d.Phase == cfg.TargetPhase
}

// Evaluate partitions the in-scope devices. If any in-scope device has a
// timestamp error no partition is returned.
func Evaluate(devices []posture.DevicePosture, cfg Config) (Partition, error) {
	if err := cfg.Validate(); err != nil {
		return Partition{}, err
	}

	var (
		out  Partition
		errs []error
	)
	for _, d := range devices {
		if !InScope(d, cfg) {
			continue
		}
		if d.Err != nil {
			errs = append(errs, d.Err)
			continue
		}
		if Ready(d, cfg) {
			out.Ready = append(out.Ready, d)
		} else {
			out.NotReady = append(out.NotReady, d)
		}
	}
	if len(errs) > 0 {
		return Partition{}, fmt.Errorf("%w: %w", ErrMalformedTimestamps, errors.Join(errs...))
	}
	return out, nil
}
