package readiness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/policy"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/posture"
)

func boolPtr(b bool) *bool { return &b }

func device(id int64, phase policy.Phase, contactDays, events int) posture.DevicePosture {
	return posture.DevicePosture{
		Device:             console.Device{ID: id},
		Classified:         true,
		Phase:              phase,
		LastContactDaysAgo: contactDays,
		EventCount:         events,
	}
}

func ids(devices []posture.DevicePosture) []int64 {
	var out []int64
	for _, d := range devices {
		out = append(out, d.Device.ID)
	}
	return out
}

func TestEvaluateScenario(t *testing.T) {
	devices := []posture.DevicePosture{
		device(1, policy.PhaseDetectionAdvanced, 1, 0),
		device(2, policy.PhaseDetectionAdvanced, 5, 0),
		device(3, policy.PhaseDetection, 0, 0),
	}
	cfg := Config{
		TargetPhase:             policy.PhaseDetectionAdvanced,
		MaxDaysSinceLastContact: 3,
		MaxOpenEventQuantity:    0,
		IncludeSuspiciousEvents: boolPtr(false),
	}

	got, err := Evaluate(devices, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(got.Ready))
	assert.Equal(t, []int64{2}, ids(got.NotReady))
	assert.Equal(t, 2, got.Total())
}

func TestEvaluatePartitionIsExhaustiveAndDisjoint(t *testing.T) {
	cfg := Config{TargetPhase: policy.PhaseDetection, MaxDaysSinceLastContact: 2, MaxOpenEventQuantity: 1, IncludeSuspiciousEvents: boolPtr(true)}
	var devices []posture.DevicePosture
	var inPhase int
	for i := 0; i < 60; i++ {
		phase := policy.Phases()[i%len(policy.Phases())]
		d := device(int64(i), phase, i%5, i%3)
		if i%7 == 0 {
			d.Classified = false
		}
		if d.Classified && phase == cfg.TargetPhase {
			inPhase++
		}
		devices = append(devices, d)
	}

	got, err := Evaluate(devices, cfg)
	require.NoError(t, err)
	assert.Equal(t, inPhase, got.Total())

	seen := map[int64]bool{}
	for _, d := range append(append([]posture.DevicePosture{}, got.Ready...), got.NotReady...) {
		assert.False(t, seen[d.Device.ID], "device %d in both sets", d.Device.ID)
		seen[d.Device.ID] = true
		assert.Equal(t, cfg.TargetPhase, d.Phase)
		assert.True(t, d.Classified)
	}
	for _, d := range got.Ready {
		assert.True(t, d.LastContactDaysAgo <= 2 && d.EventCount <= 1)
	}
	for _, d := range got.NotReady {
		assert.False(t, d.LastContactDaysAgo <= 2 && d.EventCount <= 1)
	}
}

func TestEvaluateThresholdsAreInclusive(t *testing.T) {
	cfg := Config{TargetPhase: policy.PhasePreventionEssentials, MaxDaysSinceLastContact: 3, MaxOpenEventQuantity: 2, IncludeSuspiciousEvents: boolPtr(false)}
	got, err := Evaluate([]posture.DevicePosture{
		device(1, policy.PhasePreventionEssentials, 3, 2),
		device(2, policy.PhasePreventionEssentials, 3, 3),
		device(3, policy.PhasePreventionEssentials, 4, 0),
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(got.Ready))
	assert.Equal(t, []int64{2, 3}, ids(got.NotReady))
}

func TestEvaluateFailsOnMalformedTimestampInScope(t *testing.T) {
	cfg := Config{TargetPhase: policy.PhaseDetection, MaxDaysSinceLastContact: 3, IncludeSuspiciousEvents: boolPtr(false)}
	bad := device(9, policy.PhaseDetection, 0, 0)
	bad.Err = &posture.TimestampError{DeviceID: 9, Field: "last_contact", Value: "?", Err: errors.New("bad")}

	_, err := Evaluate([]posture.DevicePosture{device(1, policy.PhaseDetection, 0, 0), bad}, cfg)
	require.ErrorIs(t, err, ErrMalformedTimestamps)
	var tsErr *posture.TimestampError
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, int64(9), tsErr.DeviceID)

	// Out-of-scope devices with bad timestamps do not affect the run.
	bad.Phase = policy.PhaseDetectionAdvanced
	got, err := Evaluate([]posture.DevicePosture{device(1, policy.PhaseDetection, 0, 0), bad}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(got.Ready))
}

func TestConfigValidate(t *testing.T) {
	valid := Config{TargetPhase: policy.PhaseDetection, MaxDaysSinceLastContact: 3, IncludeSuspiciousEvents: boolPtr(true)}
	require.NoError(t, valid.Validate())

	unset := valid
	unset.IncludeSuspiciousEvents = nil
	assert.ErrorIs(t, unset.Validate(), ErrSuspiciousUnset)

	for _, p := range []policy.Phase{policy.PhaseNone, policy.PhaseAdvancedProtection} {
		c := valid
		c.TargetPhase = p
		assert.ErrorIs(t, c.Validate(), ErrInvalidTargetPhase)
	}

	negative := valid
	negative.MaxOpenEventQuantity = -1
	assert.ErrorIs(t, negative.Validate(), ErrNegativeThreshold)

	_, err := Evaluate(nil, unset)
	assert.ErrorIs(t, err, ErrSuspiciousUnset)
}

func TestConfigRows(t *testing.T) {
	cfg := Config{TargetPhase: policy.PhasePreventionEssentials, MaxDaysSinceLastContact: 3, IncludeSuspiciousEvents: boolPtr(true)}
	rows := cfg.Rows()
	assert.Equal(t, [2]string{"deployment_phase", "1.5"}, rows[0])
	assert.Equal(t, [2]string{"include_suspicious_events", "true"}, rows[3])
}
