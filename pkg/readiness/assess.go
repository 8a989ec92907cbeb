package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/policy"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/posture"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/search"
)

// Assessment is the outcome of one readiness run and everything needed to
// export it.
type Assessment struct {
	Config           Config
	GeneratedAt      time.Time
	Policies         []console.Policy
	Phases           map[int64]policy.Phase
	EventFilter      console.Filter
	SuspiciousFilter *console.Filter
	Events           int
	SuspiciousEvents int
	Devices          int

	Partition
}

// Summary is the one-line result printed to the operator.
func (a *Assessment) Summary() string {
	return fmt.Sprintf("%d of %d devices are ready to progress beyond phase %s and %d devices are not",
		len(a.Ready), a.Total(), a.Config.TargetPhase, len(a.NotReady))
}

// Assess runs the whole pipeline against the console: classify policies,
// count matching open events per device, annotate devices and partition them.
// now is captured once by the caller and used for every day count.
func Assess(ctx context.Context, fetcher console.Fetcher, cfg Config, now time.Time) (*Assessment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx).With().Str("component", "readiness").Logger()

	a := &Assessment{Config: cfg, GeneratedAt: now}

	logger.Info().Msg("Fetching policies")
	policies, err := fetcher.ListPolicies(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	a.Policies = policies
	a.Phases = policy.ClassifyAll(policies)
	for _, p := range policy.Windows(policies) {
		logger.Info().Str("phase", a.Phases[p.ID].String()).Int64("policy_id", p.ID).Str("policy", p.Name).Msg("Classified policy")
	}

	a.EventFilter = search.EventFilter(cfg.TargetPhase)
	logger.Info().Interface("criteria", a.EventFilter).Msg("Querying events")
	events, err := fetcher.ListEvents(ctx, &a.EventFilter, 0)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	a.Events = len(events)
	counts := posture.CountByDevice(events)

	if cfg.IncludeSuspicious() {
		a.SuspiciousFilter = search.SuspiciousFilter(cfg.TargetPhase)
	}
	if a.SuspiciousFilter != nil {
		logger.Info().Interface("criteria", a.SuspiciousFilter).Msg("Querying suspicious events")
		suspicious, err := fetcher.ListSuspiciousEvents(ctx, a.SuspiciousFilter)
		if err != nil {
			return nil, fmt.Errorf("list suspicious events: %w", err)
		}
		a.SuspiciousEvents = len(suspicious)
		counts = posture.MergeCounts(counts, posture.CountByDevice(suspicious))
	}
	logger.Info().Int("events", a.Events).Int("suspicious_events", a.SuspiciousEvents).Msg("Counted open events")

	devices, err := fetcher.ListDevices(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	a.Devices = len(devices)

	postures := posture.Aggregate(now, devices, a.Phases, counts)
	a.Partition, err = Evaluate(postures, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("devices", a.Devices).Int("in_phase", a.Total()).Int("ready", len(a.Ready)).Msg("Analysis complete")
	return a, nil
}
