package health

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
)

// DefaultMaxDrift is the clock skew tolerated between this host and the console.
const DefaultMaxDrift = 120 * time.Second

type Pinger interface {
	HealthCheck(ctx context.Context) (time.Time, error)
}

type Status struct {
	ConsoleReachable bool      `json:"console_reachable"`
	Authorized       bool      `json:"authorized"`
	TimeDrift        int       `json:"time_drift_seconds"`
	CheckedAt        time.Time `json:"checked_at"`
	Healthy          bool      `json:"healthy"`
	Issues           []string  `json:"issues,omitempty"`
}

func (s *Status) fail(format string, args ...any) {
	s.Healthy = false
	s.Issues = append(s.Issues, fmt.Sprintf(format, args...))
}

func Check(ctx context.Context, p Pinger, maxDrift time.Duration) *Status {
	if maxDrift <= 0 {
		maxDrift = DefaultMaxDrift
	}
	status := &Status{
		Healthy:   true,
		Issues:    []string{},
		CheckedAt: time.Now(),
	}

	serverTime, err := p.HealthCheck(ctx)
	var se *console.StatusError
	switch {
	case err == nil:
		status.ConsoleReachable = true
		status.Authorized = true
	case errors.Is(err, console.ErrUnauthorized):
		status.ConsoleReachable = true
		status.fail("console rejected the api key")
		return status
	case errors.As(err, &se):
		status.ConsoleReachable = true
		status.fail("console unhealthy: %d", se.Status)
		return status
	default:
		status.fail("cannot reach console: %v", err)
		return status
	}

	// Consoles behind some proxies drop the Date header.
	if serverTime.IsZero() {
		return status
	}
	drift := math.Abs(status.CheckedAt.Sub(serverTime).Seconds())
	status.TimeDrift = int(math.Round(drift))
	if time.Duration(status.TimeDrift)*time.Second > maxDrift {
		status.fail("time drift %ds exceeds max %ds", status.TimeDrift, int(maxDrift.Seconds()))
	}
	return status
}
