package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase is the ordinal deployment maturity of a Windows policy. The zero value
// means non-conforming or not applicable.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseDetection
	PhasePreventionEssentials
	PhaseDetectionAdvanced
	PhaseAdvancedProtection
)

var phaseText = map[Phase]string{
	PhaseNone:                 "0",
	PhaseDetection:            "1",
	PhasePreventionEssentials: "1.5",
	PhaseDetectionAdvanced:    "2",
	PhaseAdvancedProtection:   "3",
}

// Phases lists every phase in ascending order.
func Phases() []Phase {
	return []Phase{PhaseNone, PhaseDetection, PhasePreventionEssentials, PhaseDetectionAdvanced, PhaseAdvancedProtection}
}

func (p Phase) String() string {
	if s, ok := phaseText[p]; ok {
		return s
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Float returns the numeric phase label, e.g. 1.5.
func (p Phase) Float() float64 {
	f, _ := strconv.ParseFloat(p.String(), 64)
	return f
}

func (p Phase) Valid() bool {
	_, ok := phaseText[p]
	return ok
}

// ParsePhase accepts the numeric labels 0, 1, 1.5, 2 and 3 in any float
// spelling ("2", "2.0", "1.50").
func ParsePhase(s string) (Phase, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return PhaseNone, fmt.Errorf("invalid phase %q", s)
	}
	for _, p := range Phases() {
		if p.Float() == f {
			return p, nil
		}
	}
	return PhaseNone, fmt.Errorf("invalid phase %q", s)
}

func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Set and Type let a Phase be used directly as a command line flag value.
func (p *Phase) Set(s string) error { return p.UnmarshalText([]byte(s)) }

func (p *Phase) Type() string { return "phase" }

// Ladder describes what each phase enables, in the order operators move
// through them.
const Ladder = `Phase 1 ("Detection")
4 features, all in detect mode:
-- Static Analysis (threat severity on PE files set to >= Moderate)
-- Ransomware Behavior
-- Suspicious Script Execution
-- Malicious PowerShell Command Execution

Phase 1.5 ("Prevention Essentials")
All of the above moves to prevent mode.
This phase is optional; most environments move directly from phase 1 to phase 2.

Phase 2 ("Prevention Essentials + Detection Advanced")
All of the above moves to prevent mode.
Add in prevent mode (it has no detect mode):
-- In-Memory Protection --> Known Payload Execution
Add in detect mode:
-- In-Memory Protection --> Arbitrary Shellcode
-- In-Memory Protection --> Remote Code Injection
-- In-Memory Protection --> Reflective DLL Injection
-- In-Memory Protection --> .Net Reflection
-- In-Memory Protection --> AMSI Bypass
-- In-Memory Protection --> Credential Dumping
-- HTML Applications
-- ActiveScript Execution (JavaScript & VBScript)

Phase 3 ("Advanced Protection")
All of the above moves to prevent mode, matching the prescribed security settings.
`
