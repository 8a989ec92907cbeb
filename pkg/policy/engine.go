// Package policy derives the deployment phase of console policies and audits
// them against the prescribed security settings.
package policy

import (
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
)

// Rule maps a predicate over a policy to a phase. Rules are evaluated in
// order and the first match wins.
type Rule struct {
	Name  string
	Phase Phase
	Match func(p console.Policy) bool
}

// Decision records which rule classified a policy.
type Decision struct {
	Phase Phase
	Rule  string
}

// Rules is the classification table. A disabled in-memory protection layer
// is checked before the eight advanced settings because it voids them.
var Rules = []Rule{
	{
		Name:  "not_windows",
		Phase: PhaseNone,
		Match: func(p console.Policy) bool { return p.OS != console.OSWindows },
	},
	{
		Name:  "prevention_disabled",
		Phase: PhaseDetection,
		Match: func(p console.Policy) bool { return p.Settings.PreventionLevel == console.LevelDisabled },
	},
	{
		Name:  "in_memory_protection_off",
		Phase: PhasePreventionEssentials,
		Match: func(p console.Policy) bool {
			return preventionLowOrMedium(p) && !p.Settings.InMemoryProtection
		},
	},
	{
		Name:  "advanced_all_detect",
		Phase: PhaseDetectionAdvanced,
		Match: func(p console.Policy) bool {
			return preventionLowOrMedium(p) && p.Settings.InMemoryProtection && allAdvanced(p, console.ActionDetect)
		},
	},
	{
		Name:  "advanced_all_prevent",
		Phase: PhaseAdvancedProtection,
		Match: func(p console.Policy) bool {
			return preventionLowOrMedium(p) && p.Settings.InMemoryProtection && allAdvanced(p, console.ActionPrevent)
		},
	},
}

const fallbackRule = "partial_conformance"

// Classify returns the deployment phase of p. It is total and deterministic.
func Classify(p console.Policy) Phase {
	return Explain(p).Phase
}

// Explain is Classify with the name of the rule that matched.
func Explain(p console.Policy) Decision {
	for _, rule := range Rules {
		if rule.Match(p) {
			return Decision{Phase: rule.Phase, Rule: rule.Name}
		}
	}
	return Decision{Phase: PhaseNone, Rule: fallbackRule}
}

// ClassifyAll returns the phase of every policy keyed by policy id.
func ClassifyAll(policies []console.Policy) map[int64]Phase {
	out := make(map[int64]Phase, len(policies))
	for _, p := range policies {
		out[p.ID] = Classify(p)
	}
	return out
}

// Windows returns the Windows policies, keeping order.
func Windows(policies []console.Policy) []console.Policy {
	var out []console.Policy
	for _, p := range policies {
		if p.OS == console.OSWindows {
			out = append(out, p)
		}
	}
	return out
}

func preventionLowOrMedium(p console.Policy) bool {
	switch p.Settings.PreventionLevel {
	case console.LevelLow, console.LevelMedium:
		return true
	}
	return false
}

func allAdvanced(p console.Policy, action string) bool {
	for _, v := range p.Settings.AdvancedActions() {
		if v != action {
			return false
		}
	}
	return true
}
