// Package exclusions imports process and folder allow-list entries into
// Windows policies.
package exclusions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/policy"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/sheet"
)

// AllPolicies in the Policies column applies a row to every Windows policy.
const AllPolicies = "All"

var (
	ErrMissingColumns = errors.New("exclusion sheet is missing columns")
	ErrEmptyItem      = errors.New("exclusion is empty")
	ErrUnknownKind    = errors.New("unknown exclusion kind")
)

// Rule is one imported row.
type Rule struct {
	Item     string
	Comment  string
	Policies string
}

// AppliesTo reports whether the rule targets p. Any policy whose name occurs
// in the Policies cell matches.
func (r Rule) AppliesTo(p console.Policy) bool {
	return r.Policies == AllPolicies || (p.Name != "" && strings.Contains(r.Policies, p.Name))
}

// ItemColumn is the column holding the excluded path for kind.
func ItemColumn(kind console.ExclusionKind) (string, error) {
	switch kind {
	case console.ExclusionProcess:
		return "Process", nil
	case console.ExclusionFolder:
		return "Folder", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// FromRows validates every row before returning any rules.
func FromRows(rows []sheet.Row, kind console.ExclusionKind) ([]Rule, error) {
	col, err := ItemColumn(kind)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if missing := sheet.Missing(rows, col, "Comment", "Policies"); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	out := make([]Rule, 0, len(rows))
	var errs []error
	for i, row := range rows {
		r := Rule{
			Item:     strings.TrimSpace(row[col]),
			Comment:  row["Comment"],
			Policies: strings.TrimSpace(row["Policies"]),
		}
		if r.Item == "" {
			errs = append(errs, &RowError{Line: i + 2, Err: ErrEmptyItem})
			continue
		}
		out = append(out, r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Assignment is the set of exclusions bound for one policy allow list.
type Assignment struct {
	Policy console.Policy
	Kind   console.ExclusionKind
	Items  []console.Exclusion
}

// Plan groups rules per Windows policy, keeping policy order. Policies no
// rule applies to are left out.
func Plan(policies []console.Policy, kind console.ExclusionKind, rules []Rule) []Assignment {
	var out []Assignment
	for _, p := range policy.Windows(policies) {
		var items []console.Exclusion
		for _, r := range rules {
			if r.AppliesTo(p) {
				items = append(items, console.Exclusion{Item: r.Item, Comment: r.Comment})
			}
		}
		if len(items) > 0 {
			out = append(out, Assignment{Policy: p, Kind: kind, Items: items})
		}
	}
	return out
}

type Adder interface {
	AddExclusions(ctx context.Context, policyID int64, kind console.ExclusionKind, items []console.Exclusion) error
}

// Apply sends one call per assignment and stops at the first failure. It
// returns the number of exclusions added.
func Apply(ctx context.Context, a Adder, plan []Assignment, logger *zerolog.Logger) (int, error) {
	l := log.Logger.With().Str("component", "exclusions").Logger()
	if logger != nil {
		l = *logger
	}
	added := 0
	for _, as := range plan {
		if err := a.AddExclusions(ctx, as.Policy.ID, as.Kind, as.Items); err != nil {
			return added, fmt.Errorf("add %s exclusions to policy %d %s: %w", as.Kind, as.Policy.ID, as.Policy.Name, err)
		}
		added += len(as.Items)
		l.Info().
			Int64("policy_id", as.Policy.ID).
			Str("policy", as.Policy.Name).
			Str("kind", string(as.Kind)).
			Int("count", len(as.Items)).
			Msg("Added exclusions")
	}
	return added, nil
}
