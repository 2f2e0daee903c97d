// Package compat implements the compatibility solver: given a
// CompatibilityRequest and a package's version history, it recommends the
// newest version whose SDK constraint and (optionally) project constraint
// admit the requested Flutter SDK.
package compat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
)

// EvaluationWindowSize is the bounded slice of version history considered:
// the 20 newest releases.
const EvaluationWindowSize = 20

// ProjectConstraintMode controls whether projectConstraint is applied as a
// hard filter or ignored. HardFilter is the default; Ignored is kept for
// the documented "later version removed it" branch and is covered by tests.
type ProjectConstraintMode int

const (
	ProjectConstraintModeHardFilter ProjectConstraintMode = iota
	ProjectConstraintModeIgnored
)

// Solver evaluates compatibility requests against version histories.
type Solver struct {
	ProjectConstraintMode ProjectConstraintMode
}

// NewSolver builds a Solver with the default project-constraint mode
// (hard filter).
func NewSolver() *Solver {
	return &Solver{ProjectConstraintMode: ProjectConstraintModeHardFilter}
}

// Solve runs the seven-step compatibility algorithm.
func (s *Solver) Solve(req domain.CompatibilityRequest, history []domain.VersionDetail) (domain.CompatibilityResult, error) {
	probe, err := probeVersion(req.FlutterSDK())
	if err != nil {
		return domain.CompatibilityResult{}, domain.Invalid("check_compatibility: flutterSdk %q: %v", req.FlutterSDK(), err)
	}

	var projectConstraint *semver.Constraints
	if req.ProjectConstraint() != "" && s.ProjectConstraintMode == ProjectConstraintModeHardFilter {
		pc, err := parseConstraint(req.ProjectConstraint())
		if err != nil {
			return domain.CompatibilityResult{}, domain.Invalid("check_compatibility: projectConstraint %q: %v", req.ProjectConstraint(), err)
		}
		projectConstraint = pc
	}

	window := history
	if len(window) > EvaluationWindowSize {
		window = window[:EvaluationWindowSize]
	}
	if len(window) == 0 {
		return domain.CompatibilityResult{}, domain.Invalid("check_compatibility: %s has no version history to evaluate", req.Package())
	}

	candidates := filterCandidates(window, probe, projectConstraint, true)
	if len(candidates) > 0 {
		best := pickNewest(candidates)
		explanation := fmt.Sprintf("%s satisfies Flutter SDK %s: recommending version %s (sdk constraint %s)", req.Package(), req.FlutterSDK(), best.Version(), best.SDKConstraint())
		return domain.NewCompatibilityResult(req, &best, true, explanation, capEvaluated(window))
	}

	candidates = filterCandidates(window, probe, projectConstraint, false)
	if len(candidates) > 0 {
		best := pickNewest(candidates)
		explanation := fmt.Sprintf("%s has no stable release for Flutter SDK %s; falling back to prerelease %s (sdk constraint %s)", req.Package(), req.FlutterSDK(), best.Version(), best.SDKConstraint())
		return domain.NewCompatibilityResult(req, &best, true, explanation, capEvaluated(window))
	}

	explanation := fmt.Sprintf("evaluated %d version(s) of %s; none satisfy Flutter SDK %s", len(window), req.Package(), req.FlutterSDK())
	if projectConstraint != nil {
		explanation += fmt.Sprintf(" under project constraint %s", req.ProjectConstraint())
	}
	return domain.NewCompatibilityResult(req, nil, false, explanation, capEvaluated(window))
}

func capEvaluated(window []domain.VersionDetail) []domain.VersionDetail {
	if len(window) > 50 {
		return window[:50]
	}
	return window
}

func filterCandidates(window []domain.VersionDetail, probe *semver.Version, projectConstraint *semver.Constraints, excludePrerelease bool) []domain.VersionDetail {
	var out []domain.VersionDetail
	for _, v := range window {
		if excludePrerelease && v.IsPrerelease() {
			continue
		}
		if !sdkSatisfies(v.SDKConstraint(), probe) {
			continue
		}
		if projectConstraint != nil {
			parsed, err := semver.NewVersion(v.Version())
			if err != nil || !projectConstraint.Check(parsed) {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}

// pickNewest picks the newest candidate by release time, tiebroken by
// descending parsed semver.
func pickNewest(candidates []domain.VersionDetail) domain.VersionDetail {
	best := candidates[0]
	bestVer, _ := semver.NewVersion(best.Version())
	for _, c := range candidates[1:] {
		if c.Released().After(best.Released()) {
			best = c
			bestVer, _ = semver.NewVersion(c.Version())
			continue
		}
		if c.Released().Equal(best.Released()) {
			cVer, err := semver.NewVersion(c.Version())
			if err == nil && bestVer != nil && cVer.GreaterThan(bestVer) {
				best = c
				bestVer = cVer
			}
		}
	}
	return best
}

// sdkSatisfies checks probe against constraint using
// Masterminds/semver/v3's own constraint grammar (space = AND, "||" = OR);
// only the bare "any"/empty special case needs handling before delegating.
func sdkSatisfies(constraint string, probe *semver.Version) bool {
	c := strings.TrimSpace(constraint)
	if c == "" || strings.EqualFold(c, "any") {
		return true
	}
	if probe == nil {
		return false
	}
	parsed, err := parseConstraint(c)
	if err != nil {
		return false
	}
	return parsed.Check(probe)
}

func parseConstraint(c string) (*semver.Constraints, error) {
	return semver.NewConstraint(c)
}

// lowerBoundToken matches the leading operator (if any) and version of a
// single constraint token, used only to extract a representative probe
// version from a range — a heuristic, not a full range solver.
var lowerBoundToken = regexp.MustCompile(`^(\^|>=|>|<=|<|=)?\s*(\d+(?:\.\d+){0,2})`)

// probeVersion derives a representative version to test against SDK
// constraints: an exact semver is used directly; a constraint/range's
// lower bound is used as the probe otherwise.
func probeVersion(flutterSDK string) (*semver.Version, error) {
	if v, err := semver.NewVersion(flutterSDK); err == nil {
		return v, nil
	}

	var lowest *semver.Version
	for _, clause := range strings.Split(flutterSDK, "||") {
		var clauseLow *semver.Version
		for _, tok := range strings.Fields(clause) {
			m := lowerBoundToken.FindStringSubmatch(tok)
			if m == nil {
				continue
			}
			op, verStr := m[1], normalizeVersion(m[2])
			if op == "<" || op == "<=" {
				continue
			}
			v, err := semver.NewVersion(verStr)
			if err != nil {
				continue
			}
			if clauseLow == nil || v.GreaterThan(clauseLow) {
				clauseLow = v
			}
		}
		if clauseLow == nil {
			continue
		}
		if lowest == nil || clauseLow.LessThan(lowest) {
			lowest = clauseLow
		}
	}
	if lowest == nil {
		return nil, fmt.Errorf("could not determine a probe version from %q", flutterSDK)
	}
	return lowest, nil
}

// normalizeVersion pads a partial version ("3", "3.1") to X.Y.Z so
// semver.NewVersion accepts it.
func normalizeVersion(v string) string {
	parts := strings.Split(v, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return v
		}
	}
	return strings.Join(parts, ".")
}
