package compat

import (
	"testing"
	"time"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
)

func mustVersionDetail(t *testing.T, version, sdkConstraint string, released time.Time, prerelease bool) domain.VersionDetail {
	t.Helper()
	v, err := domain.NewVersionDetail(version, released, sdkConstraint, prerelease, "")
	if err != nil {
		t.Fatalf("NewVersionDetail(%q): %v", version, err)
	}
	return v
}

func mustCompatibilityRequest(t *testing.T, pkg, flutterSDK, projectConstraint string) domain.CompatibilityRequest {
	t.Helper()
	req, err := domain.NewCompatibilityRequest(pkg, flutterSDK, projectConstraint)
	if err != nil {
		t.Fatalf("NewCompatibilityRequest: %v", err)
	}
	return req
}

func TestSolve_RecommendsNewestSatisfyingVersion(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []domain.VersionDetail{
		mustVersionDetail(t, "2.0.0", ">=3.19.0", base.AddDate(0, 2, 0), false),
		mustVersionDetail(t, "1.5.0", ">=3.10.0 <3.19.0", base.AddDate(0, 1, 0), false),
		mustVersionDetail(t, "1.0.0", ">=3.0.0", base, false),
	}
	req := mustCompatibilityRequest(t, "some_pkg", "3.13.0", "")

	result, err := NewSolver().Solve(req, history)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !result.Satisfies() {
		t.Fatal("expected satisfies=true")
	}
	if result.RecommendedVersion() == nil || result.RecommendedVersion().Version() != "1.5.0" {
		t.Fatalf("expected recommended 1.5.0, got %+v", result.RecommendedVersion())
	}
}

func TestSolve_FallsBackToPrereleaseWhenNoStableMatches(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []domain.VersionDetail{
		mustVersionDetail(t, "2.0.0-beta.1", ">=3.19.0", base.AddDate(0, 1, 0), true),
		mustVersionDetail(t, "1.0.0", ">=4.0.0", base, false),
	}
	req := mustCompatibilityRequest(t, "some_pkg", "3.19.0", "")

	result, err := NewSolver().Solve(req, history)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !result.Satisfies() {
		t.Fatal("expected satisfies=true via prerelease fallback")
	}
	if result.RecommendedVersion().Version() != "2.0.0-beta.1" {
		t.Fatalf("expected prerelease fallback, got %+v", result.RecommendedVersion())
	}
}

func TestSolve_NoMatchReturnsSatisfiesFalse(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []domain.VersionDetail{
		mustVersionDetail(t, "1.0.0", ">=4.0.0", base, false),
	}
	req := mustCompatibilityRequest(t, "some_pkg", "3.0.0", "")

	result, err := NewSolver().Solve(req, history)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if result.Satisfies() {
		t.Fatal("expected satisfies=false")
	}
	if result.RecommendedVersion() != nil {
		t.Fatal("expected no recommended version")
	}
}

func TestSolve_ProjectConstraintHardFilterExcludesMatch(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []domain.VersionDetail{
		mustVersionDetail(t, "2.0.0", ">=3.0.0", base.AddDate(0, 1, 0), false),
		mustVersionDetail(t, "1.0.0", ">=3.0.0", base, false),
	}
	req := mustCompatibilityRequest(t, "some_pkg", "3.13.0", "<2.0.0")

	solver := NewSolver()
	solver.ProjectConstraintMode = ProjectConstraintModeHardFilter
	result, err := solver.Solve(req, history)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !result.Satisfies() || result.RecommendedVersion().Version() != "1.0.0" {
		t.Fatalf("expected hard filter to pick 1.0.0, got %+v", result.RecommendedVersion())
	}
}

func TestSolve_ProjectConstraintIgnoredModeAllowsNewerVersion(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []domain.VersionDetail{
		mustVersionDetail(t, "2.0.0", ">=3.0.0", base.AddDate(0, 1, 0), false),
		mustVersionDetail(t, "1.0.0", ">=3.0.0", base, false),
	}
	req := mustCompatibilityRequest(t, "some_pkg", "3.13.0", "<2.0.0")

	solver := NewSolver()
	solver.ProjectConstraintMode = ProjectConstraintModeIgnored
	result, err := solver.Solve(req, history)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !result.Satisfies() || result.RecommendedVersion().Version() != "2.0.0" {
		t.Fatalf("expected ignored-mode to pick newest 2.0.0, got %+v", result.RecommendedVersion())
	}
}

func TestSolve_WindowIsCappedAtEvaluationWindowSize(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var history []domain.VersionDetail
	for i := 0; i < 30; i++ {
		history = append(history, mustVersionDetail(t, "1.0.0", ">=4.0.0", base.AddDate(0, 0, -i), false))
	}
	req := mustCompatibilityRequest(t, "some_pkg", "3.0.0", "")

	result, err := NewSolver().Solve(req, history)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(result.EvaluatedVersions()) != EvaluationWindowSize {
		t.Fatalf("expected %d evaluated versions, got %d", EvaluationWindowSize, len(result.EvaluatedVersions()))
	}
}

func TestProbeVersion_ExactVersion(t *testing.T) {
	v, err := probeVersion("3.13.0")
	if err != nil {
		t.Fatalf("probeVersion: %v", err)
	}
	if v.String() != "3.13.0" {
		t.Fatalf("got %s", v.String())
	}
}

func TestProbeVersion_CaretRangeUsesLowerBound(t *testing.T) {
	v, err := probeVersion("^3.13.0")
	if err != nil {
		t.Fatalf("probeVersion: %v", err)
	}
	if v.String() != "3.13.0" {
		t.Fatalf("got %s", v.String())
	}
}

func TestProbeVersion_ConjunctionPicksHighestLowerBound(t *testing.T) {
	v, err := probeVersion(">=3.10.0 <4.0.0")
	if err != nil {
		t.Fatalf("probeVersion: %v", err)
	}
	if v.String() != "3.10.0" {
		t.Fatalf("got %s", v.String())
	}
}

func TestSdkSatisfies_AnyAlwaysMatches(t *testing.T) {
	v, _ := probeVersion("1.0.0")
	if !sdkSatisfies("any", v) {
		t.Fatal("expected any to satisfy")
	}
	if !sdkSatisfies("", v) {
		t.Fatal("expected empty constraint to satisfy")
	}
}
