package domain

import "encoding/json"

// CompatibilityRequest describes a single check_compatibility call.
type CompatibilityRequest struct {
	pkg               string
	flutterSDK        string
	projectConstraint string
}

// NewCompatibilityRequest validates and constructs a CompatibilityRequest.
// projectConstraint may be empty (no project-level filter).
func NewCompatibilityRequest(pkg, flutterSDK, projectConstraint string) (CompatibilityRequest, error) {
	if pkg == "" {
		return CompatibilityRequest{}, Invalid("compatibility request: package must not be empty")
	}
	if flutterSDK == "" {
		return CompatibilityRequest{}, Invalid("compatibility request %q: flutterSdk must not be empty", pkg)
	}
	return CompatibilityRequest{pkg: pkg, flutterSDK: flutterSDK, projectConstraint: projectConstraint}, nil
}

func (r CompatibilityRequest) Package() string           { return r.pkg }
func (r CompatibilityRequest) FlutterSDK() string        { return r.flutterSDK }
func (r CompatibilityRequest) ProjectConstraint() string { return r.projectConstraint }

type compatibilityRequestJSON struct {
	Package           string `json:"package"`
	FlutterSDK        string `json:"flutterSdk"`
	ProjectConstraint string `json:"projectConstraint,omitempty"`
}

func (r CompatibilityRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(compatibilityRequestJSON{
		Package:           r.pkg,
		FlutterSDK:        r.flutterSDK,
		ProjectConstraint: r.projectConstraint,
	})
}

func (r *CompatibilityRequest) UnmarshalJSON(data []byte) error {
	var raw compatibilityRequestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewCompatibilityRequest(raw.Package, raw.FlutterSDK, raw.ProjectConstraint)
	if err != nil {
		return err
	}
	*r = built
	return nil
}

// CompatibilityResult is the outcome of the compatibility solver.
type CompatibilityResult struct {
	request            CompatibilityRequest
	recommendedVersion *VersionDetail
	satisfies          bool
	explanation        string
	evaluatedVersions  []VersionDetail
}

// NewCompatibilityResult validates and constructs a CompatibilityResult.
// explanation must be non-empty; evaluatedVersions must hold 1..50 entries;
// satisfies=true requires a non-nil recommendedVersion.
func NewCompatibilityResult(request CompatibilityRequest, recommendedVersion *VersionDetail, satisfies bool, explanation string, evaluatedVersions []VersionDetail) (CompatibilityResult, error) {
	if explanation == "" {
		return CompatibilityResult{}, Invalid("compatibility result %q: explanation must not be empty", request.Package())
	}
	if len(evaluatedVersions) == 0 || len(evaluatedVersions) > 50 {
		return CompatibilityResult{}, Invalid("compatibility result %q: evaluatedVersions must hold 1..50 entries, got %d", request.Package(), len(evaluatedVersions))
	}
	if satisfies && recommendedVersion == nil {
		return CompatibilityResult{}, Invalid("compatibility result %q: satisfies=true requires a recommendedVersion", request.Package())
	}
	return CompatibilityResult{
		request:            request,
		recommendedVersion: recommendedVersion,
		satisfies:          satisfies,
		explanation:        explanation,
		evaluatedVersions:  append([]VersionDetail(nil), evaluatedVersions...),
	}, nil
}

func (c CompatibilityResult) Request() CompatibilityRequest      { return c.request }
func (c CompatibilityResult) RecommendedVersion() *VersionDetail { return c.recommendedVersion }
func (c CompatibilityResult) Satisfies() bool                    { return c.satisfies }
func (c CompatibilityResult) Explanation() string                { return c.explanation }
func (c CompatibilityResult) EvaluatedVersions() []VersionDetail {
	return append([]VersionDetail(nil), c.evaluatedVersions...)
}

type compatibilityResultJSON struct {
	Request            CompatibilityRequest `json:"request"`
	RecommendedVersion *VersionDetail        `json:"recommendedVersion,omitempty"`
	Satisfies          bool                  `json:"satisfies"`
	Explanation        string                `json:"explanation"`
	EvaluatedVersions  []VersionDetail       `json:"evaluatedVersions"`
}

func (c CompatibilityResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(compatibilityResultJSON{
		Request:            c.request,
		RecommendedVersion: c.recommendedVersion,
		Satisfies:          c.satisfies,
		Explanation:        c.explanation,
		EvaluatedVersions:  c.evaluatedVersions,
	})
}

func (c *CompatibilityResult) UnmarshalJSON(data []byte) error {
	var raw compatibilityResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewCompatibilityResult(raw.Request, raw.RecommendedVersion, raw.Satisfies, raw.Explanation, raw.EvaluatedVersions)
	if err != nil {
		return err
	}
	*c = built
	return nil
}
