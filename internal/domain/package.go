package domain

import (
	"encoding/json"
	"net/url"
	"time"
)

// VersionDetail describes a single published version of a package.
// It is immutable once constructed: NewVersionDetail is the only way to
// obtain one, and it rejects malformed input rather than storing it.
type VersionDetail struct {
	version         string
	released        time.Time
	sdkConstraint   string
	isPrerelease    bool
	releaseNotesURL string
}

// NewVersionDetail validates and constructs a VersionDetail.
// version must be non-empty; released must be non-zero; sdkConstraint may be
// empty (treated as "any"); releaseNotesURL, if present, must be an absolute URL.
func NewVersionDetail(version string, released time.Time, sdkConstraint string, isPrerelease bool, releaseNotesURL string) (VersionDetail, error) {
	if version == "" {
		return VersionDetail{}, Invalid("version detail: version must not be empty")
	}
	if released.IsZero() {
		return VersionDetail{}, Invalid("version detail %q: released must be a non-zero instant", version)
	}
	if releaseNotesURL != "" {
		if !isAbsoluteURL(releaseNotesURL) {
			return VersionDetail{}, Invalid("version detail %q: releaseNotesUrl must be absolute", version)
		}
	}
	if sdkConstraint == "" {
		sdkConstraint = "any"
	}
	return VersionDetail{
		version:         version,
		released:        released.UTC(),
		sdkConstraint:   sdkConstraint,
		isPrerelease:    isPrerelease,
		releaseNotesURL: releaseNotesURL,
	}, nil
}

func (v VersionDetail) Version() string         { return v.version }
func (v VersionDetail) Released() time.Time     { return v.released }
func (v VersionDetail) SDKConstraint() string   { return v.sdkConstraint }
func (v VersionDetail) IsPrerelease() bool      { return v.isPrerelease }
func (v VersionDetail) ReleaseNotesURL() string { return v.releaseNotesURL }

type versionDetailJSON struct {
	Version         string    `json:"version"`
	Released        time.Time `json:"released"`
	SDKConstraint   string    `json:"sdkConstraint"`
	IsPrerelease    bool      `json:"isPrerelease"`
	ReleaseNotesURL string    `json:"releaseNotesUrl,omitempty"`
}

func (v VersionDetail) MarshalJSON() ([]byte, error) {
	return json.Marshal(versionDetailJSON{
		Version:         v.version,
		Released:        v.released,
		SDKConstraint:   v.sdkConstraint,
		IsPrerelease:    v.isPrerelease,
		ReleaseNotesURL: v.releaseNotesURL,
	})
}

func (v *VersionDetail) UnmarshalJSON(data []byte) error {
	var raw versionDetailJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewVersionDetail(raw.Version, raw.Released, raw.SDKConstraint, raw.IsPrerelease, raw.ReleaseNotesURL)
	if err != nil {
		return err
	}
	*v = built
	return nil
}

// PackageSummary is the compact package view returned by search results.
type PackageSummary struct {
	name         string
	description  string
	publisher    string
	likes        int
	pubPoints    int
	popularity   float64
	latestStable *VersionDetail
}

// NewPackageSummary validates and constructs a PackageSummary.
// latestStable may be nil.
func NewPackageSummary(name, description, publisher string, likes, pubPoints int, popularity float64, latestStable *VersionDetail) (PackageSummary, error) {
	if name == "" {
		return PackageSummary{}, Invalid("package summary: name must not be empty")
	}
	if likes < 0 {
		return PackageSummary{}, Invalid("package summary %q: likes must be >= 0, got %d", name, likes)
	}
	if pubPoints < 0 {
		return PackageSummary{}, Invalid("package summary %q: pubPoints must be >= 0, got %d", name, pubPoints)
	}
	if popularity < 0 || popularity > 1 {
		return PackageSummary{}, Invalid("package summary %q: popularity must be in [0,1], got %v", name, popularity)
	}
	return PackageSummary{
		name:         name,
		description:  description,
		publisher:    publisher,
		likes:        likes,
		pubPoints:    pubPoints,
		popularity:   popularity,
		latestStable: latestStable,
	}, nil
}

func (p PackageSummary) Name() string                    { return p.name }
func (p PackageSummary) Description() string             { return p.description }
func (p PackageSummary) Publisher() string                { return p.publisher }
func (p PackageSummary) Likes() int                       { return p.likes }
func (p PackageSummary) PubPoints() int                   { return p.pubPoints }
func (p PackageSummary) Popularity() float64              { return p.popularity }
func (p PackageSummary) LatestStable() *VersionDetail     { return p.latestStable }

type packageSummaryJSON struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Publisher    string         `json:"publisher"`
	Likes        int            `json:"likes"`
	PubPoints    int            `json:"pubPoints"`
	Popularity   float64        `json:"popularity"`
	LatestStable *VersionDetail `json:"latestStable,omitempty"`
}

func (p PackageSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(packageSummaryJSON{
		Name:         p.name,
		Description:  p.description,
		Publisher:    p.publisher,
		Likes:        p.likes,
		PubPoints:    p.pubPoints,
		Popularity:   p.popularity,
		LatestStable: p.latestStable,
	})
}

func (p *PackageSummary) UnmarshalJSON(data []byte) error {
	var raw packageSummaryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewPackageSummary(raw.Name, raw.Description, raw.Publisher, raw.Likes, raw.PubPoints, raw.Popularity, raw.LatestStable)
	if err != nil {
		return err
	}
	*p = built
	return nil
}

// PackageDetails is the full package view returned by package_details.
type PackageDetails struct {
	pkg           string
	description   string
	publisher     string
	homepage      string
	repository    string
	issueTracker  string
	latestStable  VersionDetail
	topics        []string
	purl          string
}

// NewPackageDetails validates and constructs a PackageDetails. homepage,
// repository, and issueTracker, when non-empty, must be absolute URLs.
// topics order is preserved.
func NewPackageDetails(pkg, description, publisher, homepage, repository, issueTracker string, latestStable VersionDetail, topics []string, purl string) (PackageDetails, error) {
	if pkg == "" {
		return PackageDetails{}, Invalid("package details: package must not be empty")
	}
	for label, u := range map[string]string{"homepage": homepage, "repository": repository, "issueTracker": issueTracker} {
		if u != "" && !isAbsoluteURL(u) {
			return PackageDetails{}, Invalid("package details %q: %s must be absolute", pkg, label)
		}
	}
	orderedTopics := append([]string(nil), topics...)
	return PackageDetails{
		pkg:          pkg,
		description:  description,
		publisher:    publisher,
		homepage:     homepage,
		repository:   repository,
		issueTracker: issueTracker,
		latestStable: latestStable,
		topics:       orderedTopics,
		purl:         purl,
	}, nil
}

func (p PackageDetails) Package() string           { return p.pkg }
func (p PackageDetails) Description() string       { return p.description }
func (p PackageDetails) Publisher() string         { return p.publisher }
func (p PackageDetails) Homepage() string          { return p.homepage }
func (p PackageDetails) Repository() string        { return p.repository }
func (p PackageDetails) IssueTracker() string      { return p.issueTracker }
func (p PackageDetails) LatestStable() VersionDetail { return p.latestStable }
func (p PackageDetails) Topics() []string          { return append([]string(nil), p.topics...) }
func (p PackageDetails) PURL() string              { return p.purl }

type packageDetailsJSON struct {
	Package      string        `json:"package"`
	Description  string        `json:"description"`
	Publisher    string        `json:"publisher"`
	Homepage     string        `json:"homepage,omitempty"`
	Repository   string        `json:"repository,omitempty"`
	IssueTracker string        `json:"issueTracker,omitempty"`
	LatestStable VersionDetail `json:"latestStable"`
	Topics       []string      `json:"topics"`
	PURL         string        `json:"purl,omitempty"`
}

func (p PackageDetails) MarshalJSON() ([]byte, error) {
	topics := p.topics
	if topics == nil {
		topics = []string{}
	}
	return json.Marshal(packageDetailsJSON{
		Package:      p.pkg,
		Description:  p.description,
		Publisher:    p.publisher,
		Homepage:     p.homepage,
		Repository:   p.repository,
		IssueTracker: p.issueTracker,
		LatestStable: p.latestStable,
		Topics:       topics,
		PURL:         p.purl,
	})
}

func (p *PackageDetails) UnmarshalJSON(data []byte) error {
	var raw packageDetailsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewPackageDetails(raw.Package, raw.Description, raw.Publisher, raw.Homepage, raw.Repository, raw.IssueTracker, raw.LatestStable, raw.Topics, raw.PURL)
	if err != nil {
		return err
	}
	*p = built
	return nil
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs()
}
