package pubdev

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	packageurl "github.com/package-url/packageurl-go"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
)

// DefaultBaseURL is pub.dev's public API origin.
const DefaultBaseURL = "https://pub.dev"

// SearchResultLimit is the maximum number of distinct package names the
// client keeps from a search response.
const SearchResultLimit = 10

// EvaluationWindowSize is the size of the version-history window the
// compatibility solver evaluates. Nothing in this package reads it; the
// solver applies its own compat.EvaluationWindowSize of the same value.
const EvaluationWindowSize = 20

// Registry is the pub.dev registry client: seven operations mapped onto
// upstream endpoints, covering package lookup, search, scoring, publisher
// listings, and dependency requirements.
type Registry struct {
	baseURL string
	client  *Client
}

// New constructs a Registry. If baseURL is empty, DefaultBaseURL is used.
func New(baseURL string, client *Client) *Registry {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = NewClient()
	}
	return &Registry{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

// --- upstream response shapes -------------------------------------------------

type packageResponse struct {
	Name     string        `json:"name"`
	Latest   versionInfo   `json:"latest"`
	Versions []versionInfo `json:"versions"`
}

type versionInfo struct {
	Version   string    `json:"version"`
	Published time.Time `json:"published"`
	Pubspec   pubspec   `json:"pubspec"`
	Retracted bool      `json:"retracted"`
}

type pubspec struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Version      string                 `json:"version"`
	Homepage     string                 `json:"homepage"`
	Repository   string                 `json:"repository"`
	IssueTracker string                 `json:"issue_tracker"`
	ChangelogURL string                 `json:"changelog_url"`
	Environment  map[string]string      `json:"environment"`
	Topics       []string               `json:"topics"`
	Dependencies map[string]interface{} `json:"dependencies"`
	DevDeps      map[string]interface{} `json:"dev_dependencies"`
}

type searchResponse struct {
	Packages []struct {
		Package string `json:"package"`
	} `json:"packages"`
	Next  string `json:"next"`
	Total int    `json:"total"`
}

type scoreResponse struct {
	GrantedPoints   int     `json:"grantedPoints"`
	MaxPoints       int     `json:"maxPoints"`
	LikeCount       int     `json:"likeCount"`
	PopularityScore float64 `json:"popularityScore"`
	Tags            []string `json:"tags"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// --- helpers -------------------------------------------------------------

func (r *Registry) packageURL(name string) string {
	return fmt.Sprintf("%s/api/packages/%s", r.baseURL, url.PathEscape(name))
}

func (r *Registry) versionURL(name, version string) string {
	return fmt.Sprintf("%s/api/packages/%s/versions/%s", r.baseURL, url.PathEscape(name), url.PathEscape(version))
}

func (r *Registry) scoreURL(name string) string {
	return fmt.Sprintf("%s/api/packages/%s/score", r.baseURL, url.PathEscape(name))
}

func (r *Registry) searchURL(query string, page int) string {
	v := url.Values{}
	v.Set("q", query)
	if page > 1 {
		v.Set("page", fmt.Sprintf("%d", page))
	}
	return fmt.Sprintf("%s/api/search?%s", r.baseURL, v.Encode())
}

func toVersionDetail(name string, v versionInfo) (domain.VersionDetail, error) {
	prerelease := isPrerelease(v.Version)
	return domain.NewVersionDetail(
		v.Version,
		v.Published,
		conditionalConstraint(v.Pubspec),
		prerelease,
		releaseNotesURL(v.Pubspec),
	)
}

// releaseNotesURL derives from the pubspec changelog; falling back to the
// issue tracker when no changelog is published, and to empty when neither
// is present.
func releaseNotesURL(p pubspec) string {
	if p.ChangelogURL != "" {
		return p.ChangelogURL
	}
	return p.IssueTracker
}

func conditionalConstraint(p pubspec) string {
	if c, ok := p.Environment["flutter"]; ok && c != "" {
		return c
	}
	if c, ok := p.Environment["sdk"]; ok && c != "" {
		return c
	}
	return "any"
}

func isPrerelease(version string) bool {
	return strings.Contains(version, "-")
}

// --- operations ------------------------------------------------------------

// FetchPackageDetails implements packageDetails.
func (r *Registry) FetchPackageDetails(ctx context.Context, name string) (domain.PackageDetails, error) {
	var resp packageResponse
	if err := r.client.GetJSON(ctx, r.packageURL(name), &resp); err != nil {
		return domain.PackageDetails{}, wrapNotFound(err, name, "")
	}
	if resp.Name == "" || resp.Latest.Version == "" {
		return domain.PackageDetails{}, domain.NewError(domain.KindDecodeFailed, fmt.Sprintf("package %s: missing name or latest version", name), nil)
	}

	latest, err := toVersionDetail(resp.Name, resp.Latest)
	if err != nil {
		return domain.PackageDetails{}, err
	}

	pub := resp.Latest.Pubspec
	repository := pub.Repository
	if repository == "" {
		repository = pub.Homepage
	}

	return domain.NewPackageDetails(
		resp.Name,
		pub.Description,
		publisherOf(resp),
		pub.Homepage,
		repository,
		pub.IssueTracker,
		latest,
		pub.Topics,
		purlString(resp.Name, resp.Latest.Version),
	)
}

// purlString builds a Package URL identifying a pub.dev package version.
func purlString(name, version string) string {
	return packageurl.NewPackageURL("pub", "", name, version, nil, "").ToString()
}

// publisherOf is a placeholder until a dedicated field surfaces in the
// package endpoint response; pub.dev's public JSON API does not expose the
// verified publisher on /api/packages/<name>, only on the HTML package page,
// which this client never scrapes.
func publisherOf(resp packageResponse) string {
	return ""
}

// FetchLatestVersion implements latestVersion: the newest version excluding
// prereleases, or the newest overall if every version is a prerelease.
func (r *Registry) FetchLatestVersion(ctx context.Context, name string) (domain.VersionDetail, error) {
	versions, err := r.FetchVersionHistory(ctx, name)
	if err != nil {
		return domain.VersionDetail{}, err
	}
	if len(versions) == 0 {
		return domain.VersionDetail{}, domain.NewError(domain.KindUpstreamNotFound, fmt.Sprintf("package %s has no versions", name), nil)
	}
	for _, v := range versions {
		if !v.IsPrerelease() {
			return v, nil
		}
	}
	return versions[0], nil
}

// FetchVersionHistory implements versionHistory, sorted descending by
// release time, then descending lexicographic version as a tiebreaker.
func (r *Registry) FetchVersionHistory(ctx context.Context, name string) ([]domain.VersionDetail, error) {
	var resp packageResponse
	if err := r.client.GetJSON(ctx, r.packageURL(name), &resp); err != nil {
		return nil, wrapNotFound(err, name, "")
	}

	out := make([]domain.VersionDetail, 0, len(resp.Versions))
	for _, v := range resp.Versions {
		vd, err := toVersionDetail(resp.Name, v)
		if err != nil {
			continue
		}
		out = append(out, vd)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Released().Equal(out[j].Released()) {
			return out[i].Released().After(out[j].Released())
		}
		return out[i].Version() > out[j].Version()
	})

	return out, nil
}

// FetchPackageSummary is a helper (not one of the seven upstream-mapped
// operations, but shared by search and publisher_packages) that assembles a
// PackageSummary from the package and score endpoints.
func (r *Registry) FetchPackageSummary(ctx context.Context, name string) (domain.PackageSummary, error) {
	details, err := r.FetchPackageDetails(ctx, name)
	if err != nil {
		return domain.PackageSummary{}, err
	}
	score, err := r.FetchScore(ctx, name)
	if err != nil {
		return domain.PackageSummary{}, err
	}
	latest := details.LatestStable()
	return domain.NewPackageSummary(
		details.Package(),
		details.Description(),
		details.Publisher(),
		score.Likes(),
		score.PubPoints(),
		score.Popularity(),
		&latest,
	)
}

// Search implements search: the client keeps at most SearchResultLimit
// distinct package names in first-appearance order, then fans out to fetch
// summaries.
func (r *Registry) Search(ctx context.Context, query string, includePrerelease bool, sdkConstraint string) (domain.SearchResultSet, error) {
	var resp searchResponse
	if err := r.client.GetJSON(ctx, r.searchURL(query, 1), &resp); err != nil {
		return domain.SearchResultSet{}, err
	}

	seen := make(map[string]bool, SearchResultLimit)
	names := make([]string, 0, SearchResultLimit)
	for _, p := range resp.Packages {
		if p.Package == "" || seen[p.Package] {
			continue
		}
		seen[p.Package] = true
		names = append(names, p.Package)
		if len(names) == SearchResultLimit {
			break
		}
	}

	summaries := r.fetchSummariesConcurrently(ctx, names)
	summaries = filterSummaries(summaries, includePrerelease, sdkConstraint)

	moreHint := ""
	if resp.Next != "" || resp.Total > len(names) {
		moreHint = "More packages available…"
	}

	if len(summaries) == 0 {
		return domain.SearchResultSet{}, domain.NewError(domain.KindUpstreamNotFound, fmt.Sprintf("search %q returned no usable packages", query), nil)
	}

	return domain.NewSearchResultSet(query, summaries, moreHint)
}

// filterSummaries applies the two search refinements pub.dev's public search
// endpoint doesn't itself support: dropping packages whose latest version is
// a prerelease when the caller asked for stable-only, and dropping packages
// whose latest version's SDK constraint doesn't admit sdkConstraint. An
// unparsable sdkConstraint is treated as "any" rather than rejecting every
// result over a formatting quirk.
func filterSummaries(summaries []domain.PackageSummary, includePrerelease bool, sdkConstraint string) []domain.PackageSummary {
	var probe *semver.Version
	if sdkConstraint != "" {
		if v, err := semver.NewVersion(sdkConstraint); err == nil {
			probe = v
		}
	}
	if includePrerelease && probe == nil {
		return summaries
	}

	out := make([]domain.PackageSummary, 0, len(summaries))
	for _, s := range summaries {
		latest := s.LatestStable()
		if latest == nil {
			continue
		}
		if !includePrerelease && latest.IsPrerelease() {
			continue
		}
		if probe != nil {
			constraint, err := semver.NewConstraint(latest.SDKConstraint())
			if err == nil && !constraint.Check(probe) {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// fetchSummariesConcurrently is grounded on
// internal/core/helpers.go's BulkFetchPackagesWithConcurrency semaphore
// pattern, adapted to preserve upstream order (the bulk helper only
// returned an unordered map). A name whose summary fetch fails is left out
// of the result without an error or a log line. Search and
// FetchPublisherPackages both use it.
func (r *Registry) fetchSummariesConcurrently(ctx context.Context, names []string) []domain.PackageSummary {
	const concurrency = 8
	sem := make(chan struct{}, concurrency)
	results := make([]*domain.PackageSummary, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			summary, err := r.FetchPackageSummary(ctx, name)
			if err != nil {
				return
			}
			results[i] = &summary
		}(i, name)
	}
	wg.Wait()

	out := make([]domain.PackageSummary, 0, len(names))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// FetchScore implements score.
func (r *Registry) FetchScore(ctx context.Context, name string) (domain.ScoreInsight, error) {
	var resp scoreResponse
	if err := r.client.GetJSON(ctx, r.scoreURL(name), &resp); err != nil {
		return domain.ScoreInsight{}, wrapNotFound(err, name, "")
	}

	fetchedAt := resp.LastUpdated
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	notes := map[string]string{
		"popularity": fmt.Sprintf("popularity score rescaled from upstream value %.2f", resp.PopularityScore),
		"pubpoints":  fmt.Sprintf("%d of %d granted points", resp.GrantedPoints, resp.MaxPoints),
		"likes":      fmt.Sprintf("%d likes", resp.LikeCount),
	}

	return domain.NewScoreInsight(
		name,
		float64(resp.GrantedPoints),
		clamp01(resp.PopularityScore/100),
		resp.LikeCount,
		resp.GrantedPoints,
		notes,
		fetchedAt,
	)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// FetchPublisherPackages implements publisherPackages via a filtered search,
// pub.dev's public API does not expose a dedicated publisher-packages
// endpoint distinct from search filters.
func (r *Registry) FetchPublisherPackages(ctx context.Context, publisher string) ([]domain.PackageSummary, error) {
	var resp searchResponse
	if err := r.client.GetJSON(ctx, r.searchURL("publisher:"+publisher, 1), &resp); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.Packages))
	for _, p := range resp.Packages {
		if p.Package != "" {
			names = append(names, p.Package)
		}
	}

	return r.fetchSummariesConcurrently(ctx, names), nil
}

// FetchDependencies implements the dependency portion of
// inspectDependencies for a single package version: the raw declared
// dependency map, handling string / git / hosted / path requirement shapes.
func (r *Registry) FetchDependencies(ctx context.Context, name, version string, includeDev bool) (runtime map[string]string, dev map[string]string, err error) {
	var resp versionInfo
	if err := r.client.GetJSON(ctx, r.versionURL(name, version), &resp); err != nil {
		return nil, nil, wrapNotFound(err, name, version)
	}

	runtime = formatRequirements(resp.Pubspec.Dependencies)
	if includeDev {
		dev = formatRequirements(resp.Pubspec.DevDeps)
	}
	return runtime, dev, nil
}

func formatRequirements(deps map[string]interface{}) map[string]string {
	out := make(map[string]string, len(deps))
	for name, req := range deps {
		out[name] = formatRequirement(req)
	}
	return out
}

func formatRequirement(req interface{}) string {
	switch v := req.(type) {
	case string:
		return v
	case map[string]interface{}:
		if ver, ok := v["version"].(string); ok && ver != "" {
			return ver
		}
		if git, ok := v["git"]; ok {
			switch g := git.(type) {
			case string:
				return "git:" + g
			case map[string]interface{}:
				if u, ok := g["url"].(string); ok {
					return "git:" + u
				}
			}
		}
		if hosted, ok := v["hosted"].(map[string]interface{}); ok {
			if n, ok := hosted["name"].(string); ok {
				return "hosted:" + n
			}
		}
		if path, ok := v["path"].(string); ok {
			return "path:" + path
		}
	}
	return "any"
}

func wrapNotFound(err error, name, version string) error {
	if domain.KindOf(err) == domain.KindUpstreamNotFound {
		if version != "" {
			return domain.NewError(domain.KindUpstreamNotFound, fmt.Sprintf("package %s version %s not found", name, version), err)
		}
		return domain.NewError(domain.KindUpstreamNotFound, fmt.Sprintf("package %s not found", name), err)
	}
	return err
}

// URLBuilder constructs public pub.dev URLs for a package/version.
type URLBuilder struct {
	baseURL string
}

func (r *Registry) URLs() *URLBuilder { return &URLBuilder{baseURL: r.baseURL} }

func (u *URLBuilder) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("%s/packages/%s/versions/%s", u.baseURL, name, version)
	}
	return fmt.Sprintf("%s/packages/%s", u.baseURL, name)
}

func (u *URLBuilder) Documentation(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://pub.dev/documentation/%s/%s/", name, version)
	}
	return fmt.Sprintf("https://pub.dev/documentation/%s/latest/", name)
}

func (u *URLBuilder) PURL(name, version string) string {
	return purlString(name, version)
}

// ProbeSearch performs a minimal search call used by the HTTP transport's
// /health/ready probe. It returns the raw HTTP status via a classified
// domain error so the probe can distinguish "degraded" (429) from "down".
func (r *Registry) ProbeSearch(ctx context.Context) error {
	var resp searchResponse
	return r.client.GetJSON(ctx, r.searchURL("flutter", 1), &resp)
}
