// Package pubmcp is a public re-export facade over the pub.dev registry
// client and its value objects, for callers that want to talk to pub.dev
// directly without going through the JSON-RPC transport in cmd/pubmcpd.
//
// Basic usage:
//
//	client := pubmcp.DefaultClient()
//	registry := pubmcp.NewRegistry("", client)
//	details, err := registry.FetchPackageDetails(context.Background(), "http")
package pubmcp

import (
	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
	"github.com/mbilalbenli/pub-dev-mcp/internal/pubdev"
)

// Re-export domain value objects.
type (
	PackageSummary       = domain.PackageSummary
	VersionDetail        = domain.VersionDetail
	PackageDetails       = domain.PackageDetails
	SearchResultSet      = domain.SearchResultSet
	CompatibilityRequest = domain.CompatibilityRequest
	CompatibilityResult  = domain.CompatibilityResult
	DependencyNode       = domain.DependencyNode
	DependencyGraph      = domain.DependencyGraph
	ScoreInsight         = domain.ScoreInsight
	AuditLogEntry        = domain.AuditLogEntry
)

// Re-export the registry client and its resilient HTTP transport.
type (
	Registry   = pubdev.Registry
	Client     = pubdev.Client
	Option     = pubdev.Option
	URLBuilder = pubdev.URLBuilder
)

// Re-export the domain error taxonomy.
type (
	ErrorKind = domain.Kind
	Error     = domain.Error
)

// Re-export domain value-object constructors, so a caller assembling its
// own results doesn't need to import internal/domain directly.
var (
	NewPackageSummary       = domain.NewPackageSummary
	NewVersionDetail        = domain.NewVersionDetail
	NewPackageDetails       = domain.NewPackageDetails
	NewSearchResultSet      = domain.NewSearchResultSet
	NewCompatibilityRequest = domain.NewCompatibilityRequest
	NewCompatibilityResult  = domain.NewCompatibilityResult
	NewDependencyNode       = domain.NewDependencyNode
	NewDependencyGraph      = domain.NewDependencyGraph
	NewScoreInsight         = domain.NewScoreInsight
	NewAuditLogEntry        = domain.NewAuditLogEntry
)

// NewRegistry constructs a Registry against baseURL (DefaultBaseURL when
// empty), using client (a DefaultClient() when nil).
func NewRegistry(baseURL string, client *Client) *Registry {
	return pubdev.New(baseURL, client)
}

// DefaultClient returns a Client with the package's default resilience
// parameters: timeout, retry with jitter, and a per-host circuit breaker.
func DefaultClient(opts ...Option) *Client {
	return pubdev.NewClient(opts...)
}

// DefaultBaseURL is pub.dev's public API origin.
const DefaultBaseURL = pubdev.DefaultBaseURL
