// Package tools declares the eight-entry MCP tool table: a static map from
// canonical tool name to a descriptor whose bind, validate, and execute
// stages are plain closures over a shared Deps value. No runtime reflection
// or dynamic discovery is used; the table is built once at startup by
// BuildDescriptors.
package tools

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mbilalbenli/pub-dev-mcp/internal/cache"
	"github.com/mbilalbenli/pub-dev-mcp/internal/compat"
	"github.com/mbilalbenli/pub-dev-mcp/internal/depgraph"
	"github.com/mbilalbenli/pub-dev-mcp/internal/pubdev"
)

// packageNamePattern and publisherIDPattern implement the exact validation
// rules every tool applies to package and publisher identifiers.
var (
	packageNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
	publisherIDPattern = regexp.MustCompile(`^[a-z0-9._-]+$`)
)

const (
	maxQueryLength  = 80
	defaultTake     = 50
	minTake         = 1
	maxTake         = 200
)

// FieldError is one entry of a -32602 error's data.errors array.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries one or more FieldErrors from a descriptor's
// validate stage; the JSON-RPC pipeline maps it to -32602.
type ValidationError struct {
	Errs []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errs))
	for i, fe := range e.Errs {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "invalid params: " + strings.Join(parts, "; ")
}

func invalid(field, message string) error {
	return &ValidationError{Errs: []FieldError{{Field: field, Message: message}}}
}

// Deps bundles the collaborators every tool executor needs. It is built
// once in cmd/pubmcpd and handed to rpcserver.NewServer, which passes it to
// each descriptor's Execute.
type Deps struct {
	Registry *pubdev.Registry
	Cache    *cache.Cache
	Solver   *compat.Solver
	Builder  *depgraph.Builder
}

// Descriptor is the bind/validate/execute/encode pipeline shape every tool
// implements.
type Descriptor struct {
	Name        string
	Description string
	Bind        func(params json.RawMessage) (any, error)
	Validate    func(req any) error
	Execute     func(ctx context.Context, deps *Deps, req any) (any, error)
	Encode      func(resp any) (json.RawMessage, error)
}

func encodeJSON(resp any) (json.RawMessage, error) {
	return json.Marshal(resp)
}

func clampTake(take int) int {
	if take <= 0 {
		return defaultTake
	}
	if take < minTake {
		return minTake
	}
	if take > maxTake {
		return maxTake
	}
	return take
}

func validatePackageName(field, name string) []FieldError {
	if name == "" {
		return []FieldError{{Field: field, Message: "must not be empty"}}
	}
	if !packageNamePattern.MatchString(name) {
		return []FieldError{{Field: field, Message: "must match ^[a-z0-9_]+$"}}
	}
	return nil
}

func validatePublisherID(field, id string) []FieldError {
	if id == "" {
		return []FieldError{{Field: field, Message: "must not be empty"}}
	}
	if !publisherIDPattern.MatchString(id) {
		return []FieldError{{Field: field, Message: "must match ^[a-z0-9._-]+$"}}
	}
	return nil
}

func validateQuery(field, query string) []FieldError {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return []FieldError{{Field: field, Message: "must not be empty"}}
	}
	if utf8.RuneCountInString(trimmed) > maxQueryLength {
		return []FieldError{{Field: field, Message: "must be at most 80 characters"}}
	}
	return nil
}

// BuildDescriptors assembles the static eight-tool table. Names match the
// JSON-RPC method names exactly.
func BuildDescriptors() map[string]*Descriptor {
	table := map[string]*Descriptor{}
	for _, d := range []*Descriptor{
		searchPackagesDescriptor(),
		latestVersionDescriptor(),
		checkCompatibilityDescriptor(),
		listVersionsDescriptor(),
		packageDetailsDescriptor(),
		publisherPackagesDescriptor(),
		scoreInsightsDescriptor(),
		dependencyInspectorDescriptor(),
	} {
		table[d.Name] = d
	}
	return table
}
