package tools

import (
	"context"
	"encoding/json"

	"github.com/mbilalbenli/pub-dev-mcp/internal/cache"
)

type dependencyInspectorParams struct {
	Package                string `json:"package"`
	Version                string `json:"version,omitempty"`
	IncludeDevDependencies bool   `json:"includeDevDependencies"`
}

func dependencyInspectorDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "dependency_inspector",
		Description: "Build the resolved dependency graph for a package version, cycle- and depth-safe, cached for 10 minutes.",
		Bind: func(params json.RawMessage) (any, error) {
			var p dependencyInspectorParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, invalid("params", "malformed JSON object")
				}
			}
			return &p, nil
		},
		Validate: func(req any) error {
			p := req.(*dependencyInspectorParams)
			if errs := validatePackageName("package", p.Package); len(errs) > 0 {
				return &ValidationError{Errs: errs}
			}
			return nil
		},
		Execute: func(ctx context.Context, deps *Deps, req any) (any, error) {
			p := req.(*dependencyInspectorParams)
			version := p.Version
			if version == "" {
				latest, err := deps.Registry.FetchLatestVersion(ctx, p.Package)
				if err != nil {
					return nil, err
				}
				version = latest.Version()
			}
			key := cache.DependencyKey(p.Package, version, p.IncludeDevDependencies)
			return deps.Cache.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
				return deps.Builder.Build(ctx, p.Package, version, p.IncludeDevDependencies)
			})
		},
		Encode: encodeJSON,
	}
}
