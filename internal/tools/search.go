package tools

import (
	"context"
	"encoding/json"
)

type searchPackagesParams struct {
	Query             string  `json:"query"`
	IncludePrerelease bool    `json:"includePrerelease"`
	SDKConstraint     *string `json:"sdkConstraint,omitempty"`
}

func searchPackagesDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "search_packages",
		Description: "Search pub.dev for packages matching a query, returning up to 10 ranked results.",
		Bind: func(params json.RawMessage) (any, error) {
			var p searchPackagesParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, invalid("params", "malformed JSON object")
				}
			}
			return &p, nil
		},
		Validate: func(req any) error {
			p := req.(*searchPackagesParams)
			var errs []FieldError
			errs = append(errs, validateQuery("query", p.Query)...)
			if len(errs) > 0 {
				return &ValidationError{Errs: errs}
			}
			return nil
		},
		Execute: func(ctx context.Context, deps *Deps, req any) (any, error) {
			p := req.(*searchPackagesParams)
			sdkConstraint := ""
			if p.SDKConstraint != nil {
				sdkConstraint = *p.SDKConstraint
			}
			return deps.Registry.Search(ctx, p.Query, p.IncludePrerelease, sdkConstraint)
		},
		Encode: encodeJSON,
	}
}
