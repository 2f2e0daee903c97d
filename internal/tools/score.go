package tools

import (
	"context"
	"encoding/json"

	"github.com/mbilalbenli/pub-dev-mcp/internal/cache"
)

type scoreInsightsParams struct {
	Package string `json:"package"`
}

func scoreInsightsDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "score_insights",
		Description: "Return a package's pub.dev score breakdown (points, popularity, likes), cached for 10 minutes.",
		Bind: func(params json.RawMessage) (any, error) {
			var p scoreInsightsParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, invalid("params", "malformed JSON object")
				}
			}
			return &p, nil
		},
		Validate: func(req any) error {
			p := req.(*scoreInsightsParams)
			if errs := validatePackageName("package", p.Package); len(errs) > 0 {
				return &ValidationError{Errs: errs}
			}
			return nil
		},
		Execute: func(ctx context.Context, deps *Deps, req any) (any, error) {
			p := req.(*scoreInsightsParams)
			key := cache.ScoreKey(p.Package)
			return deps.Cache.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
				return deps.Registry.FetchScore(ctx, p.Package)
			})
		},
		Encode: encodeJSON,
	}
}
