package tools

import (
	"context"
	"encoding/json"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
)

type publisherPackagesParams struct {
	Publisher string `json:"publisher"`
	Take      int    `json:"take,omitempty"`
}

// PublisherPackagesResponse is publisher_packages's response shape.
type PublisherPackagesResponse struct {
	Publisher string                  `json:"publisher"`
	Packages  []domain.PackageSummary `json:"packages"`
}

func publisherPackagesDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "publisher_packages",
		Description: "List packages owned by a verified publisher, up to the requested take (default 50, max 200).",
		Bind: func(params json.RawMessage) (any, error) {
			var p publisherPackagesParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, invalid("params", "malformed JSON object")
				}
			}
			p.Take = clampTake(p.Take)
			return &p, nil
		},
		Validate: func(req any) error {
			p := req.(*publisherPackagesParams)
			if errs := validatePublisherID("publisher", p.Publisher); len(errs) > 0 {
				return &ValidationError{Errs: errs}
			}
			return nil
		},
		Execute: func(ctx context.Context, deps *Deps, req any) (any, error) {
			p := req.(*publisherPackagesParams)
			packages, err := deps.Registry.FetchPublisherPackages(ctx, p.Publisher)
			if err != nil {
				return nil, err
			}
			if len(packages) > p.Take {
				packages = packages[:p.Take]
			}
			return PublisherPackagesResponse{Publisher: p.Publisher, Packages: packages}, nil
		},
		Encode: encodeJSON,
	}
}
