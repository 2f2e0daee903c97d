package tools

import (
	"context"
	"encoding/json"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
)

type listVersionsParams struct {
	Package string `json:"package"`
	Take    int    `json:"take,omitempty"`
}

// VersionHistoryResponse is list_versions's response shape: a transient
// DTO, not a domain value.
type VersionHistoryResponse struct {
	Package  string                 `json:"package"`
	Versions []domain.VersionDetail `json:"versions"`
}

func listVersionsDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "list_versions",
		Description: "List a package's published versions, newest first, up to the requested take (default 50, max 200). Each version's release notes URL comes from the pubspec changelog; when no changelog is declared it falls back to the package's issue tracker URL.",
		Bind: func(params json.RawMessage) (any, error) {
			var p listVersionsParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, invalid("params", "malformed JSON object")
				}
			}
			p.Take = clampTake(p.Take)
			return &p, nil
		},
		Validate: func(req any) error {
			p := req.(*listVersionsParams)
			if errs := validatePackageName("package", p.Package); len(errs) > 0 {
				return &ValidationError{Errs: errs}
			}
			return nil
		},
		Execute: func(ctx context.Context, deps *Deps, req any) (any, error) {
			p := req.(*listVersionsParams)
			history, err := deps.Registry.FetchVersionHistory(ctx, p.Package)
			if err != nil {
				return nil, err
			}
			if len(history) > p.Take {
				history = history[:p.Take]
			}
			return VersionHistoryResponse{Package: p.Package, Versions: history}, nil
		},
		Encode: encodeJSON,
	}
}
