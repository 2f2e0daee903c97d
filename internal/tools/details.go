package tools

import (
	"context"
	"encoding/json"
)

type packageDetailsParams struct {
	Package string `json:"package"`
}

func packageDetailsDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "package_details",
		Description: "Return full metadata for a package's latest stable version. The release notes URL comes from the pubspec changelog; when no changelog is declared it falls back to the package's issue tracker URL.",
		Bind: func(params json.RawMessage) (any, error) {
			var p packageDetailsParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, invalid("params", "malformed JSON object")
				}
			}
			return &p, nil
		},
		Validate: func(req any) error {
			p := req.(*packageDetailsParams)
			if errs := validatePackageName("package", p.Package); len(errs) > 0 {
				return &ValidationError{Errs: errs}
			}
			return nil
		},
		Execute: func(ctx context.Context, deps *Deps, req any) (any, error) {
			p := req.(*packageDetailsParams)
			return deps.Registry.FetchPackageDetails(ctx, p.Package)
		},
		Encode: encodeJSON,
	}
}
