package tools

import (
	"context"
	"encoding/json"
)

type latestVersionParams struct {
	Package string `json:"package"`
}

func latestVersionDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "latest_version",
		Description: "Return the newest stable version of a package, falling back to the newest prerelease if none is stable.",
		Bind: func(params json.RawMessage) (any, error) {
			var p latestVersionParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, invalid("params", "malformed JSON object")
				}
			}
			return &p, nil
		},
		Validate: func(req any) error {
			p := req.(*latestVersionParams)
			if errs := validatePackageName("package", p.Package); len(errs) > 0 {
				return &ValidationError{Errs: errs}
			}
			return nil
		},
		Execute: func(ctx context.Context, deps *Deps, req any) (any, error) {
			p := req.(*latestVersionParams)
			return deps.Registry.FetchLatestVersion(ctx, p.Package)
		},
		Encode: encodeJSON,
	}
}
