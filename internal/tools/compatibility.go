package tools

import (
	"context"
	"encoding/json"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
)

type checkCompatibilityParams struct {
	Package           string  `json:"package"`
	FlutterSDK        string  `json:"flutterSdk"`
	ProjectConstraint *string `json:"projectConstraint,omitempty"`
}

func checkCompatibilityDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "check_compatibility",
		Description: "Recommend the newest version of a package compatible with a given Flutter SDK and, optionally, a project's version constraint.",
		Bind: func(params json.RawMessage) (any, error) {
			var p checkCompatibilityParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, invalid("params", "malformed JSON object")
				}
			}
			return &p, nil
		},
		Validate: func(req any) error {
			p := req.(*checkCompatibilityParams)
			var errs []FieldError
			errs = append(errs, validatePackageName("package", p.Package)...)
			if p.FlutterSDK == "" {
				errs = append(errs, FieldError{Field: "flutterSdk", Message: "must not be empty"})
			}
			if len(errs) > 0 {
				return &ValidationError{Errs: errs}
			}
			return nil
		},
		Execute: func(ctx context.Context, deps *Deps, req any) (any, error) {
			p := req.(*checkCompatibilityParams)
			projectConstraint := ""
			if p.ProjectConstraint != nil {
				projectConstraint = *p.ProjectConstraint
			}
			creq, err := domain.NewCompatibilityRequest(p.Package, p.FlutterSDK, projectConstraint)
			if err != nil {
				return nil, err
			}
			history, err := deps.Registry.FetchVersionHistory(ctx, p.Package)
			if err != nil {
				return nil, err
			}
			return deps.Solver.Solve(creq, history)
		},
		Encode: encodeJSON,
	}
}
