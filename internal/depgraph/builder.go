// Package depgraph builds the dependency tree consumed by the
// dependency_inspector tool, resolving each declared requirement against
// upstream version history.
package depgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
)

// MaxDepth is the hard recursion cap guarding against pathological or
// malformed dependency graphs.
const MaxDepth = 10

// registryClient is the subset of pubdev.Registry the builder depends on,
// kept as an interface so tests can supply a fake without touching the
// network.
type registryClient interface {
	FetchVersionHistory(ctx context.Context, name string) ([]domain.VersionDetail, error)
	FetchDependencies(ctx context.Context, name, version string, includeDev bool) (runtime, dev map[string]string, err error)
}

// Builder walks a package's declared dependencies to a bounded depth,
// resolving each requirement to a concrete version by picking the newest
// version satisfying its constraint, falling back to the latest stable
// release and then to the latest release overall.
type Builder struct {
	registry registryClient
}

// NewBuilder constructs a Builder over the given registry client.
func NewBuilder(registry registryClient) *Builder {
	return &Builder{registry: registry}
}

// Build implements inspectDependencies: it resolves rootVersion's declared
// dependencies (and dev dependencies, if requested) into a DependencyGraph.
func (b *Builder) Build(ctx context.Context, rootPackage, rootVersion string, includeDev bool) (domain.DependencyGraph, error) {
	visited := map[string]bool{nodeKey(rootPackage, rootVersion): true}
	var issues []string

	children, childIssues := b.resolveChildren(ctx, rootPackage, rootVersion, rootVersion, includeDev, 1, visited)
	issues = append(issues, childIssues...)

	root, err := domain.NewDependencyNode(rootPackage, rootVersion, rootVersion, true, children)
	if err != nil {
		return domain.DependencyGraph{}, err
	}

	return domain.NewDependencyGraph(rootPackage, rootVersion, []domain.DependencyNode{root}, issues)
}

// resolveChildren fetches and resolves one level of dependencies. Map
// iteration over the decoded pubspec is unordered in Go, so this sorts
// runtime and dev names separately, each into declaration-order proxy —
// the closest stable proxy available once the map has erased the original
// ordering — and appends the dev-sorted names after the runtime-sorted
// ones, so a dev dependency never precedes a runtime one in the output.
func (b *Builder) resolveChildren(ctx context.Context, pkg, requirement, version string, includeDev bool, depth int, visited map[string]bool) ([]domain.DependencyNode, []string) {
	if depth > MaxDepth {
		return nil, []string{domain.DepthExceededIssue(pkg, requirement)}
	}

	runtime, dev, err := b.registry.FetchDependencies(ctx, pkg, version, includeDev && depth == 1)
	if err != nil {
		return nil, []string{domain.UnresolvedDependencyIssue(pkg, requirement, err.Error())}
	}

	runtimeNames := make([]string, 0, len(runtime))
	for name := range runtime {
		runtimeNames = append(runtimeNames, name)
	}
	sort.Strings(runtimeNames)

	devNames := make([]string, 0, len(dev))
	for name := range dev {
		if _, ok := runtime[name]; ok {
			continue
		}
		devNames = append(devNames, name)
	}
	sort.Strings(devNames)

	names := append(runtimeNames, devNames...)
	isDirect := make(map[string]bool, len(names))
	requested := make(map[string]string, len(names))
	for _, name := range runtimeNames {
		isDirect[name] = true
		requested[name] = runtime[name]
	}
	for _, name := range devNames {
		isDirect[name] = true
		requested[name] = dev[name]
	}

	var nodes []domain.DependencyNode
	var issues []string

	for _, name := range names {
		req := requested[name]
		resolved, resolveErr := b.resolveVersion(ctx, name, req)
		if resolveErr != nil {
			issues = append(issues, domain.UnresolvedDependencyIssue(name, req, resolveErr.Error()))
			continue
		}

		key := nodeKey(name, resolved)

		var children []domain.DependencyNode
		if visited[key] {
			// A genuine cycle on the current path, not a diamond: two
			// different ancestors sharing a descendant is fine and
			// expected, but this same (package, version) already sits
			// above us on this exact path. Still surface a node for it —
			// just without descending into it again.
			issues = append(issues, domain.CircularDependencyIssue(name, resolved))
		} else {
			pathVisited := make(map[string]bool, len(visited)+1)
			for k := range visited {
				pathVisited[k] = true
			}
			pathVisited[key] = true

			var childIssues []string
			children, childIssues = b.resolveChildren(ctx, name, req, resolved, false, depth+1, pathVisited)
			issues = append(issues, childIssues...)
		}

		node, err := domain.NewDependencyNode(name, req, resolved, isDirect[name], children)
		if err != nil {
			issues = append(issues, domain.UnresolvedDependencyIssue(name, req, err.Error()))
			continue
		}
		nodes = append(nodes, node)
	}

	return nodes, issues
}

// resolveVersion picks the newest version in history satisfying req; if req
// can't be parsed as a constraint, or nothing satisfies it, the newest
// stable version is used as a fallback (the newest overall version when
// every version is a prerelease) so a graph node isn't lost to a single
// formatting quirk.
func (b *Builder) resolveVersion(ctx context.Context, pkg, req string) (string, error) {
	history, err := b.registry.FetchVersionHistory(ctx, pkg)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", fmt.Errorf("no published versions")
	}

	constraint, cerr := semver.NewConstraint(req)
	if cerr == nil {
		for _, v := range history {
			if v.IsPrerelease() {
				continue
			}
			parsed, perr := semver.NewVersion(v.Version())
			if perr != nil {
				continue
			}
			if constraint.Check(parsed) {
				return v.Version(), nil
			}
		}
	}

	for _, v := range history {
		if !v.IsPrerelease() {
			return v.Version(), nil
		}
	}
	return history[0].Version(), nil
}

func nodeKey(pkg, version string) string {
	return pkg + "@" + version
}
