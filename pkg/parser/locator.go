package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/tools/go/packages"
)

// locateMode is the minimal load mode needed to find where a package lives.
const locateMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedModule

// Locator finds the absolute directory of the package providing a parser.
type Locator interface {
	Locate(ctx context.Context, id string) (string, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context, id string) (string, error)

// Locate calls f(ctx, id).
func (f LocatorFunc) Locate(ctx context.Context, id string) (string, error) {
	return f(ctx, id)
}

// LocatorOptions configures package lookup.
type LocatorOptions struct {
	// Dir is the directory to run the build tool in.
	// If empty, uses the current working directory.
	Dir string

	// Env is the environment to use for loading.
	// If nil, the process environment is used.
	Env []string

	// BuildTags are build tags to apply during loading.
	BuildTags []string
}

// PackageLocator resolves parser identifiers as Go import paths. Successful
// lookups are cached for the lifetime of the locator.
type PackageLocator struct {
	opts  LocatorOptions
	cache *xsync.Map[string, string]
}

// NewPackageLocator creates a locator backed by golang.org/x/tools/go/packages.
func NewPackageLocator(opts LocatorOptions) *PackageLocator {
	return &PackageLocator{
		opts:  opts,
		cache: xsync.NewMap[string, string](),
	}
}

// Locate loads the package named by id and returns its absolute directory.
func (l *PackageLocator) Locate(ctx context.Context, id string) (string, error) {
	if dir, ok := l.cache.Load(id); ok {
		return dir, nil
	}

	cfg := &packages.Config{
		Context: ctx,
		Mode:    locateMode,
		Dir:     l.opts.Dir,
		Env:     l.opts.Env,
	}
	if len(l.opts.BuildTags) > 0 {
		cfg.BuildFlags = append(cfg.BuildFlags, "-tags", strings.Join(l.opts.BuildTags, ","))
	}

	pkgs, err := packages.Load(cfg, id)
	if err != nil {
		return "", fmt.Errorf("loading package: %w", err)
	}
	if len(pkgs) != 1 {
		return "", fmt.Errorf("expected one package for %q, found %d", id, len(pkgs))
	}

	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		var msgs []string
		for _, e := range pkg.Errors {
			msgs = append(msgs, e.Error())
		}
		return "", fmt.Errorf("package errors:\n%s", strings.Join(msgs, "\n"))
	}

	files := pkg.GoFiles
	if len(files) == 0 {
		files = pkg.OtherFiles
	}
	if len(files) == 0 {
		return "", fmt.Errorf("package %s has no files", pkg.PkgPath)
	}

	dir, err := filepath.Abs(filepath.Dir(files[0]))
	if err != nil {
		return "", fmt.Errorf("absolute path of %s: %w", files[0], err)
	}
	l.cache.Store(id, dir)
	return dir, nil
}
