package graphhcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/burstcluster/internal/config"
	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

// Loader is the HCL implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL run request loader.
func NewLoader() *Loader {
	return &Loader{}
}

// builder accumulates the blocks of every file of one request.
type builder struct {
	ops     []*graphspec.Operation
	feeds   map[string]tensor.Tensor
	fetches []string
	initOps []string
	runners []graphspec.QueueRunner
}

func newBuilder() *builder {
	return &builder{feeds: make(map[string]tensor.Tensor)}
}

// Load reads every .hcl file found at paths, files or directories, and
// merges them into one run request. Paths that do not exist are skipped.
func (l *Loader) Load(ctx context.Context, paths ...string) (*graphspec.RunRequest, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	b := newBuilder()
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, status.Wrap(status.InvalidArgument, diags, "failed to parse HCL file %s", file)
		}
		if err := b.add(ctx, f); err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "failed to decode HCL file %s", file)
		}
	}
	return b.build(ctx)
}

// LoadFile loads a single file.
func (l *Loader) LoadFile(ctx context.Context, path string) (*graphspec.RunRequest, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, status.Wrap(status.InvalidArgument, err, "cannot read %s", path)
	}
	return l.Load(ctx, path)
}

// LoadDir loads every .hcl file below dir.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*graphspec.RunRequest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, status.Wrap(status.InvalidArgument, err, "cannot read %s", dir)
	}
	if !info.IsDir() {
		return nil, status.Errorf(status.InvalidArgument, "%s is not a directory", dir)
	}
	return l.Load(ctx, dir)
}

// Parse loads a request from source held in memory. filename is only used
// in diagnostics.
func (l *Loader) Parse(ctx context.Context, src []byte, filename string) (*graphspec.RunRequest, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, status.Wrap(status.InvalidArgument, diags, "failed to parse %s", filename)
	}
	b := newBuilder()
	if err := b.add(ctx, f); err != nil {
		return nil, status.Wrap(status.InvalidArgument, err, "failed to decode %s", filename)
	}
	return b.build(ctx)
}

func (b *builder) add(ctx context.Context, f *hcl.File) error {
	var root fileRoot
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return diags
	}

	for _, n := range root.Nodes {
		op, err := translateNode(ctx, n)
		if err != nil {
			return err
		}
		b.ops = append(b.ops, op)
	}
	for _, fb := range root.Feeds {
		if _, dup := b.feeds[fb.Name]; dup {
			return fmt.Errorf("feed %q is defined more than once", fb.Name)
		}
		t, err := translateFeed(fb)
		if err != nil {
			return err
		}
		b.feeds[fb.Name] = t
	}
	for _, qr := range root.QueueRunners {
		b.runners = append(b.runners, translateQueueRunner(qr))
	}
	b.fetches = append(b.fetches, root.Fetch...)
	b.initOps = append(b.initOps, root.InitOps...)
	return nil
}

func (b *builder) build(ctx context.Context) (*graphspec.RunRequest, error) {
	if len(b.ops) == 0 {
		return nil, status.Errorf(status.InvalidArgument, "no node blocks found")
	}
	item := graphspec.NewRunRequest(graphspec.New(b.ops...), b.fetches...)
	item.Feeds = b.feeds
	item.InitOps = b.initOps
	item.QueueRunners = b.runners
	if err := item.Validate(nil); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("HCL loading complete.",
		"nodes", item.Graph.Len(), "feeds", len(item.Feeds), "fetches", len(item.Fetches),
		"init_ops", len(item.InitOps), "queue_runners", len(item.QueueRunners))
	return item, nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl
// files found, in lexical order within each directory.
func findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return allFiles, nil
}
