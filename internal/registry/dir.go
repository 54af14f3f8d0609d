// Package registry serves a model repository from a local directory:
//
//	<root>/<model>/manifest.{json,yaml,yml,toml}
//	<root>/<model>/meta.{json,yaml,yml,toml}    (optional)
//	<root>/<model>/chunks/<chunk-id>
//
// It implements repo.Client so a daemon can bind models without a remote
// repository, and is handy for fixtures.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"warmsetd/internal/common/fsutil"
	"warmsetd/internal/repo"
	"warmsetd/pkg/types"
)

var docExts = []string{".json", ".yaml", ".yml", ".toml"}

// Dir is a read-only filesystem repository.
type Dir struct {
	root string
}

// Open resolves dir (expanding a leading '~') and checks that it exists.
func Open(dir string) (*Dir, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat repository dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("repository path %s is not a directory", abs)
	}
	return &Dir{root: abs}, nil
}

func (d *Dir) Root() string { return d.root }

// List returns the ids of every model directory holding a manifest, sorted.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := fsutil.FirstExisting(filepath.Join(d.root, e.Name()), "manifest", docExts...); ok {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *Dir) GetManifest(ctx context.Context, modelID string) (types.ModelManifest, error) {
	if err := ctx.Err(); err != nil {
		return types.ModelManifest{}, err
	}
	var mf types.ModelManifest
	if err := d.readDoc(modelID, "manifest", &mf); err != nil {
		return types.ModelManifest{}, err
	}
	if mf.ModelID == "" {
		mf.ModelID = modelID
	}
	return mf, nil
}

func (d *Dir) GetModelMeta(ctx context.Context, modelID string) (types.ModelMeta, error) {
	if err := ctx.Err(); err != nil {
		return types.ModelMeta{}, err
	}
	var meta types.ModelMeta
	if err := d.readDoc(modelID, "meta", &meta); err != nil {
		return types.ModelMeta{}, err
	}
	return meta, nil
}

func (d *Dir) GetChunk(ctx context.Context, modelID, chunkID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := fsutil.SafeJoin(d.root, modelID, "chunks", chunkID)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %v: %w", chunkID, err, repo.ErrNotFound)
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, repo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading chunk %s: %v: %w", chunkID, err, repo.ErrUnavailable)
	}
	return b, nil
}

// readDoc decodes <root>/<model>/<name>.<ext> by extension.
func (d *Dir) readDoc(modelID, name string, v any) error {
	what := name + " " + modelID
	modelDir, err := fsutil.SafeJoin(d.root, modelID)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", what, err, repo.ErrNotFound)
	}
	p, ok := fsutil.FirstExisting(modelDir, name, docExts...)
	if !ok {
		return fmt.Errorf("%s: %w", what, repo.ErrNotFound)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("reading %s: %v: %w", what, err, repo.ErrUnavailable)
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, v)
	case ".toml":
		err = toml.Unmarshal(b, v)
	default:
		err = json.Unmarshal(b, v)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %v: %w", what, err, repo.ErrBadResponse)
	}
	return nil
}

var _ repo.Client = (*Dir)(nil)
