package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	LogFileName     = "blender_render.log"
	JournalFileName = "runs.jsonl.zst"
)

// Layout names every artifact a batch writes under <outdir>/<basename>.
type Layout struct {
	Outdir string
	Base   string
}

func NewLayout(outdir, infile string) Layout {
	return Layout{Outdir: outdir, Base: filepath.Base(infile)}
}

func (l Layout) Dir() string {
	return filepath.Join(l.Outdir, l.Base)
}

func (l Layout) BlendFile() string {
	return filepath.Join(l.Dir(), l.Base+".blend")
}

func (l Layout) LogFile() string {
	return filepath.Join(l.Dir(), LogFileName)
}

func (l Layout) Journal() string {
	return filepath.Join(l.Dir(), JournalFileName)
}

// Movie is the render target for a 1-based run index.
func (l Layout) Movie(run int) string {
	return filepath.Join(l.Dir(), fmt.Sprintf("run_%04d.avi", run))
}

// PartFile is the mesh file of part i for the given input prefix.
func PartFile(infile string, i int) string {
	return fmt.Sprintf("%s_%d.obj", infile, i)
}

// EnsureDir creates path and any missing parents. An existing directory is
// not an error; an existing non-directory is.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}
