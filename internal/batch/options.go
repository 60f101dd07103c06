package batch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/san-kum/dropsim/internal/config"
	"github.com/san-kum/dropsim/internal/storage"
)

// ErrInvalidOptions indicates options that cannot describe a batch.
var ErrInvalidOptions = errors.New("batch: invalid options")

// Recorder receives the batch lifecycle. *storage.Index implements it.
type Recorder interface {
	BeginBatch(ctx context.Context, b storage.BatchRow) (int64, error)
	RecordRun(ctx context.Context, batchID int64, rec storage.RunRecord) error
	FinishBatch(ctx context.Context, batchID int64, status string) error
}

type Options struct {
	// Infile is the mesh prefix; part i is read from <Infile>_<i>.obj.
	Infile string
	Parts  int
	Outdir string

	Runs      int
	Frames    int
	Seed      int64
	Movie     bool
	Verbose   bool
	BlendFile bool

	// Tuning holds the engine parameters. Nil means config.DefaultBatch.
	Tuning *config.Batch

	// Console is the process' own output. Nil means os.Stdout.
	Console io.Writer

	// Journal writes a compressed run journal next to the other artifacts.
	Journal  bool
	Recorder Recorder
	// Engine is the driver name recorded with the batch.
	Engine string
}

// DefaultOptions returns the options of a plain `batch infile parts outdir`.
func DefaultOptions(infile string, parts int, outdir string) Options {
	return Options{
		Infile: infile,
		Parts:  parts,
		Outdir: outdir,
		Runs:   config.DefaultRuns,
		Frames: config.DefaultFrames,
		Seed:   config.DefaultSeed,
	}
}

func (o Options) validate() error {
	switch {
	case o.Infile == "":
		return fmt.Errorf("%w: empty infile", ErrInvalidOptions)
	case o.Outdir == "":
		return fmt.Errorf("%w: empty outdir", ErrInvalidOptions)
	case o.Parts < 1:
		return fmt.Errorf("%w: parts must be at least 1, got %d", ErrInvalidOptions, o.Parts)
	case o.Runs < 0:
		return fmt.Errorf("%w: runs must not be negative, got %d", ErrInvalidOptions, o.Runs)
	case o.Frames < 1:
		return fmt.Errorf("%w: frames must be at least 1, got %d", ErrInvalidOptions, o.Frames)
	}
	return nil
}
