package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// RunRecord is what one drop trial leaves behind: the random rotation that
// was drawn, the lift applied afterwards and the assembly bounds once lifted.
type RunRecord struct {
	Run       int        `json:"run"`
	Angle     float64    `json:"angle"`
	Axis      [3]float64 `json:"axis"`
	Offset    float64    `json:"offset"`
	BoundsMin [3]float64 `json:"bounds_min"`
	BoundsMax [3]float64 `json:"bounds_max"`
	Frames    int        `json:"frames"`
	Movie     string     `json:"movie,omitempty"`
}

// Journal appends run records as zstd-compressed JSON lines.
type Journal struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func CreateJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Journal{f: f, enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}, nil
}

func (j *Journal) Write(rec RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.w == nil {
		return errors.New("storage: journal closed")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	return j.w.WriteByte('\n')
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.w == nil {
		return nil
	}
	err := j.w.Flush()
	if cerr := j.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := j.f.Close(); err == nil {
		err = cerr
	}
	j.w = nil
	return err
}

// ReadJournal decodes every record of a journal written by Journal.
func ReadJournal(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	records := make([]RunRecord, 0)
	jd := json.NewDecoder(dec)
	for {
		var rec RunRecord
		if err := jd.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return records, fmt.Errorf("decode %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
