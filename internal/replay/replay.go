package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"minigames/internal/config"
	"minigames/internal/domain"
	"minigames/internal/engine"
)

const Format = "minigames-replay/1"

// Header is the first line of a recording.
type Header struct {
	Format    string          `json:"format"`
	Game      domain.Game     `json:"game"`
	CreatedAt string          `json:"created_at"`
	Config    json.RawMessage `json:"config"`
}

// Frame is one applied command and the snapshot that followed it.
type Frame struct {
	Seq      int64           `json:"seq"`
	Command  engine.Command  `json:"command"`
	Error    string          `json:"error,omitempty"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

// Writer appends zstd-compressed JSONL to a file.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
	seq int64
}

// Create opens path for writing and emits the header line.
func Create(path string, h Header) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &Writer{f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}
	if h.Format == "" {
		h.Format = Format
	}
	if err := w.writeLine(h); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Record appends one frame. applyErr is the command's rejection, if any.
func (w *Writer) Record(cmd engine.Command, applyErr error, snap engine.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return errors.New("replay writer closed")
	}
	w.seq++
	fr := Frame{Seq: w.seq, Command: cmd, Snapshot: snap}
	if applyErr != nil {
		fr.Error = applyErr.Error()
	}
	return w.writeLine(fr)
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if w.w != nil {
		err = w.w.Flush()
		w.w = nil
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	return err
}

// Recording is a fully decoded replay file.
type Recording struct {
	Header Header
	Frames []Frame
}

// Read decodes a whole recording from r.
func Read(r io.Reader) (*Recording, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	rec := &Recording{}
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("replay: empty recording")
	}
	if err := json.Unmarshal(sc.Bytes(), &rec.Header); err != nil {
		return nil, fmt.Errorf("replay header: %w", err)
	}
	if rec.Header.Format != Format {
		return nil, fmt.Errorf("replay: unsupported format %q", rec.Header.Format)
	}
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var fr Frame
		if err := json.Unmarshal(line, &fr); err != nil {
			return nil, fmt.Errorf("replay frame %d: %w", len(rec.Frames)+1, err)
		}
		rec.Frames = append(rec.Frames, fr)
	}
	return rec, sc.Err()
}

func ReadFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Config decodes the effective config stored in the header.
func (r *Recording) Config() (*config.Config, error) {
	if len(r.Header.Config) == 0 {
		return config.Default(), nil
	}
	var cfg config.Config
	if err := json.Unmarshal(r.Header.Config, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Verify re-applies every recorded command to a fresh game and checks that
// each snapshot matches. It returns the sequence number of the first
// divergent frame, or 0 when the recording reproduces exactly.
func (r *Recording) Verify(ctx context.Context) (int64, error) {
	cfg, err := r.Config()
	if err != nil {
		return 0, err
	}
	g, err := engine.NewFromConfig(cfg, r.Header.Game, nil, nil)
	if err != nil {
		return 0, err
	}
	for _, fr := range r.Frames {
		applyErr := g.Apply(ctx, fr.Command)
		if (applyErr != nil) != (fr.Error != "") {
			return fr.Seq, nil
		}
		got, err := json.Marshal(g.Snapshot())
		if err != nil {
			return 0, err
		}
		want, err := json.Marshal(fr.Snapshot)
		if err != nil {
			return 0, err
		}
		if !bytes.Equal(got, want) {
			return fr.Seq, nil
		}
	}
	return 0, nil
}
