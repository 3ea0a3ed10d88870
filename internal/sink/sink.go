// Package sink provides destinations for rendered query output.
package sink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	apperrors "github.com/tsdemo/tsdemo/internal/errors"
	"github.com/tsdemo/tsdemo/internal/storage"
)

// Sink receives output one line at a time. Lines carry no trailing newline.
type Sink interface {
	WriteLine(line string) error
	Close(ctx context.Context) error
}

// Writer writes lines to an io.Writer.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriter creates a sink over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Stdout returns a sink writing to standard output.
func Stdout() *Writer {
	return NewWriter(os.Stdout)
}

// WriteLine writes line followed by a newline and flushes.
func (s *Writer) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close flushes buffered output. The underlying writer is left open.
func (s *Writer) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// File writes lines to a local file, syncing after every line so a crashed
// run still leaves its output on disk.
type File struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewFile creates (or truncates) the file at path.
func NewFile(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &File{f: f, path: path}, nil
}

// Path returns the file path.
func (s *File) Path() string {
	return s.path
}

// WriteLine appends line and syncs the file.
func (s *File) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.WriteString(line + "\n"); err != nil {
		return err
	}
	return s.f.Sync()
}

// Close closes the file.
func (s *File) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Object buffers lines in memory and uploads them as one object on Close.
type Object struct {
	mu       sync.Mutex
	store    storage.ObjectStorage
	key      string
	compress bool
	buf      bytes.Buffer
	closed   bool
}

// ObjectConfig configures an Object sink.
type ObjectConfig struct {
	// Prefix is prepended to the object key.
	Prefix string
	// RunID names the object. A random UUID is used when empty.
	RunID string
	// Compress snappy-encodes the object and appends ".sz" to its key.
	Compress bool
}

// NewObject creates a sink that uploads to store.
func NewObject(store storage.ObjectStorage, cfg ObjectConfig) *Object {
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	key := path.Join(cfg.Prefix, runID+".log")
	if cfg.Compress {
		key += ".sz"
	}
	return &Object{store: store, key: key, compress: cfg.Compress}
}

// Key returns the object key the output is uploaded to.
func (s *Object) Key() string {
	return s.key
}

// WriteLine buffers line.
func (s *Object) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("object sink is closed")
	}
	s.buf.WriteString(line)
	s.buf.WriteByte('\n')
	return nil
}

// Close uploads the buffered output. Subsequent calls are no-ops.
func (s *Object) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	data := s.buf.Bytes()
	if s.compress {
		data = snappy.Encode(nil, data)
	}
	if err := s.store.Put(ctx, s.key, data); err != nil {
		return apperrors.NewStorageError(apperrors.CodeUploadFailed,
			fmt.Sprintf("failed to upload query output to %s", s.key), err)
	}
	return nil
}

// Decode reverses the encoding applied by an Object sink for key.
func Decode(key string, data []byte) ([]byte, error) {
	if path.Ext(key) != ".sz" {
		return data, nil
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return out, nil
}

// Tee fans lines out to several sinks.
type Tee struct {
	sinks []Sink
}

// NewTee creates a sink writing to every non-nil sink in order.
func NewTee(sinks ...Sink) *Tee {
	t := &Tee{}
	for _, s := range sinks {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
	return t
}

// WriteLine writes to every sink, continuing past failures.
func (t *Tee) WriteLine(line string) error {
	var errs []error
	for _, s := range t.sinks {
		if err := s.WriteLine(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (t *Tee) Close(ctx context.Context) error {
	var errs []error
	for _, s := range t.sinks {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops all output.
type Discard struct{}

func (Discard) WriteLine(string) error      { return nil }
func (Discard) Close(context.Context) error { return nil }
