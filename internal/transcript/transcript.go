// Package transcript records every byte exchanged on a protocol
// connection as newline-delimited JSON, one file per connection attempt.
package transcript

import (
	"bufio"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/presencectl/internal/observability"
	"github.com/rs/zerolog/log"
)

const (
	HeaderType    = "valorant-xmpp-logger"
	HeaderVersion = "1.1.0"

	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

var (
	ErrClosed        = errors.New("transcript: writer closed")
	ErrInvalidHeader = errors.New("transcript: invalid header")
)

type Header struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// Entry is one recorded chunk. Time is epoch milliseconds.
type Entry struct {
	Type string `json:"type"`
	Time int64  `json:"time"`
	Data string `json:"data"`
}

func (e Entry) At() time.Time {
	return time.UnixMilli(e.Time)
}

// Writer appends entries to one transcript file. Safe for concurrent use.
type Writer struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

// Open creates <dir>/<epoch-ms>.txt and writes the header line.
func Open(dir string, now func() time.Time) (*Writer, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create dir: %w", err)
	}
	path := filepath.Join(dir, strconv.FormatInt(now().UnixMilli(), 10)+".txt")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transcript: open: %w", err)
	}
	w := &Writer{
		path: path,
		now:  now,
		file: file,
		buf:  bufio.NewWriter(file),
	}
	if err := w.writeLine(Header{Type: HeaderType, Version: HeaderVersion}); err != nil {
		_ = file.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("transcript.Open created")
	return w, nil
}

func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Incoming(data []byte) error {
	return w.record(DirectionIncoming, string(data))
}

func (w *Writer) Outgoing(data string) error {
	return w.record(DirectionOutgoing, data)
}

func (w *Writer) record(direction string, data string) error {
	if err := w.writeLine(Entry{Type: direction, Time: w.now().UnixMilli(), Data: data}); err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("transcript.Writer.record failed")
		return err
	}
	observability.RecordTranscriptBytes(direction, len(data))
	return nil
}

// writeLine flushes after each line so a crash loses at most one entry.
func (w *Writer) writeLine(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transcript: encode: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := w.buf.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("transcript: write: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("transcript: flush: %w", err)
	}
	return nil
}

// Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	return errors.Join(flushErr, closeErr)
}

// Read parses a transcript stream: the header line followed by entries.
func Read(r io.Reader) (Header, []Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Header{}, nil, err
		}
		return Header{}, nil, fmt.Errorf("%w: empty transcript", ErrInvalidHeader)
	}
	var header Header
	if err := json.Unmarshal(sc.Bytes(), &header); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if header.Type != HeaderType {
		return Header{}, nil, fmt.Errorf("%w: type=%q", ErrInvalidHeader, header.Type)
	}

	entries := []Entry{}
	line := 1
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return header, entries, fmt.Errorf("transcript: line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return header, entries, sc.Err()
}

// ReadFile is Read over a file path.
func ReadFile(path string) (Header, []Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()
	return Read(f)
}

// List returns transcript files in dir, oldest first.
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	type named struct {
		path string
		ms   int64
	}
	out := make([]named, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		ms, err := strconv.ParseInt(base[:len(base)-len(".txt")], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, named{path: m, ms: ms})
	}
	slices.SortFunc(out, func(a, b named) int { return cmp.Compare(a.ms, b.ms) })
	paths := make([]string, len(out))
	for i, n := range out {
		paths[i] = n.path
	}
	return paths, nil
}
