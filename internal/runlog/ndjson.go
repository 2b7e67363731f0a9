package runlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bbque-tools/dse/internal/domain"
)

const (
	entryKindRecord  = "record"
	entryKindSummary = "summary"
)

// NDJSONSink writes one JSON object per line. The file is replaced at
// open; every record is flushed before Append returns so a crashed
// exploration still leaves a readable log.
type NDJSONSink struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

type entry struct {
	Kind    string            `json:"kind"`
	Record  *domain.RunRecord `json:"record,omitempty"`
	Summary *domain.Summary   `json:"summary,omitempty"`
}

func NewNDJSONSink(path string) (*NDJSONSink, error) {
	if path == "" {
		return nil, errors.New("run log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run log dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create run log: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &NDJSONSink{file: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (s *NDJSONSink) Append(ctx context.Context, record domain.RunRecord) error {
	if s.file == nil {
		return errors.New("run log closed")
	}
	if err := s.enc.Encode(entry{Kind: entryKindRecord, Record: &record}); err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	return s.buf.Flush()
}

func (s *NDJSONSink) Close(ctx context.Context, summary domain.Summary) error {
	if s.file == nil {
		return nil
	}
	encErr := s.enc.Encode(entry{Kind: entryKindSummary, Summary: &summary})
	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	s.file = nil
	return errors.Join(encErr, flushErr, closeErr)
}

// Release closes the file without writing a summary. It is a no-op once
// Close has run.
func (s *NDJSONSink) Release() error {
	if s.file == nil {
		return nil
	}
	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	s.file = nil
	return errors.Join(flushErr, closeErr)
}

// ReadNDJSON loads a run log written by NDJSONSink.
func ReadNDJSON(path string) ([]domain.RunRecord, *domain.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	var records []domain.RunRecord
	var summary *domain.Summary
	dec := json.NewDecoder(f)
	for dec.More() {
		var e entry
		if err := dec.Decode(&e); err != nil {
			return nil, nil, fmt.Errorf("decode run log: %w", err)
		}
		switch e.Kind {
		case entryKindRecord:
			if e.Record != nil {
				records = append(records, *e.Record)
			}
		case entryKindSummary:
			summary = e.Summary
		}
	}
	return records, summary, nil
}
