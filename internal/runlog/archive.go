package runlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bbque-tools/dse/internal/domain"
)

// Archive receives uploaded artifacts; *objectstore.Archive implements it.
type Archive interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// ObjectUploader archives finished run artifacts under <run_id>/.
// Records are not streamed; the files are uploaded once at Close.
type ObjectUploader struct {
	archive Archive
	files   []string
}

func NewObjectUploader(archive Archive, files ...string) (*ObjectUploader, error) {
	if archive == nil {
		return nil, errors.New("archive is required")
	}
	return &ObjectUploader{archive: archive, files: files}, nil
}

func (u *ObjectUploader) Append(ctx context.Context, record domain.RunRecord) error {
	return nil
}

// Close uploads the summary and every configured file. Missing files are
// skipped so a debug log that was never enabled does not fail the upload.
func (u *ObjectUploader) Close(ctx context.Context, summary domain.Summary) error {
	if strings.TrimSpace(summary.RunID) == "" {
		return errors.New("run id is required")
	}
	var errs []error

	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	key := path.Join(summary.RunID, "summary.json")
	if err := u.archive.Upload(ctx, key, bytes.NewReader(raw), int64(len(raw)), "application/json"); err != nil {
		errs = append(errs, fmt.Errorf("upload %s: %w", key, err))
	}

	for _, file := range u.files {
		if err := u.uploadFile(ctx, summary.RunID, file); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *ObjectUploader) uploadFile(ctx context.Context, runID, file string) error {
	f, err := os.Open(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", file, err)
	}
	key := path.Join(runID, filepath.Base(file))
	if err := u.archive.Upload(ctx, key, f, info.Size(), contentType(file)); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".ndjson":
		return "application/x-ndjson"
	case ".json":
		return "application/json"
	case ".prom":
		return "text/plain; version=0.0.4"
	default:
		return "text/plain"
	}
}
