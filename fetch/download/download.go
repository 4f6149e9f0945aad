// Package download streams response bodies to disk.
//
// [Handle] writes the body to a scratch file created alongside the
// destination, then renames it into place once the copy completed:
//
//	n, err := download.Handle(ctx, resp.Body, resp.ContentLength, destPath, logger,
//		download.WithScratch(scope.Register),
//	)
//
// The scratch file is removed on every failure path. When the destination
// directory does not accept new files, Handle fails with
// [ErrWritePermission] before a single byte is read from body.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// fileMode is the mode of a completed download.
const fileMode os.FileMode = 0o644

// Handle streams body to destPath and returns the number of bytes written.
func Handle(ctx context.Context, body io.Reader, contentLength int64, destPath string, logger *slog.Logger, optFns ...Option) (int64, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return 0, fmt.Errorf("applying option: %w", err)
		}
	}

	if destPath == "" {
		return 0, errors.New("destPath must not be empty")
	}

	file, err := os.CreateTemp(filepath.Dir(destPath), ".nativefetch-dl-*")
	if err != nil {
		return 0, &Error{
			Err:    ErrWritePermission,
			Detail: fmt.Sprintf("%s: %v", filepath.Dir(destPath), err),
		}
	}
	if opts.register != nil {
		opts.register(file.Name())
	}

	var successful bool
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("defer closing scratch file", "error", err)
		}
		if !successful {
			if err := os.Remove(file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Error("failed to remove scratch file", "error", err)
			}
		}
	}()

	body = &contextReader{ctx: ctx, r: body}

	var writer io.Writer = file
	if opts.progress != nil {
		now := time.Now()
		writer = &progressWriter{
			w:        writer,
			report:   opts.progress,
			interval: opts.interval,
			total:    contentLength,
			start:    now,
			last:     now,
		}
	}

	n, err := io.Copy(writer, body)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return n, fmt.Errorf("%w: %w", ErrDownloadCancelled, err)
		}

		return n, fmt.Errorf("copying body: %w", err)
	}

	if contentLength >= 0 && n != contentLength {
		return n, &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", contentLength, n),
		}
	}

	// CreateTemp leaves the scratch file owner-only.
	if err := file.Chmod(fileMode); err != nil {
		return n, fmt.Errorf("setting file mode: %w", err)
	}
	if err := file.Sync(); err != nil {
		return n, fmt.Errorf("syncing scratch file: %w", err)
	}
	if err := file.Close(); err != nil {
		return n, fmt.Errorf("closing scratch file: %w", err)
	}
	if err := os.Rename(file.Name(), destPath); err != nil {
		return n, fmt.Errorf("renaming scratch file: %w", err)
	}

	successful = true

	return n, nil
}

// contextReader fails reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.r.Read(p)
}
