package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/adamwoolhether/nativefetch/fetch/download"
	"github.com/adamwoolhether/nativefetch/fetch/registry"
	"github.com/adamwoolhether/nativefetch/fetch/tempfile"
)

const defaultResponseMimeType = "application/octet-stream"

// materialize converts resp into a Result according to o.ResponseType.
// The caller drains and closes the body.
func (e *Engine) materialize(ctx context.Context, resp *http.Response, o Options, scope *tempfile.Scope) (*Result, error) {
	res := Result{
		Status:  resp.StatusCode,
		Headers: flattenHeaders(resp.Header),
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = defaultResponseMimeType
	}

	switch o.ResponseType {
	case ResponseFile, ResponseBlob:
		path, err := e.saveBody(ctx, resp, o, scope)
		if err != nil {
			return nil, err
		}
		res.Body = FileBody{Path: path, MimeType: mimeType}

	case ResponseBase64:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: reading body: %w", ErrFetch, err)
		}
		res.Body = Base64Body{Data: base64.StdEncoding.EncodeToString(b), MimeType: mimeType}

	default:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: reading body: %w", ErrFetch, err)
		}
		res.Body = TextBody(decodeText(b, resp.Header.Get("Content-Type")))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &res, &HTTPStatusError{Result: &res, Err: ErrRequestFailed}
	}

	return &res, nil
}

// decodeText converts b to UTF-8 using the charset named by contentType.
// A missing, unknown or broken charset leaves b as is.
func decodeText(b []byte, contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(b)
	}

	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(b)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(b)
	}

	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}

	return string(out)
}

// saveBody streams the body into the requested directory. The destination
// is chosen by the caller and never removed automatically; only the
// scratch file used while streaming is registered with scope.
func (e *Engine) saveBody(ctx context.Context, resp *http.Response, o Options, scope *tempfile.Scope) (string, error) {
	dir, err := e.dirs.Resolve(o.FileSaveDirectory)
	if err != nil {
		return "", &DownloadError{Err: ErrWritePermission, Detail: err.Error()}
	}

	name := o.FileName
	if name == "" {
		name = fmt.Sprintf("%d.bin", time.Now().UnixMilli())
	}
	dest := filepath.Join(dir, name)

	contentLength := resp.ContentLength
	if resp.Request != nil && resp.Request.Method == http.MethodHead {
		contentLength = -1
	}

	optFns := []download.Option{download.WithScratch(scope.Register)}
	if registry.Verbose() {
		optFns = append(optFns, download.WithProgress(func(p download.Progress) {
			e.logger.Info("saving response body",
				"path", dest,
				"transferred", p.Transferred,
				"total", p.Total,
				"percent", fmt.Sprintf("%.1f", p.Percent()),
				"elapsed", p.Elapsed.Round(time.Millisecond),
				"done", p.Done,
			)
		}, time.Second))
	}

	if _, err := download.Handle(ctx, resp.Body, contentLength, dest, e.logger, optFns...); err != nil {
		if errors.Is(err, ErrWritePermission) {
			e.logger.Error("destination not writable", "path", dest, "error", err)
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}

	return dest, nil
}

// flattenHeaders keeps the last value received for every header name.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[len(vs)-1]
		}
	}

	return out
}
