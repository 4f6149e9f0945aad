package fetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"
	"strings"

	"github.com/adamwoolhether/nativefetch/fetch/tempfile"
)

const (
	defaultPartMimeType = "application/octet-stream"
	defaultPartFileName = "upload.bin"
)

// Opener opens the content a ReferencedFile points to.
type Opener func(ctx context.Context, locator string) (io.ReadCloser, error)

// OpenFile is the default Opener. It accepts file system paths and file://
// URIs.
func OpenFile(_ context.Context, locator string) (io.ReadCloser, error) {
	path := locator
	if strings.HasPrefix(locator, "file://") {
		u, err := url.Parse(locator)
		if err != nil {
			return nil, err
		}
		path = u.Path
	}

	return os.Open(path)
}

// preparedPart is a part whose content is available locally.
type preparedPart struct {
	key      string
	text     string
	file     bool
	data     []byte
	path     string
	fileName string
	mimeType string
}

type multipartBody struct {
	boundary string
	parts    []preparedPart
}

// prepareMultipart decodes inline files and stages referenced files into
// scratch copies, so encoding never depends on the original locator.
func (e *Engine) prepareMultipart(ctx context.Context, b MultipartBody, scope *tempfile.Scope) (*multipartBody, error) {
	mp := multipartBody{
		boundary: multipart.NewWriter(io.Discard).Boundary(),
		parts:    make([]preparedPart, 0, len(b.Parts)),
	}

	for i, p := range b.Parts {
		switch v := p.Value.(type) {
		case TextValue:
			mp.parts = append(mp.parts, preparedPart{key: p.Key, text: string(v)})

		case Base64File:
			data, err := decodeBase64(v.Data)
			if err != nil {
				return nil, &Error{Err: ErrBody, Detail: fmt.Sprintf("part %q: decoding base64: %v", p.Key, err)}
			}
			mp.parts = append(mp.parts, preparedPart{
				key:      p.Key,
				file:     true,
				data:     data,
				fileName: orDefault(v.FileName, defaultPartFileName),
				mimeType: orDefault(v.MimeType, defaultPartMimeType),
			})

		case ReferencedFile:
			path, err := e.stage(ctx, v.Locator, scope)
			if err != nil {
				return nil, &Error{Err: ErrBody, Detail: fmt.Sprintf("part %q: %v", p.Key, err)}
			}
			mp.parts = append(mp.parts, preparedPart{
				key:      p.Key,
				file:     true,
				path:     path,
				fileName: orDefault(v.FileName, defaultPartFileName),
				mimeType: orDefault(v.MimeType, defaultPartMimeType),
			})

		default:
			e.logger.Warn("skipping unsupported multipart part", "index", i, "key", p.Key, "type", fmt.Sprintf("%T", p.Value))
		}
	}

	return &mp, nil
}

// stage copies the content behind locator into a scratch file registered
// with scope.
func (e *Engine) stage(ctx context.Context, locator string, scope *tempfile.Scope) (string, error) {
	src, err := e.opener(ctx, locator)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", locator, err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(e.tempDir, "nativefetch-upload-*")
	if err != nil {
		return "", fmt.Errorf("creating scratch file: %w", err)
	}
	scope.Register(dst.Name())

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copying %s: %w", locator, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("closing scratch file: %w", err)
	}

	return dst.Name(), nil
}

func (m *multipartBody) contentType() string {
	return "multipart/form-data; boundary=" + m.boundary
}

// open returns a fresh encoding of the body, produced as it is read.
func (m *multipartBody) open() io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		mw := multipart.NewWriter(pw)
		if err := mw.SetBoundary(m.boundary); err != nil {
			pw.CloseWithError(err)
			return
		}

		err := m.write(mw)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	return pr
}

func (m *multipartBody) write(mw *multipart.Writer) error {
	for _, p := range m.parts {
		if !p.file {
			if err := mw.WriteField(p.key, p.text); err != nil {
				return err
			}
			continue
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(p.key), escapeQuotes(p.fileName)))
		h.Set("Content-Type", p.mimeType)

		w, err := mw.CreatePart(h)
		if err != nil {
			return err
		}

		if p.path == "" {
			if _, err := w.Write(p.data); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(w, p.path); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// decodeBase64 accepts the standard and URL alphabets, padded or not, and
// ignores embedded whitespace.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")

	var firstErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return nil, firstErr
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
