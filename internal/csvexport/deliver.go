package csvexport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
)

// DefaultMIMEType is used when Download is given no MIME type.
const DefaultMIMEType = "text/csv"

// ErrDownloadFailed is returned when the host delivery mechanism fails.
// The underlying cause is wrapped.
var ErrDownloadFailed = errors.New("failed to download file")

// File is a fully rendered download.
type File struct {
	Name     string
	MIMEType string
	Content  []byte
}

// Deliverer presents a File to the user, e.g. as a browser save-as or a file
// on disk. Implementations must not leave partial output behind on failure.
type Deliverer interface {
	Deliver(ctx context.Context, f File) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, f File) error

// Deliver calls fn(ctx, f).
func (fn DelivererFunc) Deliver(ctx context.Context, f File) error {
	return fn(ctx, f)
}

// Download hands content to d as filename. An empty mimeType means text/csv.
// Any failure is logged and returned wrapped in ErrDownloadFailed.
func Download(ctx context.Context, d Deliverer, content, filename, mimeType string) error {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	if d == nil {
		return fmt.Errorf("%w: no deliverer configured", ErrDownloadFailed)
	}
	if filename == "" {
		return fmt.Errorf("%w: empty filename", ErrDownloadFailed)
	}

	err := d.Deliver(ctx, File{
		Name:     filename,
		MIMEType: mimeType,
		Content:  []byte(content),
	})
	if err != nil {
		slog.Error("download failed", "filename", filename, "error", err)
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return nil
}

// HTTPDeliverer streams the file to an HTTP client as an attachment.
type HTTPDeliverer struct {
	W http.ResponseWriter
}

// Deliver writes the download headers and body. The body is already fully
// rendered, so headers are only sent once there is something to send.
func (h HTTPDeliverer) Deliver(ctx context.Context, f File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ct := f.MIMEType
	if strings.HasPrefix(ct, "text/") && !strings.Contains(ct, "charset") {
		ct += "; charset=utf-8"
	}

	hdr := h.W.Header()
	hdr.Set("Content-Type", ct)
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	hdr.Set("Content-Length", strconv.Itoa(len(f.Content)))
	hdr.Set("X-Content-Type-Options", "nosniff")

	if _, err := h.W.Write(f.Content); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// DirDeliverer saves the file into Dir. Writes go through a temporary file
// that is renamed into place, so a failed write never leaves a truncated
// export. A same-named file from an earlier export is replaced.
type DirDeliverer struct {
	Dir string
}

// Deliver writes f into the directory.
func (d DirDeliverer) Deliver(ctx context.Context, f File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := filepath.Base(f.Name)
	if name != f.Name || name == "." || name == ".." {
		return fmt.Errorf("invalid filename %q", f.Name)
	}

	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(d.Dir, name)
	if err := atomic.WriteFile(path, bytes.NewReader(f.Content)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Path returns where a file named filename ends up.
func (d DirDeliverer) Path(filename string) string {
	return filepath.Join(d.Dir, filename)
}
