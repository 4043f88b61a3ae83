// Package upload stores question images on local disk.
package upload

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrBadName is returned for file names that cannot be stored.
var ErrBadName = errors.New("invalid upload file name")

// Dir saves uploads under Root and serves them below URLPrefix.
type Dir struct {
	Root      string
	URLPrefix string
}

// New creates the root directory if needed.
func New(root, urlPrefix string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Dir{Root: root, URLPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Save writes data to Root/<uuid>/<name> and returns its URL. Each upload
// gets its own directory so equal file names never collide.
func (d *Dir) Save(name string, data []byte) (string, error) {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "", ErrBadName
	}
	id := uuid.NewString()
	dir := filepath.Join(d.Root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	slog.Info("saved upload", "name", name, "id", id, "bytes", len(data))
	return path.Join(d.URLPrefix, id, name), nil
}

// Handler serves saved files. mountPath is the full request path prefix the
// files are served under, usually the base path followed by URLPrefix.
func (d *Dir) Handler(mountPath string) http.Handler {
	return http.StripPrefix(mountPath, http.FileServer(http.Dir(d.Root)))
}
