package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrSourceNotFound is returned when a reference does not resolve to a stored upload.
var ErrSourceNotFound = errors.New("stored source not found")

// DiskStore keeps uploaded files below a root directory. References are
// slash-separated paths relative to the root.
type DiskStore struct {
	root string
	now  func() time.Time
}

// NewDiskStore creates the root directory when missing.
func NewDiskStore(root string) (*DiskStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("upload directory is not configured")
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ensure upload directory: %w", err)
	}
	return &DiskStore{root: root, now: time.Now}, nil
}

// Root is the directory uploads are written to.
func (s *DiskStore) Root() string {
	return s.root
}

// Save writes data to a new file and returns its reference. The file only
// becomes visible once fully written.
func (s *DiskStore) Save(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	day := s.now().UTC().Format("2006/01/02")
	dir := filepath.Join(s.root, filepath.FromSlash(day))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure upload directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp upload file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := io.Copy(tempFile, data); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}

	fileName := uuid.NewString() + "-" + sanitizeFileName(name)
	if err := os.Rename(tempPath, filepath.Join(dir, fileName)); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	cleanup = false
	return path.Join(day, fileName), nil
}

// Open returns the stored upload for ref.
func (s *DiskStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, ref)
		}
		return nil, fmt.Errorf("open upload: %w", err)
	}
	return file, nil
}

// Remove deletes a stored upload. Missing files are not an error.
func (s *DiskStore) Remove(ref string) error {
	fullPath, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

func (s *DiskStore) resolve(ref string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(ref))
	if cleaned == "/" {
		return "", fmt.Errorf("%w: empty reference", ErrSourceNotFound)
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))
	rel, err := filepath.Rel(s.root, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, ref)
	}
	return fullPath, nil
}

func sanitizeFileName(value string) string {
	value = strings.ToLower(filepath.Base(strings.TrimSpace(value)))
	if value == "." || value == string(filepath.Separator) {
		value = ""
	}
	ext := filepath.Ext(value)
	base := strings.TrimSuffix(value, ext)

	builder := strings.Builder{}
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		result = "upload"
	}

	cleanExt := strings.Builder{}
	for _, r := range ext {
		if r == '.' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cleanExt.WriteRune(r)
		}
	}
	return result + cleanExt.String()
}
