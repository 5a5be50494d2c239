package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsupportedImage = errors.New("image must be JPEG, PNG or WebP")

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// SniffImage detects the content type from the image bytes; the client's
// declared type is not trusted.
func SniffImage(data []byte) (string, error) {
	ct := http.DetectContentType(data)
	if _, ok := imageExtensions[ct]; !ok {
		return "", ErrUnsupportedImage
	}
	return ct, nil
}

type ImageStore interface {
	Save(ctx context.Context, img Image) (ref string, err error)
	Delete(ctx context.Context, ref string) error
}

// LocalImageStore keeps uploads in a directory. Refs are file names.
type LocalImageStore struct {
	dir string
}

func NewLocalImageStore(dir string) (*LocalImageStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &LocalImageStore{dir: dir}, nil
}

func (s *LocalImageStore) Save(_ context.Context, img Image) (string, error) {
	ext, ok := imageExtensions[img.ContentType]
	if !ok {
		return "", ErrUnsupportedImage
	}
	ref := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, ref), img.Data, 0o640); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return ref, nil
}

func (s *LocalImageStore) Delete(_ context.Context, ref string) error {
	if ref == "" || strings.ContainsAny(ref, `/\`) || ref != filepath.Base(ref) {
		return fmt.Errorf("invalid image ref %q", ref)
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *LocalImageStore) Path(ref string) string {
	return filepath.Join(s.dir, filepath.Base(ref))
}
