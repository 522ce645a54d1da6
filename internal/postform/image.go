package postform

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/blacktop/newpost/internal/api"
)

// Image is a file picked for upload, held entirely in memory.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// LoadImage reads the file at path. No type or size checks are made; the
// backend decides what it accepts.
func LoadImage(path string) (Image, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Image{}, errors.New("image path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Image{}, fmt.Errorf("image %q not found: %w", path, err)
		}
		return Image{}, fmt.Errorf("read image: %w", err)
	}

	return Image{
		Name:        filepath.Base(path),
		ContentType: detectContentType(path, data),
		Data:        data,
	}, nil
}

func detectContentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

func (img Image) file() api.File {
	return api.File{Name: img.Name, ContentType: img.ContentType, Data: img.Data}
}
