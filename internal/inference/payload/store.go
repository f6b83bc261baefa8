package payload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Store holds payload bytes under content-derived references.
type Store interface {
	Put(ctx context.Context, data []byte, ext string) (string, error)
	Read(ctx context.Context, ref string) ([]byte, error)
}

// ContentRef is the md5 of data followed by the lowercased extension, so
// storing the same bytes twice yields the same reference.
func ContentRef(data []byte, ext string) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]) + strings.ToLower(ext)
}

// PutFile copies a file from disk into s.
func PutFile(ctx context.Context, s Store, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Put(ctx, data, filepath.Ext(path))
}

// MIMEType guesses the media type from the reference extension, falling back
// to sniffing the content.
func MIMEType(ref string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(ref)); t != "" {
		return strings.SplitN(t, ";", 2)[0]
	}
	return strings.SplitN(http.DetectContentType(data), ";", 2)[0]
}

// FindFiles expands glob patterns, including "**", into regular files.
func FindFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, err
		}
		for _, name := range matches {
			info, err := os.Lstat(name)
			if err != nil {
				continue
			}
			if info.Mode().IsRegular() {
				files = append(files, name)
			}
		}
	}
	return files, nil
}
