package screenshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Writer persists screenshot payloads and returns where they were stored.
type Writer interface {
	Write(ctx context.Context, data []byte, hint string) (string, error)
}

// FileWriter stores screenshots as PNG files under a base directory, one
// sub-directory per day.
type FileWriter struct {
	basePath string
	now      func() time.Time
	mu       sync.Mutex
}

// NewFileWriter creates the base directory and returns a writer for it.
func NewFileWriter(basePath string) (*FileWriter, error) {
	if basePath == "" {
		return nil, fmt.Errorf("screenshot path cannot be empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	return &FileWriter{basePath: basePath, now: time.Now}, nil
}

// BasePath returns the root directory.
func (w *FileWriter) BasePath() string { return w.basePath }

func (w *FileWriter) Write(ctx context.Context, data []byte, hint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty screenshot payload")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Join(w.basePath, w.now().Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.png", slug(hint), uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

// slug keeps file names portable: letters, digits, dash and underscore only.
func slug(hint string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(hint)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if r > unicode.MaxASCII {
				if !lastDash && b.Len() > 0 {
					b.WriteByte('-')
					lastDash = true
				}
				continue
			}
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= 60 {
			break
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if s == "" {
		return "screenshot"
	}
	return s
}
