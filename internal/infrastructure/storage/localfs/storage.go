package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/testgen-assistant/internal/core/ports"
)

// SourceTree walks a directory of source files with a single extension.
type SourceTree struct {
	basePath  string
	extension string
}

func New(basePath, extension string) *SourceTree {
	if basePath == "" {
		basePath = "./test_code"
	}
	if extension == "" {
		extension = ".java"
	}
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return &SourceTree{basePath: basePath, extension: extension}
}

func (s *SourceTree) Root() string {
	return s.basePath
}

// List returns matching files in lexical walk order. Hidden directories and
// files are not visited. A missing root yields no files.
func (s *SourceTree) List(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(s.basePath); errors.Is(err, fs.ErrNotExist) {
		slog.Warn("source_root_missing", "root", s.basePath)
		return nil, nil
	}

	var out []string
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("source_walk_error", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != s.basePath && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), s.extension) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source root: %w", err)
	}
	return out, nil
}

func (s *SourceTree) Read(ctx context.Context, path string) (ports.SourceFile, error) {
	if err := ctx.Err(); err != nil {
		return ports.SourceFile{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ports.SourceFile{}, fmt.Errorf("read source file: %w", err)
	}
	if !utf8.Valid(raw) {
		return ports.SourceFile{}, fmt.Errorf("source file is not valid utf-8: %s", path)
	}
	return ports.SourceFile{Path: path, Content: string(raw)}, nil
}
