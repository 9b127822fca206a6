// Package files checks the paths a sender passes on the command line.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const defaultMIMEType = "application/octet-stream"

var (
	ErrNoFiles     = errors.New("no files specified")
	ErrMissing     = errors.New("file does not exist")
	ErrIsDirectory = errors.New("is a directory (zip it first)")
	ErrNotRegular  = errors.New("not a regular file")
)

// FileInfo describes a file that is ready to send.
type FileInfo struct {
	Path string // absolute
	Name string // base name announced to the receiver
	Size int64
	Type string // MIME type guessed from the extension

	IsReadable bool
}

// ValidateFiles resolves every path and reports all problems at once, one
// per line, so a user fixing a long command line sees the full list.
func ValidateFiles(paths []string) ([]FileInfo, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}

	infos := make([]FileInfo, 0, len(paths))
	var problems []string
	for _, p := range paths {
		info, err := inspect(p)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		infos = append(infos, info)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("file validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return infos, nil
}

func inspect(path string) (FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: resolve path: %w", path, err)
	}

	st, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return FileInfo{}, fmt.Errorf("%s: %w", path, ErrMissing)
	case err != nil:
		return FileInfo{}, fmt.Errorf("%s: stat: %w", path, err)
	case st.IsDir():
		return FileInfo{}, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	case !st.Mode().IsRegular():
		return FileInfo{}, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}

	f, err := os.Open(abs)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	f.Close()

	return FileInfo{
		Path:       abs,
		Name:       filepath.Base(abs),
		Size:       st.Size(),
		Type:       mimeType(abs),
		IsReadable: true,
	}, nil
}

func mimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return defaultMIMEType
}

// GetTotalSize sums the sizes of infos.
func GetTotalSize(infos []FileInfo) int64 {
	var total int64
	for _, f := range infos {
		total += f.Size
	}
	return total
}
