package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var sizeUnits = []struct {
	div  float64
	name string
}{
	{1 << 30, "GB"},
	{1 << 20, "MB"},
	{1 << 10, "KB"},
}

func scaled(n float64, suffix string) string {
	for _, u := range sizeUnits {
		if n >= u.div {
			return fmt.Sprintf("%.2f %s%s", n/u.div, u.name, suffix)
		}
	}
	return fmt.Sprintf("%.0f B%s", n, suffix)
}

// FormatSize renders a byte count in binary units, e.g. "1.50 MB".
func FormatSize(bytes int64) string {
	return scaled(float64(bytes), "")
}

// FormatSpeed renders a rate in binary units per second.
func FormatSpeed(bytesPerSecond float64) string {
	return scaled(bytesPerSecond, "/s")
}

// GetUniqueFilename returns path, or the first free "name (n).ext"
// variant of it.
func GetUniqueFilename(path string) string {
	if !exists(path) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !exists(candidate) {
			return candidate
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// FormatTimeDuration renders d as "1h 2m 3s", dropping leading zero units.
func FormatTimeDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

// FormatMegabytes renders a size as fractional megabytes, e.g. "1.50 MB".
func FormatMegabytes(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
}

// SanitizeFilename reduces a peer-supplied name to a single safe path
// element. It returns "" when nothing usable is left.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	switch name {
	case "", ".", "..", "/":
		return ""
	}
	return name
}

// TruncateString shortens s to at most maxLen runes, ending in "..." when
// something was cut.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
