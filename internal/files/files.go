// Package files derives safe, unique on-disk names for downloaded media.
package files

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultStem is used when nothing usable can be derived from a URL or title.
const DefaultStem = "video-download"

const maxStemLength = 120

var (
	forbiddenChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	multiSpace     = regexp.MustCompile(`\s+`)
	separatorRuns  = regexp.MustCompile(`[_\-]+`)
)

// SanitizeStem turns an arbitrary title or identifier into a string that is
// safe to use as a file name stem on every supported filesystem. Empty input
// yields the fallback; overly long input is capped.
func SanitizeStem(value, fallback string) string {
	if fallback == "" {
		fallback = DefaultStem
	}
	stem := strings.TrimSpace(value)
	stem = forbiddenChars.ReplaceAllString(stem, "_")
	stem = multiSpace.ReplaceAllString(stem, " ")
	stem = strings.TrimSuffix(stem, ".")
	if stem == "" {
		stem = fallback
	}
	if runes := []rune(stem); len(runes) > maxStemLength {
		stem = string(runes[:maxStemLength])
	}
	return stem
}

// StemFromURL derives a stem from the last path segment of a direct download
// URL: the query string and any existing extension are stripped, forbidden
// characters replaced, and too-short results fall back to DefaultStem.
func StemFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	if base == "" || base == "/" || base == "." || len(base) < 3 {
		return DefaultStem
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	return SanitizeStem(base, DefaultStem)
}

// UniqueName resolves a collision-free file name in dir by appending " (n)"
// before the extension until no existing file matches. The check is
// best-effort at call time; a later duplicate-open error is the pipeline's
// problem, never a silent overwrite.
func UniqueName(dir, fileName string) string {
	ext := filepath.Ext(fileName)
	stem := strings.TrimSuffix(fileName, ext)
	candidate := fileName
	for n := 1; exists(filepath.Join(dir, candidate)); n++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	return candidate
}

// UniqueBase is UniqueName for a stem that will be combined with a known
// extension, as required by the extraction tool's output template.
func UniqueBase(dir, base, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	candidate := base
	for n := 1; exists(filepath.Join(dir, candidate+"."+ext)); n++ {
		candidate = fmt.Sprintf("%s (%d)", base, n)
	}
	return candidate
}

// Humanize turns a resolved file name into a display title: the extension is
// dropped, percent-escapes decoded and separator runs collapsed to spaces.
func Humanize(fileName string) string {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if decoded, err := url.QueryUnescape(stem); err == nil {
		stem = decoded
	}
	return separatorRuns.ReplaceAllString(stem, " ")
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
