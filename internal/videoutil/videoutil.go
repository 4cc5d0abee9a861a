// Package videoutil holds the pure helpers shared by the upload and project
// code: identifiers, human readable sizes and durations, and upload validation.
package videoutil

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/clipwave/clipwave/pkg/models"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateID returns a session-unique identifier: unix millis plus a 9 char
// base36 suffix. It is not suitable for anything security related.
func GenerateID() string {
	var suffix [9]byte
	for i := range suffix {
		suffix[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + string(suffix[:])
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders bytes with base-1024 units rounded to two decimals
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	value, i := float64(bytes), 0
	for value >= 1024 && i < len(sizeUnits)-1 {
		value /= 1024
		i++
	}
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatDuration renders seconds as M:SS
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// StripExtension drops the last extension of a file name. Names that are only
// an extension (".mp4") are kept as they are.
func StripExtension(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return base
	}
	return strings.TrimSuffix(base, ext)
}

// IsSupportedType reports whether mimeType is an accepted upload format
func IsSupportedType(mimeType string) bool {
	switch mimeType {
	case models.MimeTypeMP4, models.MimeTypeQuickTime, models.MimeTypeWebM:
		return true
	}
	return false
}

// ValidateVideoFile checks an upload against the accepted formats and the
// size ceiling. The format is checked first, so a file violating both rules
// always reports UnsupportedFormat.
func ValidateVideoFile(mimeType string, size int64) error {
	if !IsSupportedType(mimeType) {
		return &ValidationError{
			Kind:    KindUnsupportedFormat,
			Field:   "type",
			Message: "unsupported format, use MP4, MOV or WebM",
		}
	}
	if size > models.MaxVideoFileSize {
		return &ValidationError{
			Kind:    KindFileTooLarge,
			Field:   "size",
			Message: "file too large, maximum is " + FormatFileSize(models.MaxVideoFileSize),
		}
	}
	return nil
}
