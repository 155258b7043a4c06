package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
)

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file too large")
	ErrNotAnImage      = errors.New("file is not an image")
	ErrInvalidCurrency = errors.New("currency must be a three letter ISO code")
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	strictPolicy  = bluemonday.StrictPolicy()
)

// allowedImageTypes are the sniffed content types accepted for artwork images.
var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// ValidateImageFile sniffs the content type of data and enforces the size limit.
// It returns the detected content type.
func ValidateImageFile(data []byte, maxSize int64) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(data), maxSize)
	}
	detected := mimetype.Detect(data)
	for _, allowed := range allowedImageTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("%w: detected %s", ErrNotAnImage, detected.String())
}

// SanitizeText strips all markup and surrounding whitespace from user supplied text.
func SanitizeText(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(strictPolicy.Sanitize(input))
}

// NormalizeTags trims and sanitizes tags, drops empty ones and removes
// case-insensitive duplicates while keeping the first spelling.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = SanitizeText(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

// NormalizeCurrency upper-cases the code and checks its shape.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !currencyRegex.MatchString(code) {
		return "", ErrInvalidCurrency
	}
	return code, nil
}
