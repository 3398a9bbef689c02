package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnsupportedContent marks documents the local extractor cannot read.
var ErrUnsupportedContent = errors.New("unsupported content for local extraction")

var textExtensions = map[string]struct{}{
	".txt":  {},
	".md":   {},
	".csv":  {},
	".json": {},
	".xml":  {},
	".html": {},
}

func isTextDocument(contentType, filename string) bool {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			switch {
			case strings.HasPrefix(mediaType, "text/"):
				return true
			case mediaType == "application/json", mediaType == "application/xml":
				return true
			}
		}
	}
	_, ok := textExtensions[strings.ToLower(path.Ext(filename))]
	return ok
}

// decodeText reads UTF-8 or BOM-marked UTF-16 content and returns it in NFC.
func decodeText(r io.Reader, limit int64) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if int64(len(raw)) > limit {
		return "", fmt.Errorf("document exceeds %d bytes", limit)
	}
	// Validate the input bytes, not the decoded text: a document may contain
	// a literal U+FFFD.
	if !hasUTF16BOM(raw) && !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: content is not UTF-8 or UTF-16 text", ErrUnsupportedContent)
	}
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	decoded, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return "", fmt.Errorf("decode document: %w", err)
	}
	return norm.NFC.String(string(decoded)), nil
}

func hasUTF16BOM(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) || bytes.HasPrefix(raw, []byte{0xFE, 0xFF})
}
