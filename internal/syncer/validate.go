package syncer

import (
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jw6ventures/casefile/internal/provider"
)

// allowedTypes maps accepted file extensions to the mime types Drive may
// report for them.
var allowedTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	".odt":  {"application/vnd.oasis.opendocument.text"},
	".rtf":  {"application/rtf", "text/rtf"},
	".txt":  {"text/plain"},
	".xls":  {"application/vnd.ms-excel"},
	".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	".png":  {"image/png"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
}

// sniffed lists extensions whose content must match what net/http detects.
var sniffed = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

func validateFileMeta(item provider.Item, maxBytes int64) error {
	ext := strings.ToLower(filepath.Ext(item.Name))
	mimes, ok := allowedTypes[ext]
	if !ok {
		return fmt.Errorf("%w: disallowed file type %q (%s)", ErrItemValidation, ext, item.MimeType)
	}
	if item.MimeType != "" && item.MimeType != "application/octet-stream" && !slices.Contains(mimes, item.MimeType) {
		return fmt.Errorf("%w: disallowed file type: mime %s does not match %s", ErrItemValidation, item.MimeType, ext)
	}
	if item.Size > maxBytes {
		return fmt.Errorf("%w: file is %d bytes, limit is %d", ErrItemValidation, item.Size, maxBytes)
	}
	return nil
}

func validateFileContent(name string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: file is empty", ErrItemValidation)
	}
	ext := strings.ToLower(filepath.Ext(name))
	want, ok := sniffed[ext]
	if !ok {
		return nil
	}
	got := http.DetectContentType(data)
	if !strings.HasPrefix(got, want) {
		return fmt.Errorf("%w: content looks like %s, not %s", ErrItemValidation, got, want)
	}
	return nil
}

// contentType picks the stored mime type for a file.
func contentType(item provider.Item) string {
	if item.MimeType != "" && item.MimeType != "application/octet-stream" {
		return item.MimeType
	}
	if mimes, ok := allowedTypes[strings.ToLower(filepath.Ext(item.Name))]; ok {
		return mimes[0]
	}
	return "application/octet-stream"
}

func validateEventBody(body provider.EventBody) error {
	switch {
	case strings.TrimSpace(body.Title) == "":
		return fmt.Errorf("%w: event has no title", ErrItemValidation)
	case body.Start.IsZero():
		return fmt.Errorf("%w: event has no start time", ErrItemValidation)
	case body.End.Before(body.Start):
		return fmt.Errorf("%w: event ends before it starts", ErrItemValidation)
	}
	return nil
}
