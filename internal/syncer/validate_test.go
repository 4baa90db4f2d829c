package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/casefile/internal/provider"
)

func TestValidateFileMeta(t *testing.T) {
	cases := []struct {
		name string
		item provider.Item
		ok   bool
	}{
		{"pdf", provider.Item{Name: "Lease.PDF", MimeType: "application/pdf", Size: 10}, true},
		{"octet stream pdf", provider.Item{Name: "scan.pdf", MimeType: "application/octet-stream", Size: 10}, true},
		{"docx", provider.Item{Name: "nda.docx", MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Size: 10}, true},
		{"exe", provider.Item{Name: "b.exe", MimeType: "application/x-msdownload", Size: 10}, false},
		{"no extension", provider.Item{Name: "README", MimeType: "text/plain", Size: 10}, false},
		{"google doc", provider.Item{Name: "draft.pdf", MimeType: "application/vnd.google-apps.document", Size: 10}, false},
		{"too large", provider.Item{Name: "big.pdf", MimeType: "application/pdf", Size: 11}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateFileMeta(tc.item, 10)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrItemValidation)
		})
	}
}

func TestValidateFileContent(t *testing.T) {
	require.NoError(t, validateFileContent("a.pdf", []byte("%PDF-1.4 ...")))
	require.NoError(t, validateFileContent("notes.txt", []byte("anything")))
	require.ErrorIs(t, validateFileContent("a.pdf", []byte("<html>nope</html>")), ErrItemValidation)
	require.ErrorIs(t, validateFileContent("a.txt", nil), ErrItemValidation)
}

func TestContentType(t *testing.T) {
	require.Equal(t, "application/pdf", contentType(provider.Item{Name: "x.pdf", MimeType: "application/octet-stream"}))
	require.Equal(t, "text/plain", contentType(provider.Item{Name: "x.txt", MimeType: "text/plain"}))
	require.Equal(t, "application/octet-stream", contentType(provider.Item{Name: "x.bin"}))
}

func TestValidateEventBody(t *testing.T) {
	start := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, validateEventBody(provider.EventBody{Title: "Hearing", Start: start, End: start}))
	require.ErrorIs(t, validateEventBody(provider.EventBody{Title: " ", Start: start, End: start}), ErrItemValidation)
	require.ErrorIs(t, validateEventBody(provider.EventBody{Title: "x", End: start}), ErrItemValidation)
	require.ErrorIs(t, validateEventBody(provider.EventBody{Title: "x", Start: start, End: start.Add(-time.Minute)}), ErrItemValidation)
}
