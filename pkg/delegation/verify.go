package delegation

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jllopis/steward/pkg/errors"
)

const errorPreviewRunes = 200

// VerifyOutput checks the artifact a delegated agent was asked to write. It
// returns the file size on success. Failures carry CodeOutputInvalid and a
// human-readable reason as the error message.
//
// A missing or empty file always fails. Content that reads as an error
// report fails. When format names a known structured format the content
// must match it. Content that is not valid UTF-8 is accepted as is.
func VerifyOutput(path, format string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return 0, invalidOutput(path, "File does not exist: %s", path)
		}
		return 0, invalidOutput(path, "Failed to read file metadata: %v", err)
	}
	if info.IsDir() {
		return 0, invalidOutput(path, "Output path is a directory: %s", path)
	}
	size := info.Size()
	if size == 0 {
		return 0, invalidOutput(path, "File exists but is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil || !utf8.Valid(data) {
		return size, nil
	}
	content := string(data)

	if strings.HasPrefix(content, "ERROR:") || strings.Contains(content, `"error"`) {
		return size, invalidOutput(path, "File contains error: %s", preview(content, errorPreviewRunes))
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatStructuredJSON, FormatJSON:
		if !json.Valid(data) {
			return size, invalidOutput(path, "Output file is not valid JSON (expected %s)", format)
		}
	case FormatMarkdownArticle, FormatMarkdown, FormatMD:
		if !looksLikeMarkdown(content) {
			return size, invalidOutput(path, "Output does not appear to be valid markdown (expected %s)", format)
		}
	}
	return size, nil
}

// Reason renders err without its code prefix, keeping the cause.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var se *errors.StewardError
	if stderrors.As(err, &se) {
		if se.Err != nil {
			return se.Message + ": " + se.Err.Error()
		}
		return se.Message
	}
	return err.Error()
}

func looksLikeMarkdown(content string) bool {
	if len(strings.TrimSpace(content)) <= 10 {
		return false
	}
	return strings.ContainsAny(content, "#*[\n")
}

func invalidOutput(path, format string, args ...any) error {
	return errors.New(errors.CodeOutputInvalid, fmt.Sprintf(format, args...), nil).
		WithContext("output_path", path)
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
