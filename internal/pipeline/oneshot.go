package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParseUploadFile reads an upload from disk, choosing the parser by extension.
func ParseUploadFile(path string) (ParseResult, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return ParseResult{}, err
	}
	return ParseUpload(filepath.Ext(path), blob)
}

// ParseUpload parses content of the given type: "xlsx", "html" or "htm",
// with or without the leading dot.
func ParseUpload(inputType string, content []byte) (ParseResult, error) {
	switch strings.ToLower(strings.TrimPrefix(inputType, ".")) {
	case "xlsx":
		return ParseUploadXLSX(content)
	case "html", "htm":
		return ParseUploadHTML(string(content))
	default:
		return ParseResult{}, fmt.Errorf("unsupported upload type: %q", inputType)
	}
}
