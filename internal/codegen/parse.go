package codegen

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"voice-commit/internal/model"
)

var (
	// **filename.ext** followed by a fenced block.
	namedBlockPattern = regexp.MustCompile("(?s)\\*\\*([^*]+)\\*\\*\\s*```(\\w+)?\\s*(.*?)```")
	// Bare fenced blocks with an optional language tag.
	bareBlockPattern = regexp.MustCompile("(?s)```(\\w+)?\\n(.*?)\\n```")
	schemePattern    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
)

var languageExtensions = map[string]string{
	"html":       "html",
	"css":        "css",
	"javascript": "js",
	"js":         "js",
	"python":     "py",
	"swift":      "swift",
	"java":       "java",
	"cpp":        "cpp",
	"c":          "c",
}

// ParseFiles extracts file blocks from free-form model output. Named blocks win; when there
// are none, bare fenced blocks get synthesized names from their language tag.
func ParseFiles(response string) []model.FileChange {
	var files []model.FileChange

	for _, m := range namedBlockPattern.FindAllStringSubmatch(response, -1) {
		p, ok := NormalizePath(m[1])
		if !ok {
			continue
		}
		files = append(files, model.FileChange{
			Path:      p,
			Content:   strings.TrimSpace(m[3]),
			Operation: model.OperationCreate,
		})
	}
	if len(files) > 0 {
		return files
	}

	for i, m := range bareBlockPattern.FindAllStringSubmatch(response, -1) {
		files = append(files, model.FileChange{
			Path:      synthesizeFilename(m[1], i),
			Content:   strings.TrimSpace(m[2]),
			Operation: model.OperationCreate,
		})
	}
	return files
}

func synthesizeFilename(language string, index int) string {
	ext, ok := languageExtensions[strings.ToLower(language)]
	if !ok {
		ext = "txt"
	}
	if index == 0 {
		return "main." + ext
	}
	return fmt.Sprintf("file%d.%s", index+1, ext)
}

// NormalizePath anchors p at the repository root. It reports false for paths that carry a
// scheme, escape the root, or are empty.
func NormalizePath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "`")
	if p == "" || schemePattern.MatchString(p) {
		return "", false
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
