package indexer

import (
	"path/filepath"
	"strings"
)

var extensionLanguages = map[string]string{
	".py":     "python",
	".js":     "javascript",
	".jsx":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".go":     "go",
	".rs":     "rust",
	".java":   "java",
	".rb":     "ruby",
	".php":    "php",
	".c":      "c",
	".h":      "c",
	".cpp":    "cpp",
	".hpp":    "cpp",
	".cs":     "csharp",
	".swift":  "swift",
	".kt":     "kotlin",
	".scala":  "scala",
	".vue":    "vue",
	".svelte": "svelte",
}

// DetectLanguage maps a file extension to a language name, or "" when the
// extension is unknown
func DetectLanguage(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}
