package parser

import (
	"regexp"
	"strings"
)

// langSpec describes how declarations are recognized in a language without a
// dedicated parser. Leading lines with one of the comment prefixes directly
// above a declaration belong to it.
type langSpec struct {
	decl     *regexp.Regexp
	kind     func(match string) string
	comments []string
}

var (
	cStyleComments = []string{"//", "/*", "*", "@"}
	hashComments   = []string{"#", "@"}
)

var languageSpecs = map[string]langSpec{
	"python": {
		decl:     regexp.MustCompile(`(?m)^[ \t]*(?:async[ \t]+)?(def|class)[ \t]+([A-Za-z_]\w*)`),
		comments: hashComments,
	},
	"javascript": {
		decl:     regexp.MustCompile(`(?m)^(?:export[ \t]+)?(?:default[ \t]+)?(?:async[ \t]+)?(function\*?|class|const|let|var)[ \t]+([A-Za-z_$][\w$]*)`),
		comments: cStyleComments,
	},
	"typescript": {
		decl:     regexp.MustCompile(`(?m)^(?:export[ \t]+)?(?:default[ \t]+)?(?:declare[ \t]+)?(?:abstract[ \t]+)?(?:async[ \t]+)?(function\*?|class|interface|type|enum|const|let|var|namespace)[ \t]+([A-Za-z_$][\w$]*)`),
		comments: cStyleComments,
	},
	"rust": {
		decl:     regexp.MustCompile(`(?m)^[ \t]*(?:pub(?:\([^)\n]*\))?[ \t]+)?(?:async[ \t]+)?(?:unsafe[ \t]+)?(fn|struct|enum|trait|impl|mod|type|const|static)\b[ \t]*([A-Za-z_]\w*)?`),
		comments: []string{"///", "//!", "//", "#[", "/*", "*"},
	},
	"java": {
		decl:     regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|static|final|abstract|sealed|synchronized)[ \t]+)*(class|interface|enum|record)[ \t]+([A-Za-z_]\w*)`),
		comments: cStyleComments,
	},
	"csharp": {
		decl:     regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|internal|static|sealed|abstract|partial)[ \t]+)*(class|interface|enum|struct|record|namespace)[ \t]+([A-Za-z_][\w.]*)`),
		comments: []string{"///", "//", "/*", "*", "["},
	},
	"kotlin": {
		decl:     regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|internal|open|abstract|sealed|data|inline|suspend|override)[ \t]+)*(class|interface|object|fun|enum class)[ \t]+([A-Za-z_][\w.]*)`),
		comments: cStyleComments,
	},
	"scala": {
		decl:     regexp.MustCompile(`(?m)^[ \t]*(?:(?:private|protected|final|sealed|abstract|implicit|case|override)[ \t]+)*(class|trait|object|def)[ \t]+([A-Za-z_]\w*)`),
		comments: cStyleComments,
	},
	"swift": {
		decl:     regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|fileprivate|internal|open|final|static)[ \t]+)*(class|struct|enum|protocol|extension|func)[ \t]+([A-Za-z_]\w*)`),
		comments: cStyleComments,
	},
	"ruby": {
		decl:     regexp.MustCompile(`(?m)^[ \t]*(def|class|module)[ \t]+([\w:.?!]+)`),
		comments: []string{"#"},
	},
	"php": {
		decl:     regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|static|abstract|final)[ \t]+)*(function|class|interface|trait|enum)[ \t]+([A-Za-z_]\w*)`),
		comments: append([]string{"#"}, cStyleComments...),
	},
	"c": {
		decl:     regexp.MustCompile(`(?m)^(?:static[ \t]+|inline[ \t]+|extern[ \t]+)*(struct|enum|union|typedef|[A-Za-z_][\w \t\*]*?[ \t\*]+)([A-Za-z_]\w*)[ \t]*(?:\(|\{|$)`),
		comments: []string{"//", "/*", "*"},
	},
	"cpp": {
		decl:     regexp.MustCompile(`(?m)^(?:template[ \t]*<[^>\n]*>[ \t]*)?(?:static[ \t]+|inline[ \t]+|virtual[ \t]+|extern[ \t]+)*(namespace|class|struct|enum|union|[A-Za-z_][\w \t\*&:<>,]*?[ \t\*&]+)([A-Za-z_][\w:~]*)[ \t]*(?:\(|\{|$)`),
		comments: []string{"//", "/*", "*"},
	},
}

// goFallbackSpec is used when go/parser recovers nothing
var goFallbackSpec = langSpec{
	decl:     regexp.MustCompile(`(?m)^(func|type|var|const)\b[ \t]*(?:\([^)\n]*\)[ \t]*)?([A-Za-z_]\w*)?`),
	comments: []string{"//"},
}

func init() {
	// Single file components keep their logic in a <script> block
	languageSpecs["vue"] = languageSpecs["typescript"]
	languageSpecs["svelte"] = languageSpecs["typescript"]
}

// scanBoundaries finds declarations line by line with the language regex
func scanBoundaries(spec langSpec, content string) []Boundary {
	matches := spec.decl.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	bounds := make([]Boundary, 0, len(matches))
	for _, m := range matches {
		b := Boundary{Kind: KindDecl}
		if len(m) >= 4 && m[2] >= 0 {
			b.Kind = keywordKind(strings.TrimSpace(content[m[2]:m[3]]))
		}
		if len(m) >= 6 && m[4] >= 0 {
			b.Name = content[m[4]:m[5]]
		}

		start := lineStart(content, m[0])
		b.Offset = leadingComments(content, start, spec.comments)
		b.Line = strings.Count(content[:b.Offset], "\n") + 1
		bounds = append(bounds, b)
	}

	return bounds
}

// leadingComments extends a declaration start upward over the comment lines
// directly above it
func leadingComments(content string, start int, prefixes []string) int {
	for start > 0 {
		prev := lineStart(content, start-1)
		line := strings.TrimSpace(content[prev : start-1])
		if line == "" || !hasAnyPrefix(line, prefixes) {
			break
		}
		start = prev
	}
	return start
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func keywordKind(keyword string) string {
	switch keyword {
	case "def", "fn", "fun", "func", "function", "function*":
		return KindFunction
	case "class", "struct", "interface", "trait", "protocol", "record", "object", "enum class", "module":
		return KindClass
	case "type", "typedef", "enum", "union":
		return KindType
	case "const", "static":
		return KindConst
	case "let", "var":
		return KindVar
	default:
		return KindDecl
	}
}
