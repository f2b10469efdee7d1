package parser

import (
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strings"
)

// Declaration kinds reported in a Boundary
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindType      = "type"
	KindConst     = "const"
	KindVar       = "var"
	KindImport    = "import"
	KindClass     = "class"
	KindDecl      = "declaration"
	KindUndefined = ""
)

// Boundary marks the start of a top-level declaration in source text
type Boundary struct {
	Offset int // byte offset of the first line of the declaration, leading comments included
	Line   int // 1-based line of Offset
	Kind   string
	Name   string
}

// Parser finds declaration boundaries in source files
type Parser struct {
	fset *token.FileSet
}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{
		fset: token.NewFileSet(),
	}
}

// Supports reports whether boundaries can be detected for language
func (p *Parser) Supports(language string) bool {
	if language == "go" {
		return true
	}
	_, ok := languageSpecs[language]
	return ok
}

// Boundaries returns the declaration boundaries of content in ascending offset
// order. Unknown languages yield no boundaries. Syntax errors in Go sources are
// non-fatal: whatever the parser recovered is used, and the regex rules take
// over when nothing was recovered.
func (p *Parser) Boundaries(language, content string) []Boundary {
	if content == "" {
		return nil
	}

	var bounds []Boundary
	switch language {
	case "go":
		bounds = p.goBoundaries(content)
		if len(bounds) == 0 {
			bounds = scanBoundaries(goFallbackSpec, content)
		}
	default:
		spec, ok := languageSpecs[language]
		if !ok {
			return nil
		}
		bounds = scanBoundaries(spec, content)
	}

	return normalize(bounds)
}

// goBoundaries walks top-level declarations using go/ast
func (p *Parser) goBoundaries(content string) []Boundary {
	file, _ := parser.ParseFile(p.fset, "", content, parser.ParseComments|parser.SkipObjectResolution)
	if file == nil {
		return nil
	}

	tf := p.fset.File(file.Pos())
	if tf == nil {
		return nil
	}

	bounds := make([]Boundary, 0, len(file.Decls))
	for _, decl := range file.Decls {
		start := decl.Pos()
		b := Boundary{}

		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Doc != nil {
				start = d.Doc.Pos()
			}
			b.Name = d.Name.Name
			b.Kind = KindFunction
			if d.Recv != nil && len(d.Recv.List) > 0 {
				b.Kind = KindMethod
				if recv := receiverType(d.Recv.List[0].Type); recv != "" {
					b.Name = recv + "." + d.Name.Name
				}
			}
		case *ast.GenDecl:
			if d.Doc != nil {
				start = d.Doc.Pos()
			}
			b.Kind = genDeclKind(d.Tok)
			b.Name = genDeclName(d)
		default:
			// *ast.BadDecl from a syntax error
			b.Kind = KindUndefined
		}

		if !start.IsValid() {
			continue
		}
		b.Offset = lineStart(content, tf.Offset(start))
		b.Line = tf.Line(start)
		bounds = append(bounds, b)
	}

	return bounds
}

func genDeclKind(tok token.Token) string {
	switch tok {
	case token.TYPE:
		return KindType
	case token.CONST:
		return KindConst
	case token.VAR:
		return KindVar
	case token.IMPORT:
		return KindImport
	default:
		return KindDecl
	}
}

// genDeclName names a declaration group after its first spec
func genDeclName(d *ast.GenDecl) string {
	if len(d.Specs) == 0 {
		return ""
	}
	switch s := d.Specs[0].(type) {
	case *ast.TypeSpec:
		return s.Name.Name
	case *ast.ValueSpec:
		if len(s.Names) > 0 {
			return s.Names[0].Name
		}
	case *ast.ImportSpec:
		return strings.Trim(s.Path.Value, `"`)
	}
	return ""
}

// receiverType extracts the receiver type name from a method
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	}
	return ""
}

// lineStart moves offset back to the beginning of its line
func lineStart(content string, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	if i := strings.LastIndexByte(content[:offset], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

// normalize sorts boundaries and drops duplicate offsets, keeping the first
func normalize(bounds []Boundary) []Boundary {
	if len(bounds) == 0 {
		return nil
	}
	sort.SliceStable(bounds, func(i, j int) bool {
		return bounds[i].Offset < bounds[j].Offset
	})

	out := bounds[:1]
	for _, b := range bounds[1:] {
		if b.Offset == out[len(out)-1].Offset {
			continue
		}
		out = append(out, b)
	}
	return out
}
