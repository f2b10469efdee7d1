// Package parser locates top-level declaration boundaries in source files so
// the chunker can split code where a human would.
//
// Go sources are parsed with go/parser and go/ast. Each top-level declaration
// (functions, methods, type/const/var/import groups) becomes a Boundary that
// starts at the first line of its doc comment. Syntax errors are non-fatal:
// the partial AST is used, and when nothing can be recovered a line-based
// fallback takes over.
//
// Other languages use per-language line patterns for their declaration
// keywords (def/class in Python, function/class/interface in TypeScript,
// fn/impl/struct in Rust, and so on). Comment and attribute lines directly
// above a declaration are attached to it.
//
// # Basic Usage
//
//	p := parser.New()
//	for _, b := range p.Boundaries("python", src) {
//	    fmt.Printf("%d: %s %s\n", b.Line, b.Kind, b.Name)
//	}
//
// Boundaries are returned sorted by offset with duplicates removed. Unknown
// languages return nil, which callers treat as "use fixed windows".
package parser
