// Package config loads process settings from the environment and binds the
// scan endpoint from the server configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Entry is one directive of the configuration file: a name, an optional
// value and an optional block of child directives.
type Entry struct {
	Name     string
	Value    string
	HasValue bool
	File     string
	Line     int
	Children []*Entry
}

// Find returns the children of e named name, in file order.
func (e *Entry) Find(name string) []*Entry {
	var out []*Entry
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// ParseFile reads and parses the configuration file at path.
func ParseFile(path string) ([]*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse parses configuration text. The grammar is
//
//	name [value] [{ directives }] ;
//
// with quoted or bare words, "//", "#" and "/* */" comments, and the
// shorthand "a::b::c value;" for "a { b { c value; }; };".
func Parse(file string, data []byte) ([]*Entry, error) {
	toks, err := lex(file, string(data))
	if err != nil {
		return nil, err
	}
	p := &parser{file: file, toks: toks}
	entries, err := p.block(false)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokOpen
	tokClose
	tokSemi
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	line int
}

func lex(file, src string) ([]token, error) {
	var toks []token
	line := 1
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#' || strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case strings.HasPrefix(src[i:], "/*"):
			start := line
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, &ConfigError{File: file, Line: start, Msg: "unterminated comment"}
			}
			line += strings.Count(src[i:i+2+end], "\n")
			i += end + 4
		case c == '{':
			toks = append(toks, token{kind: tokOpen, text: "{", line: line})
			i++
		case c == '}':
			toks = append(toks, token{kind: tokClose, text: "}", line: line})
			i++
		case c == ';':
			toks = append(toks, token{kind: tokSemi, text: ";", line: line})
			i++
		case c == '"':
			start := line
			var sb strings.Builder
			i++
			for {
				if i >= len(src) {
					return nil, &ConfigError{File: file, Line: start, Msg: "unterminated string"}
				}
				if src[i] == '\\' && i+1 < len(src) {
					sb.WriteByte(src[i+1])
					i += 2
					continue
				}
				if src[i] == '"' {
					i++
					break
				}
				if src[i] == '\n' {
					line++
				}
				sb.WriteByte(src[i])
				i++
			}
			toks = append(toks, token{kind: tokString, text: sb.String(), line: start})
		default:
			start := i
			for i < len(src) && !strings.ContainsRune(" \t\r\n{};\"", rune(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: src[start:i], line: line})
		}
	}
	return append(toks, token{kind: tokEOF, line: line}), nil
}

type parser struct {
	file string
	toks []token
	pos  int
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) errorf(line int, format string, args ...any) error {
	return &ConfigError{File: p.file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// block parses directives until EOF, or until the closing brace when nested.
func (p *parser) block(nested bool) ([]*Entry, error) {
	var entries []*Entry
	for {
		t := p.peek()
		switch t.kind {
		case tokEOF:
			if nested {
				return nil, p.errorf(t.line, "unexpected end of file, missing '}'")
			}
			return entries, nil
		case tokClose:
			if !nested {
				return nil, p.errorf(t.line, "unexpected '}'")
			}
			p.next()
			return entries, nil
		case tokSemi:
			p.next()
		default:
			e, err := p.directive()
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}
}

func (p *parser) directive() (*Entry, error) {
	name := p.next()
	if name.kind != tokWord && name.kind != tokString {
		return nil, p.errorf(name.line, "expected directive name, got %q", name.text)
	}
	e := &Entry{Name: name.text, File: p.file, Line: name.line}

	if t := p.peek(); t.kind == tokWord || t.kind == tokString {
		p.next()
		e.Value, e.HasValue = t.text, true
	}
	if p.peek().kind == tokOpen {
		p.next()
		children, err := p.block(true)
		if err != nil {
			return nil, err
		}
		e.Children = children
	}
	if t := p.next(); t.kind != tokSemi {
		return nil, p.errorf(t.line, "missing ';' after %q", e.Name)
	}
	return expandPath(e), nil
}

// expandPath turns "a::b::c" into nested entries a > b > c.
func expandPath(e *Entry) *Entry {
	if !strings.Contains(e.Name, "::") {
		return e
	}
	parts := strings.Split(e.Name, "::")
	leaf := *e
	leaf.Name = parts[len(parts)-1]
	cur := &leaf
	for i := len(parts) - 2; i >= 0; i-- {
		cur = &Entry{Name: parts[i], File: e.File, Line: e.Line, Children: []*Entry{cur}}
	}
	return cur
}
