package formula

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ParseError reports a malformed formula line.
type ParseError struct {
	Source string
	Line   int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

var (
	classLine    = regexp.MustCompile(`^class\s+([A-Z][A-Za-z0-9]*)\s*<\s*Formula\s*$`)
	stanzaLine   = regexp.MustCompile(`^([a-z_][a-z0-9_]*)\b\s*(.*)$`)
	resourceLine = regexp.MustCompile(`^resource\s+(.+?)\s+do$`)
	symbolTag    = regexp.MustCompile(`=>\s*\[?([:\w,\s]+)\]?`)
	shellOutput  = regexp.MustCompile(`shell_output\(\s*("(?:[^"\\]|\\.)*")`)
)

const (
	blockNone = iota
	blockInstall
	blockTest
	blockResource
	blockOther
)

type parser struct {
	d      *Descriptor
	source string
	line   int
	block  int
	depth  int // nesting inside the current block
}

// ParseFile parses the formula at path.
func ParseFile(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := parse(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	d.Source = filepath.Base(path)
	return d, nil
}

// Parse reads formula text from r.
func Parse(r io.Reader) (*Descriptor, error) {
	return parse(r, "")
}

func parse(r io.Reader, source string) (*Descriptor, error) {
	p := &parser{d: &Descriptor{}, source: source}
	seenClass := false
	closed := false

	s := bufio.NewScanner(r)
	for s.Scan() {
		p.line++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if closed {
			return nil, p.errorf("unexpected content after end of class: %q", line)
		}

		if !seenClass {
			m := classLine.FindStringSubmatch(line)
			if m == nil {
				return nil, p.errorf("expected formula class declaration, got %q", line)
			}
			p.d.ClassName = m[1]
			p.d.Name = TokenFromClass(m[1])
			seenClass = true
			continue
		}

		if p.block != blockNone {
			if err := p.blockLine(line); err != nil {
				return nil, err
			}
			continue
		}

		if line == "end" {
			closed = true
			continue
		}
		if err := p.topLevel(line); err != nil {
			return nil, err
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading formula: %w", err)
	}

	if !seenClass {
		return nil, p.errorf("no formula class declaration found")
	}
	if p.block != blockNone {
		return nil, p.errorf("unterminated block at end of file")
	}
	if !closed {
		return nil, p.errorf("missing end of class")
	}
	return p.d, nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Source: p.source, Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) topLevel(line string) error {
	switch {
	case line == "def install":
		p.block, p.depth = blockInstall, 0
		return nil
	case line == "test do":
		p.block, p.depth = blockTest, 0
		return nil
	case resourceLine.MatchString(line):
		m := resourceLine.FindStringSubmatch(line)
		names, err := stringLiterals(m[1])
		if err != nil || len(names) == 0 {
			return p.errorf("malformed resource declaration %q", line)
		}
		p.d.Resources = append(p.d.Resources, names[0])
		p.block, p.depth = blockResource, 0
		return nil
	case opensBlock(line):
		p.block, p.depth = blockOther, 0
		return nil
	}

	m := stanzaLine.FindStringSubmatch(line)
	if m == nil {
		return p.errorf("unrecognized statement %q", line)
	}
	keyword, rest := m[1], m[2]

	if keyword == "include" {
		p.d.Mixins = append(p.d.Mixins, strings.TrimSpace(rest))
		return nil
	}

	lits, err := stringLiterals(rest)
	if err != nil {
		return p.errorf("%s: %v", keyword, err)
	}
	first := ""
	if len(lits) > 0 {
		first = lits[0]
	}

	switch keyword {
	case "desc":
		p.d.Description = first
	case "homepage":
		p.d.Homepage = first
	case "url":
		p.d.URL = first
	case "sha256":
		p.d.SHA256 = first
	case "version":
		p.d.Version = first
	case "license":
		if len(lits) == 1 && strings.HasPrefix(strings.TrimSpace(rest), `"`) {
			p.d.License = first
		} else {
			// any_of: [...] and friends are kept verbatim
			p.d.License = strings.TrimSpace(rest)
		}
	case "depends_on":
		if first == "" {
			return p.errorf("depends_on without a dependency name")
		}
		dep := ParseDependency(first)
		if tm := symbolTag.FindStringSubmatch(rest); tm != nil {
			for _, t := range strings.Split(tm[1], ",") {
				if t = strings.TrimPrefix(strings.TrimSpace(t), ":"); t != "" {
					dep.Tags = append(dep.Tags, t)
				}
			}
		}
		p.d.Dependencies = append(p.d.Dependencies, dep)
	default:
		// other stanzas (revision, head, livecheck, ...) do not affect the descriptor
	}
	return nil
}

func (p *parser) blockLine(line string) error {
	if line == "end" {
		if p.depth == 0 {
			p.block = blockNone
			return nil
		}
		p.depth--
	} else if opensBlock(line) {
		p.depth++
	}

	switch p.block {
	case blockInstall:
		p.d.Install = append(p.d.Install, line)
	case blockTest:
		p.d.Test.Raw = append(p.d.Test.Raw, line)
		if p.d.Test.Command == "" {
			if err := p.smokeCommand(line); err != nil {
				return err
			}
		}
	}
	return nil
}

// smokeCommand extracts the first command invoked by the test block, either
// system "#{bin}/tool", "--help" or shell_output("#{bin}/tool --help").
func (p *parser) smokeCommand(line string) error {
	if strings.HasPrefix(line, "system ") || strings.HasPrefix(line, "system(") {
		args, err := stringLiterals(strings.TrimPrefix(line, "system"))
		if err != nil {
			return p.errorf("system: %v", err)
		}
		if len(args) > 0 {
			p.d.Test.Command = args[0]
			p.d.Test.Args = args[1:]
		}
		return nil
	}
	if m := shellOutput.FindStringSubmatch(line); m != nil {
		lits, err := stringLiterals(m[1])
		if err != nil || len(lits) == 0 {
			return p.errorf("shell_output: malformed command")
		}
		fields := strings.Fields(lits[0])
		if len(fields) > 0 {
			p.d.Test.Command = fields[0]
			p.d.Test.Args = fields[1:]
		}
	}
	return nil
}

func opensBlock(line string) bool {
	if strings.HasSuffix(line, " do") || strings.Contains(line, " do |") {
		return true
	}
	for _, kw := range []string{"def ", "if ", "unless ", "case ", "while ", "until "} {
		if strings.HasPrefix(line, kw) {
			return true
		}
	}
	return line == "begin"
}

// stringLiterals returns the Ruby string literals in s in order of appearance.
func stringLiterals(s string) ([]string, error) {
	var out []string
	for i := 0; i < len(s); i++ {
		q := s[i]
		if q != '"' && q != '\'' {
			continue
		}
		var b strings.Builder
		j := i + 1
		terminated := false
		for ; j < len(s); j++ {
			c := s[j]
			if c == '\\' && j+1 < len(s) {
				b.WriteString(unescape(q, s[j+1]))
				j++
				continue
			}
			if c == q {
				terminated = true
				break
			}
			b.WriteByte(c)
		}
		if !terminated {
			return nil, fmt.Errorf("unterminated string literal in %q", s)
		}
		out = append(out, b.String())
		i = j
	}
	return out, nil
}

func unescape(quote byte, c byte) string {
	if quote == '\'' {
		if c == '\'' || c == '\\' {
			return string(c)
		}
		return "\\" + string(c)
	}
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case '"', '\\', '#':
		return string(c)
	default:
		return string(c)
	}
}
