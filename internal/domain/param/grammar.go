package param

import (
	"regexp"
	"strings"
)

// linePattern captures prefix, identifier, value, comment character and info.
// The whole pattern is case-insensitive, identifier letters included.
var linePattern = regexp.MustCompile(`(?i)^([ \t]*)([a-z_\-\d]+)[ \t]*=[ \t]*([^#\s]+)[ \t]*(#)[ \t]*@param[ \t]*(.*)$`)

// Line is a decomposed parameter line.
type Line struct {
	Prefix string
	Ident  string
	Value  string
	Info   string

	raw string
	pos spans
}

// spans are byte offsets into the matched line.
type spans struct {
	valStart, valEnd int
	comment          int
}

// Match decomposes line when it is a parameter declaration.
func Match(line string) (Line, bool) {
	m := linePattern.FindStringSubmatchIndex(line)
	if m == nil {
		return Line{}, false
	}
	return Line{
		Prefix: line[m[2]:m[3]],
		Ident:  line[m[4]:m[5]],
		Value:  line[m[6]:m[7]],
		Info:   line[m[10]:m[11]],
		raw:    line,
		pos:    spans{valStart: m[6], valEnd: m[7], comment: m[8]},
	}, true
}

// Format re-emits the line with value in place of the current value token.
// Spacing, marker case and info are kept byte for byte.
func (l Line) Format(value string) string {
	return l.raw[:l.pos.valStart] + value + l.raw[l.pos.valEnd:]
}

// WithComment re-emits the line unchanged except for the comment character that
// introduces the marker, e.g. "//" for C-family languages.
func (l Line) WithComment(comment string) string {
	return l.raw[:l.pos.comment] + comment + l.raw[l.pos.comment+1:]
}

// Metadata decodes the line's annotation info.
func (l Line) Metadata() (Info, bool) {
	return DecodeInfo(l.Info)
}

// Scan returns every parameter line of source in order.
func Scan(source string) []Line {
	var lines []Line
	for _, raw := range strings.Split(source, "\n") {
		if l, ok := Match(raw); ok {
			lines = append(lines, l)
		}
	}
	return lines
}

// RewriteComments swaps the '#' comment in front of every parameter marker of
// source for comment. Non-parameter lines are left as they are.
func RewriteComments(source, comment string) string {
	lines := strings.Split(source, "\n")
	for i, raw := range lines {
		if l, ok := Match(raw); ok {
			lines[i] = l.WithComment(comment)
		}
	}
	return strings.Join(lines, "\n")
}
