package plan

import (
	"strconv"
	"strings"

	"github.com/GriffinCanCode/nbapi/internal/domain/param"
)

// Substitute rewrites the parameter lines of source whose identifier is in vars.
//
// Only the value token of a rewritten line changes; its indentation, identifier
// and annotation info are kept. Every other line, and the line structure itself,
// is returned byte for byte. The first lookup failure aborts the rewrite.
func Substitute(source string, vars map[string]Value, input Input) (string, error) {
	if len(vars) == 0 {
		return source, nil
	}

	lines := strings.Split(source, "\n")
	for i, raw := range lines {
		line, ok := param.Match(raw)
		if !ok {
			continue
		}
		v, ok := vars[line.Ident]
		if !ok {
			continue
		}
		resolved, err := v.Resolve(input)
		if err != nil {
			return "", err
		}
		lines[i] = line.Format(FormatValue(line, resolved))
	}
	return strings.Join(lines, "\n"), nil
}

// FormatValue applies the typed formatting policy for line. A parameter whose
// info declares type "string" gets a double-quoted literal unless value is
// already a quoted literal; every other value is emitted as is.
func FormatValue(line param.Line, value string) string {
	info, ok := line.Metadata()
	if !ok || info.Type() != param.TypeString {
		return value
	}
	if isQuoted(value) {
		return value
	}
	return strconv.Quote(value)
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return first == last && (first == '"' || first == '\'')
}
