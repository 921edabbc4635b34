package param

import "strings"

// Info is decoded annotation metadata. Keys and values are unquoted strings.
type Info map[string]string

// TypeString is the info type that selects quoted emission.
const TypeString = "string"

// Type returns the declared "type" entry, or "" when there is none.
func (i Info) Type() string {
	return i["type"]
}

// DecodeInfo decodes annotation info such as `{type: "string", min: 0}`.
//
// Blank info returns (nil, false). "{}" returns an empty, non-nil Info and true.
// The decode is best effort: commas inside quoted values and nested braces
// split incorrectly.
func DecodeInfo(info string) (Info, bool) {
	body := strings.TrimSpace(info)
	if body == "" {
		return nil, false
	}
	if strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}") && len(body) >= 2 {
		body = body[1 : len(body)-1]
	}

	decoded := Info{}
	for _, fragment := range strings.Split(body, ",") {
		if strings.TrimSpace(fragment) == "" {
			continue
		}
		key, value, _ := strings.Cut(fragment, ":")
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		decoded[key] = value
	}
	return decoded, true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
