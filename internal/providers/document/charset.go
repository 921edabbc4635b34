package document

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// toUTF8 returns data as UTF-8. The declared content-type charset is used when
// present, otherwise the encoding is detected from the bytes.
func toUTF8(data []byte, contentType string) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}

	label := declaredCharset(contentType)
	if label == "" {
		result, err := chardet.NewTextDetector().DetectBest(data)
		if err != nil {
			return nil, fmt.Errorf("detect charset: %w", err)
		}
		label = result.Charset
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", label, err)
	}
	return io.ReadAll(r)
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
