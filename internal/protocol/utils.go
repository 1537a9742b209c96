// 文件路径: internal/protocol/utils.go
// 模块说明: 链接拼接用到的转义与有序查询参数工具。
package protocol

import "strings"

const upperhex = "0123456789ABCDEF"

// escapeComponent percent-encodes s like a browser's encodeURIComponent:
// ASCII letters, digits and -_.!~*'() pass through, everything else is
// encoded byte by byte from its UTF-8 form.
func escapeComponent(s string) string {
	return escape(s, isComponentSafe, false)
}

// escapeForm encodes s as application/x-www-form-urlencoded the way
// URLSearchParams serializes values: only *-._ and alphanumerics pass,
// spaces become '+'.
func escapeForm(s string) string {
	return escape(s, isFormSafe, true)
}

func escape(s string, safe func(byte) bool, spaceAsPlus bool) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !safe(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case safe(c):
			b.WriteByte(c)
		case c == ' ' && spaceAsPlus:
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&15])
		}
	}
	return b.String()
}

func isAlnum(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

func isComponentSafe(c byte) bool {
	if isAlnum(c) {
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

func isFormSafe(c byte) bool {
	if isAlnum(c) {
		return true
	}
	switch c {
	case '*', '-', '.', '_':
		return true
	}
	return false
}

// queryParams is an insertion-ordered query string builder. Unlike
// url.Values it never sorts keys, so the output order is the order of Set
// calls.
type queryParams struct {
	keys   []string
	values map[string]string
}

func newQueryParams() *queryParams {
	return &queryParams{values: make(map[string]string, 8)}
}

// Set stores value under key, keeping the position of an existing key.
func (q *queryParams) Set(key, value string) {
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.values[key] = value
}

// SetNonEmpty is Set for optional parameters: empty values are omitted.
func (q *queryParams) SetNonEmpty(key, value string) {
	if value == "" {
		return
	}
	q.Set(key, value)
}

// Encode renders key=value pairs joined by '&' in insertion order.
func (q *queryParams) Encode() string {
	var b strings.Builder
	for i, key := range q.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeForm(key))
		b.WriteByte('=')
		b.WriteString(escapeForm(q.values[key]))
	}
	return b.String()
}
