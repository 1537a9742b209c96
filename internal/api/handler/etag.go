// 文件路径: internal/api/handler/etag.go
// 模块说明: ETag 格式化与 If-None-Match 比较（弱比较）。
package handler

import "strings"

func formatETag(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return "\"" + trimmed + "\""
}

// etagMatches reports whether an If-None-Match header value matches etag.
// The header may list several tags, carry W/ prefixes, or be "*".
func etagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" || etag == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
