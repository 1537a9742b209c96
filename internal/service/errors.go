// 文件路径: internal/service/errors.go
// 模块说明: 转换服务对外暴露的错误分类，处理器按 errors.Is 映射为 HTTP 状态码。
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates the caller sent an unusable request (400).
	ErrInvalidRequest = errors.New("service: invalid request / 请求无效")
	// ErrUpstreamFetch indicates the source could not be retrieved (502).
	ErrUpstreamFetch = errors.New("service: upstream fetch failed / 拉取来源失败")
	// ErrMalformedSource indicates the source body is not JSON (422).
	ErrMalformedSource = errors.New("service: malformed source / 来源不是合法 JSON")
)

var (
	// ErrMissingSourceURL is returned when the url query parameter is absent or blank.
	ErrMissingSourceURL = fmt.Errorf("%w: missing source url / 缺少来源地址", ErrInvalidRequest)
	// ErrInvalidSourceURL is returned when the url is not an acceptable http(s) target.
	ErrInvalidSourceURL = fmt.Errorf("%w: invalid source url / 来源地址无效", ErrInvalidRequest)
)
