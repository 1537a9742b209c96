// 文件路径: internal/protocol/types.go
// 模块说明: 订阅构建用到的公共类型：构建请求、构建结果与跳过原因。
package protocol

import (
	"github.com/creamcroissant/xraysub/internal/xray"
)

// SkipReason explains why an outbound produced no URI.
type SkipReason string

const (
	SkipUnsupportedProtocol SkipReason = "unsupported_protocol"
	SkipMissingTarget       SkipReason = "missing_target"
	SkipMissingCredential   SkipReason = "missing_credential"
	SkipMalformedSettings   SkipReason = "malformed_settings"
)

// Mapping is the outcome of converting one outbound: either a URI or a
// skip reason, never both.
type Mapping struct {
	URI  string
	Skip SkipReason
}

// OK reports whether the mapping produced a URI.
func (m Mapping) OK() bool { return m.URI != "" }

// Skip records an outbound that was selected but could not be converted.
type Skip struct {
	Document int
	Remarks  string
	Protocol string
	Tag      string
	Reason   SkipReason
}

// BuildRequest carries everything needed to render a subscription.
type BuildRequest struct {
	Documents []xray.Document
	Policy    SelectionPolicy
}

// Result captures the serialized payload emitted by a builder.
type Result struct {
	Payload     []byte
	ContentType string
	// URIs is the deduplicated list encoded in Payload.
	URIs []string
	// Selected counts outbounds that passed the selection policy.
	Selected int
	Skipped  []Skip
}
