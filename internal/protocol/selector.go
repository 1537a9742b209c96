// 文件路径: internal/protocol/selector.go
// 模块说明: 出站筛选策略。只有 vless / trojan 且 tag 满足规则的出站才参与转换。
package protocol

import (
	"fmt"
	"strings"

	"github.com/creamcroissant/xraysub/internal/xray"
)

const (
	PolicyPermissive = "permissive"
	PolicyStrict     = "strict"
)

// SelectionPolicy picks the conversion candidates out of one document's
// outbounds. Outbounds it drops are ignored, never reported as errors.
type SelectionPolicy interface {
	Name() string
	Select(outbounds []xray.Outbound) []xray.Outbound
}

// PolicyByName resolves a configured policy name. Empty means permissive.
func PolicyByName(name string) (SelectionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyPermissive:
		return PermissivePolicy{}, nil
	case PolicyStrict:
		return StrictPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown selection policy %q (want %s or %s)", name, PolicyPermissive, PolicyStrict)
	}
}

// PermissivePolicy keeps every supported outbound whose tag starts with "proxy".
type PermissivePolicy struct{}

func (PermissivePolicy) Name() string { return PolicyPermissive }

func (PermissivePolicy) Select(outbounds []xray.Outbound) []xray.Outbound {
	var selected []xray.Outbound
	for _, out := range outbounds {
		if Supported(out.Protocol) && strings.HasPrefix(out.Tag, "proxy") {
			selected = append(selected, out)
		}
	}
	return selected
}

// StrictPolicy keeps supported outbounds tagged exactly "proxy" or
// "proxy-*". A document with several of them is a multi-egress (best ping)
// profile and keeps them all; otherwise only the first match is kept.
type StrictPolicy struct{}

func (StrictPolicy) Name() string { return PolicyStrict }

func (StrictPolicy) Select(outbounds []xray.Outbound) []xray.Outbound {
	var matches []xray.Outbound
	for _, out := range outbounds {
		if !Supported(out.Protocol) {
			continue
		}
		if out.Tag == "proxy" || strings.HasPrefix(out.Tag, "proxy-") {
			matches = append(matches, out)
		}
	}
	if len(matches) > 1 {
		return matches
	}
	return matches[:min(len(matches), 1)]
}

// Supported reports whether the mapper can convert the protocol.
func Supported(protocol string) bool {
	return protocol == ProtocolVless || protocol == ProtocolTrojan
}
