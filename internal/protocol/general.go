package protocol

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/creamcroissant/xraysub/internal/xray"
)

const (
	ProtocolVless  = "vless"
	ProtocolTrojan = "trojan"
)

// ContentType is the media type of a base64 subscription body.
const ContentType = "text/plain; charset=utf-8"

// SecurityDefaults maps a protocol to the security value used when the
// outbound's streamSettings leave it unset.
type SecurityDefaults map[string]string

// DefaultSecurity returns none for vless and tls for trojan.
func DefaultSecurity() SecurityDefaults {
	return SecurityDefaults{ProtocolVless: "none", ProtocolTrojan: "tls"}
}

// For returns the default security for protocol, "none" when unknown.
func (d SecurityDefaults) For(protocol string) string {
	if v := d[protocol]; v != "" {
		return v
	}
	return "none"
}

// GeneralBuilder emits a standard base64 subscription compatible with V2RayN, v2rayNG, Shadowrocket, etc.
type GeneralBuilder struct {
	security SecurityDefaults
}

// NewGeneralBuilder returns a builder using the given default security table.
// A nil table means DefaultSecurity.
func NewGeneralBuilder(security SecurityDefaults) *GeneralBuilder {
	merged := DefaultSecurity()
	for k, v := range security {
		if v != "" {
			merged[k] = v
		}
	}
	return &GeneralBuilder{security: merged}
}

// Build walks documents then outbounds in order, maps every selected
// outbound, drops repeated URIs and base64-encodes the newline-joined list.
func (b *GeneralBuilder) Build(req BuildRequest) (*Result, error) {
	policy := req.Policy
	if policy == nil {
		policy = PermissivePolicy{}
	}

	var (
		uris     []string
		skipped  []Skip
		selected int
	)
	for i, doc := range req.Documents {
		remarks := doc.DisplayName()
		for _, out := range policy.Select(doc.Outbounds) {
			selected++
			m := b.Map(out, remarks)
			if !m.OK() {
				skipped = append(skipped, Skip{
					Document: i,
					Remarks:  remarks,
					Protocol: out.Protocol,
					Tag:      out.Tag,
					Reason:   m.Skip,
				})
				continue
			}
			uris = append(uris, m.URI)
		}
	}

	uris = Dedupe(uris)
	return &Result{
		Payload:     []byte(Encode(uris)),
		ContentType: ContentType,
		URIs:        uris,
		Selected:    selected,
		Skipped:     skipped,
	}, nil
}

// Map converts one outbound into its share link. It is pure: identical
// input always yields the identical string.
func (b *GeneralBuilder) Map(out xray.Outbound, remarks string) Mapping {
	if remarks == "" {
		remarks = xray.DefaultRemarks
	}
	switch out.Protocol {
	case ProtocolVless:
		return b.buildVlessURI(out, remarks)
	case ProtocolTrojan:
		return b.buildTrojanURI(out, remarks)
	default:
		return Mapping{Skip: SkipUnsupportedProtocol}
	}
}

// vless://<uuid>@<host>:<port>?<params>#<remarks>
func (b *GeneralBuilder) buildVlessURI(out xray.Outbound, remarks string) Mapping {
	target, err := out.VlessTarget()
	if err != nil {
		return Mapping{Skip: skipReason(err)}
	}
	q := b.streamParams(out)
	q.SetNonEmpty("encryption", target.Encryption)
	return Mapping{URI: composeURI(ProtocolVless, target.ID, target.Address, target.Port.String(), q, remarks)}
}

// trojan://<password>@<host>:<port>?<params>#<remarks>
func (b *GeneralBuilder) buildTrojanURI(out xray.Outbound, remarks string) Mapping {
	target, err := out.TrojanTarget()
	if err != nil {
		return Mapping{Skip: skipReason(err)}
	}
	q := b.streamParams(out)
	return Mapping{URI: composeURI(ProtocolTrojan, escapeComponent(target.Password), target.Address, target.Port.String(), q, remarks)}
}

// streamParams fills type, security, host, path, sni, fp and alpn in that order.
func (b *GeneralBuilder) streamParams(out xray.Outbound) *queryParams {
	var (
		ss  xray.StreamSettings
		ws  xray.WSSettings
		tls xray.TLSSettings
	)
	if out.StreamSettings != nil {
		ss = *out.StreamSettings
	}
	if ss.WSSettings != nil {
		ws = *ss.WSSettings
	}
	if ss.TLSSettings != nil {
		tls = *ss.TLSSettings
	}

	network := ss.Network
	if network == "" {
		network = "tcp"
	}
	security := ss.Security
	if security == "" {
		security = b.security.For(out.Protocol)
	}

	q := newQueryParams()
	q.Set("type", network)
	q.Set("security", security)
	q.SetNonEmpty("host", ws.Host)
	q.SetNonEmpty("path", ws.Path)
	q.SetNonEmpty("sni", tls.ServerName)
	q.SetNonEmpty("fp", tls.Fingerprint)
	if len(tls.ALPN) > 0 {
		q.Set("alpn", strings.Join(tls.ALPN, ","))
	}
	return q
}

func composeURI(scheme, userinfo, address, port string, q *queryParams, remarks string) string {
	var sb strings.Builder
	sb.WriteString(scheme)
	sb.WriteString("://")
	sb.WriteString(userinfo)
	sb.WriteByte('@')
	sb.WriteString(address)
	sb.WriteByte(':')
	sb.WriteString(port)
	sb.WriteByte('?')
	sb.WriteString(q.Encode())
	sb.WriteByte('#')
	sb.WriteString(escapeComponent(remarks))
	return sb.String()
}

func skipReason(err error) SkipReason {
	switch {
	case errors.Is(err, xray.ErrNoTarget):
		return SkipMissingTarget
	case errors.Is(err, xray.ErrNoCredential):
		return SkipMissingCredential
	default:
		return SkipMalformedSettings
	}
}

// Dedupe drops later copies of an already seen URI. Comparison is exact
// byte equality; the first occurrence keeps its position.
func Dedupe(uris []string) []string {
	seen := make(map[string]struct{}, len(uris))
	out := make([]string, 0, len(uris))
	for _, uri := range uris {
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
	}
	return out
}

// Encode joins the URIs with '\n' and encodes the result as standard
// padded base64 without line wrapping.
func Encode(uris []string) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(uris, "\n")))
}
