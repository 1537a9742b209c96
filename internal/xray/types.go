// Package xray models the subset of the Xray/V2Ray client configuration
// schema needed to turn outbounds into share links.
package xray

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultRemarks is used when a document carries no display name.
const DefaultRemarks = "proxy"

// Document is one named proxy profile: a remarks label plus its outbounds.
type Document struct {
	Remarks   string
	Outbounds []Outbound
	// Skipped counts outbound entries whose JSON shape could not be decoded.
	Skipped int
}

// DisplayName returns the remarks, falling back to DefaultRemarks.
func (d Document) DisplayName() string {
	if d.Remarks == "" {
		return DefaultRemarks
	}
	return d.Remarks
}

// Outbound is a single egress definition. Settings stay raw until a
// protocol-specific accessor interprets them, so outbounds of unrelated
// protocols (freedom, blackhole, dns...) never fail to decode.
type Outbound struct {
	Protocol       string          `json:"protocol"`
	Tag            string          `json:"tag,omitempty"`
	Settings       json.RawMessage `json:"settings,omitempty"`
	StreamSettings *StreamSettings `json:"streamSettings,omitempty"`
}

// StreamSettings describes the transport layered under an outbound.
type StreamSettings struct {
	Network     string       `json:"network,omitempty"`
	Security    string       `json:"security,omitempty"`
	WSSettings  *WSSettings  `json:"wsSettings,omitempty"`
	TLSSettings *TLSSettings `json:"tlsSettings,omitempty"`
}

// WSSettings holds WebSocket transport parameters.
type WSSettings struct {
	Host string `json:"host,omitempty"`
	Path string `json:"path,omitempty"`
}

// TLSSettings holds TLS client parameters.
type TLSSettings struct {
	ServerName    string   `json:"serverName,omitempty"`
	Fingerprint   string   `json:"fingerprint,omitempty"`
	ALPN          []string `json:"alpn,omitempty"`
	AllowInsecure bool     `json:"allowInsecure,omitempty"`
}

// VlessTarget is the first vnext entry of a vless outbound together with
// its first user.
type VlessTarget struct {
	Address    string
	Port       Port
	ID         string
	Encryption string
}

// TrojanTarget is the first servers entry of a trojan outbound.
type TrojanTarget struct {
	Address  string
	Port     Port
	Password string
}

type vlessSettings struct {
	Vnext []struct {
		Address string `json:"address"`
		Port    Port   `json:"port"`
		Users   []struct {
			ID         string `json:"id"`
			Encryption string `json:"encryption"`
		} `json:"users"`
	} `json:"vnext"`
}

type trojanSettings struct {
	Servers []struct {
		Address  string `json:"address"`
		Port     Port   `json:"port"`
		Password string `json:"password"`
	} `json:"servers"`
}

// ErrNoTarget reports that an outbound lacks its mandatory target entry.
var ErrNoTarget = errors.New("xray: outbound has no target")

// ErrNoCredential reports that the target entry lacks its user id or password.
var ErrNoCredential = errors.New("xray: outbound target has no credential")

// VlessTarget extracts the connection target of a vless outbound.
func (o Outbound) VlessTarget() (VlessTarget, error) {
	var settings vlessSettings
	if err := decodeSettings(o.Settings, &settings); err != nil {
		return VlessTarget{}, err
	}
	if len(settings.Vnext) == 0 {
		return VlessTarget{}, ErrNoTarget
	}
	server := settings.Vnext[0]
	if server.Address == "" || server.Port == "" {
		return VlessTarget{}, ErrNoTarget
	}
	if len(server.Users) == 0 || server.Users[0].ID == "" {
		return VlessTarget{}, ErrNoCredential
	}
	return VlessTarget{
		Address:    server.Address,
		Port:       server.Port,
		ID:         server.Users[0].ID,
		Encryption: server.Users[0].Encryption,
	}, nil
}

// TrojanTarget extracts the connection target of a trojan outbound.
func (o Outbound) TrojanTarget() (TrojanTarget, error) {
	var settings trojanSettings
	if err := decodeSettings(o.Settings, &settings); err != nil {
		return TrojanTarget{}, err
	}
	if len(settings.Servers) == 0 {
		return TrojanTarget{}, ErrNoTarget
	}
	server := settings.Servers[0]
	if server.Address == "" || server.Port == "" {
		return TrojanTarget{}, ErrNoTarget
	}
	if server.Password == "" {
		return TrojanTarget{}, ErrNoCredential
	}
	return TrojanTarget{Address: server.Address, Port: server.Port, Password: server.Password}, nil
}

func decodeSettings(raw json.RawMessage, dest any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrNoTarget
	}
	if err := json.Unmarshal(trimmed, dest); err != nil {
		return fmt.Errorf("xray: decode settings: %w", err)
	}
	return nil
}

// Port is a port rendered as text. Sources emit it either as a JSON
// number or as a numeric string; both decode to the same text.
type Port string

// UnmarshalJSON accepts numbers, strings and null.
func (p *Port) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*p = ""
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*p = Port(strings.TrimSpace(s))
		return nil
	default:
		f, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return fmt.Errorf("xray: invalid port %s", trimmed)
		}
		*p = Port(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
}

// String returns the port text.
func (p Port) String() string { return string(p) }
