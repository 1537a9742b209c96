// 文件路径: internal/service/profile.go
// 模块说明: Profile 描述一个入口的差异点：来源、筛选策略、默认安全值与附加响应头。
package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/creamcroissant/xraysub/internal/protocol"
)

// Source resolves the upstream URL for one request.
type Source interface {
	// Resolve returns the URL to fetch. requested is the caller-supplied
	// value, empty when the route does not take one.
	Resolve(requested string) (string, error)
	// CallerSupplied reports whether the URL comes from the request.
	CallerSupplied() bool
}

// FixedSource always fetches the configured URL and ignores the request.
type FixedSource string

func (s FixedSource) Resolve(string) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", fmt.Errorf("service: fixed source has no url configured")
	}
	return string(s), nil
}

func (FixedSource) CallerSupplied() bool { return false }

// QuerySource takes the URL from the request.
type QuerySource struct{}

func (QuerySource) Resolve(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "", ErrMissingSourceURL
	}
	return requested, nil
}

func (QuerySource) CallerSupplied() bool { return true }

// Profile parameterizes the conversion pipeline for one route.
type Profile struct {
	// Name labels logs and metrics, e.g. "convert" or "sub".
	Name     string
	Source   Source
	Policy   protocol.SelectionPolicy
	Security protocol.SecurityDefaults
	// Headers are added to every successful response.
	Headers map[string]string
	// CacheMaxAge feeds the public Cache-Control header. Zero or less omits it.
	CacheMaxAge int
	// FetchFailureMessage is the plain-text body of a 502.
	FetchFailureMessage string
}

const (
	// MessageFetchFailedURL is the 502 body for caller-supplied sources.
	MessageFetchFailedURL = "Failed to fetch source URL"
	// MessageFetchFailed is the 502 body for fixed sources.
	MessageFetchFailed = "Failed to fetch source"
)

// ConvertProfile builds the profile for the caller-supplied-source route.
func ConvertProfile(policy protocol.SelectionPolicy, security protocol.SecurityDefaults, cacheMaxAge int) Profile {
	return Profile{
		Name:                "convert",
		Source:              QuerySource{},
		Policy:              policy,
		Security:            security,
		CacheMaxAge:         cacheMaxAge,
		FetchFailureMessage: MessageFetchFailedURL,
	}
}

// SubscriptionProfile builds the profile for a fixed-source subscription route.
// Subscription clients read the refresh interval (hours) and a zeroed
// traffic line from the response headers.
func SubscriptionProfile(name, url string, policy protocol.SelectionPolicy, security protocol.SecurityDefaults, cacheMaxAge, updateInterval int) Profile {
	headers := map[string]string{
		"Subscription-Userinfo": "upload=0; download=0; total=0; expire=0",
	}
	if updateInterval > 0 {
		headers["Profile-Update-Interval"] = strconv.Itoa(updateInterval)
	}
	return Profile{
		Name:                name,
		Source:              FixedSource(url),
		Policy:              policy,
		Security:            security,
		Headers:             headers,
		CacheMaxAge:         cacheMaxAge,
		FetchFailureMessage: MessageFetchFailed,
	}
}

func (p Profile) label() string {
	if p.Name == "" {
		return "default"
	}
	return p.Name
}

func (p Profile) responseHeaders() map[string]string {
	headers := make(map[string]string, len(p.Headers)+1)
	for k, v := range p.Headers {
		headers[k] = v
	}
	if p.CacheMaxAge > 0 {
		headers["Cache-Control"] = fmt.Sprintf("public, max-age=%d", p.CacheMaxAge)
	}
	return headers
}
