package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeComponent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"US", "US"},
		{"a b", "a%20b"},
		{"-_.!~*'()", "-_.!~*'()"},
		{"/?#[]@&=+$,;:", "%2F%3F%23%5B%5D%40%26%3D%2B%24%2C%3B%3A"},
		{"日本", "%E6%97%A5%E6%9C%AC"},
		{"100%", "100%25"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, escapeComponent(c.in), c.in)
	}
}

func TestEscapeForm(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/ws", "%2Fws"},
		{"a b", "a+b"},
		{"*-._", "*-._"},
		{"~!'()", "%7E%21%27%28%29"},
		{"h2,http/1.1", "h2%2Chttp%2F1.1"},
		{"/p?ed=2048", "%2Fp%3Fed%3D2048"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, escapeForm(c.in), c.in)
	}
}

func TestQueryParams_KeepsInsertionOrder(t *testing.T) {
	q := newQueryParams()
	q.Set("type", "ws")
	q.Set("security", "tls")
	q.SetNonEmpty("host", "")
	q.SetNonEmpty("path", "/x")
	q.Set("type", "grpc")
	assert.Equal(t, "type=grpc&security=tls&path=%2Fx", q.Encode())
}
