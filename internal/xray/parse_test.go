package xray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RejectsNonJSON(t *testing.T) {
	for _, body := range []string{"not json", "", "   ", "{\"remarks\":", "<html></html>"} {
		_, err := Parse([]byte(body))
		assert.ErrorIs(t, err, ErrMalformed, "body=%q", body)
	}
}

func TestParse_WrapsSingleObject(t *testing.T) {
	docs, err := Parse([]byte(`{"remarks":"solo","outbounds":[{"protocol":"freedom","tag":"direct"}]}`))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "solo", docs[0].DisplayName())
	require.Len(t, docs[0].Outbounds, 1)
	assert.Equal(t, "freedom", docs[0].Outbounds[0].Protocol)
}

func TestParse_ArrayKeepsOrder(t *testing.T) {
	docs, err := Parse([]byte(`[{"remarks":"a"},{"remarks":"b"},{"remarks":"c"}]`))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{docs[0].Remarks, docs[1].Remarks, docs[2].Remarks})
}

func TestParse_StripsByteOrderMark(t *testing.T) {
	docs, err := Parse([]byte("\xef\xbb\xbf" + `[{"remarks":"bom","outbounds":[{"protocol":"vless","tag":"proxy"}]}]`))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "bom", docs[0].Remarks)
	require.Len(t, docs[0].Outbounds, 1)

	_, err = Parse([]byte("\xef\xbb\xbf"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParse_NullIsEmpty(t *testing.T) {
	docs, err := Parse([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestParse_DefaultRemarks(t *testing.T) {
	docs, err := Parse([]byte(`[{"outbounds":[]},{"remarks":""},{"remarks":0},{"remarks":7}]`))
	require.NoError(t, err)
	require.Len(t, docs, 4)
	assert.Equal(t, DefaultRemarks, docs[0].DisplayName())
	assert.Equal(t, DefaultRemarks, docs[1].DisplayName())
	assert.Equal(t, DefaultRemarks, docs[2].DisplayName())
	assert.Equal(t, "7", docs[3].DisplayName())
}

func TestParse_DropsNonObjectElementsAndBadOutbounds(t *testing.T) {
	body := `[1, "x", {"remarks":"ok","outbounds":[{"protocol":42},{"protocol":"vless","tag":"proxy"}]}, {"remarks":"weird","outbounds":{}}]`
	docs, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "ok", docs[0].Remarks)
	assert.Equal(t, 1, docs[0].Skipped)
	require.Len(t, docs[0].Outbounds, 1)
	assert.Equal(t, "vless", docs[0].Outbounds[0].Protocol)

	assert.Equal(t, "weird", docs[1].Remarks)
	assert.Empty(t, docs[1].Outbounds)
}

func TestOutbound_VlessTarget(t *testing.T) {
	docs, err := Parse([]byte(`{"outbounds":[
		{"protocol":"vless","settings":{"vnext":[{"address":"1.2.3.4","port":443,"users":[{"id":"abc","encryption":"none"}]},{"address":"5.6.7.8","port":1}]}},
		{"protocol":"vless","settings":{"vnext":[]}},
		{"protocol":"vless"},
		{"protocol":"vless","settings":{"vnext":[{"address":"1.2.3.4","port":"8443","users":[]}]}}
	]}`))
	require.NoError(t, err)
	outs := docs[0].Outbounds
	require.Len(t, outs, 4)

	target, err := outs[0].VlessTarget()
	require.NoError(t, err)
	assert.Equal(t, VlessTarget{Address: "1.2.3.4", Port: "443", ID: "abc", Encryption: "none"}, target)

	_, err = outs[1].VlessTarget()
	assert.ErrorIs(t, err, ErrNoTarget)
	_, err = outs[2].VlessTarget()
	assert.ErrorIs(t, err, ErrNoTarget)
	_, err = outs[3].VlessTarget()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestOutbound_TrojanTarget(t *testing.T) {
	docs, err := Parse([]byte(`{"outbounds":[
		{"protocol":"trojan","settings":{"servers":[{"address":"t.example","port":443,"password":"p@ss word"}]}},
		{"protocol":"trojan","settings":{"servers":[]}},
		{"protocol":"trojan","settings":{"servers":[{"address":"t.example","port":443}]}}
	]}`))
	require.NoError(t, err)
	outs := docs[0].Outbounds

	target, err := outs[0].TrojanTarget()
	require.NoError(t, err)
	assert.Equal(t, TrojanTarget{Address: "t.example", Port: "443", Password: "p@ss word"}, target)

	_, err = outs[1].TrojanTarget()
	assert.ErrorIs(t, err, ErrNoTarget)
	_, err = outs[2].TrojanTarget()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestPort_Unmarshal(t *testing.T) {
	cases := map[string]Port{
		`443`:    "443",
		`443.0`:  "443",
		`"8443"`: "8443",
		`" 80 "`: "80",
		`null`:   "",
		`1e3`:    "1000",
	}
	for in, want := range cases {
		var p Port
		require.NoError(t, p.UnmarshalJSON([]byte(in)), in)
		assert.Equal(t, want, p, in)
	}

	var p Port
	assert.Error(t, p.UnmarshalJSON([]byte(`true`)))
}
