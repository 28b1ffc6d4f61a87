/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskerDefaultRules(t *testing.T) {
	masker := NewMasker(DefaultMasks)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "password header",
			in:   "X-Password: hunter2\r\nX-Pin: 12345\r\n",
			want: "X-Password: ***\r\nX-Pin: ***\r\n",
		},
		{
			name: "autologin header",
			in:   "X-Autologin: 2Y%2FlPkE%3D\r\n",
			want: "X-Autologin: ***\r\n",
		},
		{
			name: "telegram key in query",
			in:   "a=sendTG&client=abc&tgid=1234&key=s3cr3t&to=testlandia",
			want: "a=sendTG&client=abc&tgid=1234&key=***&to=testlandia",
		},
		{
			name: "password in form body",
			in:   "nation=testlandia&password=hunter2",
			want: "nation=testlandia&password=***",
		},
		{
			name: "no secrets",
			in:   "nation=testlandia&q=name+flag",
			want: "nation=testlandia&q=name+flag",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, masker.Mask(tt.in))
		})
	}
}

func TestMaskerCustomRule(t *testing.T) {
	masker := NewMasker([]MaskingRuleConfig{
		{Field: "checksum", Masks: []MaskConfig{{RegExp: `checksum=\w+`, Mask: "checksum=***"}}},
	})
	require.Equal(t, "verify?checksum=***", masker.Mask("verify?checksum=abc123"))
}
