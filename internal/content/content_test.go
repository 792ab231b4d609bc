package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/domain"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer(40)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "hello", want: "hello"},
		{name: "trimmed", in: "  hi there \n", want: "hi there"},
		{name: "ampersand kept", in: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "less than kept", in: "a < b", want: "a < b"},
		{name: "comparisons kept", in: "x<y and y>z", want: "x<y and y>z"},
		{name: "code kept", in: "if a<b { }", want: "if a<b { }"},
		{name: "angle brackets kept", in: "<hello>", want: "<hello>"},
		{name: "tag kept as text", in: "use <div> for layout", want: "use <div> for layout"},
		{name: "markup kept as text", in: "<script>alert(1)</script>", want: "<script>alert(1)</script>"},
		{name: "entities not decoded", in: "&lt;b&gt;", want: "&lt;b&gt;"},
		{name: "nfc", in: "cafe\u0301", want: "caf\u00e9"},
		{name: "control dropped", in: "a\x07b\x1bc", want: "abc"},
		{name: "newline kept", in: "line1\nline2", want: "line1\nline2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	n := NewNormalizer(5)

	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "whitespace", in: "   \t\n"},
		{name: "too long", in: "abcdef"},
		{name: "invalid utf8", in: string([]byte{0xff, 0xfe})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.in)
			assert.ErrorIs(t, err, domain.ErrMalformedInboundMessage)
		})
	}
}

func TestNormalize_LengthCountsRunes(t *testing.T) {
	n := NewNormalizer(3)
	got, err := n.Normalize("日本語")
	require.NoError(t, err)
	assert.Equal(t, "日本語", got)
}

func TestNormalize_Unbounded(t *testing.T) {
	n := NewNormalizer(0)
	long := strings.Repeat("x", 10000)
	got, err := n.Normalize(long)
	require.NoError(t, err)
	assert.Len(t, got, 10000)
}
