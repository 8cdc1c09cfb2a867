package tools

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestTruncateUTF8(t *testing.T) {
	require.Equal(t, "abc", TruncateUTF8("abc", 10))
	require.Equal(t, "ab", TruncateUTF8("abc", 2))
	require.Equal(t, "", TruncateUTF8("abc", 0))

	// each CJK rune is three bytes; a cut at 4 must not split the second one
	msg := "任务失败"
	got := TruncateUTF8(msg, 4)
	require.Equal(t, "任", got)
	require.True(t, utf8.ValidString(got))

	long := strings.Repeat("参数错误", 300)
	got = TruncateUTF8(long, 1000)
	require.LessOrEqual(t, len(got), 1000)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, 999, len(got))

	require.Equal(t, "ab", TruncateUTF8("a\xffb", 10))
}
