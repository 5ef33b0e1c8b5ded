package archivekit

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodingRoundTrip(t *testing.T) {
	h := NewEncodingHandler()
	for _, enc := range []string{"GBK", "gb18030", "BIG5"} {
		name := "中文檔案.txt"
		if enc != "BIG5" {
			name = "中文文件.txt"
		}
		encoded, err := h.EncodeFileName(name, enc)
		require.NoError(t, err, enc)
		assert.False(t, utf8.ValidString(encoded), enc)

		decoded, err := h.DecodeFileName(encoded, enc)
		require.NoError(t, err, enc)
		assert.Equal(t, name, decoded, enc)
	}
}

func TestEncodingPassThrough(t *testing.T) {
	h := NewEncodingHandler()

	got, err := h.DecodeFileName("plain.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "plain.txt", got)

	got, err = h.DecodeFileName("plain.txt", "utf8")
	require.NoError(t, err)
	assert.Equal(t, "plain.txt", got)

	_, err = h.DecodeFileName("plain.txt", "EBCDIC")
	assert.Error(t, err)

	got, enc, err := h.SmartDecodeFileName("已经是UTF-8.txt")
	require.NoError(t, err)
	assert.Equal(t, "已经是UTF-8.txt", got)
	assert.Equal(t, "UTF-8", enc)
	assert.Equal(t, "UTF-8", h.DetectEncoding("ascii"))
}

func TestIsValidEncoding(t *testing.T) {
	h := NewEncodingHandler()
	assert.True(t, h.IsValidEncoding("gbk"))
	assert.True(t, h.IsValidEncoding(" Shift_JIS "))
	assert.True(t, h.IsValidEncoding(EncodingAuto))
	assert.False(t, h.IsValidEncoding("KOI8-R"))
	assert.Contains(t, h.GetSupportedEncodings(), "CP437")
}

func TestEntryNameHelpers(t *testing.T) {
	h := NewEncodingHandler()
	gbk, err := h.EncodeFileName("报告.doc", "GBK")
	require.NoError(t, err)

	assert.Equal(t, "报告.doc", decodeEntryName(h, gbk, "GBK"))
	assert.Equal(t, gbk, decodeEntryName(h, gbk, ""))
	assert.Equal(t, gbk, encodeEntryName(h, "报告.doc", "GBK"))
	assert.Equal(t, "报告.doc", encodeEntryName(h, "报告.doc", EncodingAuto))
}
