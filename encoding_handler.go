package archivekit

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	utfencoding "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// EncodingAuto 自动检测条目名称编码
const EncodingAuto = "AUTO"

// EncodingHandler 条目名称编码处理器接口
type EncodingHandler interface {
	// DecodeFileName 按指定编码把条目名称转成UTF-8
	DecodeFileName(fileName, encoding string) (string, error)

	// EncodeFileName 把UTF-8名称转成指定编码，写压缩包时使用
	EncodeFileName(fileName, encoding string) (string, error)

	// DetectEncoding 检测名称编码
	DetectEncoding(fileName string) string

	// SmartDecodeFileName 自动检测并解码，返回解码结果和使用的编码
	SmartDecodeFileName(fileName string) (string, string, error)

	// IsValidEncoding 检查编码是否支持
	IsValidEncoding(encoding string) bool

	// GetSupportedEncodings 获取支持的编码列表
	GetSupportedEncodings() []string
}

// namedEncoding 编码名称及其别名
type namedEncoding struct {
	names    []string
	encoding encoding.Encoding
}

// supportedEncodings 支持的编码，UTF-8不需要转换所以encoding为nil
var supportedEncodings = []namedEncoding{
	{[]string{"UTF-8", "UTF8"}, nil},
	{[]string{"GBK", "GB2312", "GB18030"}, simplifiedchinese.GBK},
	{[]string{"BIG5"}, traditionalchinese.Big5},
	{[]string{"SHIFT_JIS", "SJIS"}, japanese.ShiftJIS},
	{[]string{"EUC-KR"}, korean.EUCKR},
	{[]string{"ISO-8859-1", "LATIN1"}, charmap.ISO8859_1},
	{[]string{"CP437", "IBM437"}, charmap.CodePage437},
	{[]string{"CP866"}, charmap.CodePage866},
	{[]string{"CP1252", "WINDOWS-1252"}, charmap.Windows1252},
	{[]string{"UTF-16", "UTF-16LE"}, utfencoding.UTF16(utfencoding.LittleEndian, utfencoding.UseBOM)},
}

// autoDecodeOrder 自动检测失败时依次尝试的编码（中文压缩包最常见GBK）
var autoDecodeOrder = []string{"GBK", "BIG5", "SHIFT_JIS", "EUC-KR"}

// defaultEncodingHandler 默认编码处理器实现
type defaultEncodingHandler struct{}

// NewEncodingHandler 创建新的编码处理器
func NewEncodingHandler() EncodingHandler {
	return &defaultEncodingHandler{}
}

// lookup 查找编码，第二个返回值表示是否支持
func (h *defaultEncodingHandler) lookup(name string) (encoding.Encoding, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, e := range supportedEncodings {
		for _, alias := range e.names {
			if alias == name {
				return e.encoding, true
			}
		}
	}
	return nil, false
}

// DecodeFileName 解码文件名
func (h *defaultEncodingHandler) DecodeFileName(fileName, enc string) (string, error) {
	if enc == "" {
		return fileName, nil
	}

	e, ok := h.lookup(enc)
	if !ok {
		return fileName, fmt.Errorf("不支持的编码: %s", enc)
	}
	if e == nil {
		return fileName, nil
	}

	decoded, _, err := transform.String(e.NewDecoder(), fileName)
	if err != nil {
		return fileName, err
	}
	return decoded, nil
}

// EncodeFileName 编码文件名
func (h *defaultEncodingHandler) EncodeFileName(fileName, enc string) (string, error) {
	if enc == "" {
		return fileName, nil
	}

	e, ok := h.lookup(enc)
	if !ok {
		return fileName, fmt.Errorf("不支持的编码: %s", enc)
	}
	if e == nil {
		return fileName, nil
	}

	encoded, _, err := transform.String(e.NewEncoder(), fileName)
	if err != nil {
		return fileName, err
	}
	return encoded, nil
}

// DetectEncoding 检测文件名编码
func (h *defaultEncodingHandler) DetectEncoding(fileName string) string {
	if utf8.ValidString(fileName) {
		return "UTF-8"
	}

	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest([]byte(fileName))
	if err == nil && result.Confidence > 70 {
		if enc := h.mapCharsetToEncoding(result.Charset); enc != "" {
			return enc
		}
	}
	return "GBK"
}

// SmartDecodeFileName 智能解码文件名
func (h *defaultEncodingHandler) SmartDecodeFileName(fileName string) (string, string, error) {
	if utf8.ValidString(fileName) {
		return fileName, "UTF-8", nil
	}

	candidates := append([]string{h.DetectEncoding(fileName)}, autoDecodeOrder...)
	for _, enc := range RemoveDuplicateStrings(candidates) {
		decoded, err := h.DecodeFileName(fileName, enc)
		if err == nil && h.isReasonableFileName(decoded) {
			return decoded, enc, nil
		}
	}

	// 都失败时替换无效字节，保证名称至少是合法的UTF-8
	return strings.ToValidUTF8(fileName, "_"), "CLEANED", nil
}

// IsValidEncoding 检查编码是否有效
func (h *defaultEncodingHandler) IsValidEncoding(enc string) bool {
	if strings.EqualFold(enc, EncodingAuto) {
		return true
	}
	_, ok := h.lookup(enc)
	return ok
}

// GetSupportedEncodings 获取支持的编码列表
func (h *defaultEncodingHandler) GetSupportedEncodings() []string {
	names := make([]string, 0, len(supportedEncodings))
	for _, e := range supportedEncodings {
		names = append(names, e.names[0])
	}
	return names
}

// mapCharsetToEncoding 将chardet的字符集映射到支持的编码
func (h *defaultEncodingHandler) mapCharsetToEncoding(charset string) string {
	switch strings.ToUpper(charset) {
	case "GB2312", "GBK", "GB18030":
		return "GBK"
	case "BIG5":
		return "BIG5"
	case "SHIFT_JIS", "SJIS":
		return "SHIFT_JIS"
	case "EUC-KR":
		return "EUC-KR"
	case "ISO-8859-1", "WINDOWS-1252":
		return "ISO-8859-1"
	case "UTF-16LE", "UTF-16BE":
		return "UTF-16"
	default:
		return ""
	}
}

// isReasonableFileName 检查解码后的文件名是否合理
func (h *defaultEncodingHandler) isReasonableFileName(fileName string) bool {
	if !utf8.ValidString(fileName) {
		return false
	}

	suspicious := 0
	for _, r := range fileName {
		if r == utf8.RuneError || (r < 32 && r != '\t') {
			suspicious++
		}
	}
	return suspicious == 0
}

// decodeEntryName 按操作配置的编码转换条目名称，失败时保留原名
func decodeEntryName(h EncodingHandler, name, textEncoding string) string {
	if textEncoding == "" {
		return name
	}
	if strings.EqualFold(textEncoding, EncodingAuto) {
		decoded, _, _ := h.SmartDecodeFileName(name)
		return decoded
	}
	decoded, err := h.DecodeFileName(name, textEncoding)
	if err != nil {
		return name
	}
	return decoded
}

// encodeEntryName 写压缩包时按配置编码条目名称
func encodeEntryName(h EncodingHandler, name, textEncoding string) string {
	if textEncoding == "" || strings.EqualFold(textEncoding, EncodingAuto) {
		return name
	}
	encoded, err := h.EncodeFileName(name, textEncoding)
	if err != nil {
		return name
	}
	return encoded
}
