package archivekit

import (
	"path/filepath"
	"regexp"
	"strings"
)

// FilenameSanitizer 输出文件名安全化处理器，用于用户给定的压缩包名称
type FilenameSanitizer struct {
	// replacements 需要替换的字符
	replacements *strings.Replacer
	// illegalPattern 非法字符
	illegalPattern *regexp.Regexp
	// maxLength 文件名最大字节数
	maxLength int
}

// NewFilenameSanitizer 创建文件名安全化处理器
func NewFilenameSanitizer() *FilenameSanitizer {
	return &FilenameSanitizer{
		replacements: strings.NewReplacer(
			"？", "_", "｜", "_", "＊", "_", "＜", "_", "＞", "_",
			"\\", "_", "/", "_",
		),
		illegalPattern: regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`),
		maxLength:      255,
	}
}

// HasForbiddenCharacters 检查名称是否包含不允许出现在文件名中的字符
func (s *FilenameSanitizer) HasForbiddenCharacters(name string) bool {
	return s.illegalPattern.MatchString(name)
}

// SanitizeFilename 安全化文件名，保留扩展名并限制长度
func (s *FilenameSanitizer) SanitizeFilename(name string) string {
	sanitized := s.replacements.Replace(name)
	sanitized = s.illegalPattern.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, " .")

	if sanitized == "" || sanitized == "_" {
		return "archive"
	}

	if len(sanitized) > s.maxLength {
		_, ext := SplitExtension(sanitized)
		stem := strings.TrimSuffix(sanitized, ext)
		if len(ext) >= s.maxLength {
			ext = filepath.Ext(ext)
		}
		if len(stem) > s.maxLength-len(ext) {
			stem = stem[:s.maxLength-len(ext)]
		}
		sanitized = stem + ext
	}

	return sanitized
}
