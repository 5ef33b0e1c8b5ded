package archivekit

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

// SecurityValidator 安全验证器接口，防止条目路径逃出解压目录
type SecurityValidator interface {
	// ValidatePath 验证条目路径安全性
	ValidatePath(path, baseDir string) error

	// ValidateFileSize 验证条目大小
	ValidateFileSize(size, maxSize int64) error

	// SanitizePath 清理条目路径
	SanitizePath(path string) string
}

// defaultSecurityValidator 默认安全验证器实现
type defaultSecurityValidator struct {
	maxPathLength int
	reservedNames bool // 检查Windows保留名称
}

// NewSecurityValidator 创建新的安全验证器
func NewSecurityValidator() SecurityValidator {
	return &defaultSecurityValidator{
		maxPathLength: 4096,
		reservedNames: runtime.GOOS == "windows",
	}
}

// ValidatePath 验证路径安全性
func (v *defaultSecurityValidator) ValidatePath(path, baseDir string) error {
	if path == "" {
		return NewArchiveError(ErrInvalidPath, "路径不能为空", path, nil)
	}

	if len(path) > v.maxPathLength {
		return NewArchiveError(ErrInvalidPath,
			fmt.Sprintf("路径长度超过限制 (%d > %d)", len(path), v.maxPathLength),
			path, nil)
	}

	// 绝对路径和盘符在清理前检查
	slashed := strings.ReplaceAll(path, "\\", "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(path) || filepath.VolumeName(path) != "" {
		return NewArchiveError(ErrPathTraversal, "不允许绝对路径", path, nil)
	}

	if err := v.checkPathTraversal(slashed, baseDir); err != nil {
		return err
	}

	if err := v.checkControlCharacters(path); err != nil {
		return err
	}

	if v.reservedNames {
		return v.checkReservedNames(slashed)
	}
	return nil
}

// ValidateFileSize 验证文件大小
func (v *defaultSecurityValidator) ValidateFileSize(size, maxSize int64) error {
	if size < 0 {
		return NewArchiveError(ErrInvalidArgument, "文件大小不能为负数", "", nil)
	}

	if maxSize > 0 && size > maxSize {
		return NewArchiveError(ErrFileTooLarge,
			fmt.Sprintf("文件大小超过限制 (%d > %d)", size, maxSize),
			"", nil)
	}

	return nil
}

// SanitizePath 清理路径
func (v *defaultSecurityValidator) SanitizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimLeft(path, "/")
	path = filepath.Clean(filepath.FromSlash(path))
	return v.removeControlCharacters(path)
}

// checkPathTraversal 检查路径遍历攻击
func (v *defaultSecurityValidator) checkPathTraversal(slashed, baseDir string) error {
	for _, segment := range strings.Split(slashed, "/") {
		if segment == ".." {
			return NewArchiveError(ErrPathTraversal, "检测到路径遍历攻击模式: ..", slashed, nil)
		}
	}

	if baseDir == "" {
		return nil
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return NewArchiveError(ErrInvalidPath, "无法解析基础目录", baseDir, err)
	}

	absPath, err := filepath.Abs(filepath.Join(baseDir, filepath.FromSlash(slashed)))
	if err != nil {
		return NewArchiveError(ErrInvalidPath, "无法解析目标路径", slashed, err)
	}

	if !isWithin(absBase, absPath) {
		return NewArchiveError(ErrPathTraversal, "目标路径超出基础目录范围", slashed, nil)
	}
	return nil
}

// checkControlCharacters 检查控制字符（忽略编码转换产生的替换字符）
func (v *defaultSecurityValidator) checkControlCharacters(path string) error {
	for _, char := range path {
		if unicode.IsControl(char) && char != '\uFFFD' {
			return NewArchiveError(ErrInvalidPath,
				fmt.Sprintf("路径包含控制字符: U+%04X", char),
				path, nil)
		}
	}
	return nil
}

// checkReservedNames 检查Windows保留名称
func (v *defaultSecurityValidator) checkReservedNames(path string) error {
	reservedNames := []string{
		"CON", "PRN", "AUX", "NUL",
		"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
	}

	for _, component := range strings.Split(path, "/") {
		name := strings.ToUpper(component)
		if dotIndex := strings.LastIndex(name, "."); dotIndex > 0 {
			name = name[:dotIndex]
		}

		for _, reserved := range reservedNames {
			if name == reserved {
				return NewArchiveError(ErrInvalidPath,
					fmt.Sprintf("路径包含Windows保留名称: %s", reserved),
					path, nil)
			}
		}
	}
	return nil
}

// removeControlCharacters 移除控制字符
func (v *defaultSecurityValidator) removeControlCharacters(path string) string {
	var result strings.Builder
	for _, char := range path {
		if !unicode.IsControl(char) {
			result.WriteRune(char)
		}
	}
	return result.String()
}

// isWithin target是否位于base之内（或等于base）
func isWithin(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// PathSafeJoin 安全地连接解压目录和条目路径
func PathSafeJoin(base, path string) (string, error) {
	validator := NewSecurityValidator()

	if err := validator.ValidatePath(path, base); err != nil {
		return "", err
	}

	result := filepath.Join(base, validator.SanitizePath(path))

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absResult, err := filepath.Abs(result)
	if err != nil {
		return "", err
	}
	if !isWithin(absBase, absResult) {
		return "", NewArchiveError(ErrPathTraversal, "路径连接后超出基础目录", path, nil)
	}

	return result, nil
}
