package archivekit

import (
	"context"
	"errors"
	"io/fs"
	"strings"
)

// PasswordProvider 密码提供者，任务遇到加密压缩包时向它索要密码
type PasswordProvider interface {
	// RequestPassword 为指定的压缩包索要密码；返回空字符串表示用户放弃
	RequestPassword(ctx context.Context, displayName string) (string, error)
}

// PasswordProviderFunc 函数形式的密码提供者
type PasswordProviderFunc func(ctx context.Context, displayName string) (string, error)

// RequestPassword 实现PasswordProvider
func (f PasswordProviderFunc) RequestPassword(ctx context.Context, displayName string) (string, error) {
	return f(ctx, displayName)
}

// StaticPasswordProvider 按压缩包名称返回预先配置的密码，找不到时返回Default
type StaticPasswordProvider struct {
	Passwords map[string]string
	Default   string
}

// RequestPassword 实现PasswordProvider
func (p *StaticPasswordProvider) RequestPassword(ctx context.Context, displayName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if pw, ok := p.Passwords[displayName]; ok {
		return pw, nil
	}
	return p.Default, nil
}

// passwordKeywords 编解码库报告密码问题时常见的关键词
var passwordKeywords = []string{
	"password",
	"encrypted",
	"wrong password",
	"invalid password",
	"needs password",
	"requires password",
	"密码",
	"加密",
}

// weakPasswordKeywords 只有已知条目加密时才当作密码错误的关键词
var weakPasswordKeywords = []string{
	"flate: corrupt input", // ZIP密码错误时的常见错误
	"corrupt input",
	"checksum",
	"authentication failed", // AES校验失败
}

// isPasswordError 检查是否为密码相关错误；文件系统错误的消息里带着路径，不参与关键词匹配
func isPasswordError(err error) bool {
	if err == nil {
		return false
	}
	if IsErrorType(err, ErrArchiveEncrypted) {
		return true
	}
	if isFileSystemError(err) {
		return false
	}
	return containsAny(strings.ToLower(err.Error()), passwordKeywords)
}

// isPasswordErrorForEncrypted 条目已知加密时更宽松地判断密码错误
func isPasswordErrorForEncrypted(err error) bool {
	if isPasswordError(err) {
		return true
	}
	if err == nil || isFileSystemError(err) {
		return false
	}
	return containsAny(strings.ToLower(err.Error()), weakPasswordKeywords)
}

// isFileSystemError 打开、读写文件本身失败
func isFileSystemError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission)
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
