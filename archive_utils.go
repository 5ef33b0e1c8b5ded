package archivekit

import (
	"path"
	"strings"

	"github.com/spf13/afero"
)

// systemFiles 操作系统生成的附属文件，压缩和解压时可以跳过
var systemFiles = []string{
	"Thumbs.db", "Desktop.ini", ".DS_Store",
	"__MACOSX", ".AppleDouble", ".LSOverride",
}

// EnsureDirectoryExists 确保目录存在
func EnsureDirectoryExists(fs afero.Fs, dirPath string) error {
	if dirPath == "" {
		return nil
	}

	if exists, _ := afero.DirExists(fs, dirPath); !exists {
		return fs.MkdirAll(dirPath, 0755)
	}
	return nil
}

// IsSystemFile 检查条目路径中是否有操作系统生成的附属文件或目录
func IsSystemFile(key string) bool {
	key = strings.Trim(strings.ReplaceAll(key, "\\", "/"), "/")
	if key == "" {
		return false
	}

	for _, component := range strings.Split(key, "/") {
		for _, sysFile := range systemFiles {
			if strings.EqualFold(component, sysFile) {
				return true
			}
		}
	}

	// macOS资源分叉文件 ._name
	return strings.HasPrefix(path.Base(key), "._")
}
