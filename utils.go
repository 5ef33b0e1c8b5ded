package archivekit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// SplitExtension 拆分文件名和扩展名，识别 .tar.gz 这类复合扩展名
func SplitExtension(fileName string) (stem, ext string) {
	base := filepath.Base(fileName)
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	lower := strings.ToLower(base)

	for _, rule := range compoundExtensions {
		if strings.HasSuffix(lower, rule.ext) && len(base) > len(rule.ext) {
			return base[:len(base)-len(rule.ext)], base[len(base)-len(rule.ext):]
		}
	}

	ext = filepath.Ext(base)
	if ext == base {
		// .bashrc 这类隐藏文件没有扩展名
		return base, ""
	}
	return strings.TrimSuffix(base, ext), ext
}

// GenerateUniqueFileName 生成唯一文件名（处理重复文件），形如 name_1.ext
func GenerateUniqueFileName(fs afero.Fs, filePath string) string {
	if exists, _ := afero.Exists(fs, filePath); !exists {
		return filePath
	}

	dir := filepath.Dir(filePath)
	stem, ext := SplitExtension(filePath)

	for i := 1; i <= 999; i++ {
		newPath := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if exists, _ := afero.Exists(fs, newPath); !exists {
			return newPath
		}
	}

	// 数字后缀都用完了，使用时间戳
	timestamp := time.Now().Format("20060102_150405")
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, timestamp, ext))
}

// HandleFileConflict 处理解压时的文件冲突
func HandleFileConflict(fs afero.Fs, targetPath string, opts Options) (string, error) {
	if exists, _ := afero.Exists(fs, targetPath); !exists {
		return targetPath, nil
	}

	if opts.Overwrite {
		return targetPath, nil
	}

	if opts.AutoRename {
		return GenerateUniqueFileName(fs, targetPath), nil
	}

	return "", NewArchiveError(ErrPermissionDenied, "文件已存在且不允许覆盖", targetPath, nil)
}

// CreateUniqueFile 在目录中创建文件，名称冲突时按 name_N.ext 规则改名，返回实际路径
func CreateUniqueFile(fs afero.Fs, dir, name string) (afero.File, string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, "", errors.Wrap(err, "创建输出目录失败")
	}

	target := filepath.Join(dir, name)
	for attempt := 0; attempt < 8; attempt++ {
		candidate := GenerateUniqueFileName(fs, target)
		file, err := fs.OpenFile(candidate, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return file, candidate, nil
		}
		if !os.IsExist(err) && !errors.Is(err, afero.ErrFileExists) {
			return nil, "", err
		}
		// 并发创建了同名文件，重新选择
	}

	return nil, "", NewArchiveError(ErrIOFailure, "无法生成唯一的文件名", target, nil)
}

// SafeDelete 删除文件或目录，不存在时忽略
func SafeDelete(fs afero.Fs, path string) error {
	if path == "" {
		return nil
	}
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return fs.RemoveAll(path)
	}
	return fs.Remove(path)
}

// FileSize 返回文件大小，目录返回其中所有文件的大小之和
func FileSize(fs afero.Fs, path string) (uint64, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return uint64(info.Size()), nil
	}

	var total uint64
	err = afero.Walk(fs, path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.Mode().IsRegular() {
			total += uint64(fi.Size())
		}
		return nil
	})
	return total, err
}

// TotalFileSize 计算多个路径的总大小
func TotalFileSize(fs afero.Fs, paths []string) (uint64, error) {
	var total uint64
	for _, p := range paths {
		size, err := FileSize(fs, p)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

// RemoveDuplicateStrings 去除字符串切片中的重复项
func RemoveDuplicateStrings(slice []string) []string {
	seen := make(map[string]bool)
	result := []string{}

	for _, item := range slice {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}
