package archivekit

import (
	"context"
	"io"
	"path/filepath"
)

// LoadArchiveTree 读取压缩包的全部条目并构建目录树
//
// 参数:
//
//	archivePath: 压缩包路径
//	password: 密码(可以为空)
//	opts: 选项，Fs决定从哪个文件系统读取
//
// 返回:
//
//	*RootNode: 目录树根节点
//	error: 格式无法识别时为ErrInvalidArchiveType，结构不一致时为ErrReadingArchive
func LoadArchiveTree(ctx context.Context, archivePath, password string, opts Options) (*RootNode, error) {
	opts = opts.withDefaults()

	t := NewFormatDetector().ResolveFile(opts.Fs, archivePath)
	if t == TypeUnknown {
		return nil, NewArchiveError(ErrInvalidArchiveType, "无法识别压缩包格式", archivePath, nil)
	}

	reader, err := NewArchiveReader(t, archivePath, opts)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if err := reader.Open(ctx, password); err != nil {
		return nil, ctxErrOr(ctx, err)
	}
	return BuildTree(ctx, reader, archivePath, t, password)
}

// ListEntries 列出压缩包中的条目（包括目录条目）
//
// 参数:
//
//	archivePath: 压缩包路径
//	password: 密码(可以为空)
//	opts: 选项
//
// 返回:
//
//	[]ArchiveEntry: 条目列表，按压缩包中的顺序
//	error: 错误信息
func ListEntries(ctx context.Context, archivePath, password string, opts Options) ([]ArchiveEntry, error) {
	opts = opts.withDefaults()

	t := NewFormatDetector().ResolveFile(opts.Fs, archivePath)
	if t == TypeUnknown {
		return nil, NewArchiveError(ErrInvalidArchiveType, "无法识别压缩包格式", archivePath, nil)
	}

	reader, err := NewArchiveReader(t, archivePath, opts)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if err := reader.Open(ctx, password); err != nil {
		return nil, ctxErrOr(ctx, err)
	}

	var entries []ArchiveEntry
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := reader.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, ctxErrOr(ctx, err)
		}
		entries = append(entries, *entry)
	}
}

// Compress 压缩文件 - 简单入口
//
// 参数:
//
//	files: 待压缩的文件或目录
//	outputDir: 输出目录(空则使用第一个文件所在目录)
//	archiveName: 压缩包名称(空则根据文件名生成)
//	t: 目标格式；单流格式会为每个文件生成一个压缩包
//	opts: 选项
//
// 返回:
//
//	*Result: 汇总结果，取消时状态为StatusInterrupt
func Compress(ctx context.Context, files []string, outputDir, archiveName string, t ArchiveType, opts Options) *Result {
	job := NewJob(JobDeps{Options: opts})
	return job.Compress(ctx, &CompressionInfo{
		OperationInfo: OperationInfo{OutputLocation: outputDir, TextEncoding: opts.TextEncoding},
		ArchiveType:   t,
		ArchiveName:   archiveName,
		SelectedFiles: files,
	})
}

// Extract 解压压缩包 - 简单入口
//
// 参数:
//
//	archivePath: 压缩包路径
//	outputDir: 输出目录(空则解压到压缩包同目录下以压缩包命名的目录)
//	passwords: 没有密码或需要密码时的密码来源(可以为nil)
//	opts: 选项
//
// 返回:
//
//	*Result: 结果，ExtractedNames包含写出的文件
func Extract(ctx context.Context, archivePath, outputDir string, passwords PasswordProvider, opts Options) *Result {
	job := NewJob(JobDeps{Options: opts, Passwords: passwords})
	return job.Decompress(ctx, []*DecompressionInfo{{
		OperationInfo:         OperationInfo{OutputLocation: outputDir, TextEncoding: opts.TextEncoding},
		Item:                  ArchiveItem{Path: archivePath, DisplayName: filepath.Base(archivePath)},
		CollectExtractedNames: true,
	}})
}

// IsSupported 检查文件是否支持解压
//
// 返回:
//
//	bool: 是否支持
//	string: 格式名称
func IsSupported(archivePath string) (bool, string) {
	t := Resolve(archivePath)
	return t != TypeUnknown, t.String()
}

// GetSupportedFormats 获取支持的格式列表
func GetSupportedFormats() []string {
	var formats []string
	for _, t := range AllArchiveTypes {
		formats = append(formats, t.String())
	}
	return formats
}

// GetWritableFormats 获取可以创建的格式列表
func GetWritableFormats() []string {
	var formats []string
	for _, t := range AllArchiveTypes {
		if !t.IsReadOnly() {
			formats = append(formats, t.String())
		}
	}
	return formats
}
