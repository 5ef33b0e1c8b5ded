package archivekit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/itchio/wharf/ctxcopy"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// AccessMode 请求的算法用途
type AccessMode int

const (
	// ModeRead 解压
	ModeRead AccessMode = iota
	// ModeWrite 压缩
	ModeWrite
)

// Algorithm 某一格式的压缩/解压策略，每个操作创建一个，用完即弃
type Algorithm interface {
	// Type 返回格式
	Type() ArchiveType

	// Compress 把files写入archivePath；单流格式只接受一个文件
	Compress(ctx context.Context, files []string, archivePath string) error

	// Decompress 把整个压缩包解压到destination
	Decompress(ctx context.Context, archivePath, destination, password string) error

	// DecompressEntries 只解压entries中的条目（nil表示全部），collectNames为true时返回写出的文件路径
	DecompressEntries(ctx context.Context, archivePath, destination, password string, entries []string, collectNames bool) ([]string, error)
}

// AlgorithmFactory 算法工厂接口
type AlgorithmFactory interface {
	// NewAlgorithm 根据格式和用途创建算法
	NewAlgorithm(t ArchiveType, mode AccessMode, opts Options) (Algorithm, error)
}

// defaultAlgorithmFactory 默认算法工厂实现
type defaultAlgorithmFactory struct{}

// NewAlgorithmFactory 创建新的算法工厂
func NewAlgorithmFactory() AlgorithmFactory {
	return &defaultAlgorithmFactory{}
}

// NewAlgorithm 使用默认工厂创建算法
func NewAlgorithm(t ArchiveType, mode AccessMode, opts Options) (Algorithm, error) {
	return NewAlgorithmFactory().NewAlgorithm(t, mode, opts)
}

// NewAlgorithm 创建算法；未知格式，或者对只读格式（RAR、7Z）请求压缩时返回ErrUnsupportedType
func (f *defaultAlgorithmFactory) NewAlgorithm(t ArchiveType, mode AccessMode, opts Options) (Algorithm, error) {
	if t == TypeUnknown {
		return nil, NewArchiveError(ErrUnsupportedType, "未知的压缩格式", "", nil)
	}
	if mode == ModeWrite && t.IsReadOnly() {
		return nil, NewArchiveError(ErrUnsupportedType, fmt.Sprintf("%s 格式只能解压，不能创建", t), "", nil)
	}

	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &archiveAlgorithm{
		archiveType: t,
		opts:        opts,
	}, nil
}

// archiveAlgorithm 通用算法：解压通过ArchiveReader，压缩按格式选择写入器
type archiveAlgorithm struct {
	archiveType ArchiveType
	opts        Options
}

// Type 返回格式
func (a *archiveAlgorithm) Type() ArchiveType {
	return a.archiveType
}

// archiveWriter 容器格式的写入器
type archiveWriter interface {
	// CreateEntry 添加条目，返回用于写入内容的写入器
	CreateEntry(key string, info os.FileInfo) (io.Writer, error)

	// Close 完成压缩包
	Close() error
}

// sourceEntry 待压缩的一个文件或目录
type sourceEntry struct {
	path string
	key  string
	info os.FileInfo
}

// Compress 压缩文件
func (a *archiveAlgorithm) Compress(ctx context.Context, files []string, archivePath string) error {
	if a.archiveType.IsReadOnly() {
		return NewArchiveError(ErrUnsupportedType, fmt.Sprintf("%s 格式只能解压，不能创建", a.archiveType), archivePath, nil)
	}
	if len(files) == 0 {
		return NewArchiveError(ErrInvalidArgument, "没有要压缩的文件", archivePath, nil)
	}

	fs := a.opts.Fs
	sources, err := collectSources(fs, files, a.opts.SkipSystemFiles)
	if err != nil {
		return err
	}
	sources = excludePath(sources, archivePath)

	var total uint64
	for _, src := range sources {
		if src.info.Mode().IsRegular() {
			total += uint64(src.info.Size())
		}
	}

	out, err := fs.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return ClassifyError(err, KindWriting, archivePath)
	}
	defer out.Close()

	bw := bufio.NewWriterSize(out, a.opts.BufferSize)
	reporter := newProgressReporter(a.opts, total)

	if a.archiveType.IsSingleStream() {
		err = a.compressSingleStream(ctx, bw, files, sources, reporter)
	} else {
		err = a.compressContainer(ctx, bw, sources, reporter)
	}
	if err != nil {
		return a.wrapWriteError(ctx, err, archivePath)
	}

	if err := bw.Flush(); err != nil {
		return ClassifyError(err, KindWriting, archivePath)
	}
	if err := out.Close(); err != nil {
		return ClassifyError(err, KindWriting, archivePath)
	}
	reporter.flush()
	a.opts.Consumer.Debugf("已创建 %s (%d 个条目)", archivePath, len(sources))
	return nil
}

// compressContainer 把所有源写入一个ZIP或TAR系列压缩包
func (a *archiveAlgorithm) compressContainer(ctx context.Context, w io.Writer, sources []sourceEntry, reporter *progressReporter) error {
	var aw archiveWriter
	switch {
	case a.archiveType == TypeZip:
		aw = newZipArchiveWriter(w, a.opts)
	case a.archiveType.IsTarFamily():
		tw, err := newTarArchiveWriter(w, a.archiveType, a.opts)
		if err != nil {
			return err
		}
		aw = tw
	default:
		return NewArchiveError(ErrUnsupportedType, fmt.Sprintf("不支持的格式: %s", a.archiveType), "", nil)
	}

	buf := make([]byte, a.opts.BufferSize)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		dst, err := aw.CreateEntry(src.key, src.info)
		if err != nil {
			return errors.Wrapf(err, "写入条目头失败: %s", src.key)
		}
		if src.info.IsDir() {
			continue
		}
		if err := a.copySource(ctx, reporter.writer(dst), src.path, buf); err != nil {
			return err
		}
	}

	return aw.Close()
}

// compressSingleStream 单流格式：一个压缩包只压缩一个文件
func (a *archiveAlgorithm) compressSingleStream(ctx context.Context, w io.Writer, files []string, sources []sourceEntry, reporter *progressReporter) error {
	if len(files) != 1 || len(sources) != 1 || !sources[0].info.Mode().IsRegular() {
		return NewArchiveError(ErrInvalidArgument,
			fmt.Sprintf("%s 格式一个压缩包只能包含一个文件", a.archiveType), "", nil)
	}

	codec := streamCodecs[a.archiveType]
	enc, err := codec.newWriter(w, a.opts.CompressionLevel)
	if err != nil {
		return err
	}

	buf := make([]byte, a.opts.BufferSize)
	if err := a.copySource(ctx, reporter.writer(enc), sources[0].path, buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// copySource 把源文件内容复制到条目写入器
func (a *archiveAlgorithm) copySource(ctx context.Context, dst io.Writer, path string, buf []byte) error {
	src, err := a.opts.Fs.Open(path)
	if err != nil {
		return ClassifyError(err, KindReading, path)
	}
	defer src.Close()

	_, err = ctxcopy.DoBuffer(ctx, dst, src, buf)
	return cancellationError(ctx, err)
}

// wrapWriteError 取消原样返回，其余错误按写入分类
func (a *archiveAlgorithm) wrapWriteError(ctx context.Context, err error, archivePath string) error {
	err = cancellationError(ctx, err)
	if IsCancellation(err) {
		return err
	}
	return ClassifyError(err, KindWriting, archivePath)
}

// Decompress 解压整个压缩包
func (a *archiveAlgorithm) Decompress(ctx context.Context, archivePath, destination, password string) error {
	_, err := a.DecompressEntries(ctx, archivePath, destination, password, nil, false)
	return err
}

// DecompressEntries 解压选中的条目
func (a *archiveAlgorithm) DecompressEntries(ctx context.Context, archivePath, destination, password string, entries []string, collectNames bool) ([]string, error) {
	fs := a.opts.Fs

	reader, err := NewArchiveReader(a.archiveType, archivePath, a.opts)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if err := reader.Open(ctx, password); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	if err := EnsureDirectoryExists(fs, destination); err != nil {
		return nil, ClassifyError(err, KindWriting, destination)
	}

	// 解压后的总大小事先未知，用压缩包大小估算进度
	total, _ := FileSize(fs, archivePath)

	x := &extraction{
		fs:          fs,
		destination: destination,
		opts:        a.opts,
		filter:      newEntryFilter(entries),
		reporter:    newProgressReporter(a.opts, total),
		validator:   NewSecurityValidator(),
		collect:     collectNames,
		buffer:      make([]byte, a.opts.BufferSize),
	}
	names, err := x.extractAll(ctx, reader)
	if err != nil {
		return names, err
	}
	a.opts.Consumer.Debugf("已解压 %s 到 %s", archivePath, destination)
	return names, nil
}

// collectSources 展开待压缩的路径；目录递归展开，条目名相对于所选路径的父目录
func collectSources(fs afero.Fs, files []string, skipSystem bool) ([]sourceEntry, error) {
	var sources []sourceEntry

	for _, file := range files {
		info, err := fs.Stat(file)
		if err != nil {
			return nil, ClassifyError(err, KindReading, file)
		}

		if !info.IsDir() {
			sources = append(sources, sourceEntry{path: file, key: filepath.Base(file), info: info})
			continue
		}

		parent := filepath.Dir(filepath.Clean(file))
		err = afero.Walk(fs, file, func(p string, fi os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			rel, err := filepath.Rel(parent, p)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			if skipSystem && IsSystemFile(key) {
				if fi.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			switch {
			case fi.IsDir():
				sources = append(sources, sourceEntry{path: p, key: key + "/", info: fi})
			case fi.Mode().IsRegular():
				sources = append(sources, sourceEntry{path: p, key: key, info: fi})
			}
			return nil
		})
		if err != nil {
			return nil, ClassifyError(err, KindReading, file)
		}
	}

	return sources, nil
}

// excludePath 压缩包本身位于被压缩的目录中时不能把自己写进去
func excludePath(sources []sourceEntry, path string) []sourceEntry {
	path = filepath.Clean(path)
	kept := sources[:0]
	for _, src := range sources {
		if filepath.Clean(src.path) != path {
			kept = append(kept, src)
		}
	}
	return kept
}
