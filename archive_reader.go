package archivekit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/itchio/wharf/ctxcopy"
	"github.com/spf13/afero"
)

// ArchiveReader 各格式读取器的统一接口
//
// 条目按压缩包中的物理顺序产生，不能重新开始；要再次遍历必须打开新的读取器。
// 打开加密压缩包而没有密码（或密码错误）时返回ErrArchiveEncrypted类型的错误。
// 关闭之后（包括取消导致的关闭）的任何调用都返回ErrReaderDisposed类型的错误。
type ArchiveReader interface {
	// Open 打开压缩包，password为空表示不使用密码
	Open(ctx context.Context, password string) error

	// Next 前进到下一个条目，没有更多条目时返回io.EOF
	Next() (*ArchiveEntry, error)

	// Read 读取当前条目的内容
	Read(p []byte) (int, error)

	// Close 释放底层流
	Close() error
}

// NewArchiveReader 根据格式创建读取器
func NewArchiveReader(t ArchiveType, archivePath string, opts Options) (ArchiveReader, error) {
	opts = opts.withDefaults()
	base := newReaderBase(archivePath, opts)

	switch {
	case t == TypeZip:
		return &zipArchiveReader{readerBase: base}, nil
	case t.IsTarFamily():
		return &tarArchiveReader{readerBase: base, variant: t}, nil
	case t.IsSingleStream():
		return &streamArchiveReader{readerBase: base, variant: t}, nil
	case t == TypeRar:
		return &rarArchiveReader{readerBase: base}, nil
	case t == TypeSevenZip:
		return &sevenZipArchiveReader{readerBase: base}, nil
	}
	return nil, NewArchiveError(ErrUnsupportedType, fmt.Sprintf("不支持的格式: %s", t), archivePath, nil)
}

// readerBase 各读取器共享的状态：底层文件、关闭标记、取消监听和名称解码
type readerBase struct {
	fs           afero.Fs
	path         string
	encoding     EncodingHandler
	textEncoding string

	file      afero.File
	opened    bool
	released  bool
	closed    atomic.Bool
	stopWatch func() bool
}

func newReaderBase(archivePath string, opts Options) readerBase {
	return readerBase{
		fs:           opts.Fs,
		path:         archivePath,
		encoding:     NewEncodingHandler(),
		textEncoding: opts.TextEncoding,
	}
}

// openFile 打开底层文件并注册取消监听
func (b *readerBase) openFile(ctx context.Context) (afero.File, int64, error) {
	if err := b.checkUsable(); err != nil {
		return nil, 0, err
	}
	if b.opened {
		return nil, 0, NewArchiveError(ErrInvalidArgument, "读取器已经打开", b.path, nil)
	}

	file, err := b.fs.Open(b.path)
	if err != nil {
		return nil, 0, ClassifyError(err, KindReading, b.path)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, ClassifyError(err, KindReading, b.path)
	}

	b.file = file
	b.opened = true
	b.stopWatch = context.AfterFunc(ctx, func() {
		b.closed.Store(true)
	})
	return file, info.Size(), nil
}

// checkUsable 关闭后返回ErrReaderDisposed
func (b *readerBase) checkUsable() error {
	if b.closed.Load() {
		return NewArchiveError(ErrReaderDisposed, "读取器已关闭", b.path, nil)
	}
	return nil
}

// checkOpen 要求已打开且未关闭
func (b *readerBase) checkOpen() error {
	if err := b.checkUsable(); err != nil {
		return err
	}
	if !b.opened {
		return NewArchiveError(ErrInvalidArgument, "读取器尚未打开", b.path, nil)
	}
	return nil
}

// release 关闭底层文件，重复调用无副作用
func (b *readerBase) release() error {
	b.closed.Store(true)
	if b.released {
		return nil
	}
	b.released = true
	if b.stopWatch != nil {
		b.stopWatch()
	}
	if b.file != nil {
		return b.file.Close()
	}
	return nil
}

// entryName 按配置的编码解码条目名称
func (b *readerBase) entryName(raw string) string {
	return decodeEntryName(b.encoding, raw, b.textEncoding)
}

// noEntry 尚未调用Next时读取内容返回的错误
func (b *readerBase) noEntry() error {
	return NewArchiveError(ErrInvalidArgument, "没有当前条目", b.path, nil)
}

// entryFilter 条目子集过滤，nil表示全部
type entryFilter struct {
	keys map[string]bool
}

func newEntryFilter(entries []string) *entryFilter {
	if entries == nil {
		return nil
	}
	f := &entryFilter{keys: make(map[string]bool, len(entries))}
	for _, e := range entries {
		if key := normalizeKey(e); key != "" {
			f.keys[strings.TrimSuffix(key, "/")] = true
		}
	}
	return f
}

// match 条目本身被选中，或位于被选中的目录下
func (f *entryFilter) match(key string) bool {
	if f == nil {
		return true
	}
	key = strings.TrimSuffix(normalizeKey(key), "/")
	for {
		if f.keys[key] {
			return true
		}
		i := strings.LastIndex(key, "/")
		if i < 0 {
			return false
		}
		key = key[:i]
	}
}

// extraction 一次解压的上下文
type extraction struct {
	fs          afero.Fs
	destination string
	opts        Options
	filter      *entryFilter
	reporter    *progressReporter
	validator   SecurityValidator
	collect     bool
	buffer      []byte
}

// extractAll 遍历读取器，把选中的条目写到目标目录；
// 取消时删除正在写入的文件并返回context的错误
func (x *extraction) extractAll(ctx context.Context, reader ArchiveReader) ([]string, error) {
	var names []string
	consumer := x.opts.Consumer

	for {
		if err := ctx.Err(); err != nil {
			return names, err
		}

		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return names, ctxErr
			}
			return names, err
		}

		if !x.filter.match(entry.Key) {
			continue
		}
		if x.opts.SkipSystemFiles && IsSystemFile(entry.Key) {
			consumer.Debugf("跳过系统文件: %s", entry.Key)
			continue
		}

		target, err := PathSafeJoin(x.destination, entry.Key)
		if err != nil {
			return names, err
		}

		if entry.IsDirectory {
			if err := x.fs.MkdirAll(target, 0755); err != nil {
				return names, ClassifyError(err, KindWriting, target)
			}
			continue
		}

		if err := x.validator.ValidateFileSize(int64(entry.Size), x.opts.MaxEntrySize); err != nil {
			return names, NewArchiveError(ErrFileTooLarge, "条目超过大小限制", entry.Key, err)
		}

		written, err := x.writeEntry(ctx, target, entry, reader)
		if err != nil {
			return names, err
		}
		consumer.Debugf("解压: %s", entry.Key)
		if x.collect {
			names = append(names, written)
		}
	}

	x.reporter.flush()
	return names, nil
}

// writeEntry 写出一个文件条目，失败时删除写了一半的文件
func (x *extraction) writeEntry(ctx context.Context, target string, entry *ArchiveEntry, src io.Reader) (string, error) {
	if err := EnsureDirectoryExists(x.fs, filepath.Dir(target)); err != nil {
		return "", ClassifyError(err, KindWriting, target)
	}

	target, err := HandleFileConflict(x.fs, target, x.opts)
	if err != nil {
		return "", err
	}

	out, err := x.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", ClassifyError(err, KindWriting, target)
	}

	if x.opts.MaxEntrySize > 0 {
		src = &maxSizeReader{r: src, remaining: x.opts.MaxEntrySize, key: entry.Key}
	}

	_, copyErr := ctxcopy.DoBuffer(ctx, x.reporter.writer(out), src, x.buffer)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		x.fs.Remove(target)
		copyErr = cancellationError(ctx, copyErr)
		if IsCancellation(copyErr) {
			return "", copyErr
		}
		return "", ClassifyError(copyErr, KindWriting, target)
	}

	if !entry.Modified.IsZero() {
		x.fs.Chtimes(target, entry.Modified, entry.Modified)
	}
	return target, nil
}

// maxSizeReader 条目内容超过限制时报错，防止声明大小与实际不符的压缩炸弹
type maxSizeReader struct {
	r         io.Reader
	remaining int64
	key       string
}

func (m *maxSizeReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.remaining -= int64(n)
	if m.remaining < 0 {
		return n, NewArchiveError(ErrFileTooLarge, "条目内容超过大小限制", m.key, nil)
	}
	return n, err
}
