package archivekit

import (
	"context"
	"io"
	"strings"

	"github.com/bodgit/sevenzip"
)

// sevenZipArchiveReader 7Z读取器（只读格式）
type sevenZipArchiveReader struct {
	readerBase
	zr          *sevenzip.Reader
	password    string
	index       int
	currentFile *sevenzip.File
	current     io.ReadCloser
}

// Open 打开7Z文件；头部加密时缺少或错误的密码在这里就会失败
func (r *sevenZipArchiveReader) Open(ctx context.Context, password string) error {
	file, size, err := r.openFile(ctx)
	if err != nil {
		return err
	}
	r.password = password

	var zr *sevenzip.Reader
	if password != "" {
		zr, err = sevenzip.NewReaderWithPassword(file, size, password)
	} else {
		zr, err = sevenzip.NewReader(file, size)
	}
	if err != nil {
		return r.classify(err)
	}
	r.zr = zr
	return nil
}

// Next 前进到下一个条目
func (r *sevenZipArchiveReader) Next() (*ArchiveEntry, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	r.closeCurrent()

	if r.index >= len(r.zr.File) {
		return nil, io.EOF
	}
	f := r.zr.File[r.index]
	r.index++
	r.currentFile = f

	info := f.FileInfo()
	isDir := info.IsDir() || strings.HasSuffix(f.Name, "/")
	entry := &ArchiveEntry{
		Key:         r.entryName(f.Name),
		IsDirectory: isDir,
		Modified:    info.ModTime(),
	}
	if !isDir && info.Size() > 0 {
		entry.Size = uint64(info.Size())
	}
	return entry, nil
}

// Read 读取当前条目内容，首次读取时才打开
func (r *sevenZipArchiveReader) Read(p []byte) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	if r.currentFile == nil {
		return 0, r.noEntry()
	}
	if r.current == nil {
		rc, err := r.currentFile.Open()
		if err != nil {
			return 0, r.classify(err)
		}
		r.current = rc
	}

	n, err := r.current.Read(p)
	if err != nil && err != io.EOF {
		return n, r.classify(err)
	}
	return n, err
}

// Close 关闭读取器
func (r *sevenZipArchiveReader) Close() error {
	r.closeCurrent()
	return r.release()
}

func (r *sevenZipArchiveReader) closeCurrent() {
	if r.current != nil {
		r.current.Close()
		r.current = nil
	}
	r.currentFile = nil
}

// classify 提供了密码时，校验和错误也视为密码错误
func (r *sevenZipArchiveReader) classify(err error) error {
	if isPasswordError(err) || (r.password != "" && isPasswordErrorForEncrypted(err)) {
		return NewArchiveError(ErrArchiveEncrypted, "7Z文件需要密码或密码错误", r.path, err)
	}
	return ClassifyError(err, KindReading, r.path)
}
