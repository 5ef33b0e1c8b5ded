package archivekit

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/yeka/zip"
)

// zipArchiveReader ZIP读取器，支持ZipCrypto和AES加密
type zipArchiveReader struct {
	readerBase
	zr          *zip.Reader
	index       int
	encrypted   bool
	currentFile *zip.File
	current     io.ReadCloser
}

// Open 打开ZIP文件；有加密条目时校验密码
func (r *zipArchiveReader) Open(ctx context.Context, password string) error {
	file, size, err := r.openFile(ctx)
	if err != nil {
		return err
	}

	zr, err := zip.NewReader(file, size)
	if err != nil {
		return NewArchiveError(ErrCorruptedArchive, "无法读取ZIP目录", r.path, err)
	}
	r.zr = zr

	var probe *zip.File
	for _, f := range zr.File {
		if !f.IsEncrypted() {
			continue
		}
		r.encrypted = true
		if password != "" {
			f.SetPassword(password)
		}
		if probe == nil || f.UncompressedSize64 < probe.UncompressedSize64 {
			probe = f
		}
	}

	if !r.encrypted {
		return nil
	}
	if password == "" {
		return NewArchiveError(ErrArchiveEncrypted, "ZIP文件需要密码", r.path, nil)
	}
	return r.verifyPassword(ctx, probe)
}

// verifyPassword 完整读取最小的加密条目，让CRC或AES认证暴露错误的密码
func (r *zipArchiveReader) verifyPassword(ctx context.Context, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return r.classify(f, err)
	}
	defer rc.Close()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return r.classify(f, err)
	}
	return ctx.Err()
}

// Next 前进到下一个条目
func (r *zipArchiveReader) Next() (*ArchiveEntry, error) {
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
	isDir := strings.HasSuffix(f.Name, "/") || info.IsDir()
	entry := &ArchiveEntry{
		Key:         r.entryName(f.Name),
		IsDirectory: isDir,
		Modified:    info.ModTime(),
	}
	if !isDir {
		entry.Size = f.UncompressedSize64
	}
	return entry, nil
}

// Read 读取当前条目内容，首次读取时才打开
func (r *zipArchiveReader) Read(p []byte) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	if r.currentFile == nil {
		return 0, r.noEntry()
	}
	if r.current == nil {
		rc, err := r.currentFile.Open()
		if err != nil {
			return 0, r.classify(r.currentFile, err)
		}
		r.current = rc
	}

	n, err := r.current.Read(p)
	if err != nil && err != io.EOF {
		return n, r.classify(r.currentFile, err)
	}
	return n, err
}

// Close 关闭读取器
func (r *zipArchiveReader) Close() error {
	r.closeCurrent()
	return r.release()
}

func (r *zipArchiveReader) closeCurrent() {
	if r.current != nil {
		r.current.Close()
		r.current = nil
	}
	r.currentFile = nil
}

// classify 加密条目上的解码错误视为密码错误
func (r *zipArchiveReader) classify(f *zip.File, err error) error {
	if f.IsEncrypted() && isPasswordErrorForEncrypted(err) {
		return NewArchiveError(ErrArchiveEncrypted, "ZIP密码错误", r.path, err)
	}
	return ClassifyError(err, KindReading, r.path)
}

// zipArchiveWriter ZIP写入器；设置了密码时用AES-256加密文件条目
type zipArchiveWriter struct {
	zw           *zip.Writer
	password     string
	encoding     EncodingHandler
	textEncoding string
}

func newZipArchiveWriter(w io.Writer, opts Options) *zipArchiveWriter {
	return &zipArchiveWriter{
		zw:           zip.NewWriter(w),
		password:     opts.Password,
		encoding:     NewEncodingHandler(),
		textEncoding: opts.TextEncoding,
	}
}

// CreateEntry 添加一个条目，返回用于写入内容的写入器
func (w *zipArchiveWriter) CreateEntry(key string, info os.FileInfo) (io.Writer, error) {
	name := encodeEntryName(w.encoding, key, w.textEncoding)

	if info.IsDir() {
		fh := &zip.FileHeader{
			Name:   strings.TrimSuffix(name, "/") + "/",
			Method: zip.Store,
		}
		fh.SetModTime(info.ModTime())
		return w.zw.CreateHeader(fh)
	}

	if w.password != "" {
		return w.zw.Encrypt(name, w.password, zip.AES256Encryption)
	}

	fh, err := zip.FileInfoHeader(info)
	if err != nil {
		return nil, err
	}
	fh.Name = name
	fh.Method = zip.Deflate
	return w.zw.CreateHeader(fh)
}

// Close 写入中央目录
func (w *zipArchiveWriter) Close() error {
	return w.zw.Close()
}
