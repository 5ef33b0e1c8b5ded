package archivekit

import (
	"bufio"
	"context"
	"io"

	"github.com/nwaples/rardecode/v2"
)

// rarArchiveReader RAR读取器（只读格式）
type rarArchiveReader struct {
	readerBase
	rr       *rardecode.Reader
	password string
	pending  *rardecode.FileHeader
	hasCur   bool
}

// Open 打开RAR文件并读取第一个条目头，头部加密时可以立即发现缺少或错误的密码
func (r *rarArchiveReader) Open(ctx context.Context, password string) error {
	file, _, err := r.openFile(ctx)
	if err != nil {
		return err
	}
	r.password = password

	var opts []rardecode.Option
	if password != "" {
		opts = append(opts, rardecode.Password(password))
	}
	rr, err := rardecode.NewReader(bufio.NewReader(file), opts...)
	if err != nil {
		return r.classify(err)
	}
	r.rr = rr

	hdr, err := rr.Next()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return r.classify(err)
	}
	r.pending = hdr
	return nil
}

// Next 前进到下一个条目
func (r *rarArchiveReader) Next() (*ArchiveEntry, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	r.hasCur = false

	hdr := r.pending
	r.pending = nil
	if hdr == nil {
		var err error
		hdr, err = r.rr.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			if cerr := r.checkUsable(); cerr != nil {
				return nil, cerr
			}
			return nil, r.classify(err)
		}
	}

	r.hasCur = true
	entry := &ArchiveEntry{
		Key:         r.entryName(hdr.Name),
		IsDirectory: hdr.IsDir,
		Modified:    hdr.ModificationTime,
	}
	if !hdr.IsDir && hdr.UnPackedSize > 0 {
		entry.Size = uint64(hdr.UnPackedSize)
	}
	return entry, nil
}

// Read 读取当前条目内容
func (r *rarArchiveReader) Read(p []byte) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	if !r.hasCur {
		return 0, r.noEntry()
	}
	n, err := r.rr.Read(p)
	if err != nil && err != io.EOF {
		return n, r.classify(err)
	}
	return n, err
}

// Close 关闭读取器
func (r *rarArchiveReader) Close() error {
	return r.release()
}

// classify 提供了密码时，校验和错误也视为密码错误
func (r *rarArchiveReader) classify(err error) error {
	if isPasswordError(err) || (r.password != "" && isPasswordErrorForEncrypted(err)) {
		return NewArchiveError(ErrArchiveEncrypted, "RAR文件需要密码或密码错误", r.path, err)
	}
	return ClassifyError(err, KindReading, r.path)
}
