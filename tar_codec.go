package archivekit

import (
	"archive/tar"
	"bufio"
	"context"
	"io"
	"os"
	"strings"
)

// tarArchiveReader TAR系列读取器，按variant从分派表选择解压流
type tarArchiveReader struct {
	readerBase
	variant ArchiveType
	dec     io.ReadCloser
	tr      *tar.Reader
	hasCur  bool
}

// Open 打开TAR文件；TAR没有加密，密码被忽略
func (r *tarArchiveReader) Open(ctx context.Context, _ string) error {
	file, _, err := r.openFile(ctx)
	if err != nil {
		return err
	}

	codec, ok := streamCodecs[r.variant]
	if !ok {
		return NewArchiveError(ErrUnsupportedType, "不支持的TAR压缩方式: "+r.variant.String(), r.path, nil)
	}
	dec, err := codec.newReader(bufio.NewReader(file))
	if err != nil {
		return NewArchiveError(ErrCorruptedArchive, "无法读取"+r.variant.String()+"数据流", r.path, err)
	}
	r.dec = dec
	r.tr = tar.NewReader(dec)
	return nil
}

// Next 前进到下一个文件或目录条目，跳过链接和设备等特殊条目
func (r *tarArchiveReader) Next() (*ArchiveEntry, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	r.hasCur = false

	for {
		hdr, err := r.tr.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			if cerr := r.checkUsable(); cerr != nil {
				return nil, cerr
			}
			return nil, ClassifyError(err, KindReading, r.path)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			r.hasCur = true
			return &ArchiveEntry{
				Key:         r.entryName(hdr.Name),
				IsDirectory: true,
				Modified:    hdr.ModTime,
			}, nil
		case tar.TypeReg, tar.TypeRegA:
			r.hasCur = true
			entry := &ArchiveEntry{
				Key:         r.entryName(hdr.Name),
				IsDirectory: strings.HasSuffix(hdr.Name, "/"),
				Modified:    hdr.ModTime,
			}
			if !entry.IsDirectory {
				entry.Size = uint64(hdr.Size)
			}
			return entry, nil
		}
	}
}

// Read 读取当前条目内容
func (r *tarArchiveReader) Read(p []byte) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	if !r.hasCur {
		return 0, r.noEntry()
	}
	n, err := r.tr.Read(p)
	if err != nil && err != io.EOF {
		return n, ClassifyError(err, KindReading, r.path)
	}
	return n, err
}

// Close 关闭读取器
func (r *tarArchiveReader) Close() error {
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
	}
	return r.release()
}

// tarArchiveWriter TAR系列写入器，外层套上对应的压缩流
type tarArchiveWriter struct {
	tw  *tar.Writer
	enc io.WriteCloser
}

func newTarArchiveWriter(w io.Writer, variant ArchiveType, opts Options) (*tarArchiveWriter, error) {
	codec, ok := streamCodecs[variant]
	if !ok || !variant.IsTarFamily() {
		return nil, NewArchiveError(ErrUnsupportedType, "不支持的TAR压缩方式: "+variant.String(), "", nil)
	}
	enc, err := codec.newWriter(w, opts.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return &tarArchiveWriter{
		tw:  tar.NewWriter(enc),
		enc: enc,
	}, nil
}

// CreateEntry 写入条目头，返回用于写入内容的写入器
func (w *tarArchiveWriter) CreateEntry(key string, info os.FileInfo) (io.Writer, error) {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return nil, err
	}
	hdr.Name = key
	if info.IsDir() {
		hdr.Name = strings.TrimSuffix(key, "/") + "/"
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	return w.tw, nil
}

// Close 依次结束TAR和外层压缩流
func (w *tarArchiveWriter) Close() error {
	if err := w.tw.Close(); err != nil {
		w.enc.Close()
		return err
	}
	return w.enc.Close()
}
