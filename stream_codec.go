package archivekit

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
)

// streamCodec 单流压缩算法，TAR系列也通过它包装
type streamCodec struct {
	newReader func(r io.Reader) (io.ReadCloser, error)
	newWriter func(w io.Writer, level int) (io.WriteCloser, error)
}

var gzipCodec = streamCodec{
	newReader: func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	},
	newWriter: func(w io.Writer, level int) (io.WriteCloser, error) {
		if level == 0 {
			level = gzip.DefaultCompression
		}
		return gzip.NewWriterLevel(w, level)
	},
}

var bzip2Codec = streamCodec{
	newReader: func(r io.Reader) (io.ReadCloser, error) {
		return bzip2.NewReader(r, &bzip2.ReaderConfig{})
	},
	newWriter: func(w io.Writer, level int) (io.WriteCloser, error) {
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: level})
	},
}

var lzipCodec = streamCodec{
	newReader: func(r io.Reader) (io.ReadCloser, error) {
		lz, err := newLzipReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(lz), nil
	},
	newWriter: func(w io.Writer, _ int) (io.WriteCloser, error) {
		return newLzipWriter(w)
	},
}

// identityCodec 不压缩的TAR
var identityCodec = streamCodec{
	newReader: func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	},
	newWriter: func(w io.Writer, _ int) (io.WriteCloser, error) {
		return nopWriteCloser{w}, nil
	},
}

// streamCodecs 格式到压缩算法的分派表
var streamCodecs = map[ArchiveType]streamCodec{
	TypeTar:    identityCodec,
	TypeTarGz:  gzipCodec,
	TypeTarBz2: bzip2Codec,
	TypeTarLz:  lzipCodec,
	TypeGZip:   gzipCodec,
	TypeBZip2:  bzip2Codec,
	TypeLZip:   lzipCodec,
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// singleStreamEntryName 单流压缩包内唯一条目的名称：去掉最后一个扩展名
func singleStreamEntryName(archivePath string) string {
	base := filepath.Base(archivePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" || ext == "" {
		return base + ".out"
	}
	return name
}

// streamArchiveReader 单流压缩包读取器，只产生一个条目
type streamArchiveReader struct {
	readerBase
	variant ArchiveType
	dec     io.ReadCloser
	entry   *ArchiveEntry
	done    bool
}

// Open 打开压缩流；单流格式没有加密，密码被忽略
func (r *streamArchiveReader) Open(ctx context.Context, _ string) error {
	file, _, err := r.openFile(ctx)
	if err != nil {
		return err
	}

	codec := streamCodecs[r.variant]
	dec, err := codec.newReader(file)
	if err != nil {
		return NewArchiveError(ErrCorruptedArchive, "无法读取"+r.variant.String()+"数据流", r.path, err)
	}
	r.dec = dec

	info, err := file.Stat()
	if err != nil {
		return ClassifyError(err, KindReading, r.path)
	}
	r.entry = &ArchiveEntry{
		Key:      singleStreamEntryName(r.path),
		Modified: info.ModTime(),
	}
	return nil
}

// Next 第一次返回唯一的条目，之后返回io.EOF
func (r *streamArchiveReader) Next() (*ArchiveEntry, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if r.done {
		return nil, io.EOF
	}
	r.done = true
	return r.entry, nil
}

// Read 读取解压后的数据
func (r *streamArchiveReader) Read(p []byte) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	if !r.done {
		return 0, r.noEntry()
	}
	n, err := r.dec.Read(p)
	if err != nil && err != io.EOF {
		return n, ClassifyError(err, KindReading, r.path)
	}
	return n, err
}

// Close 关闭读取器
func (r *streamArchiveReader) Close() error {
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
	}
	return r.release()
}
