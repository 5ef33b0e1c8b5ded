package archivekit

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math/bits"

	"github.com/ulikunitz/xz/lzma"
)

// LZIP成员格式：6字节头（"LZIP"、版本、编码后的字典大小）+ 原始LZMA流（带结束标记）
// + 20字节尾（CRC32、数据大小、成员大小，均为小端）

var lzipMagic = []byte("LZIP")

const (
	lzipVersion     = 1
	lzipHeaderSize  = 6
	lzipTrailerSize = 20
	lzmaHeaderSize  = 13
	lzipDictSize    = 1 << 23
	lzipMinDictSize = 1 << 12
	lzipMaxDictSize = 1 << 29
)

// lzipWriter 在LZMA流外包装LZIP头尾
type lzipWriter struct {
	out    io.Writer
	body   *headerStripper
	lz     *lzma.Writer
	crc    hash.Hash32
	size   uint64
	closed bool
}

// newLzipWriter 创建LZIP写入器，写入的数据在Close时完成尾部
func newLzipWriter(w io.Writer) (*lzipWriter, error) {
	header := append(append([]byte{}, lzipMagic...), lzipVersion, encodeLzipDictSize(lzipDictSize))
	if _, err := w.Write(header); err != nil {
		return nil, err
	}

	body := &headerStripper{w: w, skip: lzmaHeaderSize}
	lz, err := lzma.WriterConfig{
		DictCap:   lzipDictSize,
		EOSMarker: true,
	}.NewWriter(body)
	if err != nil {
		return nil, err
	}

	return &lzipWriter{
		out:  w,
		body: body,
		lz:   lz,
		crc:  crc32.NewIEEE(),
	}, nil
}

// Write 写入未压缩数据
func (w *lzipWriter) Write(p []byte) (int, error) {
	n, err := w.lz.Write(p)
	w.crc.Write(p[:n])
	w.size += uint64(n)
	return n, err
}

// Close 结束LZMA流并写入尾部
func (w *lzipWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.lz.Close(); err != nil {
		return err
	}

	trailer := make([]byte, lzipTrailerSize)
	binary.LittleEndian.PutUint32(trailer[0:4], w.crc.Sum32())
	binary.LittleEndian.PutUint64(trailer[4:12], w.size)
	binary.LittleEndian.PutUint64(trailer[12:20], uint64(lzipHeaderSize)+uint64(w.body.written)+lzipTrailerSize)
	_, err := w.out.Write(trailer)
	return err
}

// headerStripper 丢弃LZMA写入器产生的13字节.lzma头，只保留原始流
type headerStripper struct {
	w       io.Writer
	skip    int
	written int64
}

// Write 实现io.Writer
func (h *headerStripper) Write(p []byte) (int, error) {
	total := len(p)
	if h.skip > 0 {
		if len(p) <= h.skip {
			h.skip -= len(p)
			return total, nil
		}
		p = p[h.skip:]
		h.skip = 0
	}
	n, err := h.w.Write(p)
	h.written += int64(n)
	if err != nil {
		return total - len(p) + n, err
	}
	return total, nil
}

// lzipReader 读取单个LZIP成员并校验尾部
type lzipReader struct {
	br   *bufio.Reader
	lz   *lzma.Reader
	crc  hash.Hash32
	size uint64
	done bool
}

// newLzipReader 解析LZIP头并准备解压
func newLzipReader(r io.Reader) (*lzipReader, error) {
	br := bufio.NewReader(r)

	header := make([]byte, lzipHeaderSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, NewArchiveError(ErrCorruptedArchive, "LZIP头不完整", "", err)
	}
	if !bytes.Equal(header[:4], lzipMagic) {
		return nil, NewArchiveError(ErrCorruptedArchive, "不是LZIP格式", "", nil)
	}
	if header[4] != lzipVersion {
		return nil, NewArchiveError(ErrUnsupportedType, fmt.Sprintf("不支持的LZIP版本: %d", header[4]), "", nil)
	}
	dictSize, err := decodeLzipDictSize(header[5])
	if err != nil {
		return nil, err
	}

	// 构造等价的.lzma头交给LZMA解码器：lc=3 lp=0 pb=2，大小未知
	lzmaHeader := make([]byte, lzmaHeaderSize)
	lzmaHeader[0] = 0x5D
	binary.LittleEndian.PutUint32(lzmaHeader[1:5], dictSize)
	for i := 5; i < lzmaHeaderSize; i++ {
		lzmaHeader[i] = 0xFF
	}

	lz, err := lzma.NewReader(&prefixByteReader{prefix: lzmaHeader, br: br})
	if err != nil {
		return nil, NewArchiveError(ErrCorruptedArchive, "无法创建LZMA读取器", "", err)
	}

	return &lzipReader{
		br:  br,
		lz:  lz,
		crc: crc32.NewIEEE(),
	}, nil
}

// Read 读取解压数据，流结束时校验CRC和大小
func (r *lzipReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}

	n, err := r.lz.Read(p)
	r.crc.Write(p[:n])
	r.size += uint64(n)

	if err == io.EOF {
		r.done = true
		if verr := r.verifyTrailer(); verr != nil {
			return n, verr
		}
		return n, io.EOF
	}
	return n, err
}

// verifyTrailer 校验成员尾部
func (r *lzipReader) verifyTrailer() error {
	trailer := make([]byte, lzipTrailerSize)
	if _, err := io.ReadFull(r.br, trailer); err != nil {
		return NewArchiveError(ErrCorruptedArchive, "LZIP尾部不完整", "", err)
	}
	if binary.LittleEndian.Uint32(trailer[0:4]) != r.crc.Sum32() {
		return NewArchiveError(ErrCorruptedArchive, "LZIP数据CRC校验失败", "", nil)
	}
	if binary.LittleEndian.Uint64(trailer[4:12]) != r.size {
		return NewArchiveError(ErrCorruptedArchive, "LZIP数据大小不一致", "", nil)
	}
	return nil
}

// prefixByteReader 先返回前缀字节，再读取底层bufio.Reader，同时实现io.ByteReader避免LZMA解码器预读
type prefixByteReader struct {
	prefix []byte
	br     *bufio.Reader
}

// Read 实现io.Reader
func (p *prefixByteReader) Read(buf []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(buf, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.br.Read(buf)
}

// ReadByte 实现io.ByteReader
func (p *prefixByteReader) ReadByte() (byte, error) {
	if len(p.prefix) > 0 {
		b := p.prefix[0]
		p.prefix = p.prefix[1:]
		return b, nil
	}
	return p.br.ReadByte()
}

// encodeLzipDictSize 编码字典大小：低5位为2的幂，高3位为要减去的1/16份数
func encodeLzipDictSize(size uint32) byte {
	base := uint(bits.Len32(size - 1))
	if base < 12 {
		base = 12
	}
	fraction := uint32(0)
	full := uint32(1) << base
	step := full / 16
	for fraction < 7 && full-(fraction+1)*step >= size {
		fraction++
	}
	return byte(base) | byte(fraction<<5)
}

// decodeLzipDictSize 解码字典大小
func decodeLzipDictSize(b byte) (uint32, error) {
	base := uint(b & 0x1F)
	if base < 12 || base > 29 {
		return 0, NewArchiveError(ErrCorruptedArchive, fmt.Sprintf("无效的LZIP字典大小: %d", b), "", nil)
	}
	full := uint32(1) << base
	size := full - uint32(b>>5)*(full/16)
	if size < lzipMinDictSize || size > lzipMaxDictSize {
		return 0, NewArchiveError(ErrCorruptedArchive, fmt.Sprintf("无效的LZIP字典大小: %d", size), "", nil)
	}
	return size, nil
}
