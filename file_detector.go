package archivekit

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
)

// FormatDetector 格式识别器接口
type FormatDetector interface {
	// Resolve 根据文件名扩展名识别格式（复合扩展名优先）
	Resolve(fileName string) ArchiveType

	// ProbeByContent 通过文件头魔数识别格式，结束后恢复流位置
	ProbeByContent(stream io.ReadSeeker) ArchiveType

	// DetectFromBytes 从文件头字节识别格式（不区分TAR包裹层）
	DetectFromBytes(data []byte) ArchiveType

	// ResolveFile 先按扩展名识别，失败后读取文件内容探测
	ResolveFile(fs afero.Fs, filePath string) ArchiveType
}

// extensionRule 扩展名到格式的映射
type extensionRule struct {
	ext         string
	archiveType ArchiveType
}

// compoundExtensions 复合扩展名，优先于单个扩展名匹配
var compoundExtensions = []extensionRule{
	{".tar.gz", TypeTarGz},
	{".tar.bz2", TypeTarBz2},
	{".tar.lz", TypeTarLz},
}

// singleExtensions 单个扩展名
var singleExtensions = map[string]ArchiveType{
	".zip":  TypeZip,
	".tar":  TypeTar,
	".tgz":  TypeTarGz,
	".tbz":  TypeTarBz2,
	".tbz2": TypeTarBz2,
	".tlz":  TypeTarLz,
	".gz":   TypeGZip,
	".bz2":  TypeBZip2,
	".lz":   TypeLZip,
	".rar":  TypeRar,
	".7z":   TypeSevenZip,
}

// defaultFormatDetector 默认格式识别器实现
type defaultFormatDetector struct {
	maxMagicBytes int // 读取用于魔数检测的最大字节数
}

// NewFormatDetector 创建新的格式识别器
func NewFormatDetector() FormatDetector {
	return &defaultFormatDetector{
		maxMagicBytes: 512,
	}
}

// Resolve 根据文件名识别格式
func Resolve(fileName string) ArchiveType {
	return NewFormatDetector().Resolve(fileName)
}

// ProbeByContent 通过内容识别格式
func ProbeByContent(stream io.ReadSeeker) ArchiveType {
	return NewFormatDetector().ProbeByContent(stream)
}

// Resolve 根据文件名扩展名识别格式
func (d *defaultFormatDetector) Resolve(fileName string) ArchiveType {
	_, ext := SplitExtension(fileName)
	if ext == "" {
		return TypeUnknown
	}
	ext = strings.ToLower(ext)

	for _, rule := range compoundExtensions {
		if ext == rule.ext {
			return rule.archiveType
		}
	}
	if t, ok := singleExtensions[ext]; ok {
		return t
	}
	return TypeUnknown
}

// ResolveFile 先按扩展名识别，失败后探测内容
func (d *defaultFormatDetector) ResolveFile(fs afero.Fs, filePath string) ArchiveType {
	if t := d.Resolve(filePath); t != TypeUnknown {
		return t
	}

	file, err := fs.Open(filePath)
	if err != nil {
		return TypeUnknown
	}
	defer file.Close()

	return d.ProbeByContent(file)
}

// ProbeByContent 通过魔数识别格式；压缩流会解开头部区分是否包裹了TAR
func (d *defaultFormatDetector) ProbeByContent(stream io.ReadSeeker) ArchiveType {
	if stream == nil {
		return TypeUnknown
	}

	start, err := stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return TypeUnknown
	}
	defer stream.Seek(start, io.SeekStart)

	buffer := make([]byte, d.maxMagicBytes)
	n, err := io.ReadFull(stream, buffer)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return TypeUnknown
	}

	detected := d.DetectFromBytes(buffer[:n])
	switch detected {
	case TypeGZip, TypeBZip2, TypeLZip:
	default:
		return detected
	}

	// 单流压缩格式：解开开头部分，看里面是不是TAR
	if _, err := stream.Seek(start, io.SeekStart); err != nil {
		return detected
	}
	inner, err := d.peekDecompressed(detected, stream)
	if err != nil {
		return detected
	}
	if d.isTarFormat(inner) {
		switch detected {
		case TypeGZip:
			return TypeTarGz
		case TypeBZip2:
			return TypeTarBz2
		case TypeLZip:
			return TypeTarLz
		}
	}
	return detected
}

// peekDecompressed 读取解压后的前512字节
func (d *defaultFormatDetector) peekDecompressed(t ArchiveType, r io.Reader) ([]byte, error) {
	var src io.Reader
	switch t {
	case TypeGZip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		src = gz
	case TypeBZip2:
		bz, err := bzip2.NewReader(r, &bzip2.ReaderConfig{})
		if err != nil {
			return nil, err
		}
		defer bz.Close()
		src = bz
	case TypeLZip:
		lz, err := newLzipReader(r)
		if err != nil {
			return nil, err
		}
		src = lz
	default:
		return nil, fmt.Errorf("不是单流压缩格式: %s", t)
	}

	buffer := make([]byte, 512)
	n, err := io.ReadFull(src, buffer)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buffer[:n], nil
}

// DetectFromBytes 从字节数组识别格式
func (d *defaultFormatDetector) DetectFromBytes(data []byte) ArchiveType {
	if len(data) < 4 {
		return TypeUnknown
	}

	switch {
	case d.isZipFormat(data):
		return TypeZip
	case d.isRarFormat(data):
		return TypeRar
	case d.is7zFormat(data):
		return TypeSevenZip
	case d.isTarFormat(data):
		return TypeTar
	case d.isGzipFormat(data):
		return TypeGZip
	case d.isBzip2Format(data):
		return TypeBZip2
	case d.isLzipFormat(data):
		return TypeLZip
	}
	return TypeUnknown
}

// isZipFormat 检测是否为ZIP格式
func (d *defaultFormatDetector) isZipFormat(data []byte) bool {
	// PK\x03\x04 或 PK\x05\x06（空包）或 PK\x07\x08
	return bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}) ||
		bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x05, 0x06}) ||
		bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x07, 0x08})
}

// isRarFormat 检测是否为RAR格式
func (d *defaultFormatDetector) isRarFormat(data []byte) bool {
	// RAR v4.x: Rar!\x1A\x07\x00，RAR v5.x: Rar!\x1A\x07\x01\x00
	return bytes.HasPrefix(data, []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}) ||
		bytes.HasPrefix(data, []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00})
}

// is7zFormat 检测是否为7Z格式
func (d *defaultFormatDetector) is7zFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C})
}

// isTarFormat 检测是否为TAR格式
func (d *defaultFormatDetector) isTarFormat(data []byte) bool {
	if len(data) < 512 {
		return false
	}

	// ustar标识在偏移257处（POSIX为"ustar\x00"，GNU为"ustar "）
	if !bytes.Equal(data[257:262], []byte("ustar")) {
		return false
	}
	return d.validateTarChecksum(data)
}

// isGzipFormat 检测是否为GZIP格式
func (d *defaultFormatDetector) isGzipFormat(data []byte) bool {
	return data[0] == 0x1F && data[1] == 0x8B && data[2] == 0x08
}

// isBzip2Format 检测是否为BZIP2格式
func (d *defaultFormatDetector) isBzip2Format(data []byte) bool {
	// BZh + 块大小 '1'..'9'
	return bytes.HasPrefix(data, []byte("BZh")) && data[3] >= '1' && data[3] <= '9'
}

// isLzipFormat 检测是否为LZIP格式
func (d *defaultFormatDetector) isLzipFormat(data []byte) bool {
	return bytes.HasPrefix(data, lzipMagic)
}

// validateTarChecksum 验证TAR头的校验和
func (d *defaultFormatDetector) validateTarChecksum(data []byte) bool {
	// 校验和字段（148-155）按空格计算
	var sum int64
	for i := 0; i < 512; i++ {
		if i >= 148 && i < 156 {
			sum += int64(' ')
		} else {
			sum += int64(data[i])
		}
	}

	checksumStr := strings.TrimRight(strings.TrimSpace(string(data[148:156])), "\x00 ")
	if checksumStr == "" {
		return false
	}

	storedChecksum, err := parseOctal(checksumStr)
	if err != nil {
		return false
	}
	return sum == storedChecksum
}

// parseOctal 解析八进制字符串
func parseOctal(s string) (int64, error) {
	var result int64
	for _, char := range s {
		if char < '0' || char > '7' {
			return 0, fmt.Errorf("无效的八进制字符: %c", char)
		}
		result = result*8 + int64(char-'0')
	}
	return result, nil
}
