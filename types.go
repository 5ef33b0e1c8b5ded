package archivekit

import (
	"errors"
	"fmt"
	"time"
)

// ArchiveType 压缩格式枚举，仅作为分派键使用
type ArchiveType int

const (
	TypeUnknown ArchiveType = iota
	TypeZip
	TypeTar
	TypeTarGz
	TypeTarBz2
	TypeTarLz
	TypeGZip
	TypeBZip2
	TypeLZip
	TypeRar
	TypeSevenZip
)

// AllArchiveTypes 所有已知格式（不含Unknown）
var AllArchiveTypes = []ArchiveType{
	TypeZip, TypeTar, TypeTarGz, TypeTarBz2, TypeTarLz,
	TypeGZip, TypeBZip2, TypeLZip, TypeRar, TypeSevenZip,
}

// String 返回格式名称
func (t ArchiveType) String() string {
	switch t {
	case TypeZip:
		return "zip"
	case TypeTar:
		return "tar"
	case TypeTarGz:
		return "tar.gz"
	case TypeTarBz2:
		return "tar.bz2"
	case TypeTarLz:
		return "tar.lz"
	case TypeGZip:
		return "gz"
	case TypeBZip2:
		return "bz2"
	case TypeLZip:
		return "lz"
	case TypeRar:
		return "rar"
	case TypeSevenZip:
		return "7z"
	default:
		return "unknown"
	}
}

// Extension 返回格式的规范扩展名（带点）
func (t ArchiveType) Extension() string {
	if t == TypeUnknown {
		return ""
	}
	return "." + t.String()
}

// IsSingleStream 是否为单流压缩格式（一个压缩包只容纳一个文件）
func (t ArchiveType) IsSingleStream() bool {
	return t == TypeGZip || t == TypeBZip2 || t == TypeLZip
}

// IsReadOnly 是否为只读格式（只能解压，不能创建）
func (t ArchiveType) IsReadOnly() bool {
	return t == TypeRar || t == TypeSevenZip
}

// IsTarFamily 是否为TAR系列格式
func (t ArchiveType) IsTarFamily() bool {
	switch t {
	case TypeTar, TypeTarGz, TypeTarBz2, TypeTarLz:
		return true
	}
	return false
}

// ParseArchiveType 根据名称解析格式（如 "zip"、"tar.gz"），未知时返回TypeUnknown
func ParseArchiveType(name string) ArchiveType {
	for _, t := range AllArchiveTypes {
		if t.String() == name {
			return t
		}
	}
	return TypeUnknown
}

// ArchiveEntry 压缩包中的一个条目，由Reader临时产生
type ArchiveEntry struct {
	// Key 压缩包中存储的完整路径（以/分隔）
	Key string

	// IsDirectory 是否为目录
	IsDirectory bool

	// Size 未压缩大小，目录为0
	Size uint64

	// Modified 修改时间，零值表示未知
	Modified time.Time
}

// StatusCode 操作结果状态
type StatusCode int

const (
	StatusSuccess StatusCode = iota
	StatusPartialFail
	StatusFail
	StatusInterrupt
)

// String 返回状态名称
func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartialFail:
		return "partial-fail"
	case StatusFail:
		return "fail"
	case StatusInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result 单个操作或整个任务的结果
type Result struct {
	// Status 状态码
	Status StatusCode

	// Message 面向用户的消息
	Message string

	// VerboseMessage 诊断用的详细消息
	VerboseMessage string

	// ErrorType 失败时的错误分类，成功时为空
	ErrorType ErrorType

	// ElapsedTime 耗时
	ElapsedTime time.Duration

	// ArchiveNames 生成或处理的压缩包名称（冲突策略可能会改名）
	ArchiveNames []string

	// ExtractedNames 解压出的文件路径（仅在要求收集时填充）
	ExtractedNames []string
}

// OperationKind 操作种类，用于选择错误消息
type OperationKind int

const (
	KindReading OperationKind = iota
	KindReadingWithPassword
	KindWriting
)

// String 返回操作种类名称
func (k OperationKind) String() string {
	switch k {
	case KindReading:
		return "reading"
	case KindReadingWithPassword:
		return "reading-with-password"
	case KindWriting:
		return "writing"
	default:
		return "unknown"
	}
}

// Info 操作描述的公共接口，只能是 *CompressionInfo 或 *DecompressionInfo
type Info interface {
	base() *OperationInfo
}

// OperationInfo 操作描述的公共字段
type OperationInfo struct {
	// TotalFileSize 需要处理的总字节数
	TotalFileSize uint64

	// OutputLocation 输出目录
	OutputLocation string

	// TextEncoding 条目名称的文本编码（空或UTF-8表示不转换，"auto"表示自动检测）
	TextEncoding string
}

func (i *OperationInfo) base() *OperationInfo { return i }

// CompressionInfo 压缩操作描述
type CompressionInfo struct {
	OperationInfo

	// ArchiveType 目标格式
	ArchiveType ArchiveType

	// ArchiveName 压缩包名称（不含扩展名时自动补全）
	ArchiveName string

	// SelectedFiles 待压缩的文件，任务拆分时会被临时替换
	SelectedFiles []string
}

// ArchiveItem 待解压的压缩包
type ArchiveItem struct {
	// Path 压缩包路径
	Path string

	// Entries 只解压这些条目（nil表示全部）
	Entries []string

	// Password 密码（可选）
	Password string

	// DisplayName 显示名称
	DisplayName string
}

// Name 返回显示名称，未设置时使用路径
func (a ArchiveItem) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Path
}

// DecompressionInfo 解压操作描述
type DecompressionInfo struct {
	OperationInfo

	// Item 压缩包
	Item ArchiveItem

	// ArchiveType 显式指定的格式，TypeUnknown表示自动识别
	ArchiveType ArchiveType

	// CollectExtractedNames 是否收集解压出的文件名
	CollectExtractedNames bool
}

// ArchiveError 压缩/解压错误类型
type ArchiveError struct {
	Type    ErrorType
	Message string
	Path    string
	Cause   error
}

// Error 实现error接口
func (e *ArchiveError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path: %s)", msg, e.Path)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap 返回原始错误
func (e *ArchiveError) Unwrap() error {
	return e.Cause
}

// ErrorType 错误类型枚举
type ErrorType string

const (
	// ErrInvalidArchiveType 扩展名和内容探测都无法识别格式
	ErrInvalidArchiveType ErrorType = "INVALID_ARCHIVE_TYPE"

	// ErrUnsupportedType 格式不支持所请求的操作
	ErrUnsupportedType ErrorType = "UNSUPPORTED_TYPE"

	// ErrArchiveEncrypted 压缩包已加密，未提供密码或密码错误
	ErrArchiveEncrypted ErrorType = "ARCHIVE_ENCRYPTED"

	// ErrReadingArchive 压缩包结构不一致
	ErrReadingArchive ErrorType = "READING_ARCHIVE"

	// ErrReaderDisposed 读取器已关闭
	ErrReaderDisposed ErrorType = "READER_DISPOSED"

	// ErrFileNotFound 文件不存在
	ErrFileNotFound ErrorType = "FILE_NOT_FOUND"

	// ErrPermissionDenied 权限拒绝
	ErrPermissionDenied ErrorType = "PERMISSION_DENIED"

	// ErrDiskFull 磁盘空间不足
	ErrDiskFull ErrorType = "DISK_FULL"

	// ErrIOFailure 其他I/O错误
	ErrIOFailure ErrorType = "IO_FAILURE"

	// ErrPathTraversal 路径遍历攻击
	ErrPathTraversal ErrorType = "PATH_TRAVERSAL"

	// ErrInvalidPath 无效路径
	ErrInvalidPath ErrorType = "INVALID_PATH"

	// ErrCorruptedArchive 压缩包损坏
	ErrCorruptedArchive ErrorType = "CORRUPTED_ARCHIVE"

	// ErrInvalidArgument 参数错误
	ErrInvalidArgument ErrorType = "INVALID_ARGUMENT"

	// ErrFileTooLarge 文件过大
	ErrFileTooLarge ErrorType = "FILE_TOO_LARGE"

	// ErrInternalError 内部错误
	ErrInternalError ErrorType = "INTERNAL_ERROR"
)

// String 返回错误类型字符串
func (et ErrorType) String() string {
	return string(et)
}

// NewArchiveError 创建压缩包错误
func NewArchiveError(errType ErrorType, message, path string, cause error) *ArchiveError {
	return &ArchiveError{
		Type:    errType,
		Message: message,
		Path:    path,
		Cause:   cause,
	}
}

// ErrorTypeOf 返回错误链中第一个ArchiveError的类型，没有时返回空字符串
func ErrorTypeOf(err error) ErrorType {
	var ae *ArchiveError
	if errors.As(err, &ae) {
		return ae.Type
	}
	return ""
}

// IsErrorType 判断错误链中是否有指定类型的ArchiveError
func IsErrorType(err error, errType ErrorType) bool {
	return err != nil && ErrorTypeOf(err) == errType
}
