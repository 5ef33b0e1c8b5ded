package archivekit

// MessageProvider 把错误分类和操作种类映射为面向用户的文字
type MessageProvider interface {
	Message(errType ErrorType, kind OperationKind) string
}

// messageKey 消息表的键，kind为-1表示与操作种类无关
type messageKey struct {
	errType ErrorType
	kind    OperationKind
}

const anyKind OperationKind = -1

var zhMessages = map[messageKey]string{
	{ErrInvalidArchiveType, anyKind}:               "无法识别的压缩包格式",
	{ErrUnsupportedType, KindWriting}:              "不支持创建该格式的压缩包",
	{ErrUnsupportedType, anyKind}:                  "不支持该压缩格式",
	{ErrArchiveEncrypted, KindReadingWithPassword}: "密码错误",
	{ErrArchiveEncrypted, anyKind}:                 "压缩包已加密，需要密码",
	{ErrReadingArchive, anyKind}:                   "压缩包结构错误",
	{ErrReaderDisposed, anyKind}:                   "读取已取消",
	{ErrFileNotFound, KindWriting}:                 "找不到要压缩的文件",
	{ErrFileNotFound, anyKind}:                     "找不到压缩包",
	{ErrPermissionDenied, KindWriting}:             "没有写入权限",
	{ErrPermissionDenied, anyKind}:                 "没有读取权限",
	{ErrDiskFull, anyKind}:                         "磁盘空间不足",
	{ErrIOFailure, KindWriting}:                    "写入文件失败",
	{ErrIOFailure, anyKind}:                        "读取文件失败",
	{ErrPathTraversal, anyKind}:                    "压缩包包含不安全的路径",
	{ErrInvalidPath, anyKind}:                      "无效的路径",
	{ErrCorruptedArchive, anyKind}:                 "压缩包已损坏",
	{ErrInvalidArgument, anyKind}:                  "参数错误",
	{ErrFileTooLarge, anyKind}:                     "文件超过大小限制",
}

var enMessages = map[messageKey]string{
	{ErrInvalidArchiveType, anyKind}:               "Unrecognized archive format",
	{ErrUnsupportedType, KindWriting}:              "Creating archives of this format is not supported",
	{ErrUnsupportedType, anyKind}:                  "Unsupported archive format",
	{ErrArchiveEncrypted, KindReadingWithPassword}: "Wrong password",
	{ErrArchiveEncrypted, anyKind}:                 "The archive is encrypted and needs a password",
	{ErrReadingArchive, anyKind}:                   "The archive structure is invalid",
	{ErrReaderDisposed, anyKind}:                   "Reading was cancelled",
	{ErrFileNotFound, KindWriting}:                 "A file to compress was not found",
	{ErrFileNotFound, anyKind}:                     "The archive was not found",
	{ErrPermissionDenied, KindWriting}:             "Permission denied while writing",
	{ErrPermissionDenied, anyKind}:                 "Permission denied while reading",
	{ErrDiskFull, anyKind}:                         "Not enough disk space",
	{ErrIOFailure, KindWriting}:                    "Failed to write file",
	{ErrIOFailure, anyKind}:                        "Failed to read file",
	{ErrPathTraversal, anyKind}:                    "The archive contains unsafe paths",
	{ErrInvalidPath, anyKind}:                      "Invalid path",
	{ErrCorruptedArchive, anyKind}:                 "The archive is corrupted",
	{ErrInvalidArgument, anyKind}:                  "Invalid argument",
	{ErrFileTooLarge, anyKind}:                     "File exceeds the size limit",
}

// DefaultMessages 内置的中英文消息
type DefaultMessages struct {
	// Language "zh"（默认）或 "en"
	Language string
}

// Message 实现MessageProvider
func (m DefaultMessages) Message(errType ErrorType, kind OperationKind) string {
	table := zhMessages
	fallback := "操作失败"
	if m.Language == "en" {
		table = enMessages
		fallback = "Operation failed"
	}

	if msg, ok := table[messageKey{errType, kind}]; ok {
		return msg
	}
	if msg, ok := table[messageKey{errType, anyKind}]; ok {
		return msg
	}
	return fallback
}
