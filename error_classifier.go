package archivekit

import (
	"context"
	"errors"
	"io/fs"

	"github.com/itchio/wharf/werrors"
)

// IsCancellation 是否为取消（取消不是错误，总是向上传递）
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, werrors.ErrCancelled)
}

// ClassifyError 把编解码库或文件系统的原始错误归类为ArchiveError；
// 已经是ArchiveError的保持原样，取消返回nil
func ClassifyError(err error, kind OperationKind, path string) *ArchiveError {
	if err == nil || IsCancellation(err) {
		return nil
	}

	var ae *ArchiveError
	if errors.As(err, &ae) {
		return ae
	}

	switch {
	case isDiskFull(err):
		return NewArchiveError(ErrDiskFull, "磁盘空间不足", path, err)
	case errors.Is(err, fs.ErrNotExist):
		return NewArchiveError(ErrFileNotFound, "文件不存在", path, err)
	case errors.Is(err, fs.ErrPermission):
		return NewArchiveError(ErrPermissionDenied, "权限不足", path, err)
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return NewArchiveError(ErrIOFailure, "文件读写失败", pathErr.Path, err)
	}

	// 关键词匹配只用于编解码库的错误
	if isPasswordError(err) {
		return NewArchiveError(ErrArchiveEncrypted, "压缩包已加密", path, err)
	}

	if kind == KindWriting {
		return NewArchiveError(ErrIOFailure, "写入压缩包失败", path, err)
	}
	return NewArchiveError(ErrCorruptedArchive, "读取压缩包失败", path, err)
}

// cancellationError 把wharf的取消错误统一成context的取消错误
func cancellationError(ctx context.Context, err error) error {
	if errors.Is(err, werrors.ErrCancelled) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return context.Canceled
	}
	return err
}
