//go:build windows

package archivekit

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isDiskFull 检查是否为磁盘空间不足（ERROR_DISK_FULL/ERROR_HANDLE_DISK_FULL）
func isDiskFull(err error) bool {
	return errors.Is(err, windows.ERROR_DISK_FULL) || errors.Is(err, windows.ERROR_HANDLE_DISK_FULL)
}
