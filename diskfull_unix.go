//go:build unix

package archivekit

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isDiskFull 检查是否为磁盘空间不足（ENOSPC/EDQUOT）
func isDiskFull(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}
