//go:build !unix && !windows

package archivekit

import "strings"

// isDiskFull 没有平台错误码时按消息判断
func isDiskFull(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no space left")
}
