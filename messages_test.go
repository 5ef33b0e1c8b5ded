package archivekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMessagesPickByKind(t *testing.T) {
	zh := DefaultMessages{}
	assert.Equal(t, "压缩包已加密，需要密码", zh.Message(ErrArchiveEncrypted, KindReading))
	assert.Equal(t, "密码错误", zh.Message(ErrArchiveEncrypted, KindReadingWithPassword))
	assert.Equal(t, "写入文件失败", zh.Message(ErrIOFailure, KindWriting))
	assert.Equal(t, "读取文件失败", zh.Message(ErrIOFailure, KindReading))
	assert.Equal(t, "操作失败", zh.Message(ErrInternalError, KindReading))

	en := DefaultMessages{Language: "en"}
	assert.Equal(t, "Wrong password", en.Message(ErrArchiveEncrypted, KindReadingWithPassword))
	assert.Equal(t, "Operation failed", en.Message("SOMETHING_NEW", KindWriting))
}

func TestMessageTablesCoverSameKeys(t *testing.T) {
	for key := range zhMessages {
		_, ok := enMessages[key]
		assert.True(t, ok, "%v", key)
	}
	assert.Len(t, enMessages, len(zhMessages))
}
