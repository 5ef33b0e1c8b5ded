package archivekit

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/itchio/wharf/state"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	// DefaultBufferSize 默认读写缓冲区大小
	DefaultBufferSize = 8192

	// DefaultProgressDelayRate 默认每处理多少个数据块报告一次进度
	DefaultProgressDelayRate = 32
)

// Options 压缩/解压选项，由算法工厂传给具体格式
type Options struct {
	// BufferSize 读写缓冲区大小
	BufferSize int `toml:"buffer_size"`

	// ProgressDelayRate 两次进度回调之间处理的数据块数量
	ProgressDelayRate int `toml:"progress_delay_rate"`

	// CompressionLevel 压缩级别 1-9，0表示格式默认值
	CompressionLevel int `toml:"compression_level"`

	// Overwrite 解压时覆盖已存在的文件
	Overwrite bool `toml:"overwrite"`

	// AutoRename 解压时文件已存在则自动改名（Overwrite优先）
	AutoRename bool `toml:"auto_rename"`

	// SkipSystemFiles 跳过 .DS_Store、__MACOSX 等系统文件
	SkipSystemFiles bool `toml:"skip_system_files"`

	// MaxEntrySize 单个条目的最大解压大小，0表示不限制
	MaxEntrySize int64 `toml:"max_entry_size"`

	// TextEncoding 条目名称编码，空表示UTF-8，"auto"表示自动检测
	TextEncoding string `toml:"text_encoding"`

	// Password 压缩时用于加密ZIP的密码
	Password string `toml:"-"`

	// Fs 文件系统，nil时使用操作系统文件系统
	Fs afero.Fs `toml:"-"`

	// Consumer 日志和进度输出
	Consumer *state.Consumer `toml:"-"`

	// Tally 跨多个压缩包共享的进度累计
	Tally *ProgressTally `toml:"-"`

	// OnProgress 进度回调
	OnProgress ProgressFunc `toml:"-"`
}

// DefaultOptions 返回默认选项
func DefaultOptions() Options {
	return Options{
		BufferSize:        DefaultBufferSize,
		ProgressDelayRate: DefaultProgressDelayRate,
		AutoRename:        true,
	}
}

// Validate 验证选项
func (o Options) Validate() error {
	if o.BufferSize <= 0 {
		return NewArchiveError(ErrInvalidArgument, fmt.Sprintf("缓冲区大小必须大于0: %d", o.BufferSize), "", nil)
	}
	if o.ProgressDelayRate <= 0 {
		return NewArchiveError(ErrInvalidArgument, fmt.Sprintf("进度报告间隔必须大于0: %d", o.ProgressDelayRate), "", nil)
	}
	if o.CompressionLevel < 0 || o.CompressionLevel > 9 {
		return NewArchiveError(ErrInvalidArgument, fmt.Sprintf("压缩级别必须在0-9之间: %d", o.CompressionLevel), "", nil)
	}
	if o.MaxEntrySize < 0 {
		return NewArchiveError(ErrInvalidArgument, "最大条目大小不能为负数", "", nil)
	}
	if o.TextEncoding != "" && !NewEncodingHandler().IsValidEncoding(o.TextEncoding) {
		return NewArchiveError(ErrInvalidArgument, fmt.Sprintf("不支持的编码: %s", o.TextEncoding), "", nil)
	}
	return nil
}

// withDefaults 补全未设置的字段
func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.ProgressDelayRate <= 0 {
		o.ProgressDelayRate = DefaultProgressDelayRate
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Consumer == nil {
		o.Consumer = &state.Consumer{}
	}
	return o
}

// LoadOptions 从TOML文件加载选项，文件中没有的字段保持默认值
func LoadOptions(fs afero.Fs, path string) (Options, error) {
	opts := DefaultOptions()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return opts, errors.Wrap(err, "读取配置文件失败")
	}

	if _, err := toml.Decode(string(data), &opts); err != nil {
		return opts, errors.Wrapf(err, "解析配置文件失败: %s", path)
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	opts.Fs = fs
	return opts, nil
}
