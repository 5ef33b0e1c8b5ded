package archivekit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// OperationDeps 创建操作所需的依赖，零值字段使用默认实现
type OperationDeps struct {
	Options  Options
	Factory  AlgorithmFactory
	Detector FormatDetector
	Messages MessageProvider
}

// Operation 一次可取消的压缩或解压
//
// 失败总是转换为Result返回，只有取消以error形式返回，
// 这样任务可以区分"用户取消"和"操作失败"。
type Operation struct {
	id       string
	opts     Options
	factory  AlgorithmFactory
	detector FormatDetector
	messages MessageProvider

	mu              sync.Mutex
	cancel          context.CancelFunc
	cancelRequested atomic.Bool
	running         atomic.Bool
	tally           atomic.Pointer[ProgressTally]
}

// NewOperation 创建操作
func NewOperation(deps OperationDeps) *Operation {
	o := &Operation{
		id:       uuid.New().String(),
		opts:     deps.Options.withDefaults(),
		factory:  deps.Factory,
		detector: deps.Detector,
		messages: deps.Messages,
	}
	if o.factory == nil {
		o.factory = NewAlgorithmFactory()
	}
	if o.detector == nil {
		o.detector = NewFormatDetector()
	}
	if o.messages == nil {
		o.messages = DefaultMessages{}
	}
	return o
}

// ID 操作ID，同时作为进度汇总中的工作单元ID
func (o *Operation) ID() string {
	return o.id
}

// IsRunning Perform执行期间为true
func (o *Operation) IsRunning() bool {
	return o.running.Load()
}

// Cancel 请求取消，可重复调用；请求会一直保留到ResetCancellation
func (o *Operation) Cancel() {
	o.cancelRequested.Store(true)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// CancelRequested 是否有未处理的取消请求
func (o *Operation) CancelRequested() bool {
	return o.cancelRequested.Load()
}

// ResetCancellation 清除取消请求，之后的Perform不受影响
func (o *Operation) ResetCancellation() {
	o.cancelRequested.Store(false)
}

// setTally 设置跨压缩包共享的进度累计
func (o *Operation) setTally(t *ProgressTally) {
	o.tally.Store(t)
}

// Perform 执行一次压缩或解压
func (o *Operation) Perform(ctx context.Context, info Info) (*Result, error) {
	o.running.Store(true)
	defer o.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
		cancel()
	}()
	if o.cancelRequested.Load() {
		cancel()
	}

	start := time.Now()
	var result *Result
	var err error

	switch v := info.(type) {
	case *CompressionInfo:
		result, err = o.compress(ctx, v)
	case *DecompressionInfo:
		result, err = o.decompress(ctx, v)
	default:
		result = o.failure(NewArchiveError(ErrInvalidArgument, fmt.Sprintf("未知的操作类型: %T", info), "", nil), KindReading, "")
	}
	if err != nil {
		return nil, err
	}

	result.ElapsedTime = time.Since(start)
	return result, nil
}

// optionsFor 合并操作描述中的设置
func (o *Operation) optionsFor(info *OperationInfo) Options {
	opts := o.opts
	if info.TextEncoding != "" {
		opts.TextEncoding = info.TextEncoding
	}
	if t := o.tally.Load(); t != nil {
		opts.Tally = t
	}
	return opts
}

// compress 压缩：在输出目录中按冲突策略创建压缩包，取消或失败时删除
func (o *Operation) compress(ctx context.Context, info *CompressionInfo) (*Result, error) {
	opts := o.optionsFor(&info.OperationInfo)
	fs := opts.Fs
	consumer := opts.Consumer

	algorithm, err := o.factory.NewAlgorithm(info.ArchiveType, ModeWrite, opts)
	if err != nil {
		return o.failure(err, KindWriting, info.ArchiveName), nil
	}
	if len(info.SelectedFiles) == 0 {
		return o.failure(NewArchiveError(ErrInvalidArgument, "没有要压缩的文件", "", nil), KindWriting, info.ArchiveName), nil
	}

	outputDir := info.OutputLocation
	if outputDir == "" {
		outputDir = filepath.Dir(info.SelectedFiles[0])
	}

	file, archivePath, err := CreateUniqueFile(fs, outputDir, archiveFileName(info))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return o.failure(err, KindWriting, info.ArchiveName), nil
	}
	file.Close()

	consumer.Infof("压缩 %d 个文件到 %s", len(info.SelectedFiles), archivePath)
	err = algorithm.Compress(ctx, info.SelectedFiles, archivePath)
	if err != nil {
		if delErr := SafeDelete(fs, archivePath); delErr != nil {
			consumer.Warnf("删除未完成的压缩包失败: %v", delErr)
		}
		if IsCancellation(err) || ctx.Err() != nil {
			consumer.Infof("已取消，删除 %s", archivePath)
			return nil, ctxErrOr(ctx, err)
		}
		result := o.failure(err, KindWriting, archivePath)
		return result, nil
	}

	return &Result{
		Status:       StatusSuccess,
		ArchiveNames: []string{archivePath},
	}, nil
}

// decompress 解压：格式未知时先按扩展名再按内容识别，始终使用识别出的格式
func (o *Operation) decompress(ctx context.Context, info *DecompressionInfo) (*Result, error) {
	opts := o.optionsFor(&info.OperationInfo)
	fs := opts.Fs
	consumer := opts.Consumer
	archivePath := info.Item.Path

	kind := KindReading
	if info.Item.Password != "" {
		kind = KindReadingWithPassword
	}

	archiveType := info.ArchiveType
	if archiveType == TypeUnknown {
		archiveType = o.resolveArchiveType(opts, archivePath)
	}
	if archiveType == TypeUnknown {
		return o.failure(NewArchiveError(ErrInvalidArchiveType, "无法识别压缩包格式", archivePath, nil), kind, archivePath), nil
	}

	algorithm, err := o.factory.NewAlgorithm(archiveType, ModeRead, opts)
	if err != nil {
		return o.failure(err, kind, archivePath), nil
	}

	destination := info.OutputLocation
	if destination == "" {
		stem, _ := SplitExtension(archivePath)
		destination = filepath.Join(filepath.Dir(archivePath), stem)
	}
	createdDestination := false
	if exists, _ := afero.DirExists(fs, destination); !exists {
		createdDestination = true
	}

	consumer.Infof("解压 %s (%s) 到 %s", archivePath, archiveType, destination)
	names, err := algorithm.DecompressEntries(ctx, archivePath, destination, info.Item.Password, info.Item.Entries, info.CollectExtractedNames)
	if err != nil {
		if IsCancellation(err) || ctx.Err() != nil {
			if createdDestination {
				if delErr := SafeDelete(fs, destination); delErr != nil {
					consumer.Warnf("删除未完成的解压目录失败: %v", delErr)
				}
			}
			return nil, ctxErrOr(ctx, err)
		}
		return o.failure(err, kind, archivePath), nil
	}

	return &Result{
		Status:         StatusSuccess,
		ArchiveNames:   []string{archivePath},
		ExtractedNames: names,
	}, nil
}

// resolveArchiveType 先按扩展名识别；内容探测得到与扩展名不相容的格式时以内容为准
func (o *Operation) resolveArchiveType(opts Options, archivePath string) ArchiveType {
	byName := o.detector.Resolve(archivePath)

	probed := TypeUnknown
	if file, err := opts.Fs.Open(archivePath); err == nil {
		probed = o.detector.ProbeByContent(file)
		file.Close()
	}

	switch {
	case probed == TypeUnknown:
		return byName
	case byName == TypeUnknown:
		return probed
	case compatibleTypes(byName, probed):
		return byName
	}
	opts.Consumer.Warnf("%s 的扩展名是 %s，内容却是 %s", archivePath, byName, probed)
	return probed
}

// compatibleTypes 扩展名识别的格式与探测结果是否相容（探测可能看不出被压缩的TAR）
func compatibleTypes(byName, probed ArchiveType) bool {
	if byName == probed {
		return true
	}
	switch byName {
	case TypeTarGz:
		return probed == TypeGZip
	case TypeTarBz2:
		return probed == TypeBZip2
	case TypeTarLz:
		return probed == TypeLZip
	}
	return false
}

// failure 把错误转换为失败结果
func (o *Operation) failure(err error, kind OperationKind, name string) *Result {
	ae := ClassifyError(err, kind, name)
	if ae == nil {
		ae = NewArchiveError(ErrInternalError, "未知错误", name, err)
	}
	o.opts.Consumer.Warnf("操作失败: %v", err)
	return &Result{
		Status:         StatusFail,
		Message:        o.messages.Message(ae.Type, kind),
		VerboseMessage: err.Error(),
		ErrorType:      ae.Type,
	}
}

// archiveFileName 生成压缩包文件名：未指定名称时使用所选文件的名称，补全格式扩展名
func archiveFileName(info *CompressionInfo) string {
	name := info.ArchiveName
	if name == "" {
		switch {
		case len(info.SelectedFiles) != 1:
			name = "archive"
		case info.ArchiveType.IsSingleStream():
			name = filepath.Base(info.SelectedFiles[0])
		default:
			name, _ = SplitExtension(info.SelectedFiles[0])
		}
	}

	name = NewFilenameSanitizer().SanitizeFilename(name)
	ext := info.ArchiveType.Extension()
	if !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	return name
}

// ctxErrOr 优先返回context的错误
func ctxErrOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
