package archivekit

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/itchio/wharf/state"
)

// JobDeps 创建任务所需的依赖
type JobDeps struct {
	// Options 传给操作的选项；OnProgress会在任务汇总进度后被调用
	Options Options

	// Factory 算法工厂，nil使用默认工厂
	Factory AlgorithmFactory

	// Passwords 遇到加密压缩包时请求密码，nil表示不请求
	Passwords PasswordProvider

	// Messages 失败消息，nil使用中文默认消息
	Messages MessageProvider

	// Progress 多个任务共享的百分比进度，nil时任务独占一个
	Progress *ProgressManager[int]
}

// Job 一批压缩或解压：拆分单流格式、处理密码重试、汇总结果
type Job struct {
	op        *Operation
	passwords PasswordProvider
	progress  *ProgressManager[int]
	consumer  *state.Consumer
	onUpdate  ProgressFunc

	cancelRequested atomic.Bool
}

// NewJob 创建任务
func NewJob(deps JobDeps) *Job {
	opts := deps.Options.withDefaults()

	j := &Job{
		passwords: deps.Passwords,
		progress:  deps.Progress,
		consumer:  opts.Consumer,
		onUpdate:  opts.OnProgress,
	}
	if j.progress == nil {
		j.progress = NewPercentProgressManager()
	}

	opts.OnProgress = j.reportProgress
	j.op = NewOperation(OperationDeps{
		Options:  opts,
		Factory:  deps.Factory,
		Messages: deps.Messages,
	})
	return j
}

// ID 任务ID
func (j *Job) ID() string {
	return j.op.ID()
}

// IsRunning 任务是否正在执行
func (j *Job) IsRunning() bool {
	return j.op.IsRunning()
}

// Cancel 取消当前操作，并且不再开始新的操作
func (j *Job) Cancel() {
	j.cancelRequested.Store(true)
	j.op.Cancel()
}

// Compress 压缩；单流格式按文件拆分成多次压缩，每个文件一个压缩包
func (j *Job) Compress(ctx context.Context, info *CompressionInfo) *Result {
	agg := newAggregate()
	j.begin(info.TotalFileSize, info.SelectedFiles)
	defer j.end()

	if !info.ArchiveType.IsSingleStream() || len(info.SelectedFiles) <= 1 {
		j.run(ctx, agg, archiveFileName(info), info)
		return agg.result()
	}

	original := info.SelectedFiles
	defer func() { info.SelectedFiles = original }()

	for _, file := range original {
		if j.interrupted(ctx, agg) {
			break
		}
		info.SelectedFiles = []string{file}
		if !j.run(ctx, agg, filepath.Base(file), info) {
			break
		}
	}
	return agg.result()
}

// Decompress 依次解压；加密压缩包没有密码时请求一次密码并重试一次
func (j *Job) Decompress(ctx context.Context, infos []*DecompressionInfo) *Result {
	agg := newAggregate()

	var total uint64
	var paths []string
	for _, info := range infos {
		total += info.TotalFileSize
		paths = append(paths, info.Item.Path)
	}
	j.begin(total, paths)
	defer j.end()

	for _, info := range infos {
		if j.interrupted(ctx, agg) {
			break
		}

		result, err := j.op.Perform(ctx, info)
		if err != nil {
			j.interrupt(agg)
			break
		}

		if j.needsPassword(result, info) {
			retried, ok := j.retryWithPassword(ctx, agg, info)
			if !ok {
				break
			}
			if retried != nil {
				result = retried
			}
		}
		agg.add(info.Item.Name(), result)
	}
	return agg.result()
}

// needsPassword 只有未提供密码时失败于加密才请求密码；提供过的密码错误直接失败
func (j *Job) needsPassword(result *Result, info *DecompressionInfo) bool {
	return j.passwords != nil &&
		result.Status == StatusFail &&
		result.ErrorType == ErrArchiveEncrypted &&
		info.Item.Password == ""
}

// retryWithPassword 请求密码并重试；返回false表示任务被取消
func (j *Job) retryWithPassword(ctx context.Context, agg *aggregate, info *DecompressionInfo) (*Result, bool) {
	password, err := j.passwords.RequestPassword(ctx, info.Item.Name())
	if err != nil {
		if IsCancellation(err) {
			j.interrupt(agg)
			return nil, false
		}
		j.consumer.Warnf("获取 %s 的密码失败: %v", info.Item.Name(), err)
		return nil, true
	}
	if password == "" {
		return nil, true
	}

	info.Item.Password = password
	result, err := j.op.Perform(ctx, info)
	if err != nil {
		j.interrupt(agg)
		return nil, false
	}
	return result, true
}

// run 执行一次操作并记录结果；返回false表示任务被取消
func (j *Job) run(ctx context.Context, agg *aggregate, name string, info Info) bool {
	result, err := j.op.Perform(ctx, info)
	if err != nil {
		j.interrupt(agg)
		return false
	}
	agg.add(name, result)
	return true
}

// interrupted 在开始下一个操作前检查取消
func (j *Job) interrupted(ctx context.Context, agg *aggregate) bool {
	if j.cancelRequested.Load() || j.op.CancelRequested() || ctx.Err() != nil {
		j.interrupt(agg)
		return true
	}
	return false
}

// interrupt 记录中断并清除取消请求，任务之后可以重新使用
func (j *Job) interrupt(agg *aggregate) {
	agg.interrupted = true
	j.cancelRequested.Store(false)
	j.op.ResetCancellation()
	j.consumer.Infof("任务已取消")
}

// begin 为本批次建立共享的进度累计
func (j *Job) begin(total uint64, paths []string) {
	if total == 0 {
		total, _ = TotalFileSize(j.op.opts.Fs, paths)
	}
	j.op.setTally(NewProgressTally(total))
	j.progress.UpdateProgress(j.op.ID(), 0)
}

func (j *Job) end() {
	j.op.setTally(nil)
	j.progress.Remove(j.op.ID())
}

// reportProgress 汇总本任务进度，汇总值变化时才通知
func (j *Job) reportProgress(p Progress) {
	combined := j.progress.UpdateProgress(j.op.ID(), int(p.Percentage()))
	if j.progress.Exchange(combined) != combined {
		j.consumer.Progress(float64(combined) / 100)
	}
	if j.onUpdate != nil {
		j.onUpdate(p)
	}
}

// aggregate 一批操作的汇总
type aggregate struct {
	start       time.Time
	total       int
	succeeded   int
	interrupted bool

	messages       []string
	verbose        []string
	archiveNames   []string
	extractedNames []string
	errorType      ErrorType
}

func newAggregate() *aggregate {
	return &aggregate{start: time.Now()}
}

func (a *aggregate) add(name string, r *Result) {
	a.total++
	a.archiveNames = append(a.archiveNames, r.ArchiveNames...)
	a.extractedNames = append(a.extractedNames, r.ExtractedNames...)

	if r.Status == StatusSuccess {
		a.succeeded++
		return
	}
	if a.errorType == "" {
		a.errorType = r.ErrorType
	}
	if r.Message != "" {
		a.messages = append(a.messages, name+": "+r.Message)
	}
	if r.VerboseMessage != "" {
		a.verbose = append(a.verbose, name+": "+r.VerboseMessage)
	}
}

// result 状态优先级：中断 > 全部失败 > 部分失败 > 成功
func (a *aggregate) result() *Result {
	status := StatusSuccess
	switch {
	case a.interrupted:
		status = StatusInterrupt
	case a.total > 0 && a.succeeded == 0:
		status = StatusFail
	case a.succeeded < a.total:
		status = StatusPartialFail
	}

	return &Result{
		Status:         status,
		Message:        strings.Join(a.messages, "\n"),
		VerboseMessage: strings.Join(a.verbose, "\n"),
		ErrorType:      a.errorType,
		ElapsedTime:    time.Since(a.start),
		ArchiveNames:   a.archiveNames,
		ExtractedNames: a.extractedNames,
	}
}
