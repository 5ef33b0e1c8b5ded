package archivekit

import (
	"io"
	"sync/atomic"

	"github.com/itchio/wharf/counter"
)

// Progress 字节进度快照
type Progress struct {
	TotalBytesToProcess uint64
	TotalBytesProcessed uint64
}

// Percentage 返回0-100的完成百分比，总量未知时返回0
func (p Progress) Percentage() float64 {
	if p.TotalBytesToProcess == 0 {
		return 0
	}
	pct := float64(p.TotalBytesProcessed) / float64(p.TotalBytesToProcess) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// ProgressFunc 进度回调
type ProgressFunc func(Progress)

// ProgressTally 跨多个压缩包累计的进度，任务中连续处理的小压缩包共享同一个
type ProgressTally struct {
	total     atomic.Uint64
	processed atomic.Uint64
}

// NewProgressTally 创建进度累计
func NewProgressTally(total uint64) *ProgressTally {
	t := &ProgressTally{}
	t.total.Store(total)
	return t
}

// Add 累加已处理字节数，返回累计值
func (t *ProgressTally) Add(n uint64) uint64 {
	return t.processed.Add(n)
}

// SetTotal 设置总字节数
func (t *ProgressTally) SetTotal(total uint64) {
	t.total.Store(total)
}

// Snapshot 返回当前进度
func (t *ProgressTally) Snapshot() Progress {
	return Progress{
		TotalBytesToProcess: t.total.Load(),
		TotalBytesProcessed: t.processed.Load(),
	}
}

// progressReporter 按ProgressDelayRate节流的进度报告器
type progressReporter struct {
	tally     *ProgressTally
	callback  ProgressFunc
	delayRate int
	pending   int
}

// newProgressReporter 创建进度报告器，没有共享累计时自建一个
func newProgressReporter(opts Options, total uint64) *progressReporter {
	tally := opts.Tally
	if tally == nil {
		tally = NewProgressTally(total)
	}
	return &progressReporter{
		tally:     tally,
		callback:  opts.OnProgress,
		delayRate: opts.ProgressDelayRate,
	}
}

// add 记录处理了n个字节
func (r *progressReporter) add(n int64) {
	if n <= 0 {
		return
	}
	r.tally.Add(uint64(n))
	r.pending++
	if r.pending >= r.delayRate {
		r.flush()
	}
}

// flush 立即报告当前进度
func (r *progressReporter) flush() {
	r.pending = 0
	if r.callback != nil {
		r.callback(r.tally.Snapshot())
	}
}

// writer 包装目标写入器，每次写入都计入进度
func (r *progressReporter) writer(w io.Writer) io.Writer {
	var last int64
	return counter.NewWriterCallback(func(count int64) {
		r.add(count - last)
		last = count
	}, w)
}
