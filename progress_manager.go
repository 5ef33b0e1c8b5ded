package archivekit

import (
	"math"
	"sync"
	"sync/atomic"
)

// ProgressValue 进度数值类型：int为粗略的整数百分比，float64为精确值
type ProgressValue interface {
	~int | ~float64
}

// ProgressManager 线程安全的多工作单元进度汇总
type ProgressManager[T ProgressValue] struct {
	units sync.Map // 工作单元ID -> T
	count atomic.Int64
	total atomic.Pointer[T]
}

// NewProgressManager 创建进度汇总，初始总进度为哨兵值-1
func NewProgressManager[T ProgressValue]() *ProgressManager[T] {
	m := &ProgressManager[T]{}
	m.storeSentinel()
	return m
}

// NewPercentProgressManager 创建整数百分比模式的进度汇总，适合高频更新
func NewPercentProgressManager() *ProgressManager[int] {
	return NewProgressManager[int]()
}

// NewExactProgressManager 创建浮点精确模式的进度汇总
func NewExactProgressManager() *ProgressManager[float64] {
	return NewProgressManager[float64]()
}

// UpdateProgress 记录工作单元的最新进度并返回合并后的进度；
// 少于两个单元时直接返回原值，否则返回所有单元的平均值
func (m *ProgressManager[T]) UpdateProgress(id string, value T) T {
	if _, loaded := m.units.Swap(id, value); !loaded {
		m.count.Add(1)
	}

	if m.count.Load() < 2 {
		return value
	}

	var sum float64
	var n int
	m.units.Range(func(_, v any) bool {
		sum += float64(v.(T))
		n++
		return true
	})
	if n == 0 {
		return value
	}
	return roundProgress[T](sum / float64(n))
}

// Remove 移除一个已完成的工作单元
func (m *ProgressManager[T]) Remove(id string) {
	if _, loaded := m.units.LoadAndDelete(id); loaded {
		m.count.Add(-1)
	}
}

// Count 已登记的工作单元数
func (m *ProgressManager[T]) Count() int {
	return int(m.count.Load())
}

// Exchange 原子地替换上次报告的总进度，返回旧值；用于界面更新节流
func (m *ProgressManager[T]) Exchange(value T) T {
	old := m.total.Swap(&value)
	if old == nil {
		return T(-1)
	}
	return *old
}

// Total 上次报告的总进度，尚未报告时为-1
func (m *ProgressManager[T]) Total() T {
	if v := m.total.Load(); v != nil {
		return *v
	}
	return T(-1)
}

// Reset 清除所有工作单元并把总进度重置为哨兵值
func (m *ProgressManager[T]) Reset() {
	m.units.Range(func(k, _ any) bool {
		if _, loaded := m.units.LoadAndDelete(k); loaded {
			m.count.Add(-1)
		}
		return true
	})
	m.storeSentinel()
}

func (m *ProgressManager[T]) storeSentinel() {
	sentinel := T(-1)
	m.total.Store(&sentinel)
}

// roundProgress 整数模式四舍五入，浮点模式保持原值
func roundProgress[T ProgressValue](v float64) T {
	var zero T
	if _, isFloat := any(zero).(float64); isFloat {
		return T(v)
	}
	return T(math.Round(v))
}
