package snapshot

import "sync"

// HistorySize 每个进程名保留的采样点数
const HistorySize = 65

// History 按进程名保存最近 HistorySize 个吞吐采样 (KB/s)
// 用进程名而不是 PID，进程以同名重启后曲线可以接上
type History struct {
	mut    sync.RWMutex
	series map[string][]uint64
}

func NewHistory() *History {
	return &History{series: make(map[string][]uint64)}
}

// Push 追加一个采样，超出容量时丢弃最旧的
// 第一次出现的名字先补 HistorySize-1 个 0，保证窗口总是满宽
func (h *History) Push(name string, sample uint64) {
	h.mut.Lock()
	defer h.mut.Unlock()

	s, ok := h.series[name]
	if !ok {
		s = make([]uint64, HistorySize-1, HistorySize)
	}
	s = append(s, sample)
	if len(s) > HistorySize {
		// 复制到新数组，避免底层数组随着切片前移无限增长
		n := make([]uint64, HistorySize)
		copy(n, s[len(s)-HistorySize:])
		s = n
	}
	h.series[name] = s
}

// Get 返回 name 的采样拷贝，最旧的在前
func (h *History) Get(name string) ([]uint64, bool) {
	h.mut.RLock()
	defer h.mut.RUnlock()

	s, ok := h.series[name]
	if !ok {
		return nil, false
	}
	ret := make([]uint64, len(s))
	copy(ret, s)
	return ret, true
}

func (h *History) Len() int {
	h.mut.RLock()
	defer h.mut.RUnlock()

	return len(h.series)
}
