package accumulator

import (
	"sync"

	"procnet/model"
)

// Accumulator 按 PID 累计上传/下载字节数
// 计数只增不减，运行期间不会重置
type Accumulator struct {
	mut   sync.Mutex
	stats map[int32]*model.TrafficStats
}

func New() *Accumulator {
	return &Accumulator{stats: make(map[int32]*model.TrafficStats)}
}

func (a *Accumulator) entry(pid int32) *model.TrafficStats {
	s, ok := a.stats[pid]
	if !ok {
		s = &model.TrafficStats{}
		a.stats[pid] = s
	}
	return s
}

func (a *Accumulator) AddUpload(pid int32, n uint64) {
	a.mut.Lock()
	a.entry(pid).TxBytes += n
	a.mut.Unlock()
}

func (a *Accumulator) AddDownload(pid int32, n uint64) {
	a.mut.Lock()
	a.entry(pid).RxBytes += n
	a.mut.Unlock()
}

// ReadAll 返回当前所有计数的拷贝
func (a *Accumulator) ReadAll() map[int32]model.TrafficStats {
	a.mut.Lock()
	defer a.mut.Unlock()

	ret := make(map[int32]model.TrafficStats, len(a.stats))
	for pid, s := range a.stats {
		ret[pid] = *s
	}
	return ret
}

func (a *Accumulator) Len() int {
	a.mut.Lock()
	defer a.mut.Unlock()

	return len(a.stats)
}
