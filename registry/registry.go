package registry

import (
	"sync"

	"procnet/model"
)

// Registry 连接 -> PID 映射
//
// 只增不删：已关闭连接的旧记录会一直保留，直到同一对端口被新连接复用并覆盖。
// 端口复用时，在下一次刷新之前流量可能被算到旧进程上，这是有意保留的最终一致性。
type Registry struct {
	mut   sync.RWMutex
	conns map[model.ConnKey]int32
}

func New() *Registry {
	return &Registry{conns: make(map[model.ConnKey]int32)}
}

// Update 以双向 key 登记一批连接，后写覆盖先写
func (r *Registry) Update(conns []model.Connection) {
	if len(conns) == 0 {
		return
	}

	r.mut.Lock()
	defer r.mut.Unlock()

	for _, c := range conns {
		key := model.ConnKey{Local: c.LocalPort, Remote: c.RemotePort}
		r.conns[key] = c.Pid
		r.conns[key.Reverse()] = c.Pid
	}
}

// Resolve 查找连接所属 PID
func (r *Registry) Resolve(key model.ConnKey) (int32, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()

	pid, ok := r.conns[key]
	return pid, ok
}

func (r *Registry) Len() int {
	r.mut.RLock()
	defer r.mut.RUnlock()

	return len(r.conns)
}
