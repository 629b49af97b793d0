package snapshot

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"procnet/logging"
	"procnet/model"
)

var (
	// ErrProcessNotFound 进程已退出，该 PID 直接从快照中剔除
	ErrProcessNotFound = errors.New("process not found")

	// ErrMetaUnavailable 进程信息查询整体不可用，Compute 直接返回
	ErrMetaUnavailable = errors.New("process metadata unavailable")
)

// Reader 流量累计器的只读视图
type Reader interface {
	ReadAll() map[int32]model.TrafficStats
}

// MetaSource 进程元信息查询
type MetaSource interface {
	Lookup(ctx context.Context, pid int32) (model.ProcessMeta, error)
}

// MetaFunc 让普通函数实现 MetaSource
type MetaFunc func(ctx context.Context, pid int32) (model.ProcessMeta, error)

func (f MetaFunc) Lookup(ctx context.Context, pid int32) (model.ProcessMeta, error) {
	return f(ctx, pid)
}

// Report 每个周期交给 Sink 的结果
type Report struct {
	Snapshot *Snapshot
	// Top 排名前 N 的条目
	Top []model.ProcessEntity
	// Histories Top 中每个进程名对应的历史曲线
	Histories map[string][]uint64
	// Dropped 本周期被剔除的 PID 数
	Dropped int
	// Took 本周期计算耗时
	Took time.Duration
}

// Sink 消费快照结果
type Sink interface {
	Publish(r Report)
}

// Engine 周期性生成快照
// 两个状态：还没有上一份快照 (Initializing) 和已有基线 (Steady)，只会单向切换
type Engine struct {
	reader  Reader
	meta    MetaSource
	history *History

	Interval time.Duration
	TopN     int

	prev    *Snapshot
	dropped int
}

func NewEngine(reader Reader, meta MetaSource, history *History) *Engine {
	if history == nil {
		history = NewHistory()
	}
	return &Engine{
		reader:   reader,
		meta:     meta,
		history:  history,
		Interval: time.Second,
		TopN:     10,
	}
}

func (e *Engine) History() *History { return e.history }

// Steady 是否已经有上一份快照作为基线
func (e *Engine) Steady() bool { return e.prev != nil }

// Previous 上一份已发布的快照
func (e *Engine) Previous() *Snapshot { return e.prev }

// Compute 生成一份新快照并把它作为下一周期的基线
// 单个 PID 的失败只会让这个 PID 被剔除，只有 ErrMetaUnavailable 会返回错误
func (e *Engine) Compute(ctx context.Context) (*Snapshot, error) {
	// 1. 读取累计器拷贝
	counters := e.reader.ReadAll()

	var baseline map[int32]model.TrafficStats
	if e.prev != nil {
		baseline = e.prev.baseline()
	}

	snap := &Snapshot{
		Time:    time.Now(),
		Entries: make([]model.ProcessEntity, 0, len(counters)),
	}
	e.dropped = 0

	for pid, traffic := range counters {
		// 2. 关联进程信息
		meta, err := e.meta.Lookup(ctx, pid)
		if err != nil {
			if errors.Is(err, ErrMetaUnavailable) {
				return nil, err
			}
			if !errors.Is(err, ErrProcessNotFound) {
				logging.Debugf("lookup pid %d failed, skip: %v", pid, err)
			}
			e.dropped++
			continue
		}

		// 3. 与上一份快照求差得到速率
		prev := baseline[pid]
		entity := model.ProcessEntity{
			Pid:     pid,
			Name:    meta.Name,
			Created: meta.Created,
			TxTotal: traffic.TxBytes,
			RxTotal: traffic.RxBytes,
			TxRate:  delta(traffic.TxBytes, prev.TxBytes),
			RxRate:  delta(traffic.RxBytes, prev.RxBytes),
		}
		snap.Entries = append(snap.Entries, entity)
	}

	// 4. 更新历史曲线
	// 按 PID 顺序写入，同名多进程时结果可复现
	rank(snap.Entries)
	byPid := make([]model.ProcessEntity, len(snap.Entries))
	copy(byPid, snap.Entries)
	sortByPid(byPid)
	for _, entity := range byPid {
		e.history.Push(entity.Name, (entity.TxRate+entity.RxRate)/1024)
	}

	// 5. 发布为新基线
	e.prev = snap
	return snap, nil
}

// Report 用最近一次 Compute 的结果组装 Report
func (e *Engine) Report(snap *Snapshot) Report {
	r := Report{
		Snapshot:  snap,
		Top:       snap.Top(e.TopN),
		Histories: make(map[string][]uint64),
		Dropped:   e.dropped,
	}
	for _, entity := range r.Top {
		if _, ok := r.Histories[entity.Name]; ok {
			continue
		}
		if h, ok := e.history.Get(entity.Name); ok {
			r.Histories[entity.Name] = h
		}
	}
	return r
}

// Run 每隔 Interval 计算一次快照并交给 sink，直到 ctx 结束
func (e *Engine) Run(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		start := time.Now()
		snap, err := e.Compute(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Errorf("compute snapshot failed: %v", err)
			return errors.Wrap(err, "compute snapshot")
		}

		r := e.Report(snap)
		r.Took = time.Since(start)
		logging.Debugf("snapshot computed, entries=%d, dropped=%d, take=%v", len(snap.Entries), r.Dropped, r.Took)
		if sink != nil {
			sink.Publish(r)
		}
	}
}
