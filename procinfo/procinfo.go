package procinfo

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"procnet/model"
	"procnet/snapshot"
)

// proc 是 Lookup 用到的 *process.Process 子集
type proc interface {
	CreateTimeWithContext(ctx context.Context) (int64, error)
	NameWithContext(ctx context.Context) (string, error)
	IsRunningWithContext(ctx context.Context) (bool, error)
}

func openProcess(ctx context.Context, pid int32) (proc, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Resolver 查询进程名和启动时间
// 名字按 (pid, 启动时间) 缓存，PID 被复用时不会拿到旧名字
type Resolver struct {
	cache  *cache.Cache
	booted time.Time

	open     func(ctx context.Context, pid int32) (proc, error)
	pids     func(ctx context.Context) ([]int32, error)
	bootTime func(ctx context.Context) (uint64, error)
}

var _ snapshot.MetaSource = (*Resolver)(nil)

func New(ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{
		cache:    cache.New(ttl, 2*ttl),
		open:     openProcess,
		pids:     process.PidsWithContext,
		bootTime: host.BootTimeWithContext,
	}
}

func cacheKey(pid int32, created int64) string {
	return fmt.Sprintf("%d/%d", pid, created)
}

// Lookup 进程不存在时返回 snapshot.ErrProcessNotFound
// 进程表本身读不到时返回包装了 snapshot.ErrMetaUnavailable 的错误
func (r *Resolver) Lookup(ctx context.Context, pid int32) (model.ProcessMeta, error) {
	p, err := r.open(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return model.ProcessMeta{}, r.notFound(ctx)
		}
		return model.ProcessMeta{}, r.failed(ctx, errors.Wrapf(err, "open process %d", pid))
	}

	// 系统进程可能拿不到启动时间，用开机时间代替
	var created time.Time
	ms, err := p.CreateTimeWithContext(ctx)
	if err == nil {
		created = time.UnixMilli(ms)
	} else {
		created = r.boot(ctx)
	}

	key := cacheKey(pid, created.UnixMilli())
	if v, ok := r.cache.Get(key); ok {
		return v.(model.ProcessMeta), nil
	}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		running, rerr := p.IsRunningWithContext(ctx)
		if rerr == nil && !running {
			return model.ProcessMeta{}, r.notFound(ctx)
		}
		return model.ProcessMeta{}, r.failed(ctx, errors.Wrapf(err, "read name of process %d", pid))
	}

	meta := model.ProcessMeta{Name: name, Created: created}
	r.cache.SetDefault(key, meta)
	return meta, nil
}

// available 进程表能否列出
// procfs 没挂载时 gopsutil 会退回发信号判断存活，单个 PID 的结果不可信
func (r *Resolver) available(ctx context.Context) error {
	if _, err := r.pids(ctx); err != nil {
		return errors.Wrapf(snapshot.ErrMetaUnavailable, "list processes: %v", err)
	}
	return nil
}

func (r *Resolver) notFound(ctx context.Context) error {
	if err := r.available(ctx); err != nil {
		return err
	}
	return snapshot.ErrProcessNotFound
}

func (r *Resolver) failed(ctx context.Context, err error) error {
	if aerr := r.available(ctx); aerr != nil {
		return aerr
	}
	return err
}

// boot 开机时间，成功后缓存
func (r *Resolver) boot(ctx context.Context) time.Time {
	if !r.booted.IsZero() {
		return r.booted
	}
	sec, err := r.bootTime(ctx)
	if err != nil {
		return time.Time{}
	}
	r.booted = time.Unix(int64(sec), 0)
	return r.booted
}

// CachedItems 当前缓存的条目数
func (r *Resolver) CachedItems() int {
	return r.cache.ItemCount()
}
