package registry

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"procnet/logging"
	"procnet/model"
)

// Source 系统连接表
type Source interface {
	Connections(ctx context.Context) ([]model.Connection, error)
}

// Refresher 周期性地把系统连接表同步到 Registry
type Refresher struct {
	Source   Source
	Registry *Registry
	Interval time.Duration

	// OnRefresh 每次刷新完成后回调，可为空
	OnRefresh func(n int)
}

// Refresh 执行一次同步
// 查询系统连接表在锁外完成，只有写入 Registry 时才持有写锁
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	conns, err := r.Source.Connections(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list connections")
	}
	r.Registry.Update(conns)
	if r.OnRefresh != nil {
		r.OnRefresh(len(conns))
	}
	return len(conns), nil
}

// Run 先立即刷新一次，之后每隔 Interval 刷新，直到 ctx 结束
// 连接表查询失败属于环境错误，直接返回
func (r *Refresher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		n, err := r.Refresh(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Errorf("registry refresh failed: %v", err)
			return err
		}
		logging.Debugf("registry refreshed, connections=%d, entries=%d, take=%v", n, r.Registry.Len(), time.Since(start))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.Interval):
		}
	}
}
