package registry

import (
	"context"

	"github.com/shirou/gopsutil/v3/net"

	"procnet/model"
)

// PsutilSource 通过 gopsutil 读取系统连接表
type PsutilSource struct {
	// Kind 传给 gopsutil 的连接类型，默认 inet (tcp+udp, v4+v6)
	Kind string
}

var _ Source = PsutilSource{}

func (s PsutilSource) Connections(ctx context.Context) ([]model.Connection, error) {
	kind := s.Kind
	if kind == "" {
		kind = "inet"
	}

	stats, err := net.ConnectionsWithContext(ctx, kind)
	if err != nil {
		return nil, err
	}
	return filterConnections(stats), nil
}

// filterConnections 只保留同时具有本地地址、远端地址和 PID 的连接
// 监听 socket 的远端是 0.0.0.0:0，会被过滤掉
func filterConnections(stats []net.ConnectionStat) []model.Connection {
	conns := make([]model.Connection, 0, len(stats))
	for _, c := range stats {
		if c.Pid <= 0 {
			continue
		}
		if c.Laddr.IP == "" || c.Laddr.Port == 0 {
			continue
		}
		if c.Raddr.IP == "" || c.Raddr.Port == 0 {
			continue
		}
		conns = append(conns, model.Connection{
			LocalPort:  uint16(c.Laddr.Port),
			RemotePort: uint16(c.Raddr.Port),
			Pid:        c.Pid,
		})
	}
	return conns
}
