package capture

import (
	"context"

	"github.com/pkg/errors"

	"procnet/config"
	"procnet/model"
)

// Handler 每个报文回调一次
// Packet 引用的内存只在回调期间有效，不能保存
type Handler func(p model.Packet)

// Source 抓包来源，Run 阻塞直到 ctx 结束或抓包失败
type Source interface {
	Run(ctx context.Context, handle Handler) error
}

// New 按配置创建抓包来源
func New(c config.Capture) (Source, error) {
	switch c.Backend {
	case config.BackendPcap, "":
		return &PcapSource{
			Device:  c.Device,
			SnapLen: c.SnapLen,
			Promisc: c.Promisc,
			Filter:  c.Filter,
		}, nil
	case config.BackendAFPacket:
		return &PacketSource{
			Device:  c.Device,
			SnapLen: c.SnapLen,
		}, nil
	}
	return nil, errors.Errorf("unknown capture backend %q", c.Backend)
}
