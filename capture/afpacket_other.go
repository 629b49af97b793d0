//go:build !linux

package capture

import (
	"context"

	"github.com/pkg/errors"
)

// PacketSource AF_PACKET 只在 Linux 上可用
type PacketSource struct {
	Device  string
	SnapLen int
}

func (s *PacketSource) Run(context.Context, Handler) error {
	return errors.New("afpacket backend is only supported on linux")
}
