package capture

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"

	"procnet/logging"
)

const defaultReadTimeout = 500 * time.Millisecond

// PcapSource 基于 libpcap 抓包
type PcapSource struct {
	// Device 为空时选择第一个有地址的非回环网卡
	Device  string
	SnapLen int
	Promisc bool
	// Filter BPF 过滤表达式，如 "tcp or udp"
	Filter string
	// Timeout 读超时，决定响应 ctx 取消的速度
	Timeout time.Duration
}

var _ Source = (*PcapSource)(nil)

func (s *PcapSource) Run(ctx context.Context, handle Handler) error {
	device := s.Device
	if device == "" {
		var err error
		if device, err = defaultDevice(); err != nil {
			return err
		}
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}

	h, err := pcap.OpenLive(device, int32(s.SnapLen), s.Promisc, timeout)
	if err != nil {
		return errors.Wrapf(err, "open device %s", device)
	}
	defer h.Close()

	if s.Filter != "" {
		if err := h.SetBPFFilter(s.Filter); err != nil {
			return errors.Wrapf(err, "set filter %q", s.Filter)
		}
	}
	logging.Infof("pcap capture started on %s, linktype=%s, filter=%q", device, h.LinkType(), s.Filter)

	dec := NewDecoder(h.LinkType())
	for {
		if ctx.Err() != nil {
			return nil
		}

		data, ci, err := h.ZeroCopyReadPacketData()
		switch {
		case err == nil:
		case err == pcap.NextErrorTimeoutExpired:
			continue
		case err == io.EOF:
			return nil
		default:
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read packet")
		}

		handle(dec.Decode(data, ci.Length))
	}
}

func defaultDevice() (string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return "", errors.Wrap(err, "find devices")
	}
	for _, dev := range devs {
		for _, addr := range dev.Addresses {
			if addr.IP == nil || addr.IP.IsLoopback() || addr.IP.Equal(net.IPv4zero) {
				continue
			}
			return dev.Name, nil
		}
	}
	return "", errors.New("no capture device found")
}
