//go:build linux

package capture

import (
	"context"
	"encoding/binary"
	"net"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"procnet/logging"
)

const (
	ethTypeOffset   = 12
	ipv4ProtoOffset = 14 + 9
	ipv6NextOffset  = 14 + 6
)

// PacketSource 基于 AF_PACKET 原始套接字抓包
// 内核里挂一个 eBPF socket filter，只把 TCP/UDP 帧送到用户态
type PacketSource struct {
	// Device 为空时抓所有网卡
	Device  string
	SnapLen int
}

var _ Source = (*PacketSource)(nil)

// transportFilter 保留 IPv4/IPv6 上的 TCP/UDP 帧，其余返回 0 丢弃
// LD_ABS 要求 R6 指向 skb
func transportFilter() asm.Instructions {
	return asm.Instructions{
		asm.Mov.Reg(asm.R6, asm.R1),
		asm.LoadAbs(ethTypeOffset, asm.Half),
		asm.JEq.Imm(asm.R0, int32(layers.EthernetTypeIPv4), "ipv4"),
		asm.JEq.Imm(asm.R0, int32(layers.EthernetTypeIPv6), "ipv6"),
		asm.Mov.Imm(asm.R0, 0),
		asm.Return(),

		asm.LoadAbs(ipv4ProtoOffset, asm.Byte).WithSymbol("ipv4"),
		asm.JEq.Imm(asm.R0, unix.IPPROTO_TCP, "accept"),
		asm.JEq.Imm(asm.R0, unix.IPPROTO_UDP, "accept"),
		asm.Mov.Imm(asm.R0, 0),
		asm.Return(),

		asm.LoadAbs(ipv6NextOffset, asm.Byte).WithSymbol("ipv6"),
		asm.JEq.Imm(asm.R0, unix.IPPROTO_TCP, "accept"),
		asm.JEq.Imm(asm.R0, unix.IPPROTO_UDP, "accept"),
		asm.Mov.Imm(asm.R0, 0),
		asm.Return(),

		// 返回 skb->len，整帧保留
		asm.LoadMem(asm.R0, asm.R6, 0, asm.Word).WithSymbol("accept"),
		asm.Return(),
	}
}

func loadFilter() (*ebpf.Program, error) {
	// 老内核上加载 eBPF 需要解除 memlock 限制
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, errors.Wrap(err, "remove memlock")
	}
	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "procnet_l4",
		Type:         ebpf.SocketFilter,
		License:      "GPL",
		Instructions: transportFilter(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "load socket filter")
	}
	return prog, nil
}

func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}

func (s *PacketSource) open() (*os.File, int, error) {
	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(proto))
	if err != nil {
		return nil, -1, errors.Wrap(err, "open packet socket")
	}

	sa := &unix.SockaddrLinklayer{Protocol: proto}
	if s.Device != "" {
		iface, err := net.InterfaceByName(s.Device)
		if err != nil {
			unix.Close(fd)
			return nil, -1, errors.Wrapf(err, "find device %s", s.Device)
		}
		sa.Ifindex = iface.Index
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, -1, errors.Wrap(err, "bind packet socket")
	}

	tv := unix.NsecToTimeval(defaultReadTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, -1, errors.Wrap(err, "set read timeout")
	}
	return os.NewFile(uintptr(fd), "afpacket"), fd, nil
}

func (s *PacketSource) Run(ctx context.Context, handle Handler) error {
	prog, err := loadFilter()
	if err != nil {
		return err
	}
	defer prog.Close()

	f, fd, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := link.AttachSocketFilter(f, prog); err != nil {
		return errors.Wrap(err, "attach socket filter")
	}
	logging.Infof("afpacket capture started, device=%q", s.Device)

	snaplen := s.SnapLen
	if snaplen <= 0 {
		snaplen = 65536
	}
	buf := make([]byte, snaplen)
	dec := NewDecoder(layers.LinkTypeEthernet)

	for {
		if ctx.Err() != nil {
			return nil
		}

		// MSG_TRUNC 让返回值为帧的真实长度
		n, _, err := unix.Recvfrom(fd, buf, unix.MSG_TRUNC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read packet socket")
		}
		if n <= 0 {
			continue
		}

		captured := n
		if captured > len(buf) {
			captured = len(buf)
		}
		handle(dec.Decode(buf[:captured], n))
	}
}
