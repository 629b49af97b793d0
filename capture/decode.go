package capture

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"procnet/model"
)

// Decoder 把链路层帧解析成 model.Packet
type Decoder struct {
	first gopacket.Decoder
	opts  gopacket.DecodeOptions
}

func NewDecoder(link layers.LinkType) *Decoder {
	return &Decoder{
		first: link,
		opts:  gopacket.DecodeOptions{Lazy: true, NoCopy: true},
	}
}

// Decode length 为报文在线路上的原始长度，<=0 时使用 len(data)
// 解析失败或没有 TCP/UDP 层时 HasPorts 为 false
func (d *Decoder) Decode(data []byte, length int) (p model.Packet) {
	if length <= 0 {
		length = len(data)
	}
	p.Length = length

	defer func() {
		if r := recover(); r != nil {
			p = model.Packet{Length: length}
		}
	}()

	pkt := gopacket.NewPacket(data, d.first, d.opts)
	switch l := pkt.LinkLayer().(type) {
	case *layers.Ethernet:
		p.SrcMAC = l.SrcMAC
	case *layers.LinuxSLL:
		p.SrcMAC = l.Addr
	}

	switch t := pkt.TransportLayer().(type) {
	case *layers.TCP:
		p.SrcPort, p.DstPort = uint16(t.SrcPort), uint16(t.DstPort)
		p.HasPorts = true
	case *layers.UDP:
		p.SrcPort, p.DstPort = uint16(t.SrcPort), uint16(t.DstPort)
		p.HasPorts = true
	}
	return p
}
