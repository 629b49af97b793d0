package classifier

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"procnet/accumulator"
	"procnet/model"
	"procnet/registry"
)

var (
	localMAC  = net.HardwareAddr{0x02, 0x42, 0xac, 0x11, 0x00, 0x02}
	remoteMAC = net.HardwareAddr{0x00, 0x1c, 0x42, 0x00, 0x00, 0x18}
)

func newTestClassifier() (*Classifier, *accumulator.Accumulator) {
	reg := registry.New()
	reg.Update([]model.Connection{{LocalPort: 40000, RemotePort: 443, Pid: 7}})
	acc := accumulator.New()
	return New(reg, acc, []net.HardwareAddr{localMAC, nil}), acc
}

func TestClassifyUpload(t *testing.T) {
	c, acc := newTestClassifier()

	v := c.Classify(model.Packet{SrcPort: 40000, DstPort: 443, SrcMAC: localMAC, Length: 1500, HasPorts: true})
	assert.Equal(t, Upload, v)
	assert.Equal(t, model.TrafficStats{TxBytes: 1500}, acc.ReadAll()[7])
}

func TestClassifyDownload(t *testing.T) {
	c, acc := newTestClassifier()

	v := c.Classify(model.Packet{SrcPort: 40000, DstPort: 443, SrcMAC: remoteMAC, Length: 1500, HasPorts: true})
	assert.Equal(t, Download, v)
	assert.Equal(t, model.TrafficStats{RxBytes: 1500}, acc.ReadAll()[7])
}

func TestClassifyReverseDirection(t *testing.T) {
	c, acc := newTestClassifier()

	// 对端发来的报文，端口顺序相反
	v := c.Classify(model.Packet{SrcPort: 443, DstPort: 40000, SrcMAC: remoteMAC, Length: 60, HasPorts: true})
	assert.Equal(t, Download, v)
	assert.Equal(t, uint64(60), acc.ReadAll()[7].RxBytes)
}

func TestClassifyIgnored(t *testing.T) {
	tests := map[string]model.Packet{
		"no ports":     {SrcMAC: localMAC, Length: 98},
		"unregistered": {SrcPort: 40001, DstPort: 443, SrcMAC: localMAC, Length: 1500, HasPorts: true},
		"empty":        {},
		"zero length":  {SrcPort: 40000, DstPort: 443, SrcMAC: localMAC, HasPorts: true},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			c, acc := newTestClassifier()
			assert.Equal(t, Ignored, c.Classify(p))
			assert.Empty(t, acc.ReadAll())
		})
	}
}

func TestClassifierStats(t *testing.T) {
	c, _ := newTestClassifier()
	c.Classify(model.Packet{SrcPort: 40000, DstPort: 443, SrcMAC: localMAC, Length: 100, HasPorts: true})
	c.Classify(model.Packet{SrcPort: 40000, DstPort: 443, SrcMAC: remoteMAC, Length: 200, HasPorts: true})
	c.Handle(model.Packet{Length: 50})

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Packets[Upload])
	assert.Equal(t, uint64(1), s.Packets[Download])
	assert.Equal(t, uint64(1), s.Packets[Ignored])
	assert.Equal(t, uint64(100), s.Bytes[Upload])
	assert.Equal(t, uint64(200), s.Bytes[Download])
	assert.Equal(t, uint64(50), s.Bytes[Ignored])
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "upload", Upload.String())
	assert.Equal(t, "download", Download.String())
	assert.Equal(t, "ignored", Ignored.String())
}
