package classifier

import (
	"net"
	"sync/atomic"

	"procnet/model"
)

// Verdict 单个报文的分类结果
type Verdict int

const (
	Ignored Verdict = iota
	Upload
	Download
)

func (v Verdict) String() string {
	switch v {
	case Upload:
		return "upload"
	case Download:
		return "download"
	default:
		return "ignored"
	}
}

type Resolver interface {
	Resolve(key model.ConnKey) (int32, bool)
}

type Recorder interface {
	AddUpload(pid int32, n uint64)
	AddDownload(pid int32, n uint64)
}

// Stats 分类计数
type Stats struct {
	Packets [3]uint64
	Bytes   [3]uint64
}

// Classifier 判断报文方向并把长度记到对应进程上
// 运行在抓包回调里，不能阻塞也不能打日志
type Classifier struct {
	resolver Resolver
	recorder Recorder
	local    map[string]struct{}

	packets [3]atomic.Uint64
	bytes   [3]atomic.Uint64
}

// New macs 为本机所有网卡的硬件地址，启动时查询一次
func New(resolver Resolver, recorder Recorder, macs []net.HardwareAddr) *Classifier {
	local := make(map[string]struct{}, len(macs))
	for _, mac := range macs {
		if len(mac) == 0 {
			continue
		}
		local[string(mac)] = struct{}{}
	}
	return &Classifier{
		resolver: resolver,
		recorder: recorder,
		local:    local,
	}
}

// IsLocal 源硬件地址是否属于本机网卡
func (c *Classifier) IsLocal(mac net.HardwareAddr) bool {
	_, ok := c.local[string(mac)]
	return ok
}

// Classify 处理一个报文
// 没有端口或者连接未登记的报文直接忽略
func (c *Classifier) Classify(p model.Packet) Verdict {
	v := c.classify(p)
	c.packets[v].Add(1)
	if p.Length > 0 {
		c.bytes[v].Add(uint64(p.Length))
	}
	return v
}

func (c *Classifier) classify(p model.Packet) Verdict {
	if !p.HasPorts || p.Length <= 0 {
		return Ignored
	}

	pid, ok := c.resolver.Resolve(p.Key())
	if !ok {
		return Ignored
	}

	n := uint64(p.Length)
	if c.IsLocal(p.SrcMAC) {
		c.recorder.AddUpload(pid, n)
		return Upload
	}
	c.recorder.AddDownload(pid, n)
	return Download
}

// Handle 适配 capture.Source 的回调签名
func (c *Classifier) Handle(p model.Packet) {
	c.Classify(p)
}

func (c *Classifier) Stats() Stats {
	var s Stats
	for i := range c.packets {
		s.Packets[i] = c.packets[i].Load()
		s.Bytes[i] = c.bytes[i].Load()
	}
	return s
}
