package model

import (
	"net"
	"time"
)

// ConnKey 连接标识：(本地端口, 远端端口)
// 同一条连接会以 (a,b) 和 (b,a) 两个方向登记，因为报文可能从任意一端观察到
type ConnKey struct {
	Local  uint16
	Remote uint16
}

// Reverse 返回反方向的 key
func (k ConnKey) Reverse() ConnKey {
	return ConnKey{Local: k.Remote, Remote: k.Local}
}

// Connection 系统连接表里的一条记录
type Connection struct {
	LocalPort  uint16
	RemotePort uint16
	Pid        int32
}

// Packet 抓包层解析后交给分类器的报文
// HasPorts 为 false 表示没有 TCP/UDP 层 (或者解析失败)
type Packet struct {
	SrcPort  uint16
	DstPort  uint16
	SrcMAC   net.HardwareAddr
	Length   int
	HasPorts bool
}

// Key 以 (源端口, 目的端口) 构造连接标识
func (p Packet) Key() ConnKey {
	return ConnKey{Local: p.SrcPort, Remote: p.DstPort}
}

// TrafficStats 某个 PID 的累计流量，只增不减
type TrafficStats struct {
	TxBytes uint64
	RxBytes uint64
}

// ProcessMeta 进程元信息
type ProcessMeta struct {
	Name    string
	Created time.Time
}

// ProcessEntity 快照里的一行
type ProcessEntity struct {
	Pid     int32
	Name    string
	Created time.Time

	// 累计总量
	TxTotal uint64
	RxTotal uint64

	// 本周期速率 (Bytes per period)
	TxRate uint64
	RxRate uint64
}
