package snapshot

import (
	"sort"
	"time"

	"procnet/model"
)

// Snapshot 某一时刻的只读视图，Entries 按下载速率降序
type Snapshot struct {
	Time    time.Time
	Entries []model.ProcessEntity
}

// Top 返回前 n 个条目
func (s *Snapshot) Top(n int) []model.ProcessEntity {
	if s == nil {
		return nil
	}
	if n < 0 || n > len(s.Entries) {
		n = len(s.Entries)
	}
	return s.Entries[:n]
}

// Totals 全部条目的累计量和速率之和
func (s *Snapshot) Totals() (total, rate model.TrafficStats) {
	if s == nil {
		return
	}
	for _, e := range s.Entries {
		total.TxBytes += e.TxTotal
		total.RxBytes += e.RxTotal
		rate.TxBytes += e.TxRate
		rate.RxBytes += e.RxRate
	}
	return
}

// baseline 转成下一周期计算速率用的基线
func (s *Snapshot) baseline() map[int32]model.TrafficStats {
	ret := make(map[int32]model.TrafficStats, len(s.Entries))
	for _, e := range s.Entries {
		ret[e.Pid] = model.TrafficStats{TxBytes: e.TxTotal, RxBytes: e.RxTotal}
	}
	return ret
}

// rank 按下载速率降序，速率相同时 PID 小的在前
func rank(entries []model.ProcessEntity) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].RxRate == entries[j].RxRate {
			return entries[i].Pid < entries[j].Pid
		}
		return entries[i].RxRate > entries[j].RxRate
	})
}

// delta 计算速率，基线缺失时按 0 处理
func delta(cur, prev uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}

func sortByPid(entries []model.ProcessEntity) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Pid < entries[j].Pid })
}
