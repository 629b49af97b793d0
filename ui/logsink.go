package ui

import (
	"procnet/logging"
	"procnet/snapshot"
)

// LogSink 无界面模式下把排名写进日志
type LogSink struct{}

var _ snapshot.Sink = LogSink{}

func (LogSink) Publish(r snapshot.Report) {
	var processes int
	if r.Snapshot != nil {
		processes = len(r.Snapshot.Entries)
	}
	_, rate := r.Snapshot.Totals()
	logging.Infof("snapshot: %d processes, upload %s, download %s, dropped %d",
		processes, FormatSpeed(rate.TxBytes), FormatSpeed(rate.RxBytes), r.Dropped)
	for i, p := range r.Top {
		logging.Infof("#%d pid=%d name=%s upload=%s download=%s up=%s down=%s",
			i+1, p.Pid, p.Name, FormatBytes(p.TxTotal), FormatBytes(p.RxTotal), FormatSpeed(p.TxRate), FormatSpeed(p.RxRate))
	}
}
