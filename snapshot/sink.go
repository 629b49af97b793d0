package snapshot

// Sinks 把同一份 Report 依次分发给多个 Sink
type Sinks []Sink

func (s Sinks) Publish(r Report) {
	for _, sink := range s {
		if sink == nil {
			continue
		}
		sink.Publish(r)
	}
}

// SinkFunc 让普通函数实现 Sink
type SinkFunc func(r Report)

func (f SinkFunc) Publish(r Report) { f(r) }
