package cmd

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procnet/capture"
	"procnet/classifier"
	"procnet/config"
	"procnet/model"
	"procnet/snapshot"
)

var localMAC = net.HardwareAddr{0x02, 0x42, 0xac, 0x11, 0x00, 0x02}

type staticConns []model.Connection

func (s staticConns) Connections(context.Context) ([]model.Connection, error) {
	return s, nil
}

type failingConns struct{}

func (failingConns) Connections(context.Context) ([]model.Connection, error) {
	return nil, errors.New("netlink unavailable")
}

// scriptedSource 等 Registry 有数据后发送固定报文，再等待一次快照输出后结束
type scriptedSource struct {
	ready     func() bool
	packets   []model.Packet
	published <-chan struct{}
}

func (s *scriptedSource) Run(ctx context.Context, handle capture.Handler) error {
	for !s.ready() {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Millisecond):
		}
	}
	for _, p := range s.packets {
		handle(p)
	}
	select {
	case <-ctx.Done():
	case <-s.published:
	}
	return nil
}

type blockingSource struct{}

func (blockingSource) Run(ctx context.Context, _ capture.Handler) error {
	<-ctx.Done()
	return nil
}

func testConfig() *config.Configuration {
	conf := config.New()
	conf.UI.Enabled = false
	conf.Registry.Interval = 5 * time.Millisecond
	conf.Snapshot.Interval = 5 * time.Millisecond
	return conf
}

func TestMonitorEndToEnd(t *testing.T) {
	meta := snapshot.MetaFunc(func(_ context.Context, pid int32) (model.ProcessMeta, error) {
		if pid == 7 {
			return model.ProcessMeta{Name: "curl"}, nil
		}
		return model.ProcessMeta{}, snapshot.ErrProcessNotFound
	})

	m := newMonitor(testConfig(), collaborators{
		source: blockingSource{},
		conns:  staticConns{{LocalPort: 40000, RemotePort: 443, Pid: 7}, {LocalPort: 40001, RemotePort: 443, Pid: 8}},
		meta:   meta,
		macs:   []net.HardwareAddr{localMAC},
	})

	published := make(chan struct{})
	var (
		once    sync.Once
		mut     sync.Mutex
		reports []snapshot.Report
	)
	m.addSink(snapshot.SinkFunc(func(r snapshot.Report) {
		if r.Snapshot == nil || len(r.Snapshot.Entries) == 0 {
			return
		}
		mut.Lock()
		reports = append(reports, r)
		mut.Unlock()
		if e := r.Snapshot.Entries[0]; e.TxTotal == 1500 && e.RxTotal == 3000 {
			once.Do(func() { close(published) })
		}
	}))

	m.source = &scriptedSource{
		ready: func() bool { return m.registry.Len() > 0 },
		packets: []model.Packet{
			{SrcPort: 40000, DstPort: 443, SrcMAC: localMAC, Length: 1500, HasPorts: true},
			{SrcPort: 443, DstPort: 40000, SrcMAC: net.HardwareAddr{1, 2, 3, 4, 5, 6}, Length: 3000, HasPorts: true},
			{SrcPort: 40001, DstPort: 443, SrcMAC: localMAC, Length: 100, HasPorts: true},
			{SrcPort: 50000, DstPort: 443, SrcMAC: localMAC, Length: 100, HasPorts: true},
			{Length: 60},
		},
		published: published,
	}

	done := make(chan error, 1)
	go func() { done <- m.run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after capture ended")
	}

	mut.Lock()
	defer mut.Unlock()
	require.NotEmpty(t, reports)

	// 速率是相邻快照的差值，累加起来等于总量
	var tx, rx uint64
	for _, r := range reports {
		for _, e := range r.Snapshot.Entries {
			require.Equal(t, int32(7), e.Pid)
			assert.Equal(t, "curl", e.Name)
			tx += e.TxRate
			rx += e.RxRate
		}
	}
	assert.Equal(t, uint64(1500), tx)
	assert.Equal(t, uint64(3000), rx)

	last := reports[len(reports)-1].Snapshot.Entries[0]
	assert.Equal(t, uint64(1500), last.TxTotal)
	assert.Equal(t, uint64(3000), last.RxTotal)

	// pid 8 有流量但查不到进程信息，不会出现在快照里
	assert.Equal(t, 2, m.acc.Len())
	stats := m.classifier.Stats()
	assert.Equal(t, uint64(3), stats.Packets[classifier.Upload]+stats.Packets[classifier.Download])
	assert.Equal(t, uint64(2), stats.Packets[classifier.Ignored])
}

func TestMonitorRegistryFailureStopsCapture(t *testing.T) {
	m := newMonitor(testConfig(), collaborators{
		source: blockingSource{},
		conns:  failingConns{},
		meta:   snapshot.MetaFunc(func(context.Context, int32) (model.ProcessMeta, error) { return model.ProcessMeta{}, nil }),
	})

	done := make(chan error, 1)
	go func() { done <- m.run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "netlink unavailable")
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitorCancel(t *testing.T) {
	m := newMonitor(testConfig(), collaborators{
		source: blockingSource{},
		conns:  staticConns{},
		meta:   snapshot.MetaFunc(func(context.Context, int32) (model.ProcessMeta, error) { return model.ProcessMeta{}, nil }),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestNewMonitorSinks(t *testing.T) {
	conf := testConfig()
	m := newMonitor(conf, collaborators{source: blockingSource{}, conns: staticConns{}})
	assert.Len(t, m.sinks, 1)
	assert.Nil(t, m.dashboard)
	assert.Nil(t, m.exporter)

	conf.UI.Enabled = true
	conf.Metrics.Listen = "127.0.0.1:0"
	m = newMonitor(conf, collaborators{source: blockingSource{}, conns: staticConns{}})
	assert.Len(t, m.sinks, 2)
	assert.NotNil(t, m.dashboard)
	assert.NotNil(t, m.exporter)
}
