package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procnet/model"
)

func TestRegistryResolveBothDirections(t *testing.T) {
	r := New()
	r.Update([]model.Connection{{LocalPort: 40000, RemotePort: 443, Pid: 7}})

	pid, ok := r.Resolve(model.ConnKey{Local: 40000, Remote: 443})
	assert.True(t, ok)
	assert.Equal(t, int32(7), pid)

	pid, ok = r.Resolve(model.ConnKey{Local: 443, Remote: 40000})
	assert.True(t, ok)
	assert.Equal(t, int32(7), pid)

	assert.Equal(t, 2, r.Len())
}

func TestRegistryUnknownKey(t *testing.T) {
	r := New()
	r.Update([]model.Connection{{LocalPort: 40000, RemotePort: 443, Pid: 7}})

	for _, key := range []model.ConnKey{
		{Local: 40000, Remote: 80},
		{Local: 443, Remote: 443},
		{},
	} {
		_, ok := r.Resolve(key)
		assert.False(t, ok, "key %+v", key)
	}
}

func TestRegistryLastWriteWinsAndNoEviction(t *testing.T) {
	r := New()
	r.Update([]model.Connection{
		{LocalPort: 40000, RemotePort: 443, Pid: 7},
		{LocalPort: 50000, RemotePort: 53, Pid: 9},
	})
	// 端口对被复用
	r.Update([]model.Connection{{LocalPort: 40000, RemotePort: 443, Pid: 8}})

	pid, _ := r.Resolve(model.ConnKey{Local: 443, Remote: 40000})
	assert.Equal(t, int32(8), pid)

	// 未出现在本次刷新中的旧记录仍然保留
	pid, ok := r.Resolve(model.ConnKey{Local: 50000, Remote: 53})
	assert.True(t, ok)
	assert.Equal(t, int32(9), pid)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				r.Update([]model.Connection{{LocalPort: uint16(base*1000 + j), RemotePort: 65000, Pid: int32(base)}})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				r.Resolve(model.ConnKey{Local: uint16(j), Remote: 65000})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8000, r.Len())
}

type fakeSource struct {
	calls atomic.Int32
	conns []model.Connection
	err   error
}

func (s *fakeSource) Connections(context.Context) ([]model.Connection, error) {
	s.calls.Add(1)
	return s.conns, s.err
}

func TestRefresherRunUntilCancel(t *testing.T) {
	src := &fakeSource{conns: []model.Connection{{LocalPort: 40000, RemotePort: 443, Pid: 7}}}
	reg := New()
	refreshed := make(chan int, 16)
	r := &Refresher{
		Source:    src,
		Registry:  reg,
		Interval:  10 * time.Millisecond,
		OnRefresh: func(n int) { refreshed <- n },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Equal(t, 1, <-refreshed)
	<-refreshed
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
	assert.GreaterOrEqual(t, src.calls.Load(), int32(2))

	_, ok := reg.Resolve(model.ConnKey{Local: 443, Remote: 40000})
	assert.True(t, ok)
}

func TestRefresherRunSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("permission denied")}
	r := &Refresher{Source: src, Registry: New(), Interval: time.Millisecond}

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFilterConnections(t *testing.T) {
	stats := []net.ConnectionStat{
		{Laddr: net.Addr{IP: "10.0.0.2", Port: 40000}, Raddr: net.Addr{IP: "1.1.1.1", Port: 443}, Pid: 7},
		// listen socket
		{Laddr: net.Addr{IP: "0.0.0.0", Port: 22}, Raddr: net.Addr{IP: "0.0.0.0", Port: 0}, Pid: 1},
		// 无 PID (其他用户的进程)
		{Laddr: net.Addr{IP: "10.0.0.2", Port: 40001}, Raddr: net.Addr{IP: "1.1.1.1", Port: 443}, Pid: 0},
		// 无远端地址
		{Laddr: net.Addr{IP: "10.0.0.2", Port: 5353}, Pid: 3},
	}

	conns := filterConnections(stats)
	assert.Equal(t, []model.Connection{{LocalPort: 40000, RemotePort: 443, Pid: 7}}, conns)
}
