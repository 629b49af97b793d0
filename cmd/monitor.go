package cmd

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"procnet/accumulator"
	"procnet/capture"
	"procnet/classifier"
	"procnet/config"
	"procnet/logging"
	"procnet/metrics"
	"procnet/registry"
	"procnet/snapshot"
	"procnet/ui"
)

// monitor 把各组件串起来：抓包 -> 分类 -> 累计 -> 快照 -> 输出
type monitor struct {
	conf *config.Configuration

	source     capture.Source
	registry   *registry.Registry
	refresher  *registry.Refresher
	acc        *accumulator.Accumulator
	classifier *classifier.Classifier
	engine     *snapshot.Engine

	dashboard *ui.Dashboard
	exporter  *metrics.Exporter
	sinks     snapshot.Sinks
}

type collaborators struct {
	source capture.Source
	conns  registry.Source
	meta   snapshot.MetaSource
	macs   []net.HardwareAddr
}

func newMonitor(conf *config.Configuration, c collaborators) *monitor {
	m := &monitor{
		conf:     conf,
		source:   c.source,
		registry: registry.New(),
		acc:      accumulator.New(),
	}
	m.refresher = &registry.Refresher{
		Source:   c.conns,
		Registry: m.registry,
		Interval: conf.Registry.Interval,
	}
	m.classifier = classifier.New(m.registry, m.acc, c.macs)

	m.engine = snapshot.NewEngine(m.acc, c.meta, snapshot.NewHistory())
	m.engine.Interval = conf.Snapshot.Interval
	m.engine.TopN = conf.Snapshot.Top

	if conf.UI.Enabled {
		m.dashboard = ui.NewDashboard(conf.Snapshot.Chart, m.classifier.Stats)
		m.sinks = append(m.sinks, m.dashboard)
	} else {
		m.sinks = append(m.sinks, ui.LogSink{})
	}
	if conf.Metrics.Listen != "" {
		m.exporter = metrics.NewExporter(m.classifier.Stats, m.registry.Len)
		m.sinks = append(m.sinks, m.exporter)
	}
	return m
}

// addSink 追加额外的输出
func (m *monitor) addSink(s snapshot.Sink) {
	m.sinks = append(m.sinks, s)
}

// run 启动所有任务并阻塞
// 抓包结束、界面退出或任一任务出错时取消其余任务，返回第一个错误
func (m *monitor) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		err := m.source.Run(ctx, m.classifier.Handle)
		logging.Infof("capture stopped: %v", err)
		return err
	})
	g.Go(func() error {
		return m.refresher.Run(ctx)
	})
	g.Go(func() error {
		return m.engine.Run(ctx, m.sinks)
	})
	if m.dashboard != nil {
		g.Go(func() error {
			return m.dashboard.Run(ctx, cancel)
		})
	}
	if m.exporter != nil {
		g.Go(func() error {
			return m.exporter.Serve(ctx, m.conf.Metrics.Listen)
		})
	}

	return g.Wait()
}
