package ui

import (
	"context"
	"fmt"
	"sync"

	termui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/pkg/errors"

	"procnet/classifier"
	"procnet/model"
	"procnet/snapshot"
)

var header = []string{"PID", "Name", "Upload", "Download", "Upload Speed", "Download Speed"}

// 前几行和对应曲线使用同一颜色
var seriesColors = []termui.Color{termui.ColorCyan, termui.ColorYellow, termui.ColorMagenta}

// Dashboard 终端界面：上方进程表格，下方前几名进程的吞吐曲线
type Dashboard struct {
	mut     sync.Mutex
	started bool

	grid  *termui.Grid
	table *widgets.Table
	group *widgets.SparklineGroup
	lines []*widgets.Sparkline

	stats func() classifier.Stats
}

var _ snapshot.Sink = (*Dashboard)(nil)

// NewDashboard chart 为绘制曲线的进程数 (最多 3 个)
func NewDashboard(chart int, stats func() classifier.Stats) *Dashboard {
	if chart > len(seriesColors) {
		chart = len(seriesColors)
	}

	table := widgets.NewTable()
	table.Title = " procnet "
	table.Rows = [][]string{header}
	table.TextStyle = termui.NewStyle(termui.ColorWhite)
	table.RowSeparator = false
	table.BorderStyle.Fg = termui.ColorGreen
	table.RowStyles = map[int]termui.Style{}

	lines := make([]*widgets.Sparkline, 0, chart)
	for i := 0; i < chart; i++ {
		sl := widgets.NewSparkline()
		sl.LineColor = seriesColors[i]
		sl.TitleStyle.Fg = seriesColors[i]
		lines = append(lines, sl)
	}
	group := widgets.NewSparklineGroup(lines...)
	group.Title = " total KB/s "
	group.BorderStyle.Fg = termui.ColorYellow

	grid := termui.NewGrid()
	if chart > 0 {
		grid.Set(
			termui.NewRow(0.6, termui.NewCol(1.0, table)),
			termui.NewRow(0.4, termui.NewCol(1.0, group)),
		)
	} else {
		grid.Set(termui.NewRow(1.0, termui.NewCol(1.0, table)))
	}

	return &Dashboard{
		grid:  grid,
		table: table,
		group: group,
		lines: lines,
		stats: stats,
	}
}

// Publish 更新组件；界面已启动时立即渲染
func (d *Dashboard) Publish(r snapshot.Report) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.update(r)
	if d.started {
		termui.Render(d.grid)
	}
}

func (d *Dashboard) update(r snapshot.Report) {
	charted := d.chartNames(r.Top)

	// 1. 表格，画了曲线的进程行用曲线的颜色
	d.table.Rows = [][]string{header}
	d.table.RowStyles = map[int]termui.Style{}
	for i, p := range r.Top {
		d.table.Rows = append(d.table.Rows, []string{
			fmt.Sprintf("%d", p.Pid),
			p.Name,
			FormatBytes(p.TxTotal),
			FormatBytes(p.RxTotal),
			FormatSpeed(p.TxRate),
			FormatSpeed(p.RxRate),
		})
		if idx, ok := charted[p.Name]; ok {
			d.table.RowStyles[i+1] = termui.NewStyle(seriesColors[idx])
		}
	}

	// 汇总行固定在表格底部
	dataRows := len(r.Top)
	reservedRows := 3
	if height := d.table.Inner.Dy(); dataRows+reservedRows < height {
		for i := 0; i < height-dataRows-reservedRows; i++ {
			d.table.Rows = append(d.table.Rows, []string{" ", " ", " ", " ", " ", " "})
		}
	}

	total, rate := r.Snapshot.Totals()
	var processes int
	if r.Snapshot != nil {
		processes = len(r.Snapshot.Entries)
	}
	footer := []string{
		fmt.Sprintf("procs: %d", processes),
		"total",
		fmt.Sprintf("▲ %s", FormatBytes(total.TxBytes)),
		fmt.Sprintf("▼ %s", FormatBytes(total.RxBytes)),
		fmt.Sprintf("▲ %s", FormatSpeed(rate.TxBytes)),
		fmt.Sprintf("▼ %s", FormatSpeed(rate.RxBytes)),
	}
	if d.stats != nil {
		s := d.stats()
		footer[1] = fmt.Sprintf("pkts %d/%d", s.Packets[classifier.Upload]+s.Packets[classifier.Download], s.Packets[classifier.Ignored])
	}
	d.table.Rows = append(d.table.Rows, []string{"━━━━", "━━━━━━━━", "━━━━━━━━", "━━━━━━━━", "━━━━━━━━", "━━━━━━━━"}, footer)

	// 2. 曲线
	width := d.group.Inner.Dx()
	for name, idx := range charted {
		series := r.Histories[name]
		if width > 0 && len(series) > width {
			series = series[len(series)-width:]
		}
		sl := d.lines[idx]
		sl.Data = toFloats(series)
		sl.MaxVal = maxOf(sl.Data)
		sl.Title = name
		if len(series) > 0 {
			sl.Title = fmt.Sprintf("%s %d KB/s", name, series[len(series)-1])
		}
	}
	for idx := len(charted); idx < len(d.lines); idx++ {
		d.lines[idx].Data = nil
		d.lines[idx].MaxVal = 1
		d.lines[idx].Title = ""
	}
}

// chartNames 按排名给前几个不同的进程名分配曲线，同名进程只画一次
func (d *Dashboard) chartNames(top []model.ProcessEntity) map[string]int {
	ret := make(map[string]int, len(d.lines))
	for _, p := range top {
		if len(ret) >= len(d.lines) {
			break
		}
		if _, ok := ret[p.Name]; ok {
			continue
		}
		ret[p.Name] = len(ret)
	}
	return ret
}

func toFloats(series []uint64) []float64 {
	ret := make([]float64, len(series))
	for i, v := range series {
		ret[i] = float64(v)
	}
	return ret
}

func maxOf(data []float64) float64 {
	m := 1.0
	for _, v := range data {
		if v > m {
			m = v
		}
	}
	return m
}

// Run 初始化终端并处理键盘事件，按 q 或 Ctrl+C 时调用 quit
func (d *Dashboard) Run(ctx context.Context, quit func()) error {
	if err := termui.Init(); err != nil {
		return errors.Wrap(err, "init termui")
	}
	defer termui.Close()

	d.mut.Lock()
	w, h := termui.TerminalDimensions()
	d.grid.SetRect(0, 0, w, h)
	termui.Render(d.grid)
	d.started = true
	d.mut.Unlock()

	defer func() {
		d.mut.Lock()
		d.started = false
		d.mut.Unlock()
	}()

	events := termui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch {
			case e.Type == termui.KeyboardEvent && (e.ID == "q" || e.ID == "<C-c>"):
				quit()
				return nil
			case e.Type == termui.ResizeEvent:
				payload := e.Payload.(termui.Resize)
				d.mut.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				termui.Clear()
				termui.Render(d.grid)
				d.mut.Unlock()
			}
		}
	}
}
