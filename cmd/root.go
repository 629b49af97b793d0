package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"procnet/capture"
	"procnet/config"
	"procnet/logging"
	"procnet/procinfo"
	"procnet/registry"
)

var (
	configPath    string
	device        string
	backend       string
	headless      bool
	metricsListen string
	top           int
	debug         bool
)

// rootCmd 按进程统计网络流量
var rootCmd = &cobra.Command{
	Use:           "procnet",
	Short:         "Per-process network traffic monitor",
	Long:          `Capture packets, attribute them to the owning process and show live per-process throughput.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := logging.SetOptions(conf.Logging); err != nil {
			return err
		}
		defer logging.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return run(ctx, conf)
	},
}

// Execute 由 main 调用
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "procnet.yaml", "config file")
	flags.StringVarP(&device, "device", "i", "", "capture device, empty for default")
	flags.StringVar(&backend, "backend", "", "capture backend: pcap or afpacket")
	flags.BoolVar(&headless, "headless", false, "disable the terminal dashboard and log rankings to stdout")
	flags.StringVar(&metricsListen, "metrics-listen", "", "serve prometheus metrics on this address")
	flags.IntVar(&top, "top", 0, "number of processes to show")
	flags.BoolVar(&debug, "debug", false, "debug logging")
}

// loadConfig 命令行参数优先于配置文件
func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		conf.Capture.Device = device
	}
	if flags.Changed("backend") {
		conf.Capture.Backend = backend
	}
	if flags.Changed("metrics-listen") {
		conf.Metrics.Listen = metricsListen
	}
	if flags.Changed("top") {
		conf.Snapshot.Top = top
	}
	if headless {
		conf.UI.Enabled = false
		conf.Logging.Stdout = true
	}
	if debug {
		conf.Logging.Level = "debug"
	}

	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid flags")
	}
	return conf, nil
}

func run(ctx context.Context, conf *config.Configuration) error {
	if dump, err := conf.Dumps(); err == nil {
		logging.Debugf("using config %s:\n%s", conf.Path, dump)
	}

	source, err := capture.New(conf.Capture)
	if err != nil {
		return err
	}

	// 本机网卡硬件地址只在启动时查一次
	macs, err := procinfo.HardwareAddrs(ctx)
	if err != nil {
		return err
	}
	logging.Infof("local hardware addresses: %v", macs)

	m := newMonitor(conf, collaborators{
		source: source,
		conns:  registry.PsutilSource{},
		meta:   procinfo.New(conf.ProcInfo.CacheTTL),
		macs:   macs,
	})
	return m.run(ctx)
}
