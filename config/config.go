package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	validator "gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"

	"procnet/logging"
)

const (
	BackendPcap     = "pcap"
	BackendAFPacket = "afpacket"
)

// Capture 抓包配置
type Capture struct {
	Backend string `yaml:"backend" validate:"regexp=^(pcap|afpacket)$"`
	// Device 为空时 pcap 使用默认网卡，afpacket 监听所有网卡
	Device  string `yaml:"device"`
	SnapLen int    `yaml:"snaplen" validate:"min=64"`
	Promisc bool   `yaml:"promisc"`
	Filter  string `yaml:"filter"`
}

type Registry struct {
	Interval time.Duration `yaml:"interval" validate:"nonzero"`
}

type Snapshot struct {
	Interval time.Duration `yaml:"interval" validate:"nonzero"`
	Top      int           `yaml:"top" validate:"min=1"`
	Chart    int           `yaml:"chart" validate:"min=0,max=3"`
}

type ProcInfo struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type UI struct {
	Enabled bool `yaml:"enabled"`
}

type Metrics struct {
	// Listen 为空时不启动 exporter
	Listen string `yaml:"listen"`
}

// Configuration 全局配置
type Configuration struct {
	Path     string          `yaml:"-"`
	Capture  Capture         `yaml:"capture"`
	Registry Registry        `yaml:"registry"`
	Snapshot Snapshot        `yaml:"snapshot"`
	ProcInfo ProcInfo        `yaml:"procinfo"`
	UI       UI              `yaml:"ui"`
	Metrics  Metrics         `yaml:"metrics"`
	Logging  logging.Options `yaml:"logging"`
}

// Init 填充默认值
func (c *Configuration) Init() {
	c.Path = "procnet.yaml"
	c.Capture = Capture{
		Backend: BackendPcap,
		SnapLen: 262144,
		Filter:  "tcp or udp",
	}
	c.Registry.Interval = time.Second
	c.Snapshot = Snapshot{
		Interval: time.Second,
		Top:      10,
		Chart:    3,
	}
	c.ProcInfo.CacheTTL = 30 * time.Second
	c.UI.Enabled = true
	c.Logging = logging.Options{
		Filename:   "procnet.log",
		Format:     "console",
		MaxSize:    50,
		MaxAge:     7,
		MaxBackups: 3,
		Level:      "info",
	}
}

// ReadFrom 从 path 读取 yaml 覆盖当前值
func (c *Configuration) ReadFrom(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	c.Path = path
	return nil
}

func (c *Configuration) Validate() error {
	return validator.Validate(c)
}

// Dumps 输出最终生效的配置
func (c *Configuration) Dumps() (string, error) {
	data, err := yaml.Marshal(c)
	return string(data), err
}

// New 返回默认配置
func New() *Configuration {
	c := &Configuration{}
	c.Init()
	return c
}

// Load 读取配置文件；文件不存在时使用默认值
func Load(path string) (*Configuration, error) {
	c := New()
	if path != "" {
		err := c.ReadFrom(path)
		if err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return c, nil
}
