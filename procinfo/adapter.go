package procinfo

import (
	"context"
	stdnet "net"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/net"
)

// HardwareAddrs 返回本机所有网卡的硬件地址
// 启动时调用一次，没有硬件地址的网卡 (如 lo) 会被跳过
func HardwareAddrs(ctx context.Context) ([]stdnet.HardwareAddr, error) {
	ifaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list interfaces")
	}
	return parseHardwareAddrs(ifaces), nil
}

func parseHardwareAddrs(ifaces net.InterfaceStatList) []stdnet.HardwareAddr {
	seen := make(map[string]struct{})
	var ret []stdnet.HardwareAddr
	for _, iface := range ifaces {
		if iface.HardwareAddr == "" {
			continue
		}
		mac, err := stdnet.ParseMAC(iface.HardwareAddr)
		if err != nil {
			continue
		}
		if _, ok := seen[string(mac)]; ok {
			continue
		}
		seen[string(mac)] = struct{}{}
		ret = append(ret, mac)
	}
	return ret
}
