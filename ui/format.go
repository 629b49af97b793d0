package ui

import (
	"github.com/dustin/go-humanize"
)

// FormatBytes 字节数转成可读字符串，1024 进制
func FormatBytes(b uint64) string {
	return humanize.IBytes(b)
}

// FormatSpeed 每周期字节数转成速率字符串
func FormatSpeed(b uint64) string {
	return humanize.IBytes(b) + "/s"
}
