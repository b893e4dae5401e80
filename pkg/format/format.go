package format

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
)

// Bytes renders a size in binary units, 1536 -> "1.5KiB"
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return units.BytesSize(float64(n))
}

// Duration keeps sub-second values precise and rounds the rest to whole seconds
func Duration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Microsecond).String()
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// Uptime is the coarse form used in shutdown reports, "3 hours"
func Uptime(d time.Duration) string {
	return units.HumanDuration(d)
}

func Latency(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

func Percentage(value float64) string {
	switch {
	case value <= 0:
		return "0%"
	case value >= 100:
		return "100%"
	case value < 10:
		return fmt.Sprintf("%.1f%%", value)
	default:
		return fmt.Sprintf("%.0f%%", value)
	}
}
