package alerts

import (
	"bufio"
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"notification-engine/internal/metrics"
)

// Sampler produces one metric value. A nil value means the metric is
// unavailable this tick and must not trigger any rule.
type Sampler func(ctx context.Context) (*float64, error)

// MetricStore provides the samplers that live in operational tables.
type MetricStore interface {
	SampleErrorRate(ctx context.Context) (*float64, error)
	SampleSLABreaches(ctx context.Context) (*float64, error)
	SampleBackupFresh(ctx context.Context) (*float64, error)
	PingLatency(ctx context.Context) (*float64, error)
}

// DefaultSamplers wires the metric-name lookup the evaluator uses.
// probeAddr is the host:port dialed for the connectivity check.
func DefaultSamplers(store MetricStore, probeAddr string) map[string]Sampler {
	return map[string]Sampler{
		"error_rate":     store.SampleErrorRate,
		"avg_latency_ms": store.PingLatency,
		"sla_breaches":   store.SampleSLABreaches,
		"backup_fresh":   store.SampleBackupFresh,
		"connectivity": func(ctx context.Context) (*float64, error) {
			return sampleConnectivity(probeAddr)
		},
		"disk_usage_pct": func(ctx context.Context) (*float64, error) {
			return sampleDiskUsage("/")
		},
		"memory_usage_pct": func(ctx context.Context) (*float64, error) {
			return sampleMemoryUsage("/proc/meminfo")
		},
		"gateway_success_rate": func(ctx context.Context) (*float64, error) {
			return sampleGatewaySuccessRate()
		},
	}
}

// sampleConnectivity returns 1 when the probe address answers, 0 otherwise.
func sampleConnectivity(addr string) (*float64, error) {
	v := 0.0
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err == nil {
		conn.Close()
		v = 1.0
	}
	return &v, nil
}

func sampleDiskUsage(path string) (*float64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return nil, err
	}
	total := float64(st.Blocks) * float64(st.Bsize)
	if total == 0 {
		return nil, nil
	}
	free := float64(st.Bavail) * float64(st.Bsize)
	v := (total - free) / total * 100
	return &v, nil
}

// sampleMemoryUsage reads MemTotal/MemAvailable from /proc/meminfo.
func sampleMemoryUsage(path string) (*float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var total, available float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			available = v
		}
	}
	if total == 0 {
		return nil, nil
	}
	v := (total - available) / total * 100
	return &v, nil
}

// sampleGatewaySuccessRate reads the prometheus counters the gateway adapter
// maintains. With no sends yet there is nothing to rate.
func sampleGatewaySuccessRate() (*float64, error) {
	ok := metrics.CounterValue(metrics.GatewaySendsOK)
	failed := metrics.CounterValue(metrics.GatewaySendsFailed)
	total := ok + failed
	if total == 0 {
		return nil, nil
	}
	v := ok / total * 100
	return &v, nil
}
