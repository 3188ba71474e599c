// Command i10-target runs the i10 NVMe-over-TCP target as a standalone
// process, loading its port configuration from an INI file and serving
// a single RAM-backed namespace, the way the teacher's cmd/ublk-mem
// served a single memory-backed block device.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	i10target "github.com/i10-io/i10-target"
	"github.com/i10-io/i10-target/backend/mem"
	"github.com/i10-io/i10-target/config"
	"github.com/i10-io/i10-target/internal/logging"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to the port configuration INI file")
		sizeStr     = flag.String("size", "64M", "size of the RAM-backed namespace (e.g. 64M, 1G)")
		verbose     = flag.Bool("v", false, "verbose logging")
		metricsAddr = flag.String("metrics-addr", ":9100", "address to serve /metrics on (empty disables it)")
	)
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "i10-target: -config is required")
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = logrus.DebugLevel
	}
	logger := logging.NewLogger(logCfg)
	logging.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("loading config: %v", err)
		os.Exit(1)
	}

	size, err := parseSize(*sizeStr)
	if err != nil {
		logger.Errorf("invalid -size %q: %v", *sizeStr, err)
		os.Exit(1)
	}
	namespace := mem.New(size)

	params := i10target.Params{Backend: namespace}
	for _, p := range cfg.Ports {
		params.Ports = append(params.Ports, i10target.PortParams{
			Address:    p.Address,
			QueueDepth: p.QueueDepth,
			NumCPUs:    p.NumCPUs,
			UseIOURing: p.UseIOURing,
		})
		logger.Infof("configured port %q on %s (queue_depth=%d, cpus=%d)",
			p.Name, p.Address, p.QueueDepth, p.NumCPUs)
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Errorf("metrics server on %s: %v", *metricsAddr, err)
			}
		}()
		logger.Infof("serving /metrics on %s", *metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target, err := i10target.Serve(ctx, params, &i10target.Options{Logger: logger})
	if err != nil {
		logger.Errorf("starting target: %v", err)
		os.Exit(1)
	}

	logger.Infof("i10 target serving %d port(s), namespace size %s", len(cfg.Ports), *sizeStr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Infof("shutting down")
	if err := target.Stop(); err != nil {
		logger.Errorf("shutdown: %v", err)
		os.Exit(1)
	}
}

// parseSize parses a human size like "64M" or "1G" into bytes.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	suffix := s[len(s)-1]
	numPart := s
	switch suffix {
	case 'K', 'k':
		mult = 1 << 10
		numPart = s[:len(s)-1]
	case 'M', 'm':
		mult = 1 << 20
		numPart = s[:len(s)-1]
	case 'G', 'g':
		mult = 1 << 30
		numPart = s[:len(s)-1]
	}
	var n int64
	if _, err := fmt.Sscanf(numPart, "%d", &n); err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return n * mult, nil
}
