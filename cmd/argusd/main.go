// Package main is the argusd daemon: the control-plane process that hosts
// the Supervisor, the Control Surface and the metrics endpoint (SPEC_FULL
// §4.10). Bootstrap grounded on cmd/authn/main.go's flag/env/signal
// handling pattern.
/*
 * Copyright (c) 2024, argussight authors.
 */
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/walesch-yan/argussight/api"
	"github.com/walesch-yan/argussight/bus"
	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/cmn/nlog"
	"github.com/walesch-yan/argussight/config"
	"github.com/walesch-yan/argussight/hk"
	"github.com/walesch-yan/argussight/metrics"
	"github.com/walesch-yan/argussight/supervisor"
	"github.com/walesch-yan/argussight/workers"
	"github.com/walesch-yan/argussight/workers/types"
)

// confPathEnv is the environment-variable fallback for -config, mirroring
// cmd/authn/main.go's env.AuthN.ConfDir pattern.
const confPathEnv = "ARGUSD_CONF_FILE"

const defaultPortRangeSize = 64

var (
	host       string
	port       int
	channel    string
	configPath string
	listenAddr string
	minWait    time.Duration
	portBase   int
	portCount  int
)

func init() {
	flag.StringVar(&host, "host", "localhost", "frame bus host")
	flag.IntVar(&port, "port", 6379, "frame bus port")
	flag.StringVar(&channel, "channel", "frames", "frame bus channel name")
	flag.StringVar(&configPath, "config", "", "workers configuration file")
	flag.StringVar(&listenAddr, "listen", ":8080", "control surface listen address")
	flag.DurationVar(&minWait, "min-max-wait", 10*time.Millisecond, "smallest max_wait_time a caller may request")
	flag.IntVar(&portBase, "stream-port-base", 9100, "first port in the streaming-worker port pool")
	flag.IntVar(&portCount, "stream-port-count", defaultPortRangeSize, "size of the streaming-worker port pool")
}

func main() {
	if len(os.Args) == 2 && strings.Contains(os.Args[1], "help") {
		flag.PrintDefaults()
		os.Exit(0)
	}
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv(confPathEnv)
	}
	if configPath == "" {
		cos.ExitLogf("missing workers configuration file (use '-config' or set %s)", confPathEnv)
	}

	wcfg, err := config.LoadWorkers(configPath)
	if err != nil {
		cos.ExitLogf("failed to load workers configuration from %q: %v", configPath, err)
	}
	if wcfg.Bus != nil {
		host, port, channel = wcfg.Bus.Host, wcfg.Bus.Port, wcfg.Bus.Channel
	}

	catalog := types.Catalog()
	applyAccessibility(catalog, wcfg.WorkerClasses)
	if err := validateConfiguredProcesses(catalog, wcfg.Processes); err != nil {
		cos.ExitLogf("invalid workers configuration: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	busClient := bus.New(host, port, channel)
	defer busClient.Close()

	ports := make([]int, portCount)
	for i := range ports {
		ports[i] = portBase + i
	}

	sup := supervisor.New(catalog, wcfg.Processes, ports, busClient, m, "/v1/streams/")
	if err := sup.Bootstrap(); err != nil {
		cos.ExitLogf("failed to bootstrap configured workers: %v", err)
	}
	installSignalHandler(sup)

	hk.Reg("supervisor"+hk.NameSuffix, func() time.Duration {
		sup.ReconcileProtected()
		return hk.DelOldIval
	}, hk.DelOldIval)

	api.MinMaxWait = minWait
	mux := http.NewServeMux()
	mux.Handle("/", api.NewServer(sup))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go hk.DefaultHK.Run()
	go logFlushLoop()

	nlog.Infof("argusd listening on %s, frame bus %s:%d/%s", listenAddr, host, port, channel)
	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		cos.ExitLogf("control surface exited: %v", err)
	}
}

// applyAccessibility overlays the on-disk accessible/restricted flags onto
// the compiled-in catalog (SPEC_FULL §4.8): a type not mentioned in the
// file keeps its compiled-in default.
func applyAccessibility(catalog map[string]workers.TypeDescriptor, classes map[string]config.WorkerClass) {
	for typ, class := range classes {
		desc, ok := catalog[typ]
		if !ok {
			continue
		}
		desc.Accessible = class.Accessible
		catalog[typ] = desc
	}
}

func validateConfiguredProcesses(catalog map[string]workers.TypeDescriptor, processes []config.Process) error {
	for _, p := range processes {
		if _, ok := catalog[p.Type]; !ok {
			return fmt.Errorf("process %q references unknown worker type %q", p.Name, p.Type)
		}
	}
	return nil
}

func logFlushLoop() {
	for {
		time.Sleep(time.Minute)
		nlog.Flush()
	}
}

// installSignalHandler terminates every live worker before the process
// exits on SIGINT/SIGTERM (SPEC_FULL §4.10), so a worker's Close() gets a
// chance to flush (the saver type's pending disk writes, in particular).
func installSignalHandler(sup *supervisor.Supervisor) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		nlog.Infof("argusd: received shutdown signal, terminating live workers")
		snap := sup.GetProcesses()
		names := make([]string, 0, len(snap.Running))
		for name := range snap.Running {
			names = append(names, name)
		}
		if err := sup.TerminateAll(names, true); err != nil {
			nlog.Errorf("argusd: error terminating workers on shutdown: %v", err)
		}
		nlog.Flush(true)
		os.Exit(0)
	}()
}
