// Command get4for6 runs the translation daemon: it loads a YAML
// configuration file named by the program's single positional argument,
// builds the address-mapping engine, and starts the DNS, XAX, and SAQ
// listeners until a termination signal arrives. Grounded on
// original_source/src/get4for6/Main.py for the startup sequence and on
// AdGuardHome's main.go for the Go entrypoint shape: a thin main package
// that does all its real work by delegating into internal packages.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/log"

	"github.com/vitlabuda/get4for6-go/internal/addrmap"
	"github.com/vitlabuda/get4for6-go/internal/applog"
	"github.com/vitlabuda/get4for6-go/internal/config"
	"github.com/vitlabuda/get4for6-go/internal/dnsproto"
	"github.com/vitlabuda/get4for6-go/internal/printmap"
	"github.com/vitlabuda/get4for6-go/internal/saq"
	"github.com/vitlabuda/get4for6-go/internal/xax"
	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

const (
	programVersion = "1.0.0"

	crashMessageBanner = "! ERROR:"
	crashExitCode      = 1
)

// terminationSignals triggers graceful shutdown; printMapSignals causes a
// dump of every current assignment to the log (spec §6). The two sets are
// disjoint, mirroring Get4For6Constants.TERMINATION_SIGNALS /
// PRINT_MAP_SIGNALS.
var (
	terminationSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}
	printMapSignals    = []os.Signal{syscall.SIGUSR1, syscall.SIGHUP}
)

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	xlaterr.SetCrashHandler(func(f *xlaterr.Fault) {
		crash(f)
		os.Exit(crashExitCode)
	})
	defer xlaterr.Recover()

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config-file>\n", os.Args[0])
		return crashExitCode
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		crash(xlaterr.NewFault("loading configuration: %s", err))
		return crashExitCode
	}

	writer, err := applog.Configure("", facilitiesFromConfig(cfg))
	if err != nil {
		crash(xlaterr.NewFault("configuring logging: %s", err))
		return crashExitCode
	}
	go writer.Run()
	defer writer.Stop()

	log.Info("Get4For6 / v%s", programVersion)
	log.Debug("PID: %d", os.Getpid())

	clientMapper := addrmap.NewClientMapper(cfg.ClientAllowedSubnets, cfg.MapClientAddrsInto)
	substituteMapper := buildSubstituteMapper(cfg)

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, terminationSignals...)

	printMap := make(chan os.Signal, 1)
	signal.Notify(printMap, printMapSignals...)

	servers, err := startServers(cfg, clientMapper, substituteMapper)
	if err != nil {
		crash(xlaterr.NewFault("starting servers: %s", err))
		return crashExitCode
	}
	defer servers.stop()

	runPrintMapLoop(printMap, substituteMapper)

	<-terminate
	log.Info("Get4For6 will now terminate.")

	return 0
}

func facilitiesFromConfig(cfg *config.Config) []applog.Facility {
	out := make([]applog.Facility, 0, len(cfg.PrintDebugMessagesFrom))
	for _, f := range cfg.PrintDebugMessagesFrom {
		out = append(out, applog.Facility(f))
	}
	return out
}

func buildSubstituteMapper(cfg *config.Config) *addrmap.SubstituteMapper {
	assignments := make([]addrmap.StaticAssignment, 0, len(cfg.StaticSubstituteAddrAssignments))
	for _, a := range cfg.StaticSubstituteAddrAssignments {
		assignments = append(assignments, addrmap.StaticAssignment{V4: a.IPv4, V6: a.IPv6})
	}

	var dynamicOptions *addrmap.DynamicOptions
	if cfg.DynamicSubstituteAddrAssigning != nil {
		dynamicOptions = &addrmap.DynamicOptions{
			MinLifetimeAfterLastHit: cfg.DynamicSubstituteAddrAssigning.MinLifetimeAfterLastHit,
		}
	}

	return addrmap.NewSubstituteMapper(cfg.ClientAllowedSubnets, cfg.SubstituteSubnets, assignments, dynamicOptions)
}

// runningServers holds every listener started this run, so a single defer
// can tear all of them down, in the same order they were started.
type runningServers struct {
	dns *dnsproto.Server
	xax *xax.Server
	saq *saq.Server
}

func (s *runningServers) stop() {
	if s.dns != nil {
		s.dns.Stop()
	}
	if s.xax != nil {
		s.xax.Stop()
	}
	if s.saq != nil {
		s.saq.Stop()
	}
}

func startServers(cfg *config.Config, clientMapper *addrmap.ClientMapper, substituteMapper *addrmap.SubstituteMapper) (*runningServers, error) {
	dnsServer := &dnsproto.Server{
		Resolver:   buildResolver(cfg, clientMapper, substituteMapper),
		Endpoints:  toDNSEndpoints(cfg.DNSListenOn),
		MaxQueries: cfg.DNSMaxSimultaneousQueries,
		TCPTimeout: cfg.DNSTCPCommunicationWithClientTimeout,
	}
	if err := dnsServer.Start(); err != nil {
		return nil, fmt.Errorf("dns: %w", err)
	}

	xaxServer := &xax.Server{
		Handler:        &xax.Handler{ClientMapper: clientMapper, SubstituteMapper: substituteMapper},
		UnixPaths:      cfg.XAXListenOnUnix,
		TCPEndpoints:   toXAXEndpoints(cfg.XAXListenOnTCP),
		MaxConnections: cfg.XAXMaxSimultaneousConnections,
	}
	if err := xaxServer.Start(); err != nil {
		dnsServer.Stop()
		return nil, fmt.Errorf("xax: %w", err)
	}

	saqServer := &saq.Server{
		Handler:      &saq.Handler{SubstituteMapper: substituteMapper},
		ClientMapper: clientMapper,
		BinaryEPs:    toSAQEndpoints(cfg.SAQListenOnBinary),
		PlaintextEPs: toSAQEndpoints(cfg.SAQListenOnPlaintext),
	}
	if err := saqServer.Start(); err != nil {
		dnsServer.Stop()
		xaxServer.Stop()
		return nil, fmt.Errorf("saq: %w", err)
	}

	return &runningServers{dns: dnsServer, xax: xaxServer, saq: saqServer}, nil
}

func buildResolver(cfg *config.Config, clientMapper *addrmap.ClientMapper, substituteMapper *addrmap.SubstituteMapper) *dnsproto.Resolver {
	r := &dnsproto.Resolver{
		ClientMapper:      clientMapper,
		SubstituteMapper:  substituteMapper,
		Upstreams:         toDNSEndpoints(cfg.UpstreamServers),
		UpstreamQueryTimeout: cfg.UpstreamQueryTimeout,
		MaxNewlyAssignedSubstituteAddrsPerResponse: cfg.MaxNewlyAssignedSubstituteAddrsPerResponse,
	}

	if cfg.AuxiliaryNames != nil {
		r.Auxiliary = &dnsproto.AuxiliaryConfig{
			Domain:     cfg.AuxiliaryNames.Domain,
			UseForRDNS: cfg.AuxiliaryNames.UseForRDNS,
			ZoneNSIPs:  cfg.AuxiliaryNames.ZoneNSIPs,
		}
	}

	return r
}

func toDNSEndpoints(eps []config.Endpoint) []dnsproto.Endpoint {
	out := make([]dnsproto.Endpoint, 0, len(eps))
	for _, e := range eps {
		out = append(out, dnsproto.Endpoint{Host: e.Host, Port: e.Port})
	}
	return out
}

func toXAXEndpoints(eps []config.Endpoint) []xax.Endpoint {
	out := make([]xax.Endpoint, 0, len(eps))
	for _, e := range eps {
		out = append(out, xax.Endpoint{Host: e.Host, Port: e.Port})
	}
	return out
}

func toSAQEndpoints(eps []config.Endpoint) []saq.Endpoint {
	out := make([]saq.Endpoint, 0, len(eps))
	for _, e := range eps {
		out = append(out, saq.Endpoint{Host: e.Host, Port: e.Port})
	}
	return out
}

// runPrintMapLoop spawns the background goroutine that answers the
// print-map signal set for the lifetime of the process, mirroring
// _PrintMapTask.run's "wait, clear, dump, repeat" loop.
func runPrintMapLoop(printMap <-chan os.Signal, substituteMapper *addrmap.SubstituteMapper) {
	go func() {
		for range printMap {
			printmap.Dump(substituteMapper)
		}
	}()
}

func crash(f *xlaterr.Fault) {
	fmt.Fprintln(os.Stderr, crashMessageBanner, f.Error())
	// Give the log writer goroutine, if already running, a brief chance to
	// flush before the process exits.
	time.Sleep(10 * time.Millisecond)
}
