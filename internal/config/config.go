// Package config loads and validates the YAML configuration file named by
// the program's single positional CLI argument. It mirrors the section
// layout the Python ConfigurationLoader's *Model classes validate
// (original_source/src/get4for6/config/loader), using gopkg.in/yaml.v3 the
// way internal/home unmarshals AdGuard Home's own config file.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitlabuda/get4for6-go/internal/addrmap"
)

// Endpoint is a host/port pair naming a listener or an upstream server.
type Endpoint struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// StaticAssignment is one seeded v4<->v6 pair from
// static_substitute_addr_assignments.
type StaticAssignment struct {
	IPv4 netip.Addr `yaml:"-"`
	IPv6 netip.Addr `yaml:"-"`
}

// rawStaticAssignment is the YAML wire shape; IPv4/IPv6 are strings there.
type rawStaticAssignment struct {
	IPv4 string `yaml:"ipv4"`
	IPv6 string `yaml:"ipv6"`
}

// rawFile is the direct unmarshaling target, kept separate from [Config] so
// that string-typed fields (CIDRs, addresses) can be parsed and validated
// into their strict net/netip forms in one place ([Load]).
type rawFile struct {
	General struct {
		PrintDebugMessagesFrom []string `yaml:"print_debug_messages_from"`
	} `yaml:"general"`

	Translation struct {
		ClientAllowedSubnets            []string               `yaml:"client_allowed_subnets"`
		MapClientAddrsInto              string                 `yaml:"map_client_addrs_into"`
		SubstituteSubnets               []string               `yaml:"substitute_subnets"`
		StaticSubstituteAddrAssignments []rawStaticAssignment  `yaml:"static_substitute_addr_assignments"`
		DynamicSubstituteAddrAssigning  *rawDynamicAssigning   `yaml:"dynamic_substitute_addr_assigning"`
	} `yaml:"translation"`

	DNS struct {
		ListenOn                                     []Endpoint      `yaml:"listen_on"`
		MaxSimultaneousQueries                       int             `yaml:"max_simultaneous_queries"`
		TCPCommunicationWithClientTimeout            float64         `yaml:"tcp_communication_with_client_timeout"`
		UpstreamServers                               []Endpoint      `yaml:"upstream_servers"`
		UpstreamQueryTimeout                          float64         `yaml:"upstream_query_timeout"`
		MaxNewlyAssignedSubstituteAddrsPerResponse    int             `yaml:"max_newly_assigned_substitute_addrs_per_response"`
		AuxiliaryNames                                *rawAuxiliary   `yaml:"auxiliary_names"`
	} `yaml:"dns"`

	XAX struct {
		ListenOnUnix              []string `yaml:"listen_on_unix"`
		ListenOnTCP               []Endpoint `yaml:"listen_on_tcp"`
		MaxSimultaneousConnections int      `yaml:"max_simultaneous_connections"`
	} `yaml:"xax"`

	SAQ struct {
		ListenOnBinary    []Endpoint `yaml:"listen_on_binary"`
		ListenOnPlaintext []Endpoint `yaml:"listen_on_plaintext"`
	} `yaml:"saq"`
}

type rawDynamicAssigning struct {
	Enabled                bool    `yaml:"enabled"`
	MinLifetimeAfterLastHit float64 `yaml:"min_lifetime_after_last_hit"`
}

type rawAuxiliary struct {
	Enabled    bool     `yaml:"enabled"`
	Domain     string   `yaml:"domain"`
	UseForRDNS bool     `yaml:"use_for_rdns"`
	ZoneNSIPs  []string `yaml:"zone_ns_ips"`
}

// DynamicAssigning holds the validated dynamic_substitute_addr_assigning
// section, or is nil if it was disabled.
type DynamicAssigning struct {
	MinLifetimeAfterLastHit time.Duration
}

// AuxiliaryNames holds the validated dns.auxiliary_names section, or is nil
// if it was disabled.
type AuxiliaryNames struct {
	Domain     string
	UseForRDNS bool
	ZoneNSIPs  []netip.Addr
}

// Config is the fully validated, immutable configuration consumed by the
// rest of the program. Every field has already passed the checks spec.md §6
// requires; callers never need to re-validate it.
type Config struct {
	PrintDebugMessagesFrom []string

	ClientAllowedSubnets            []netip.Prefix
	MapClientAddrsInto              netip.Prefix
	SubstituteSubnets                []netip.Prefix
	StaticSubstituteAddrAssignments []StaticAssignment
	DynamicSubstituteAddrAssigning  *DynamicAssigning

	DNSListenOn                                  []Endpoint
	DNSMaxSimultaneousQueries                    int
	DNSTCPCommunicationWithClientTimeout          time.Duration
	UpstreamServers                               []Endpoint
	UpstreamQueryTimeout                          time.Duration
	MaxNewlyAssignedSubstituteAddrsPerResponse    int
	AuxiliaryNames                                *AuxiliaryNames

	XAXListenOnUnix               []string
	XAXListenOnTCP                []Endpoint
	XAXMaxSimultaneousConnections int

	SAQListenOnBinary    []Endpoint
	SAQListenOnPlaintext []Endpoint
}

// Load reads, parses, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return validate(&raw)
}

func validate(raw *rawFile) (*Config, error) {
	cfg := &Config{
		PrintDebugMessagesFrom: raw.General.PrintDebugMessagesFrom,
	}

	clientSubnets, err := parsePrefixList(raw.Translation.ClientAllowedSubnets, 4, true)
	if err != nil {
		return nil, fmt.Errorf("translation.client_allowed_subnets: %w", err)
	}
	cfg.ClientAllowedSubnets = clientSubnets

	clientPrefix, err := netip.ParsePrefix(raw.Translation.MapClientAddrsInto)
	if err != nil {
		return nil, fmt.Errorf("translation.map_client_addrs_into: %w", err)
	}
	if !clientPrefix.Addr().Is6() || clientPrefix.Addr().Is4In6() {
		return nil, fmt.Errorf("translation.map_client_addrs_into: must be an ipv6 prefix")
	}
	if clientPrefix.Bits() != 96 {
		return nil, fmt.Errorf("translation.map_client_addrs_into: must be exactly /96")
	}
	cfg.MapClientAddrsInto = clientPrefix.Masked()

	substituteSubnets, err := parsePrefixList(raw.Translation.SubstituteSubnets, 4, true)
	if err != nil {
		return nil, fmt.Errorf("translation.substitute_subnets: %w", err)
	}
	if overlaps(substituteSubnets, clientSubnets) {
		return nil, fmt.Errorf("translation.substitute_subnets overlaps client_allowed_subnets")
	}
	cfg.SubstituteSubnets = substituteSubnets

	assignments, err := parseStaticAssignments(raw.Translation.StaticSubstituteAddrAssignments, clientPrefix, substituteSubnets)
	if err != nil {
		return nil, fmt.Errorf("translation.static_substitute_addr_assignments: %w", err)
	}
	cfg.StaticSubstituteAddrAssignments = assignments

	if raw.Translation.DynamicSubstituteAddrAssigning != nil && raw.Translation.DynamicSubstituteAddrAssigning.Enabled {
		d := raw.Translation.DynamicSubstituteAddrAssigning
		if d.MinLifetimeAfterLastHit < 0 {
			return nil, fmt.Errorf("translation.dynamic_substitute_addr_assigning.min_lifetime_after_last_hit: must be >= 0")
		}
		cfg.DynamicSubstituteAddrAssigning = &DynamicAssigning{
			MinLifetimeAfterLastHit: secondsToDuration(d.MinLifetimeAfterLastHit),
		}
	}

	// Without dynamic assigning and without any static assignment, the
	// substitute mapper could never produce a single substitute address, so
	// the daemon would start but could never actually translate anything.
	if cfg.DynamicSubstituteAddrAssigning == nil && len(cfg.StaticSubstituteAddrAssignments) == 0 {
		return nil, fmt.Errorf("translation: dynamic_substitute_addr_assigning is disabled and static_substitute_addr_assignments is empty")
	}

	if len(raw.DNS.ListenOn) == 0 {
		return nil, fmt.Errorf("dns.listen_on: must not be empty")
	}
	cfg.DNSListenOn = raw.DNS.ListenOn

	if raw.DNS.MaxSimultaneousQueries <= 0 {
		return nil, fmt.Errorf("dns.max_simultaneous_queries: must be positive")
	}
	cfg.DNSMaxSimultaneousQueries = raw.DNS.MaxSimultaneousQueries

	if raw.DNS.TCPCommunicationWithClientTimeout < 0.05 || raw.DNS.TCPCommunicationWithClientTimeout > 5.0 {
		return nil, fmt.Errorf("dns.tcp_communication_with_client_timeout: must be in [0.05, 5.0]")
	}
	cfg.DNSTCPCommunicationWithClientTimeout = secondsToDuration(raw.DNS.TCPCommunicationWithClientTimeout)

	cfg.UpstreamServers = raw.DNS.UpstreamServers

	if raw.DNS.UpstreamQueryTimeout < 0.1 || raw.DNS.UpstreamQueryTimeout > 10.0 {
		return nil, fmt.Errorf("dns.upstream_query_timeout: must be in [0.1, 10.0]")
	}
	cfg.UpstreamQueryTimeout = secondsToDuration(raw.DNS.UpstreamQueryTimeout)

	if raw.DNS.MaxNewlyAssignedSubstituteAddrsPerResponse <= 0 {
		return nil, fmt.Errorf("dns.max_newly_assigned_substitute_addrs_per_response: must be positive")
	}
	cfg.MaxNewlyAssignedSubstituteAddrsPerResponse = raw.DNS.MaxNewlyAssignedSubstituteAddrsPerResponse

	if raw.DNS.AuxiliaryNames != nil && raw.DNS.AuxiliaryNames.Enabled {
		aux, err := parseAuxiliaryNames(raw.DNS.AuxiliaryNames)
		if err != nil {
			return nil, fmt.Errorf("dns.auxiliary_names: %w", err)
		}
		cfg.AuxiliaryNames = aux
	}

	cfg.XAXListenOnUnix = raw.XAX.ListenOnUnix
	cfg.XAXListenOnTCP = raw.XAX.ListenOnTCP
	if raw.XAX.MaxSimultaneousConnections <= 0 {
		return nil, fmt.Errorf("xax.max_simultaneous_connections: must be positive")
	}
	cfg.XAXMaxSimultaneousConnections = raw.XAX.MaxSimultaneousConnections

	cfg.SAQListenOnBinary = raw.SAQ.ListenOnBinary
	cfg.SAQListenOnPlaintext = raw.SAQ.ListenOnPlaintext

	return cfg, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func parsePrefixList(raw []string, wantFamily int, rejectOverlap bool) ([]netip.Prefix, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("must not be empty")
	}

	seen := make(map[string]bool, len(raw))
	prefixes := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		if wantFamily == 4 && !p.Addr().Is4() {
			return nil, fmt.Errorf("%q: must be an ipv4 prefix", s)
		}

		masked := p.Masked()
		key := masked.String()
		if seen[key] {
			return nil, fmt.Errorf("%q: duplicate subnet", s)
		}
		seen[key] = true

		prefixes = append(prefixes, masked)
	}

	if rejectOverlap {
		for i := 0; i < len(prefixes); i++ {
			for j := i + 1; j < len(prefixes); j++ {
				if prefixes[i].Overlaps(prefixes[j]) {
					return nil, fmt.Errorf("%s and %s overlap", prefixes[i], prefixes[j])
				}
			}
		}
	}

	return prefixes, nil
}

func overlaps(a, b []netip.Prefix) bool {
	for _, pa := range a {
		for _, pb := range b {
			if pa.Overlaps(pb) {
				return true
			}
		}
	}
	return false
}

func parseStaticAssignments(raw []rawStaticAssignment, clientPrefix netip.Prefix, substituteSubnets []netip.Prefix) ([]StaticAssignment, error) {
	out := make([]StaticAssignment, 0, len(raw))
	seenV4 := make(map[netip.Addr]bool, len(raw))
	seenV6 := make(map[netip.Addr]bool, len(raw))

	for _, a := range raw {
		v4, err := netip.ParseAddr(a.IPv4)
		if err != nil || !v4.Is4() {
			return nil, fmt.Errorf("%q: not a valid ipv4 address", a.IPv4)
		}
		if !addrmap.ContainsStrict(v4, substituteSubnets) {
			return nil, fmt.Errorf("%s: not inside any substitute subnet", v4)
		}
		v6, err := netip.ParseAddr(a.IPv6)
		if err != nil || !v6.Is6() || v6.Is4In6() {
			return nil, fmt.Errorf("%q: not a valid ipv6 address", a.IPv6)
		}
		if v6.Zone() != "" {
			return nil, fmt.Errorf("%q: must not carry a scope id", a.IPv6)
		}
		if clientPrefix.Contains(v6) {
			return nil, fmt.Errorf("%q: must not lie within the client prefix", a.IPv6)
		}
		if seenV4[v4] {
			return nil, fmt.Errorf("%s: duplicate ipv4 in static assignments", v4)
		}
		if seenV6[v6] {
			return nil, fmt.Errorf("%s: duplicate ipv6 in static assignments", v6)
		}
		seenV4[v4] = true
		seenV6[v6] = true

		out = append(out, StaticAssignment{IPv4: v4, IPv6: v6})
	}

	return out, nil
}

func parseAuxiliaryNames(raw *rawAuxiliary) (*AuxiliaryNames, error) {
	if raw.Domain == "" {
		return nil, fmt.Errorf("domain: must not be empty")
	}

	ips := make([]netip.Addr, 0, len(raw.ZoneNSIPs))
	seen := make(map[netip.Addr]bool, len(raw.ZoneNSIPs))
	for _, s := range raw.ZoneNSIPs {
		ip, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("zone_ns_ips: %q: %w", s, err)
		}
		if ip.Zone() != "" {
			return nil, fmt.Errorf("zone_ns_ips: %q: must not carry a scope id", s)
		}
		if seen[ip] {
			return nil, fmt.Errorf("zone_ns_ips: %q: duplicate", s)
		}
		seen[ip] = true
		ips = append(ips, ip)
	}

	return &AuxiliaryNames{
		Domain:     raw.Domain,
		UseForRDNS: raw.UseForRDNS,
		ZoneNSIPs:  ips,
	}, nil
}
