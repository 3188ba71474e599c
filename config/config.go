// Package config loads the i10 target's port and backend configuration
// from an INI file, the way samsamfire-gocanopen's EDS parser loads a
// CANopen object dictionary: one section per logical unit (there, an
// object index; here, a listen address), read with gopkg.in/ini.v1.
package config

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"
)

// PortConfig is one [port "..."] section: a bind address and the
// per-port tunables spec.md §6 exposes.
type PortConfig struct {
	Name           string
	Address        string
	QueueDepth     int
	InlineDataSize int
	NumCPUs        int
	UseIOURing     bool
}

// Config is the whole loaded file: global defaults plus every
// configured port.
type Config struct {
	LogLevel string
	Ports    []PortConfig
}

const defaultQueueDepth = 128
const defaultInlineDataSize = 4 * 4096

// Load parses path as an INI file. Each [port "name"] section becomes
// one PortConfig; a [global] section (optional) sets process-wide
// defaults such as log_level.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	cfg := &Config{LogLevel: "info"}

	if f.HasSection("global") {
		g := f.Section("global")
		if v := g.Key("log_level").String(); v != "" {
			cfg.LogLevel = v
		}
	}

	for _, section := range f.Sections() {
		name := section.Name()
		portName, ok := parsePortSection(name)
		if !ok {
			continue
		}

		addr := section.Key("address").String()
		if addr == "" {
			return nil, fmt.Errorf("config: section %q missing address", name)
		}

		depth := defaultQueueDepth
		if v := section.Key("queue_depth").String(); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("config: section %q queue_depth: %w", name, err)
			}
			depth = n
		}

		inlineSize := defaultInlineDataSize
		if v := section.Key("inline_data_size").String(); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("config: section %q inline_data_size: %w", name, err)
			}
			inlineSize = n
		}

		cpus := 1
		if v := section.Key("num_cpus").String(); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("config: section %q num_cpus: %w", name, err)
			}
			cpus = n
		}

		cfg.Ports = append(cfg.Ports, PortConfig{
			Name:           portName,
			Address:        addr,
			QueueDepth:     depth,
			InlineDataSize: inlineSize,
			NumCPUs:        cpus,
			UseIOURing:     section.Key("use_io_uring").MustBool(false),
		})
	}

	if len(cfg.Ports) == 0 {
		return nil, fmt.Errorf("config: %s defines no [port] sections", path)
	}
	return cfg, nil
}

// parsePortSection matches the `port "name"` section-name convention
// ini.v1 uses for sections with a quoted argument.
func parsePortSection(name string) (string, bool) {
	const prefix = `port "`
	if len(name) < len(prefix)+1 || name[:len(prefix)] != prefix || name[len(name)-1] != '"' {
		return "", false
	}
	return name[len(prefix) : len(name)-1], true
}
