package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xplshn/vmtranslator/pkg/cli"
)

type Feature int

const (
	FeatFusion Feature = iota
	FeatAfterPushCompare
	FeatDeadCode
	FeatAddrCleanup
	FeatBootstrap
	FeatZeroIndex
	FeatCount
)

type Warning int

const (
	WarnUnreachableCode Warning = iota
	WarnUnusedFunction
	WarnOutsideFunction
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

const (
	BackendDirect = "direct"
	BackendShared = "shared"
)

type Config struct {
	Features      map[Feature]Info
	Warnings      map[Warning]Info
	FeatureMap    map[string]Feature
	WarningMap    map[string]Warning
	Level         int
	BackendName   string
	EntryFunction string
	StackBase     int
}

func NewConfig() *Config {
	cfg := &Config{
		FeatureMap:    make(map[string]Feature),
		WarningMap:    make(map[string]Warning),
		Level:         2,
		BackendName:   BackendShared,
		EntryFunction: "Sys.init",
		StackBase:     256,
	}

	features := map[Feature]Info{
		FeatFusion:           {"fusion", true, "Fuse push with the following operator, pop or branch."},
		FeatAfterPushCompare: {"after-push-compare", true, "Use the after-push comparison routines of the shared library."},
		FeatDeadCode:         {"dead-code", true, "Drop basic blocks unreachable from the program entry."},
		FeatAddrCleanup:      {"addr-cleanup", true, "Remove redundant A-register loads inside a basic block."},
		FeatBootstrap:        {"bootstrap", true, "Emit stack initialisation and the entry call in directory mode."},
		FeatZeroIndex:        {"zero-index", true, "Address index 0 of a segment through its base register directly."},
	}

	warnings := map[Warning]Info{
		WarnUnreachableCode: {"unreachable-code", true, "Warn about labels removed as unreachable."},
		WarnUnusedFunction:  {"unused-function", true, "Warn about functions that are never called."},
		WarnOutsideFunction: {"outside-function", true, "Warn about code before the first function in directory mode."},
		WarnExtra:           {"extra", false, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// Optimize reports whether the assembly optimizer runs at all.
func (c *Config) Optimize() bool {
	return c.IsFeatureEnabled(FeatDeadCode) || c.IsFeatureEnabled(FeatAddrCleanup)
}

// ApplyLevel selects a preset. Explicit -F flags applied afterwards override it.
func (c *Config) ApplyLevel(level int) error {
	type levelSettings struct {
		backend string
		on      bool
	}
	presets := map[int]levelSettings{
		0: {BackendDirect, false},
		1: {BackendDirect, true},
		2: {BackendShared, true},
	}
	s, ok := presets[level]
	if !ok {
		return fmt.Errorf("unsupported optimisation level '%d'. Supported: 0, 1, 2", level)
	}
	c.Level, c.BackendName = level, s.backend
	for _, ft := range []Feature{FeatFusion, FeatDeadCode, FeatAddrCleanup, FeatZeroIndex} {
		c.SetFeature(ft, s.on)
	}
	c.SetFeature(FeatAfterPushCompare, s.backend == BackendShared)
	return nil
}

// SetBackend overrides the preset's backend. After-push comparisons only
// exist in the shared library, so that feature follows the backend.
func (c *Config) SetBackend(name string) error {
	switch name {
	case BackendDirect, BackendShared:
		c.BackendName = name
		c.SetFeature(FeatAfterPushCompare, name == BackendShared)
		return nil
	}
	return fmt.Errorf("unsupported backend '%s'. Supported: '%s', '%s'", name, BackendDirect, BackendShared)
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	isWarning := true
	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
	case strings.HasPrefix(trimmed, "F"):
		name, isWarning = strings.TrimPrefix(trimmed, "F"), false
	default:
		name = trimmed
	}
	if isNo {
		name = strings.TrimPrefix(name, "no-")
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
	}
}

// ProcessFlags applies -W/-F style flags in order, -Wall first.
func (c *Config) ProcessFlags(flags ...string) {
	for _, f := range flags {
		if f == "-Wall" || f == "-Wno-all" {
			c.applyFlag(f)
		}
	}
	for _, f := range flags {
		if f != "-Wall" && f != "-Wno-all" {
			c.applyFlag(f)
		}
	}
}

// SetupFlagGroups registers the -W and -F groups on fs. The returned entries
// are indexed by Warning and Feature respectively.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features []cli.FlagGroupEntry) {
	warnings = make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		warnings[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description,
			Enabled: new(bool), Disabled: new(bool), Default: info.Enabled,
		}
	}
	features = make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		features[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description,
			Enabled: new(bool), Disabled: new(bool), Default: info.Enabled,
		}
	}
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning", "Available Warnings:", warnings)
	fs.AddFlagGroup("Feature Flags", "Enable or disable specific code generation features", "feature", "Available Features:", features)
	return warnings, features
}

// ApplyFlagGroups copies explicit -W/-F choices made on the command line.
func (c *Config) ApplyFlagGroups(warnings, features []cli.FlagGroupEntry) {
	for i, entry := range warnings {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetWarning(Warning(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, entry := range features {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetFeature(Feature(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}

// EnabledFeatures lists the names of enabled features, sorted.
func (c *Config) EnabledFeatures() []string {
	var names []string
	for _, info := range c.Features {
		if info.Enabled {
			names = append(names, info.Name)
		}
	}
	sort.Strings(names)
	return names
}
