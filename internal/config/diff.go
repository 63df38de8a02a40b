package config

import (
	"sort"
	"strings"

	logx "dyntimer/pkg/logx"
)

// Change summarizes what a reload altered.
type Change struct {
	Sections []string
	// Jobs lists job names that were added, removed or modified.
	Jobs []string
	// RestartOnly lists sections that only take effect after a restart.
	RestartOnly []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// Fields renders c for structured logging.
func (c Change) Fields() []logx.Field {
	fields := []logx.Field{logx.String("sections", strings.Join(c.Sections, ","))}
	if len(c.Jobs) > 0 {
		fields = append(fields, logx.String("jobs", strings.Join(c.Jobs, ",")))
	}
	if len(c.RestartOnly) > 0 {
		fields = append(fields, logx.String("restart_required", strings.Join(c.RestartOnly, ",")))
	}
	return fields
}

// Diff compares two configs section by section.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change

	if oldCfg.Logging != newCfg.Logging {
		c.Sections = append(c.Sections, "logging")
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		c.Sections = append(c.Sections, "scheduler")
	}
	if derefStorage(oldCfg.Storage) != derefStorage(newCfg.Storage) {
		c.Sections = append(c.Sections, "storage")
		c.RestartOnly = append(c.RestartOnly, "storage")
	}
	if oldCfg.Systemd != newCfg.Systemd {
		c.Sections = append(c.Sections, "systemd")
		c.RestartOnly = append(c.RestartOnly, "systemd")
	}
	if jobs := diffJobs(oldCfg.Jobs, newCfg.Jobs); len(jobs) > 0 {
		c.Sections = append(c.Sections, "jobs")
		c.Jobs = jobs
	}
	return c
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func diffJobs(oldJ, newJ []JobConfig) []string {
	index := func(js []JobConfig) map[string]JobConfig {
		m := make(map[string]JobConfig, len(js))
		for _, j := range js {
			m[strings.TrimSpace(j.Name)] = j
		}
		return m
	}
	om, nm := index(oldJ), index(newJ)

	var out []string
	for name, nj := range nm {
		if oj, ok := om[name]; !ok || oj != nj {
			out = append(out, name)
		}
	}
	for name := range om {
		if _, ok := nm[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
