package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	ResearchChanged bool
	NewResearch     ResearchConfig

	ModelsChanged bool
	NewLLM        LLMConfig

	SchedulerChanged bool
	NewScheduler     SchedulerConfig

	SearchChanged bool
	NewSearch     SearchConfig

	// Non-reloadable fields that changed (log warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable field changed.
func (d *ConfigDiff) HasChanges() bool {
	return d.ResearchChanged ||
		d.ModelsChanged ||
		d.SchedulerChanged ||
		d.SearchChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	// Research limits
	if !reflect.DeepEqual(old.Research, new.Research) {
		d.ResearchChanged = true
		d.NewResearch = new.Research
	}

	// Model roles and credentials
	if !reflect.DeepEqual(old.LLM, new.LLM) {
		d.ModelsChanged = true
		d.NewLLM = new.LLM
	}

	// Scheduler
	if old.Scheduler.PollInterval != new.Scheduler.PollInterval {
		d.SchedulerChanged = true
		d.NewScheduler = new.Scheduler
	}

	// Search provider
	if !reflect.DeepEqual(old.Search, new.Search) {
		d.SearchChanged = true
		d.NewSearch = new.Search
	}

	// Non-reloadable warnings
	if old.Web.Port != new.Web.Port {
		d.NonReloadable = append(d.NonReloadable, "web.port")
	}
	if old.NATS.Port != new.NATS.Port {
		d.NonReloadable = append(d.NonReloadable, "nats.port")
	}
	if old.NATS.DataDir != new.NATS.DataDir {
		d.NonReloadable = append(d.NonReloadable, "nats.data_dir")
	}
	if old.Store.Path != new.Store.Path {
		d.NonReloadable = append(d.NonReloadable, "store.path")
	}
	if old.JQuants.RefreshToken != new.JQuants.RefreshToken {
		d.NonReloadable = append(d.NonReloadable, "jquants.refresh_token")
	}
	if old.Vault.Passphrase != new.Vault.Passphrase {
		d.NonReloadable = append(d.NonReloadable, "vault.passphrase")
	}

	return d
}
