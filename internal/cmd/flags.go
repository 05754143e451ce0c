package cmd

import (
	"github.com/nielsmadan/agentic-coding/internal/config"
	"github.com/spf13/pflag"
)

// Only flags the user actually set override the config file

func changedString(flags *pflag.FlagSet, name string) *string {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetString(name)
	return &v
}

func changedInt(flags *pflag.FlagSet, name string) *int {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetInt(name)
	return &v
}

func changedBool(flags *pflag.FlagSet, name string) *bool {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetBool(name)
	return &v
}

// scanFlagOverrides collects the scan flags set on the command line
func scanFlagOverrides(flags *pflag.FlagSet) config.FlagOverrides {
	return config.FlagOverrides{
		Days:        changedInt(flags, "days"),
		Project:     changedString(flags, "project"),
		ProjectsDir: changedString(flags, "projects-dir"),
		Output:      changedString(flags, "output"),
		Format:      changedString(flags, "format"),
		Workers:     changedInt(flags, "workers"),
		LogLevel:    changedString(flags, "log-level"),
		LogDir:      changedString(flags, "log-dir"),
		History:     changedBool(flags, "history"),
	}
}
