package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/dd0wney/flowpatch/pkg/logging"
	"github.com/dd0wney/flowpatch/pkg/patch"
	"github.com/dd0wney/flowpatch/pkg/validation"
	"github.com/dd0wney/flowpatch/pkg/verify"
)

// Config holds settings that may come from flowpatch.yaml, FLOWPATCH_*
// environment variables or flags.
type Config struct {
	LogLevel        string
	ReportFormat    string
	Backup          bool
	BackupKeep      int
	Strict          bool
	AbortOnNotFound bool
	PruneInbound    bool
	FailOnVerify    bool
	MetricsFile     string
}

// configKeys are the viper keys; each binds to the flag of the same name
// with dashes, when the running command has one.
var configKeys = []string{
	"log_level",
	"report_format",
	"backup",
	"backup_keep",
	"strict",
	"abort_on_not_found",
	"prune_inbound",
	"fail_on_verify",
	"metrics_file",
}

// flagName maps a config key to its flag. report_format is --report.
func flagName(key string) string {
	if key == "report_format" {
		return "report"
	}
	return strings.ReplaceAll(key, "_", "-")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("report_format", string(verify.FormatText))
	v.SetDefault("backup_keep", 0)
}

func loadConfig(v *viper.Viper) Config {
	return Config{
		LogLevel:        v.GetString("log_level"),
		ReportFormat:    strings.ToLower(v.GetString("report_format")),
		Backup:          v.GetBool("backup"),
		BackupKeep:      v.GetInt("backup_keep"),
		Strict:          v.GetBool("strict"),
		AbortOnNotFound: v.GetBool("abort_on_not_found"),
		PruneInbound:    v.GetBool("prune_inbound"),
		FailOnVerify:    v.GetBool("fail_on_verify"),
		MetricsFile:     v.GetString("metrics_file"),
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	return validation.NewConfigValidator("config").
		Custom("log_level", func() error {
			if !logging.ValidLevel(c.LogLevel) {
				return fmt.Errorf("unknown level %q", c.LogLevel)
			}
			return nil
		}).
		OneOf("report_format", c.ReportFormat, []string{string(verify.FormatText), string(verify.FormatJSON)}).
		RangeInt("backup_keep", c.BackupKeep, 0, 1000).
		When(c.MetricsFile != "", func(cv *validation.ConfigValidator) {
			cv.Custom("metrics_file", func() error {
				dir := filepath.Dir(c.MetricsFile)
				info, err := os.Stat(dir)
				if err != nil {
					return fmt.Errorf("directory %s: %w", dir, err)
				}
				if !info.IsDir() {
					return fmt.Errorf("%s is not a directory", dir)
				}
				return nil
			})
		}).
		Validate()
}

func (c Config) policy() patch.Policy {
	return patch.Policy{
		Strict:          c.Strict,
		AbortOnNotFound: c.AbortOnNotFound,
		PruneInbound:    c.PruneInbound,
	}
}

func (c Config) format() verify.Format {
	return verify.Format(c.ReportFormat)
}
