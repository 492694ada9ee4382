package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sanguard/sanguard/internal/types"
)

// FileConfig is the on-disk YAML configuration shape for sanguard.
type FileConfig struct {
	Exclude         *[]string `yaml:"exclude"`
	AllowExt        *[]string `yaml:"allow_ext"`
	MaxFiles        *int64    `yaml:"max_files"`
	MaxBytes        *int64    `yaml:"max_bytes"`
	FlatOutput      *bool     `yaml:"flat_output"`
	Overwrite       *bool     `yaml:"overwrite"`
	CopyUnsupported *bool     `yaml:"copy_unsupported"`
	SkipSymlinks    *bool     `yaml:"skip_symlinks"`
	DryRun          *bool     `yaml:"dry_run"`

	ZipMaxMembers                 *int     `yaml:"zip_max_members"`
	ZipMaxMemberUncompressedBytes *int64   `yaml:"zip_max_member_bytes"`
	ZipMaxTotalUncompressedBytes  *int64   `yaml:"zip_max_total_bytes"`
	ZipMaxCompressionRatio        *float64 `yaml:"zip_max_compression_ratio"`

	NestedArchivePolicy *string `yaml:"nested_archive_policy"`
	RiskyPolicy         *string `yaml:"risky_policy"`

	FailOnWarnings *bool   `yaml:"fail_on_warnings"`
	LogLevel       *string `yaml:"log_level"`
}

// LoadFile reads a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadLocal searches for a repo-local config file starting at root.
// It supports .sanguard.yml/.yaml and sanguard.yml/.yaml, dotfile first.
func LoadLocal(root string) (FileConfig, error) {
	var cfg FileConfig
	for _, name := range []string{".sanguard.yml", ".sanguard.yaml", "sanguard.yml", "sanguard.yaml"} {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return cfg, errors.New("no local config")
}

// LoadGlobal loads the global config file from the XDG base directory or
// ~/.config.
func LoadGlobal() (FileConfig, error) {
	var cfg FileConfig
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		return cfg, errors.New("no config dir")
	}
	p := filepath.Join(base, "sanguard", "config.yml")
	if _, err := os.Stat(p); err == nil {
		return LoadFile(p)
	}
	return cfg, errors.New("no global config")
}

// Apply merges a FileConfig's set fields onto opts, overwriting whatever
// was already there. Callers apply global config first, then local config,
// then CLI flags, so the last Apply call wins per §6's precedence rule.
// FailOnWarnings and LogLevel have no SanitizeOptions counterpart and are
// not applied here.
func Apply(opts types.SanitizeOptions, fc FileConfig) types.SanitizeOptions {
	if fc.Exclude != nil {
		opts.ExcludeGlobs = *fc.Exclude
	}
	if fc.AllowExt != nil {
		opts.AllowExts = make(map[string]bool, len(*fc.AllowExt))
		for _, ext := range *fc.AllowExt {
			opts.AllowExts[ext] = true
		}
	}
	if fc.MaxFiles != nil {
		opts.MaxFiles = *fc.MaxFiles
	}
	if fc.MaxBytes != nil {
		opts.MaxBytes = *fc.MaxBytes
	}
	if fc.FlatOutput != nil {
		opts.FlatOutput = *fc.FlatOutput
	}
	if fc.Overwrite != nil {
		opts.Overwrite = *fc.Overwrite
	}
	if fc.CopyUnsupported != nil {
		opts.CopyUnsupported = *fc.CopyUnsupported
	}
	if fc.SkipSymlinks != nil {
		opts.SkipSymlinks = *fc.SkipSymlinks
	}
	if fc.DryRun != nil {
		opts.DryRun = *fc.DryRun
	}
	if fc.ZipMaxMembers != nil {
		opts.ZipMaxMembers = *fc.ZipMaxMembers
	}
	if fc.ZipMaxMemberUncompressedBytes != nil {
		opts.ZipMaxMemberUncompressedBytes = *fc.ZipMaxMemberUncompressedBytes
	}
	if fc.ZipMaxTotalUncompressedBytes != nil {
		opts.ZipMaxTotalUncompressedBytes = *fc.ZipMaxTotalUncompressedBytes
	}
	if fc.ZipMaxCompressionRatio != nil {
		opts.ZipMaxCompressionRatio = *fc.ZipMaxCompressionRatio
	}
	if fc.NestedArchivePolicy != nil {
		opts.NestedArchivePolicy = types.NestedArchivePolicy(*fc.NestedArchivePolicy)
	}
	if fc.RiskyPolicy != nil {
		opts.RiskyPolicy = types.RiskyPolicy(*fc.RiskyPolicy)
	}
	return opts
}
