// Package config provides configuration loading and management for scintiref.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"scintiref/internal/models"
	"scintiref/pkg/canonical"
	"scintiref/pkg/dicomindex"
	"scintiref/pkg/prepare"
	"scintiref/pkg/quantify"
	"scintiref/pkg/reconcile"
	"scintiref/pkg/table"
	"scintiref/pkg/volumeindex"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Table controls the flat-file format of every emitted table
	Table struct {
		// Delimiter is the field separator; `\t` selects tab
		Delimiter string `yaml:"delimiter"`
	} `yaml:"table"`

	// DICOM series index parameters
	DicomIndex struct {
		// Extensions are the lower-cased file extensions scanned ("" = no extension)
		Extensions []string `yaml:"extensions"`

		// VendorExtensions are additional vendor-specific extensions
		VendorExtensions []string `yaml:"vendor_extensions"`

		// Subfolders are scanned below the base directory when they exist
		Subfolders []string `yaml:"subfolders"`
	} `yaml:"dicom_index"`

	// NIfTI volume index parameters
	NiftiIndex struct {
		// Pattern is the glob used to enumerate volumes
		Pattern string `yaml:"pattern"`

		// AllowSeparator accepts one of `_`, `-`, `T` between date and time
		AllowSeparator bool `yaml:"allow_separator"`
	} `yaml:"nifti_index"`

	// Reconciliation parameters
	Reconcile struct {
		DateColumns      []string `yaml:"date_columns"`
		TimeColumns      []string `yaml:"time_columns"`
		KeepColumns      []string `yaml:"keep_columns"`
		UnmatchedPreview int      `yaml:"unmatched_preview"`
	} `yaml:"reconcile"`

	// Quantification parameters
	Quantify struct {
		// Channel selects the frame of multi-frame images
		Channel int `yaml:"channel"`

		// Slice selects the depth slice; unset uses the middle slice
		Slice *int `yaml:"slice"`

		// ChannelAxisMaxSize is the largest trailing axis read as channels
		ChannelAxisMaxSize int `yaml:"channel_axis_max_size"`

		ImageSuffix string              `yaml:"image_suffix"`
		LabelExt    string              `yaml:"label_ext"`
		Labels      models.LabelMapping `yaml:"labels"`

		// IncludeCounts adds per-region pixel counts to the output
		IncludeCounts bool `yaml:"include_counts"`

		// OnCaseError is abort or skip
		OnCaseError string `yaml:"on_case_error"`
	} `yaml:"quantify"`

	// Segmentation input builder parameters
	Prepare struct {
		// View is ant or post
		View string `yaml:"view"`

		// PosteriorIndex is the frame of (H, W, 2) arrays holding the posterior view
		PosteriorIndex int `yaml:"posterior_index"`

		// Prefixes maps a source directory name to its case prefix
		Prefixes map[string]string `yaml:"prefixes"`
	} `yaml:"prepare"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Table.Delimiter = string(table.DefaultDelimiter)

	cfg.DicomIndex.Extensions = append([]string(nil), dicomindex.DefaultExtensions...)
	cfg.DicomIndex.VendorExtensions = append([]string(nil), dicomindex.DefaultVendorExtensions...)
	cfg.DicomIndex.Subfolders = []string{"DICOMS_AUT2020", "DICOMS_AUT2023"}

	cfg.NiftiIndex.Pattern = volumeindex.DefaultPattern
	cfg.NiftiIndex.AllowSeparator = false

	cfg.Reconcile.DateColumns = append([]string(nil), reconcile.DefaultDateColumns...)
	cfg.Reconcile.TimeColumns = append([]string(nil), reconcile.DefaultTimeColumns...)
	cfg.Reconcile.KeepColumns = append([]string(nil), reconcile.DefaultKeepColumns...)
	cfg.Reconcile.UnmatchedPreview = reconcile.DefaultUnmatchedPreview

	cfg.Quantify.Channel = 0
	cfg.Quantify.ChannelAxisMaxSize = canonical.DefaultChannelAxisMaxSize
	cfg.Quantify.ImageSuffix = quantify.DefaultImageSuffix
	cfg.Quantify.LabelExt = quantify.DefaultLabelExt
	cfg.Quantify.Labels = models.DefaultLabelMapping()
	cfg.Quantify.OnCaseError = string(quantify.PolicyAbort)

	cfg.Prepare.View = string(prepare.ViewAnterior)
	cfg.Prepare.PosteriorIndex = prepare.DefaultPosteriorIndex
	cfg.Prepare.Prefixes = map[string]string{
		"NIFTI_AUT2020": "AUT2020",
		"NIFTI_AUT2023": "AUT2023",
	}

	cfg.Output.Verbose = false

	return cfg
}

// Validate checks the values that cannot be checked by the YAML decoder
func (c *Config) Validate() error {
	if _, err := table.Delimiter(c.Table.Delimiter); err != nil {
		return errors.Wrap(err, "table.delimiter")
	}
	if err := c.Quantify.Labels.Validate(); err != nil {
		return errors.Wrap(err, "quantify.labels")
	}
	if _, err := quantify.ParsePolicy(c.Quantify.OnCaseError); err != nil {
		return errors.Wrap(err, "quantify.on_case_error")
	}
	if c.Quantify.Channel < 0 {
		return errors.Errorf("quantify.channel must be non-negative, got %d", c.Quantify.Channel)
	}
	if c.Quantify.ChannelAxisMaxSize < 0 {
		return errors.Errorf("quantify.channel_axis_max_size must be non-negative, got %d", c.Quantify.ChannelAxisMaxSize)
	}
	if _, err := prepare.ParseView(c.Prepare.View); err != nil {
		return errors.Wrap(err, "prepare.view")
	}
	if c.NiftiIndex.Pattern == "" {
		return errors.New("nifti_index.pattern must not be empty")
	}
	return nil
}

// DicomIndexParams converts the dicom_index section for the series builder
func (c *Config) DicomIndexParams() dicomindex.Params {
	return dicomindex.Params{
		Extensions:       c.DicomIndex.Extensions,
		VendorExtensions: c.DicomIndex.VendorExtensions,
	}
}

// ReconcileParams converts the reconcile section
func (c *Config) ReconcileParams() *reconcile.Params {
	p := reconcile.DefaultParams()
	if len(c.Reconcile.DateColumns) > 0 {
		p.DateColumns = c.Reconcile.DateColumns
	}
	if len(c.Reconcile.TimeColumns) > 0 {
		p.TimeColumns = c.Reconcile.TimeColumns
	}
	if len(c.Reconcile.KeepColumns) > 0 {
		p.KeepColumns = c.Reconcile.KeepColumns
	}
	p.UnmatchedPreview = c.Reconcile.UnmatchedPreview
	return p
}

// QuantifyParams converts the quantify section
func (c *Config) QuantifyParams() *quantify.Params {
	return &quantify.Params{
		ImageSuffix:        c.Quantify.ImageSuffix,
		LabelExt:           c.Quantify.LabelExt,
		Mapping:            c.Quantify.Labels,
		Selection:          canonical.Selection{Channel: c.Quantify.Channel, Slice: c.Quantify.Slice},
		ChannelAxisMaxSize: c.Quantify.ChannelAxisMaxSize,
		OnCaseError:        quantify.CasePolicy(c.Quantify.OnCaseError),
		IncludeCounts:      c.Quantify.IncludeCounts,
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	// A labels section replaces the default mapping instead of merging into it
	cfg.Quantify.Labels = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}
	if cfg.Quantify.Labels == nil {
		cfg.Quantify.Labels = models.DefaultLabelMapping()
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", configPath)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
