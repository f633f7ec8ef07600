package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"scintiref/pkg/config"
	"scintiref/pkg/dicomindex"
	"scintiref/pkg/prepare"
	"scintiref/pkg/quantify"
	"scintiref/pkg/reconcile"
	"scintiref/pkg/table"
	"scintiref/pkg/volumeindex"
)

// splitList parses a comma-separated flag value
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// writeTable stores t with the configured delimiter
func writeTable(cfg *config.Config, path string, t *table.Table) error {
	delim, err := table.Delimiter(cfg.Table.Delimiter)
	if err != nil {
		return err
	}
	return table.Write(path, t, delim)
}

func readTable(cfg *config.Config, path string) (*table.Table, error) {
	delim, err := table.Delimiter(cfg.Table.Delimiter)
	if err != nil {
		return nil, err
	}
	return table.Read(path, delim)
}

func runInitConfig(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	out := fs.String("out", "scintiref.yaml", "Where to write the default configuration")
	fs.Parse(args)

	if err := config.CreateDefaultConfigFile(*out); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to: %s\n", *out)
	return nil
}

func runDicomIndex(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("dicom-index", flag.ExitOnError)
	base := fs.String("base", "", "Base directory holding the configured subfolders")
	roots := fs.String("roots", "", "Comma-separated scan roots (overrides -base)")
	out := fs.String("out", "dicom_series_index.csv", "Output table")
	fs.Parse(args)

	var scan []string
	switch {
	case *roots != "":
		scan = splitList(*roots)
	case *base != "":
		scan = dicomindex.ExistingRoots(*base, cfg.DicomIndex.Subfolders)
		if len(scan) == 0 {
			return errors.Wrapf(dicomindex.ErrMissingRoot, "none of %v exist under %s", cfg.DicomIndex.Subfolders, *base)
		}
	default:
		fs.Usage()
		return errors.New("either -base or -roots is required")
	}

	start := time.Now()
	idx, err := dicomindex.NewBuilder(cfg.DicomIndexParams(), nil).Build(scan)
	if err != nil {
		return err
	}
	if err := writeTable(cfg, *out, idx.Table()); err != nil {
		return err
	}

	fmt.Printf("\nSeries index completed in %.2f seconds\n", time.Since(start).Seconds())
	fmt.Printf("Roots scanned: %s\n", strings.Join(scan, ", "))
	fmt.Printf("Candidate files: %d\n", idx.Stats.Candidates)
	fmt.Printf("Indexed files: %d\n", idx.Stats.Indexed)
	for _, reason := range []dicomindex.SkipReason{dicomindex.SkipUnreadable, dicomindex.SkipMalformed, dicomindex.SkipNoSeriesUID} {
		fmt.Printf("Skipped (%s): %d\n", reason, idx.Stats.Skipped[reason])
	}
	fmt.Printf("Unique series: %d\n", len(idx.Records))
	fmt.Printf("Unique patients: %d\n", idx.UniquePatients())
	fmt.Printf("Output saved to: %s\n", *out)
	return nil
}

func runDicomFiles(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("dicom-files", flag.ExitOnError)
	root := fs.String("root", "", "Directory to scan for .dcm files")
	out := fs.String("out", "dicom_file_index.csv", "Output table")
	fs.Parse(args)
	if *root == "" {
		fs.Usage()
		return errors.New("-root is required")
	}

	idx, err := dicomindex.BuildFileIndex(*root, nil)
	if err != nil {
		return err
	}
	if err := writeTable(cfg, *out, idx.Table()); err != nil {
		return err
	}
	fmt.Printf("\nIndexed %d files (%d skipped)\n", len(idx.Records), idx.Stats.TotalSkipped())
	fmt.Printf("Output saved to: %s\n", *out)
	return nil
}

func runNiftiIndex(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("nifti-index", flag.ExitOnError)
	root := fs.String("root", "", "Directory holding the NIfTI volumes")
	out := fs.String("out", "nifti_index.csv", "Output table")
	pattern := fs.String("pattern", cfg.NiftiIndex.Pattern, "Glob for volume files")
	sep := fs.Bool("allow-separator", cfg.NiftiIndex.AllowSeparator, "Accept a separator between date and time")
	fs.Parse(args)
	if *root == "" {
		fs.Usage()
		return errors.New("-root is required")
	}

	b := volumeindex.NewBuilder(*pattern)
	b.AllowSeparator = *sep
	records, err := b.Build(*root)
	if err != nil {
		return err
	}
	if err := writeTable(cfg, *out, volumeindex.Table(records)); err != nil {
		return err
	}

	timed := 0
	for _, r := range records {
		if r.HasTimestamp() {
			timed++
		}
	}
	fmt.Printf("\nIndexed %d volumes, %d with a timestamp\n", len(records), timed)
	fmt.Printf("Output saved to: %s\n", *out)
	return nil
}

func runReconcile(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	seriesPath := fs.String("series", "dicom_series_index.csv", "Series index table")
	volumesPath := fs.String("volumes", "nifti_index.csv", "Volume index table")
	out := fs.String("out", "nifti_dicom_reference.csv", "Output table")
	fs.Parse(args)

	series, err := readTable(cfg, *seriesPath)
	if err != nil {
		return err
	}
	volumes, err := readTable(cfg, *volumesPath)
	if err != nil {
		return err
	}

	res, err := reconcile.New(cfg.ReconcileParams()).Reconcile(series, volumes)
	if err != nil {
		return err
	}
	if err := writeTable(cfg, *out, res.Table); err != nil {
		return err
	}

	fmt.Printf("\n%s\n", res.Report)
	fmt.Printf("Output saved to: %s\n", *out)
	return nil
}

func runQuantify(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("quantify", flag.ExitOnError)
	images := fs.String("images", "", "Directory of <case>_0000.nii.gz images")
	labels := fs.String("labels", "", "Directory of <case>.nii.gz label maps")
	out := fs.String("out", "soft_tissue_uptake.csv", "Output table")
	channel := fs.Int("channel", cfg.Quantify.Channel, "Frame of multi-frame images")
	slice := fs.Int("slice", -1, "Depth slice of volumes; -1 uses the configured slice or the middle")
	policy := fs.String("on-case-error", cfg.Quantify.OnCaseError, "abort or skip")
	fs.Parse(args)
	if *images == "" || *labels == "" {
		fs.Usage()
		return errors.New("-images and -labels are required")
	}

	params := cfg.QuantifyParams()
	params.Selection.Channel = *channel
	if *slice >= 0 {
		params.Selection.Slice = slice
	}
	params.OnCaseError = quantify.CasePolicy(*policy)

	start := time.Now()
	r := quantify.NewRunner(params, nil)
	if err := r.Run(*images, *labels); err != nil {
		return err
	}
	if err := writeTable(cfg, *out, r.Table()); err != nil {
		return err
	}

	st := r.Stats()
	fmt.Printf("\nQuantification completed in %.2f seconds\n", time.Since(start).Seconds())
	fmt.Printf("Images found: %d\n", st.Images)
	fmt.Printf("Cases measured: %d\n", st.Measured)
	fmt.Printf("Missing labels: %d\n", st.MissingLabel)
	fmt.Printf("Failed cases: %d\n", st.Failed)
	fmt.Printf("Output saved to: %s\n", *out)
	return nil
}

func runPrepare(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("prepare", flag.ExitOnError)
	src := fs.String("src", "", "Comma-separated source directories")
	out := fs.String("out", "", "Output directory")
	view := fs.String("view", cfg.Prepare.View, "ant or post")
	fs.Parse(args)
	if *src == "" || *out == "" {
		fs.Usage()
		return errors.New("-src and -out are required")
	}

	v, err := prepare.ParseView(*view)
	if err != nil {
		return err
	}
	var sources []prepare.Source
	for _, dir := range splitList(*src) {
		base := filepath.Base(filepath.Clean(dir))
		prefix, ok := cfg.Prepare.Prefixes[base]
		if !ok {
			prefix = base
		}
		sources = append(sources, prepare.Source{Dir: dir, Prefix: prefix})
	}

	b := prepare.NewBuilder(&prepare.Params{View: v, PosteriorIndex: cfg.Prepare.PosteriorIndex, OutputDir: *out}, nil)
	if err := b.Process(sources); err != nil {
		return err
	}

	total := prepare.Stats{}
	for _, s := range sources {
		st := b.Stats()[s.Prefix]
		fmt.Printf("%s DONE | written: %d skipped: %d unreadable: %d\n", s.Prefix, st.Written, st.Skipped, st.Unreadable)
		total.Written += st.Written
		total.Skipped += st.Skipped + st.Unreadable
	}
	fmt.Printf("TOTAL written: %d\n", total.Written)
	fmt.Printf("TOTAL skipped: %d\n", total.Skipped)
	fmt.Printf("Output saved to: %s\n", *out)
	return nil
}

func runOrient(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("orient", flag.ExitOnError)
	in := fs.String("in", "", "Directory of wrongly oriented volumes")
	out := fs.String("out", "", "Directory for the corrected volumes")
	fs.Parse(args)
	if *in == "" || *out == "" {
		fs.Usage()
		return errors.New("-in and -out are required")
	}

	n, err := prepare.Orient(*in, *out)
	if err != nil {
		return err
	}
	fmt.Printf("\nFixed %d files\n", n)
	fmt.Printf("Fixed files written to: %s\n", *out)
	return nil
}
