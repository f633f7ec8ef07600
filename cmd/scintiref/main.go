package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"scintiref/pkg/config"
)

// command is one pipeline stage exposed as a subcommand
type command struct {
	name  string
	usage string
	run   func(cfg *config.Config, args []string) error
}

var commands = []command{
	{"init-config", "write the default configuration file", runInitConfig},
	{"dicom-index", "build the per-series DICOM index", runDicomIndex},
	{"dicom-files", "build the per-file DICOM index", runDicomFiles},
	{"nifti-index", "build the NIfTI volume index", runNiftiIndex},
	{"reconcile", "join the NIfTI index to the DICOM series index", runReconcile},
	{"quantify", "measure soft-tissue to bone uptake ratios", runQuantify},
	{"prepare", "write segmentation model inputs", runPrepare},
	{"orient", "rotate volumes by 180 degrees in plane", runOrient},
}

// runHook tags every log entry with the invocation id
type runHook struct{ id string }

func (h runHook) Levels() []log.Level { return log.AllLevels }

func (h runHook) Fire(e *log.Entry) error {
	e.Data["run"] = h.id
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: scintiref [-config file] [-verbose] <command> [flags]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	byName := make(map[string]string, len(commands))
	for _, c := range commands {
		names = append(names, c.name)
		byName[c.name] = c.usage
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", n, byName[n])
	}
	fmt.Fprintf(os.Stderr, "\nGlobal flags:\n")
	flag.PrintDefaults()
}

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "scintiref.yaml", "Path to the YAML configuration file")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.AddHook(runHook{id: uuid.NewString()})

	name := flag.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
		flag.Usage()
		os.Exit(2)
	}

	// init-config must work even when the existing file is broken
	cfg := config.DefaultConfig()
	if cmd.name != "init-config" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.WithError(err).Fatal("Failed to load configuration")
		}
	}
	if *verbose || cfg.Output.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	fmt.Println("================================")
	fmt.Println("SCINTIREF: DICOM/NIfTI REFERENCE INDEX AND UPTAKE QUANTIFICATION")
	fmt.Printf("Stage: %s\n", strings.ToUpper(cmd.name))
	fmt.Println("================================")

	args := flag.Args()[1:]
	if cmd.name == "init-config" && len(args) == 0 {
		args = []string{"-out", *configPath}
	}
	if err := cmd.run(cfg, args); err != nil {
		log.WithError(err).WithField("command", cmd.name).Fatal("Command failed")
	}
}
