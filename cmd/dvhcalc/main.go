package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"dvhcalc/pkg/batch"
	"dvhcalc/pkg/caseio"
	"dvhcalc/pkg/config"
	"dvhcalc/pkg/dvh"
	"dvhcalc/pkg/server"
	"dvhcalc/pkg/visualization"
)

// output is the result file: the run report plus any conformity results.
type output struct {
	*batch.Report
	Conformity map[string]*dvh.Conformity `json:"conformity,omitempty"`
}

func main() {
	casePath := flag.String("case", "", "Case document (JSON or YAML) with the dose and structures")
	configPath := flag.String("config", "config.yaml", "Configuration file")
	createConfig := flag.Bool("create-config", false, "Write the default configuration to -config and exit")
	outputPath := flag.String("output", "dvh.json", "Output JSON file")
	numCores := flag.Int("cores", 0, "Number of structures calculated in parallel (default: from config)")
	binSize := flag.Float64("bin", 0, "DVH bin width in cGy (default: from config)")
	upsample := flag.Bool("upsample", false, "Up-sample small structures and the dose grid")
	endCap := flag.Bool("endcap", false, "Cap the first and last plane of small structures")
	serve := flag.Bool("serve", false, "Serve the HTTP API instead of running a case")
	addr := flag.String("addr", "", "HTTP listen address (default: from config)")
	extractSlices := flag.Bool("extract-slices", false, "Extract and save dose slices along all axes")
	slicesDir := flag.String("slices-dir", "", "Directory to save extracted slices (default: from config)")
	ciStructure := flag.Int("ci-structure", -1, "Structure ID to compute the conformity index for")
	ciLower := flag.Float64("ci-lower", 0, "Lower isodose limit in cGy for the conformity index")
	prescription := flag.Float64("prescription", 0, "Prescription dose in cGy for HI and GI (default: from config)")
	external := flag.String("external", "", "Body structure name for the gradient index (default: from config)")
	flag.Parse()

	if *createConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create config file: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Explicit flags override the configuration file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "bin":
			cfg.Processing.BinSize = *binSize
		case "upsample":
			cfg.Processing.Upsample = *upsample
		case "endcap":
			cfg.Processing.EndCap = *endCap
		case "addr":
			cfg.Server.Addr = *addr
		case "extract-slices":
			cfg.Output.ExtractSlices = *extractSlices
		case "slices-dir":
			cfg.Output.SlicesDir = *slicesDir
		case "prescription":
			cfg.Processing.Prescription = *prescription
		case "external":
			cfg.Processing.External = *external
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.Output.Verbose {
		logger = log.New(os.Stderr, "dvhcalc: ", log.LstdFlags)
	}

	opts := cfg.EngineOptions()
	opts.Logger = logger
	engine := dvh.NewEngine(opts)
	runner := batch.NewRunner(engine, cfg.Processing.NumCores)
	runner.Logger = logger

	if *serve {
		runServer(cfg, runner, logger)
		return
	}

	if *casePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	fmt.Println("================================")
	fmt.Println("DOSE-VOLUME HISTOGRAM CALCULATION")
	fmt.Println("================================")

	c, err := caseio.Load(*casePath)
	if err != nil {
		log.Fatalf("Failed to load case: %v", err)
	}
	structures, field, err := caseio.Build(c)
	if err != nil {
		log.Fatalf("Failed to build case: %v", err)
	}
	field.SliceTolerance = cfg.Processing.SliceTolerance

	size := field.Size()
	res := field.Resolution()
	hot := field.MaxLocation()
	fmt.Printf("Loaded dose grid %dx%dx%d (%.2f x %.2f x %.2f mm)\n", size[0], size[1], size[2], res[0], res[1], res[2])
	fmt.Printf("Maximum dose %.1f cGy at (%.1f, %.1f, %.1f) mm\n", field.MaxDose(), hot.X, hot.Y, hot.Z)
	fmt.Printf("Loaded %d structures\n", len(structures))

	runner.Progress = func(done, total int) {
		fmt.Printf("\rCalculating DVHs: %.1f%% complete", float64(done)/float64(total)*100)
	}

	runID := uuid.New().String()
	startTime := time.Now()
	outcomes := runner.Run(structures, field)
	if len(structures) > 0 {
		fmt.Println()
	}
	processingTime := time.Since(startTime)

	result := output{Report: batch.NewReport(runID, outcomes, cfg.Indices())}
	printSummary(outcomes, result.Report)

	if *ciStructure >= 0 {
		for _, s := range structures {
			if s.ID != *ciStructure {
				continue
			}
			ci, err := engine.ConformityIndex(s, field, *ciLower)
			if err != nil {
				log.Fatalf("Failed to compute conformity index: %v", err)
			}
			result.Conformity = map[string]*dvh.Conformity{s.Name: ci}
			fmt.Printf("\nConformity index of %s at %.1f cGy: %.4f (TV %.3f, PITV %.3f, CV %.3f cm³)\n",
				s.Name, *ciLower, ci.CI, ci.TV, ci.PITV, ci.CV)
		}
		if result.Conformity == nil {
			log.Printf("Warning: structure %d not found, no conformity index computed", *ciStructure)
		}
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode results: %v", err)
	}
	if err := os.WriteFile(*outputPath, data, 0644); err != nil {
		log.Fatalf("Failed to write results: %v", err)
	}

	fmt.Printf("\nRun %s completed in %.2f seconds using %d cores\n", runID, processingTime.Seconds(), cfg.Processing.NumCores)
	fmt.Printf("Results saved to: %s\n", *outputPath)

	if cfg.Output.ExtractSlices {
		fmt.Println("\nExtracting dose slices along all axes (axial slices with structure outlines)...")
		viewer := visualization.NewViewer(field)
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(cfg.Output.SlicesDir, axis)
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)

			if err := viewer.SaveSliceSequence(axis, axisDir, structures...); err != nil {
				log.Printf("Warning: Failed to save %s-axis slices: %v", axis, err)
			}
		}
		fmt.Println("Slice extraction completed!")
	}
}

// printSummary prints one line per structure in ID order, followed by the
// plan indices of the report.
func printSummary(outcomes map[int]batch.Outcome, report *batch.Report) {
	ids := make([]int, 0, len(outcomes))
	for id := range outcomes {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fmt.Println("\nStructure summary:")
	fmt.Println("==================")
	for _, id := range ids {
		o := outcomes[id]
		if o.Err != nil {
			fmt.Printf("%3d %-20s FAILED: %v\n", id, o.Name, o.Err)
			continue
		}
		d := o.Result.DVH
		fmt.Printf("%3d %-20s volume %8.3f cm³  min %8.1f  mean %8.1f  max %8.1f cGy",
			id, o.Name, d.Volume(), d.Min, d.Mean, d.Max)
		if o.Result.Truncated {
			fmt.Printf("  (no dose beyond z=%.2f)", o.Result.StoppedAtZ)
		}
		fmt.Println()
	}

	keys := make([]string, 0, len(report.Metrics))
	for k := range report.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("\nPlan indices:")
	for _, k := range keys {
		m := report.Metrics[k]
		fmt.Printf("    %-20s D95 %8.1f cGy", k, m.D95)
		if m.HI != nil {
			fmt.Printf("  HI %.4f", *m.HI)
		}
		fmt.Println()
	}
	if report.GradientIndex != nil {
		fmt.Printf("    Gradient index: %.4f\n", *report.GradientIndex)
	}
}

func runServer(cfg *config.Config, runner *batch.Runner, logger *log.Logger) {
	addr := cfg.Server.Addr
	srv := server.New(addr, runner, logger)
	srv.SliceTolerance = cfg.Processing.SliceTolerance
	srv.Indices = cfg.Indices()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	fmt.Printf("Serving DVH API on %s\n", addr)

	select {
	case err := <-errc:
		if err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}
}
