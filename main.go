package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"pacbedthickness/config"
	"pacbedthickness/database"
	"pacbedthickness/imageprocessor"
	"pacbedthickness/logging"
	"pacbedthickness/matcher"
	"pacbedthickness/report"
	"pacbedthickness/scanner"
	"pacbedthickness/signalhandler"
	"pacbedthickness/utils"
)

func main() {
	// Set up proper signal handling
	ctx, cancel := signalhandler.SetupHandler()
	defer cancel()

	// Set the optimal number of CPUs to use
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	// Parse command line arguments into a map
	args := utils.ParseArguments(os.Args[1:])

	command, hasCommand := args["command"]

	// Setup debug logging if enabled
	debugMode := false
	if _, ok := args["debug"]; ok {
		debugMode = true
		logPath := "pacbed.log"
		if customLogPath, ok := args["logfile"]; ok && customLogPath != "" {
			logPath = customLogPath
		}
		if err := logging.SetupLogger(logPath, true); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
			logging.SetDebug(true)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", logPath)
		}
	} else if logPath, ok := args["logfile"]; ok && logPath != "" {
		if err := logging.SetupLogger(logPath, false); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		}
	}
	defer logging.CloseLogger()

	// Check if required arguments are missing
	showUsage := !hasCommand
	switch command {
	case "match":
		showUsage = showUsage || args["image"] == "" || args["references"] == ""
	case "canonicalize":
		showUsage = showUsage || args["image"] == "" || args["output"] == ""
	case "prepare":
		showUsage = showUsage || args["folder"] == "" || args["references"] == ""
	case "index":
		showUsage = showUsage || args["references"] == ""
	}

	if showUsage {
		utils.PrintUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "match":
		err = handleMatchCommand(ctx, args, cfg, debugMode)
	case "canonicalize":
		err = handleCanonicalizeCommand(args, cfg)
	case "prepare":
		err = handlePrepareCommand(ctx, args, cfg, debugMode)
	case "index":
		err = handleIndexCommand(ctx, args, cfg, debugMode)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}

	if err != nil {
		logging.LogError("%s failed: %v", command, err)
		fmt.Printf("Error: %s\n", describeError(err))
		logging.CloseLogger()
		os.Exit(1)
	}
}

// loadConfig reads the calibration file and applies command line overrides
func loadConfig(args map[string]string) (config.Config, error) {
	cfg, err := config.Load(args["calibration"])
	if err != nil {
		return cfg, err
	}

	if material, ok := args["material"]; ok && material != "" {
		cfg.Report.Material = material
	}
	if workers, ok := args["workers"]; ok {
		n, err := utils.ParseWorkers(workers)
		if err != nil {
			return cfg, err
		}
		cfg.Match.Workers = n
	}

	return cfg, config.Validate(cfg)
}

// describeError turns the typed pipeline errors into operator messages
func describeError(err error) string {
	var (
		readErr   *imageprocessor.ImageReadError
		degenErr  *imageprocessor.DegenerateImageError
		emptyErr  *matcher.EmptyDatabaseError
		sizeErr   *matcher.DimensionMismatchError
		cancelled = errors.Is(err, context.Canceled)
	)
	switch {
	case cancelled:
		return "interrupted"
	case errors.As(err, &readErr):
		return fmt.Sprintf("could not read image %s (%v)", readErr.Path, readErr.Err)
	case errors.As(err, &degenErr):
		return fmt.Sprintf("no diffraction pattern found in %s; check the image contrast", degenErr.Path)
	case errors.As(err, &emptyErr):
		return fmt.Sprintf("%v; run the prepare command or check the file names", emptyErr)
	case errors.As(err, &sizeErr):
		return fmt.Sprintf("%v; references must be prepared with the same calibration as the query", sizeErr)
	default:
		return err.Error()
	}
}

func handleMatchCommand(ctx context.Context, args map[string]string, cfg config.Config, debugMode bool) error {
	run := config.RunConfig{
		QueryImagePath:     args["image"],
		ReferenceDirectory: args["references"],
		DatabasePath:       utils.GetDefaultDatabasePath(),
		SaveMatchPath:      args["save-match"],
		DebugDir:           args["debug-dir"],
	}
	if customDB, ok := args["database"]; ok && customDB != "" {
		run.DatabasePath = customDB
	}

	// Verify paths exist
	if err := checkQueryImage(run.QueryImagePath); err != nil {
		return err
	}
	if !utils.IsDirectory(run.ReferenceDirectory) {
		return fmt.Errorf("reference directory does not exist: %s", run.ReferenceDirectory)
	}

	startTime := time.Now()

	canon := imageprocessor.NewCanonicalizer(cfg.Canonical)
	canon.DebugDir = run.DebugDir
	query, err := canon.Canonicalize(run.QueryImagePath)
	if err != nil {
		return err
	}
	if debugMode {
		logging.DebugLog("Query canonicalized: shift=%v rotation=%.2f", query.Shift, query.Rotation)
	}

	var db *sql.DB
	if run.DatabasePath != "none" {
		db, err = initDatabaseWithRetry(run.DatabasePath)
		if err != nil {
			logging.LogWarning("Reference cache disabled: %v", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	fmt.Println("Matching against reference database...")
	src := scanner.NewReferenceSource(run.ReferenceDirectory, db)
	result, err := matcher.Match(ctx, query, src, matcher.Options{
		ScoreScale:   cfg.Match.ScoreScale,
		ErrorCeiling: cfg.Match.ErrorCeiling,
		Workers:      signalhandler.Workers(cfg.Match.Workers),
		Bucket:       matcher.TruncatedDigitBucket,
	})
	if err != nil {
		return err
	}

	acq, err := imageprocessor.ReadAcquisition(run.QueryImagePath)
	if err != nil {
		logging.DebugLog("No acquisition metadata for %s: %v", run.QueryImagePath, err)
	}
	if v := args["voltage"]; v != "" {
		acq.Voltage = v
	}
	if v := args["zone-axis"]; v != "" {
		acq.ZoneAxis = v
	}
	if v := args["angle"]; v != "" {
		acq.ConvergenceAngle = v
	}

	fmt.Println()
	if err := report.Print(os.Stdout, report.Table(result, acq, cfg.Report.Material)); err != nil {
		return err
	}

	fmt.Printf("\nBest match: %s (score %.4f)\n", result.BestPath(), result.Best.Score)
	if len(result.TiedLabels) > 1 {
		fmt.Printf("Tied thicknesses: %v\n", result.TiedLabels)
	}
	fmt.Printf("Scored %d references", result.Scored)
	if result.Skipped > 0 {
		fmt.Printf(", skipped %d", result.Skipped)
	}
	fmt.Printf(" in %v\n", time.Since(startTime).Round(time.Millisecond))

	if run.SaveMatchPath != "" {
		if err := copyFile(result.BestPath(), run.SaveMatchPath); err != nil {
			return fmt.Errorf("cannot save matched reference: %w", err)
		}
		fmt.Printf("Matched reference saved to %s\n", run.SaveMatchPath)
	}

	logging.LogInfo("Matched %s to %s: %s", run.QueryImagePath, result.BestPath(),
		report.FormatThickness(result.Thickness, result.Error))
	return nil
}

func handleCanonicalizeCommand(args map[string]string, cfg config.Config) error {
	run := config.RunConfig{
		QueryImagePath: args["image"],
		OutputPath:     args["output"],
		DebugDir:       args["debug-dir"],
	}

	if err := checkQueryImage(run.QueryImagePath); err != nil {
		return err
	}

	canon := imageprocessor.NewCanonicalizer(cfg.Canonical)
	canon.DebugDir = run.DebugDir

	img, err := canon.Canonicalize(run.QueryImagePath)
	if err != nil {
		return err
	}
	if err := imageprocessor.WriteCanonical(run.OutputPath, img.Grayscale); err != nil {
		return err
	}

	fmt.Printf("Canonical image written to %s (shift %d,%d, rotation %.2f°)\n",
		run.OutputPath, img.Shift.X, img.Shift.Y, img.Rotation)
	return nil
}

func handlePrepareCommand(ctx context.Context, args map[string]string, cfg config.Config, debugMode bool) error {
	folderPath := args["folder"]
	if !utils.IsDirectory(folderPath) {
		return fmt.Errorf("folder does not exist: %s", folderPath)
	}

	_, forceRewrite := args["force"]

	canon := imageprocessor.NewCanonicalizer(cfg.Canonical)
	canon.DebugDir = args["debug-dir"]

	return scanner.PrepareReferences(ctx, canon, scanner.ScanOptions{
		FolderPath:   folderPath,
		ReferenceDir: args["references"],
		ForceRewrite: forceRewrite,
		DebugMode:    debugMode,
		MaxWorkers:   signalhandler.Workers(cfg.Match.Workers),
	})
}

func handleIndexCommand(ctx context.Context, args map[string]string, cfg config.Config, debugMode bool) error {
	referenceDir := args["references"]
	if !utils.IsDirectory(referenceDir) {
		return fmt.Errorf("reference directory does not exist: %s", referenceDir)
	}

	dbPath := utils.GetDefaultDatabasePath()
	if customDB, ok := args["database"]; ok && customDB != "" {
		dbPath = customDB
	}

	_, forceRewrite := args["force"]

	startTime := time.Now()

	db, err := initDatabaseWithRetry(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := scanner.IndexReferences(ctx, db, scanner.ScanOptions{
		ReferenceDir: referenceDir,
		ForceRewrite: forceRewrite,
		DebugMode:    debugMode,
		MaxWorkers:   signalhandler.Workers(cfg.Match.Workers),
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nIndex completed successfully!\n")
	fmt.Printf("Total execution time: %v\n", time.Since(startTime))
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("\nSummary:\n")
	fmt.Printf("- Total references: %d\n", stats.TotalReferences)
	fmt.Printf("- Distinct thicknesses: %d\n", stats.DistinctLabels)
	if stats.TotalReferences > 0 {
		fmt.Printf("- Thickness range: %d-%d nm\n", stats.MinLabel, stats.MaxLabel)
	}
	return nil
}

// checkQueryImage rejects missing files and unsupported formats before any
// decoding is attempted
func checkQueryImage(path string) error {
	if !utils.FileExists(path) {
		return &imageprocessor.ImageReadError{Path: path, Err: os.ErrNotExist}
	}
	if !imageprocessor.IsImageFile(path) {
		return &imageprocessor.ImageReadError{
			Path: path,
			Err:  fmt.Errorf("unsupported format %q", filepath.Ext(path)),
		}
	}
	return nil
}

// initDatabaseWithRetry opens the reference index, retrying while another
// process holds it
func initDatabaseWithRetry(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	var db *sql.DB
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		db, err = database.InitDatabase(dbPath)
		if err == nil {
			return db, nil
		}

		if i < maxRetries-1 {
			logging.LogWarning("Error initializing database (attempt %d/%d): %v - retrying...",
				i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	return nil, fmt.Errorf("error initializing database after %d attempts: %w", maxRetries, err)
}

// copyFile copies src to dst, replacing dst
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
