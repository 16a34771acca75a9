package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Commands lists the recognised subcommands
var Commands = []string{"match", "canonicalize", "prepare", "index"}

// ParseArguments converts command-line arguments into a map of flags and values.
// argv excludes the program name.
func ParseArguments(argv []string) map[string]string {
	args := make(map[string]string)

	// First, identify the command
	commandIndex := -1
	for i, arg := range argv {
		if isCommand(arg) {
			args["command"] = arg
			commandIndex = i
			break
		}
	}

	for i := 0; i < len(argv); i++ {
		if i == commandIndex {
			continue
		}

		arg := argv[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value)
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Boolean flag when no value follows
			if i+1 >= len(argv) || strings.HasPrefix(argv[i+1], "--") || i+1 == commandIndex {
				args[flagName] = "true"
			} else {
				args[flagName] = argv[i+1]
				i++
			}
		}
	}

	return args
}

func isCommand(arg string) bool {
	for _, c := range Commands {
		if arg == c {
			return true
		}
	}
	return false
}

// GetDefaultDatabasePath returns the default path for the reference index
func GetDefaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "references.db"
	}
	return filepath.Join(filepath.Dir(exePath), "references.db")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	prog := filepath.Base(os.Args[0])
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s match --image=PATH --references=DIR [--database=PATH] [--calibration=FILE] [--save-match=PATH]\n", prog)
	fmt.Printf("        [--voltage=KV] [--zone-axis=HKL] [--angle=MRAD] [--material=NAME] [--workers=N] [--debug] [--logfile=PATH]\n")
	fmt.Printf("  %s canonicalize --image=PATH --output=PATH [--calibration=FILE] [--debug-dir=DIR]\n", prog)
	fmt.Printf("  %s prepare --folder=DIR --references=DIR [--calibration=FILE] [--force] [--workers=N]\n", prog)
	fmt.Printf("  %s index --references=DIR [--database=PATH] [--force] [--workers=N]\n", prog)
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --image       : Experimental micrograph (TIFF, PNG, JPEG, BMP, WebP)\n")
	fmt.Printf("  --references  : Directory of canonical reference patterns named \"<N> nm*.tif\"\n")
	fmt.Printf("  --folder      : Directory of raw simulated patterns to prepare\n")
	fmt.Printf("  --database    : Reference index file (default: %s, \"none\" disables it)\n", GetDefaultDatabasePath())
	fmt.Printf("  --calibration : TOML file overriding calibration constants\n")
	fmt.Printf("  --save-match  : Copy the best matching reference image to this path\n")
	fmt.Printf("  --output      : Output path of the canonical TIFF\n")
	fmt.Printf("  --debug-dir   : Write per-stage snapshots below this directory\n")
	fmt.Printf("  --force       : Rebuild entries even when unchanged\n")
	fmt.Printf("  --workers     : Worker goroutines (default: derived from CPU count)\n")
	fmt.Printf("  --debug       : Enable debug logging\n")
	fmt.Printf("  --logfile     : Log file path (default: pacbed.log when --debug is set)\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s prepare --folder=/sim/raw --references=/sim/canonical\n", prog)
	fmt.Printf("  %s match --image=Exp_2.tif --references=/sim/canonical --voltage=200 --zone-axis=011 --angle=9.75\n", prog)
}

// ParseWorkers parses a worker count flag, zero meaning automatic
func ParseWorkers(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid worker count '%s'", value)
	}
	return n, nil
}

// FileExists reports whether path exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDirectory reports whether path is an existing directory
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
