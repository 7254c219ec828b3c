package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Commands understood by the command-line host
var Commands = []string{"compare", "batch", "index", "search"}

func isCommand(arg string) bool {
	for _, c := range Commands {
		if arg == c {
			return true
		}
	}
	return false
}

// ParseArguments converts command-line arguments (as in os.Args) into a map
// of flags and values. The command, if any, is stored under "command".
func ParseArguments(argv []string) map[string]string {
	args := make(map[string]string)

	// First, identify the command
	commandIndex := -1
	for i := 1; i < len(argv); i++ {
		if isCommand(argv[i]) {
			args["command"] = argv[i]
			commandIndex = i
			break
		}
	}

	// Process all arguments, skipping the command
	for i := 1; i < len(argv); i++ {
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

			// Check if this is a boolean flag (no value)
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

// ParseList splits a comma-separated flag value, dropping empty entries
func ParseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetDefaultDatabasePath returns the default path for the database file
func GetDefaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "images.db"
	}
	return filepath.Join(filepath.Dir(exePath), "images.db")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	name := filepath.Base(os.Args[0])
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s compare --image1=PATH --image2=PATH [common flags]\n", name)
	fmt.Printf("  %s batch --reference=PATH --candidates=PATH,PATH,... [common flags]\n", name)
	fmt.Printf("  %s index --folder=PATH [--prefix=NAME] [--force] [--database=PATH] [common flags]\n", name)
	fmt.Printf("  %s search --image=PATH [--threshold=VALUE] [--limit=N] [--prefix=NAME] [--database=PATH] [common flags]\n", name)
	fmt.Printf("\nCommon flags:\n")
	fmt.Printf("  --config      : YAML configuration file\n")
	fmt.Printf("  --model       : Model weights file (default: models/resnet50.onnx)\n")
	fmt.Printf("  --debug       : Enable debug logging\n")
	fmt.Printf("  --logfile     : Also write logs to this file\n")
	fmt.Printf("  --max-pixels  : Reject images larger than this many pixels (default: 178956970)\n")
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --database    : Path to database file (default: %s, alias --db)\n", GetDefaultDatabasePath())
	fmt.Printf("  --prefix      : Source prefix for indexing/filtering results\n")
	fmt.Printf("  --force       : Force rewrite existing entries during indexing\n")
	fmt.Printf("  --threshold   : Minimum cosine similarity for search (-1.0-1.0, default: 0.8)\n")
	fmt.Printf("  --limit       : Maximum number of search results (default: all)\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s compare --image1=a.jpg --image2=b.png\n", name)
	fmt.Printf("  %s index --folder=/path/to/images --prefix=ExternalDrive1 --debug\n", name)
	fmt.Printf("  %s search --image=/path/to/query.jpg --threshold=0.85 --limit=10\n", name)
}

// ParseThreshold parses and validates the threshold value from string
func ParseThreshold(thresholdStr string) (float64, error) {
	parsedThreshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || parsedThreshold < -1 || parsedThreshold > 1 {
		return 0.8, fmt.Errorf("invalid threshold value '%s', using default (0.8)", thresholdStr)
	}
	return parsedThreshold, nil
}

// ParseLimit parses a non-negative result limit
func ParseLimit(limitStr string) (int, error) {
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit value '%s', returning all matches", limitStr)
	}
	return limit, nil
}
