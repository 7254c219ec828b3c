package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"imagesim/config"
	"imagesim/database"
	"imagesim/engine"
	"imagesim/extractor"
	"imagesim/extractor/dnn"
	"imagesim/imageprocessor"
	"imagesim/logging"
	"imagesim/scanner"
	"imagesim/signalhandler"
	"imagesim/types"
	"imagesim/utils"
)

// required flags per command
var requiredFlags = map[string][]string{
	"compare": {"image1", "image2"},
	"batch":   {"reference", "candidates"},
	"index":   {"folder"},
	"search":  {"image"},
}

func main() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	args := utils.ParseArguments(argv)
	command, hasCommand := args["command"]
	if !hasCommand || missingFlag(command, args) != "" {
		if hasCommand {
			fmt.Printf("Error: missing --%s\n", missingFlag(command, args))
		}
		utils.PrintUsage()
		return 1
	}

	cfg, err := config.LoadConfig(args["config"])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return 1
	}
	cfg.ApplyFlags(args)
	settings := cfg.Settings()
	if settings.Database == "" {
		settings.Database = utils.GetDefaultDatabasePath()
	}
	if settings.Workers < 1 {
		settings.Workers = signalhandler.GetOptimalProcs()
	}

	logger, err := logging.NewLogger(logging.Options{LogPath: settings.LogFile, Debug: settings.Debug})
	if err != nil {
		fmt.Printf("Error setting up logging: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ext, eng, err := buildEngine(settings, logger)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}
	stop := signalhandler.SetupHandler(func() { eng.Close() })
	defer stop()
	defer eng.Close()

	// fail fast rather than reporting the same load error per comparison
	if _, err := ext.LoadOnce(); err != nil {
		logger.Error("model unavailable", zap.Error(err), zap.String("model_path", settings.ModelPath))
		return 1
	}

	switch command {
	case "compare":
		return handleCompareCommand(args, eng)
	case "batch":
		return handleBatchCommand(args, eng)
	case "index":
		return handleIndexCommand(args, eng, settings, logger)
	case "search":
		return handleSearchCommand(args, eng, settings, logger)
	}
	return 1
}

func missingFlag(command string, args map[string]string) string {
	for _, flag := range requiredFlags[command] {
		if args[flag] == "" {
			return flag
		}
	}
	return ""
}

func buildEngine(settings config.Settings, logger *zap.Logger) (*extractor.Extractor, *engine.Engine, error) {
	preCfg, err := settings.PreprocessorConfig()
	if err != nil {
		return nil, nil, err
	}
	pre, err := imageprocessor.NewPreprocessor(preCfg)
	if err != nil {
		return nil, nil, err
	}
	loader := dnn.NewLoader(dnn.Config{
		ModelPath:  settings.ModelPath,
		ConfigPath: settings.ModelConfig,
		Dim:        settings.EmbeddingDim,
	})
	ext := extractor.New(loader, pre.Shape(), settings.EmbeddingDim, logger)
	eng, err := engine.New(ext, pre, engine.WithLogger(logger), engine.WithCacheSize(settings.CacheSize))
	if err != nil {
		return nil, nil, err
	}
	return ext, eng, nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding result: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func handleCompareCommand(args map[string]string, eng *engine.Engine) int {
	result := eng.Compare(types.FromPath(args["image1"]), types.FromPath(args["image2"]))
	printJSON(result)
	if result.Status != types.StatusSuccess {
		return 1
	}
	return 0
}

func handleBatchCommand(args map[string]string, eng *engine.Engine) int {
	var candidates []types.ImageSource
	for _, path := range utils.ParseList(args["candidates"]) {
		candidates = append(candidates, types.FromPath(path))
	}
	result := eng.BatchCompare(types.FromPath(args["reference"]), candidates)
	printJSON(result)
	if result.Status != types.StatusSuccess {
		return 1
	}
	return 0
}

func handleIndexCommand(args map[string]string, eng *engine.Engine, settings config.Settings, logger *zap.Logger) int {
	folderPath := args["folder"]
	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		logger.Error("cannot access folder", zap.String("folder", folderPath), zap.Error(err))
		return 1
	}
	if !folderInfo.IsDir() {
		logger.Error("path is not a directory", zap.String("folder", folderPath))
		return 1
	}

	db, err := database.InitDatabase(settings.Database)
	if err != nil {
		logger.Error("error initializing database", zap.Error(err))
		return 1
	}
	defer db.Close()

	// capture times are recorded only when exiftool is installed
	var metadata scanner.MetadataReader
	if reader, err := scanner.NewExifReader(); err != nil {
		logger.Debug("exiftool unavailable, skipping capture times", zap.Error(err))
	} else {
		defer reader.Close()
		metadata = reader
	}

	sourcePrefix := args["prefix"]
	_, forceRewrite := args["force"]
	startTime := time.Now()
	if _, err := scanner.ScanAndStoreFolder(db, eng, scanner.ScanOptions{
		FolderPath:   folderPath,
		SourcePrefix: sourcePrefix,
		ForceRewrite: forceRewrite,
		MaxWorkers:   settings.Workers,
		Output:       os.Stdout,
		Metadata:     metadata,
		Logger:       logger,
	}); err != nil {
		logger.Error("error scanning folder", zap.Error(err))
		return 1
	}

	fmt.Printf("\nTotal execution time: %v\n", time.Since(startTime).Round(time.Millisecond))
	fmt.Printf("Database: %s\n", settings.Database)
	if stats, err := database.GetScanStats(db, sourcePrefix); err == nil {
		fmt.Printf("\nSummary:\n")
		fmt.Printf("- Indexed images: %d\n", stats.TotalImages)
		fmt.Printf("- Embedding dimensions: %v\n", stats.Dimensions)
	}
	return 0
}

func handleSearchCommand(args map[string]string, eng *engine.Engine, settings config.Settings, logger *zap.Logger) int {
	threshold := 0.8
	if thresholdStr, ok := args["threshold"]; ok {
		parsed, err := utils.ParseThreshold(thresholdStr)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
		threshold = parsed
	}
	limit := 0
	if limitStr, ok := args["limit"]; ok {
		parsed, err := utils.ParseLimit(limitStr)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
		limit = parsed
	}

	if _, err := os.Stat(settings.Database); os.IsNotExist(err) {
		logger.Error("database does not exist, run the index command first", zap.String("database", settings.Database))
		return 1
	}
	db, err := database.OpenDatabase(settings.Database)
	if err != nil {
		logger.Error("error opening database", zap.Error(err))
		return 1
	}
	defer db.Close()

	startTime := time.Now()
	matches, err := scanner.FindSimilarImages(db, eng, scanner.SearchOptions{
		QueryPath:    args["image"],
		Threshold:    threshold,
		SourcePrefix: args["prefix"],
		Limit:        limit,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("error finding similar images", zap.Error(err))
		return 1
	}

	if len(matches) == 0 {
		fmt.Println("No matches found.")
	}
	for i, m := range matches {
		fmt.Printf("%d. Image: %s\n", i+1, m.Path)
		if m.SourcePrefix != "" {
			fmt.Printf("   Source: %s\n", m.SourcePrefix)
		}
		fmt.Printf("   Similarity: %.2f%% (%s)\n", m.Score, m.Level)
	}
	fmt.Printf("\nTotal search time: %v\n", time.Since(startTime).Round(time.Millisecond))
	return 0
}
