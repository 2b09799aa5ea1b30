// Package main is the kensaku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/cli"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/ingest"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/server"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/watcher"
	"github.com/hyperjump/kensaku/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists; when neither exists, defaults plus environment
// overrides are used. Returns the config and the path actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg, err := config.Default()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "ingest", "index":
		runIngest()
	case "delete":
		runDelete()
	case "reindex":
		runReindex()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and initializes every component.
// Failures exit the process.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		watchSvc = watcher.New(components.Ingester, &cfg.Watch, watcher.WithLogger(logger))
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go func() {
			n := watchSvc.SyncExisting(watchCtx)
			logger.Info("initial sync complete", zap.Int("files", n))
		}()
	}

	srv := server.NewServer(server.Deps{
		Searcher: components.Retriever,
		Ingester: components.Ingester,
		Storage:  components.Storage,
		Lexical:  components.Lexical,
		Semantic: components.Semantic,
	}, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if watchSvc != nil {
		watchSvc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kensaku search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results blend normalized BM25 and semantic scores: score = alpha*semantic + (1-alpha)*bm25.
  • --alpha 0 ranks by keywords only; --alpha 1 ranks by meaning only.
  • --filter key=value restricts both backends to documents whose metadata matches (repeatable).
  • --kind questions or --kind materials adds the configured type filter.

Examples:
  kensaku search photosynthesis light reactions
  kensaku search --alpha 0.8 --top-k 5 "how plants make food"
  kensaku search --kind questions --filter grade=7 fractions
  kensaku search --server "" --output json query   # search local indices directly
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// searchPath returns the API path for a search kind.
func searchPath(kind string) (string, error) {
	switch kind {
	case "", "hybrid":
		return "/api/v1/search/hybrid", nil
	case "questions", "materials":
		return "/api/v1/search/" + kind, nil
	default:
		return "", fmt.Errorf("unknown search kind %q; use hybrid, questions or materials", kind)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used with --server \"\")")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search local indices directly)")
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	alpha := fs.Float64("alpha", -1, "semantic weight in [0,1] (negative = server default)")
	kind := fs.String("kind", "hybrid", "search kind: hybrid, questions or materials")
	outputFormat := fs.String("output", "text", "output format: text or json")
	filters := cli.FilterFlag{}
	fs.Var(filters, "filter", "metadata filter key=value (repeatable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	path, err := searchPath(*kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := &models.SearchRequest{Query: queryStr, TopK: *topK}
	if *alpha >= 0 {
		a := *alpha
		req.Alpha = &a
	}
	if len(filters) > 0 {
		req.Filter = filters
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// The server holds the Bleve and SQLite locks while running.
		response, err = searchViaHTTP(*serverURL+path, req)
	} else {
		response, err = searchDirect(*configPath, *kind, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchDirect(configPath, kind string, req *models.SearchRequest) (*models.SearchResponse, error) {
	cfg, logger, components := setup(configPath, false)
	defer logger.Sync()
	defer components.Close()

	switch kind {
	case "questions":
		req = req.WithFilter("type", cfg.Search.QuestionType)
	case "materials":
		req = req.WithFilter("type", cfg.Search.MaterialType)
	}
	if err := req.Validate(cfg.Search.DefaultTopK, cfg.Search.MaxTopK); err != nil {
		return nil, err
	}
	results, err := components.Retriever.Search(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return &models.SearchResponse{Results: results}, nil
}

func searchViaHTTP(endpoint string, req *models.SearchRequest) (*models.SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// responseError turns a non-2xx API response into an error carrying the server's message.
func responseError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used with --server \"\")")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read local indices directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status map[string]interface{}
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = statusDirect(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusDirect(configPath string) (map[string]interface{}, error) {
	cfg, logger, components := setup(configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	docCount, err := components.Storage.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	status := map[string]interface{}{"documents": docCount}
	if n, err := components.Lexical.DocCount(); err == nil {
		status["lexical_documents"] = n
	}
	if n, err := components.Semantic.Size(ctx); err == nil {
		status["vector_index_size"] = n
	}
	status["config"] = map[string]interface{}{
		"lexical_provider":   cfg.Lexical.Provider,
		"semantic_provider":  cfg.Semantic.Provider,
		"embedding_provider": cfg.Embedding.Provider,
		"default_alpha":      cfg.Search.Alpha(),
		"database_path":      cfg.Storage.DatabasePath,
	}
	if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath, cfg.Storage.VectorIndexPath); err == nil {
		status["disk_usage_bytes"] = diskBytes
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (map[string]interface{}, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	var s map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return s, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kensaku ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	failed := false
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Printf("Failed to stat path: %v\n", err)
			failed = true
			continue
		}
		if info.IsDir() {
			n, err := components.Ingester.IngestDirectory(ctx, path, cfg.Watch.Extensions)
			if err != nil {
				fmt.Printf("Ingesting directory failed: %v\n", err)
				failed = true
				continue
			}
			fmt.Printf("Ingested %d file(s) from %s\n", n, path)
			continue
		}
		// A single named file is taken regardless of the extension list.
		ingested, err := components.Ingester.IngestFile(ctx, path, nil)
		if err != nil {
			fmt.Printf("Ingesting %s failed: %v\n", path, err)
			failed = true
			continue
		}
		absPath, _ := filepath.Abs(path)
		if ingested {
			fmt.Printf("Document ingested: %s\n", ingest.FileDocID(absPath))
		} else {
			fmt.Printf("Unchanged: %s\n", ingest.FileDocID(absPath))
		}
	}
	if failed {
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used with --server \"\")")
	serverURL := fs.String("server", "", "server URL (empty = delete from local indices directly)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kensaku delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	if *serverURL != "" {
		if err := deleteViaHTTP(*serverURL, docID); err != nil {
			fmt.Printf("Deletion failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Document deleted: %s\n", docID)
		return
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	if err := components.Ingester.DeleteDocument(context.Background(), docID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Printf("Document not found: %s\n", docID)
		} else {
			fmt.Printf("Deletion failed: %v\n", err)
		}
		components.Close()
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func deleteViaHTTP(serverURL, docID string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/documents/"+url.PathEscape(docID), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return responseError(resp)
	}
	return nil
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	n, err := components.Ingester.Rebuild(context.Background())
	if err != nil {
		fmt.Printf("Reindex failed after %d document(s): %v\n", n, err)
		components.Close()
		os.Exit(1)
	}
	fmt.Printf("Reindexed %d document(s)\n", n)
}

// writeDefaultConfig writes the defaults (plus environment overrides) to path.
// An existing file is kept unless force is set.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	cfg, err := config.Default()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return config.Save(path, cfg)
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path of the config file to write")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*configPath, *force); err != nil {
		fmt.Printf("Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", *configPath)
}

func printUsage() {
	fmt.Println(`kensaku - Hybrid BM25 + vector retrieval service

Usage:
  kensaku server [flags]                  Start the HTTP server
  kensaku search [flags] <query>          Hybrid search
  kensaku ingest [flags] <path>...        Ingest files or directories
  kensaku delete [flags] <id>             Delete a document
  kensaku reindex [flags]                 Rebuild both search indices from stored documents
  kensaku status [flags]                  Show storage and index status
  kensaku init [--config path] [--force]  Write a default config file
  kensaku version                         Show version
  kensaku help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kensaku/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to search local indices.
  --top-k int        Number of results (default from config)
  --alpha float      Semantic weight in [0,1] (default from config)
  --kind string      hybrid, questions or materials (default: hybrid)
  --filter k=v       Metadata filter, repeatable
  --output string    text or json (default: text)

Delete Flags:
  --server string    Server URL (default: empty, delete from local indices)

Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for local indices.
  --output string    text or json (default: text)

Examples:
  kensaku server
  kensaku search "photosynthesis"
  kensaku search --alpha 0.3 --filter subject=biology cell membrane
  kensaku search --kind questions --output json fractions
  kensaku ingest ./notes
  kensaku delete file:3b5d...
  kensaku status --output json`)
}
