// Package main is the kotae CLI entry point.
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
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/registry"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config is fine: defaults and the environment apply.
// Returns the config and the path that was actually loaded.
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
	case "serve", "server":
		runServe()
	case "ask":
		runAsk()
	case "compare":
		runCompare()
	case "list":
		runList()
	case "reindex":
		runReindex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// commonFlags are accepted by every command that opens the document folder.
type commonFlags struct {
	configPath   *string
	debug        *bool
	rebuildIndex *bool
	output       *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath:   fs.String("config", defaultConfigPath, "config file path"),
		debug:        fs.Bool("debug", false, "enable debug logging"),
		rebuildIndex: fs.Bool("rebuild-index", false, "ignore the persisted index and rebuild it from the documents folder"),
		output:       fs.String("output", "text", "output format: text or json"),
	}
}

// setup loads config, creates the logger and wires the components.
func setup(f commonFlags) (*config.Config, *zap.Logger, *Components) {
	cfg, resolvedConfigPath, err := loadConfig(*f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *f.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("documents_dir", cfg.Documents.Dir),
		zap.String("index_dir", cfg.Index.Dir),
	)
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

// ensureReady makes the engine ready, forcing a rebuild when --rebuild-index was given.
func ensureReady(ctx context.Context, c *Components, rebuild bool) {
	if err := c.Engine.EnsureReady(ctx, rebuild); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	f := addCommonFlags(fs)
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(f)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := components.Engine.EnsureReady(ctx, *f.rebuildIndex); err != nil {
			logger.Warn("initial readiness failed; will retry on first request", zap.Error(err))
		}
	}()

	if cfg.Watch.Enabled {
		engine := components.Engine
		w := watcher.NewWatcher(cfg.Documents.Dir, components.Extensions, func(paths []string) {
			logger.Info("rebuilding after folder change", zap.Strings("files", paths))
			if err := engine.Rebuild(ctx); err != nil {
				logger.Warn("rebuild after folder change failed", zap.Error(err))
			}
		}, watcher.WithLogger(logger), watcher.WithDebounce(cfg.Watch.Debounce))
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(components.Engine, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces; quoting is optional.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae ask what does the report conclude about latency
  kotae ask --context "which methods does chapter 2 use?"
  kotae ask --output json --server http://localhost:5000 "summarize the findings"
`)
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse sees them.
func argsReorder(args []string) []string {
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

// buildQuestion joins all positional args with spaces so multi-word questions work
// the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	f := addCommonFlags(fs)
	showContext := fs.Bool("context", false, "show the retrieved passages")
	serverURL := fs.String("server", "", "ask a running kotae server instead of opening the folder directly")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildQuestion(fs.Args())
	if question == "" {
		printAskUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*f.output)

	if *serverURL != "" {
		ans, err := askViaHTTP(*serverURL, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteAnswer(os.Stdout, question, ans, format, false); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	_, logger, components := setup(f)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	ensureReady(ctx, components, *f.rebuildIndex)
	ans, err := components.Engine.AskQuestion(ctx, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, question, ans, format, *showContext); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runCompare() {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	f := addCommonFlags(fs)
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*f.output)

	_, logger, components := setup(f)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	ensureReady(ctx, components, *f.rebuildIndex)
	cmp, err := components.Engine.CompareDocuments(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compare failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteComparison(os.Stdout, cmp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	f := addCommonFlags(fs)
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*f.output)

	_, logger, components := setup(f)
	defer logger.Sync()
	defer components.Close()

	docs, err := documentSummaries(context.Background(), components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// documentSummaries lists the registered documents with their page counts.
func documentSummaries(ctx context.Context, c *Components) ([]cli.DocumentSummary, error) {
	names, err := c.Engine.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]cli.DocumentSummary, 0, len(names))
	for _, name := range names {
		pages := 0
		if doc, ok := c.Registry.Document(name); ok {
			pages = len(doc.Pages)
		}
		docs = append(docs, cli.DocumentSummary{Name: name, Pages: pages})
	}
	return docs, nil
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	f := addCommonFlags(fs)
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*f.output)

	_, logger, components := setup(f)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	start := time.Now()
	if err := components.Engine.Rebuild(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Reindex failed: %v\n", err)
		os.Exit(1)
	}
	st, err := components.Engine.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputText {
		fmt.Printf("Indexed %d document(s) into %d chunk(s) in %s\n\n", st.Documents, st.Chunks, time.Since(start).Round(time.Millisecond))
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	f := addCommonFlags(fs)
	serverURL := fs.String("server", "", "query a running kotae server instead of reading the folder directly")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*f.output)

	var st rag.Status
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		st = *res
	} else {
		_, logger, components := setup(f)
		defer logger.Sync()
		defer components.Close()
		ctx := context.Background()
		if _, err := components.Engine.ListDocuments(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		if components.Indexer.Exists() {
			if err := components.Indexer.Load(ctx); err != nil {
				logger.Warn("persisted index unreadable", zap.Error(err))
			}
		}
		res, err := components.Engine.Status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		st = res
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL string, question string) (*rag.Answer, error) {
	body, err := json.Marshal(models.AskRequest{Question: question})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	var out models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	ans := &rag.Answer{Text: out.Answer, Citations: make([]models.Citation, 0, len(out.Sources))}
	for _, s := range out.Sources {
		ans.Citations = append(ans.Citations, models.Citation{Display: s})
	}
	return ans, nil
}

func statusViaHTTP(serverURL string) (*rag.Status, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	var out models.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	state, err := rag.ParseState(out.State)
	if err != nil {
		return nil, err
	}
	return &rag.Status{
		State:          state,
		Documents:      out.Documents,
		Chunks:         out.Chunks,
		IndexDir:       out.IndexDir,
		DiskUsageBytes: out.DiskUsageBytes,
	}, nil
}

// checkResponse turns a non-200 response into an error carrying the server's message.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	var e models.ErrorResponse
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// Components holds initialized services.
type Components struct {
	Embedder   embedding.Embedder
	Generator  generation.Generator
	Registry   *registry.Registry
	Indexer    *indexer.Indexer
	Engine     *rag.Engine
	Extensions []string
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// newEmbedder builds the configured embedder, wrapped in a query cache when cache_size > 0.
func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	var base embedding.Embedder
	switch cfg.Provider {
	case config.ProviderOllama:
		base = embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			Dimensions: cfg.Dimensions,
		})
	case config.ProviderONNX:
		e, err := embedding.NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("onnx embedder: %w", err)
		}
		base = e
	case config.ProviderMock:
		base = embedding.NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return embedding.NewCachedEmbedder(base, cfg.CacheSize), nil
	}
	return base, nil
}

// supportedExtensions keeps the configured extensions the extractor can read.
func supportedExtensions(configured []string, logger *zap.Logger) []string {
	var out []string
	for _, ext := range configured {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !extract.IsSupported("x" + ext) {
			logger.Warn("ignoring unsupported document extension", zap.String("extension", ext))
			continue
		}
		out = append(out, ext)
	}
	return out
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	exts := supportedExtensions(cfg.Documents.Extensions, logger)
	if len(exts) == 0 {
		return nil, fmt.Errorf("no supported document extensions configured (supported: %s)",
			strings.Join(extract.SupportedExtensions(), ", "))
	}

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	generator := generation.NewOllamaGenerator(generation.OllamaConfig{
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.TemperatureOrDefault(),
		Timeout:     cfg.Generation.Timeout,
	})

	docs := registry.New(cfg.Documents.Dir, exts, extract.NewExtractor(), registry.WithLogger(logger))
	idx := indexer.NewIndexer(cfg.Index.Dir, embedder, indexer.WithLogger(logger))
	engine := rag.NewEngine(docs, idx, generator,
		rag.WithLogger(logger),
		rag.WithTopK(cfg.Retrieval.TopK),
		rag.WithChunker(indexer.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)),
		rag.WithGenerationTimeout(cfg.Generation.Timeout),
	)
	logger.Info("components initialized",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", embedder.ModelName()),
		zap.String("generation_model", generator.ModelName()),
		zap.Strings("extensions", exts),
		zap.Int("top_k", cfg.Retrieval.TopK),
	)

	return &Components{
		Embedder:   embedder,
		Generator:  generator,
		Registry:   docs,
		Indexer:    idx,
		Engine:     engine,
		Extensions: exts,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - Ask questions about a folder of documents

Usage:
  kotae serve [flags]            Start the HTTP server
  kotae ask [flags] <question>   Answer a question from the documents
  kotae compare [flags]          Compare all documents
  kotae list [flags]             List documents with page counts
  kotae reindex [flags]          Rebuild the index from the documents folder
  kotae status [flags]           Show readiness and index status
  kotae version                  Show version
  kotae help                     Show this help

Flags (all commands):
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml, or ./config.yaml if present)
  --debug            Enable debug logging
  --rebuild-index    Ignore the persisted index and rebuild it on first use
  --output string    Output format: text or json (default: text)

Ask Flags:
  --context          Show the retrieved passages
  --server string    Ask a running server (e.g. http://localhost:5000)

Status Flags:
  --server string    Query a running server instead of the local folder

Environment:
  DOCS_FOLDER, FAISS_INDEX_DIR (or INDEX_DIR), OLLAMA_MODEL, OLLAMA_EMBED_MODEL,
  OLLAMA_BASE_URL, TOP_K override the config file. A .env file is read if present.

Examples:
  kotae serve
  kotae ask what are the main findings
  kotae ask --output json "which datasets are used?"
  kotae compare
  kotae list
  kotae reindex
  kotae status --server http://localhost:5000`)
}
