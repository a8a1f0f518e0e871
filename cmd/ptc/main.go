package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/antigravity-dev/ptc/internal/architect"
	"github.com/antigravity-dev/ptc/internal/codie"
	"github.com/antigravity-dev/ptc/internal/config"
	"github.com/antigravity-dev/ptc/internal/effects"
	"github.com/antigravity-dev/ptc/internal/embedding"
	"github.com/antigravity-dev/ptc/internal/engine"
	"github.com/antigravity-dev/ptc/internal/executor"
	"github.com/antigravity-dev/ptc/internal/git"
	"github.com/antigravity-dev/ptc/internal/ptc"
	"github.com/antigravity-dev/ptc/internal/store"
)

func configureLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "ptc.toml", "path to a TOML configuration file; flags below override its values")
	treePath := fs.String("tree", "", "path to the tree document (overrides tree.path)")
	intent := fs.String("intent", "", "the intent string to route")
	target := fs.String("target", "", "optional node id to target instead of fan-out")
	dryRun := fs.Bool("dry-run", false, "synthesize planned results instead of dispatching")
	jsonOutput := fs.Bool("json", false, "print the trace as JSON instead of a summary")
	verbose := fs.Bool("verbose", false, "enable debug logging (overrides general.log_level)")
	dbPath := fs.String("db", "", "path to the sqlite document store (overrides store.document_db)")
	workspace := fs.String("workspace", "", "git working tree for the Git Layer (overrides git.workspace)")
	ctoFallback := fs.String("cto", "", "fallback escalation target when a node has none (overrides risk.cto_fallback_id)")
	claudeCLI := fs.String("claude-cli", "claude", "external LLM CLI binary used by claude mode")
	sensitive := fs.String("sensitive-paths", "", "comma-separated sensitive file-path prefixes (overrides risk.sensitive_prefixes)")
	geminiAPIKey := fs.String("gemini-api-key", "", "Gemini API key; empty falls back to embedding.api_key_env, then disables embeddings")
	objectDir := fs.String("object-store", "", "directory for the content-addressed object store (overrides store.object_dir)")
	similarityThreshold := fs.Float64("similarity-threshold", 0, "L2 blueprint cache cosine-similarity threshold (overrides architect.similarity_threshold)")
	workers := fs.Int("effects-workers", 0, "background effects worker pool size (overrides general.worker_pool_size)")
	queueDepth := fs.Int("effects-queue", 256, "background effects queue depth")
	fs.Parse(args)

	cfg := &config.Config{}
	if _, statErr := os.Stat(*configPath); statErr == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			die("failed to load config %s: %v", *configPath, err)
		}
		cfg = loaded
	} else if *configPath != "ptc.toml" {
		die("config file %s: %v", *configPath, statErr)
	}
	if *treePath != "" {
		cfg.Tree.Path = *treePath
	}
	if cfg.Tree.Path == "" {
		cfg.Tree.Path = "tree.json"
	}
	if *dbPath != "" {
		cfg.Store.DocumentDB = *dbPath
	} else if cfg.Store.DocumentDB == "" {
		cfg.Store.DocumentDB = "state/ptc.db"
	}
	if *workspace != "" {
		cfg.Git.Workspace = *workspace
	} else if cfg.Git.Workspace == "" {
		cfg.Git.Workspace = "."
	}
	if cfg.Git.DefaultBranch == "" {
		cfg.Git.DefaultBranch = "main"
	}
	if *ctoFallback != "" {
		cfg.Risk.CTOFallbackID = *ctoFallback
	} else if cfg.Risk.CTOFallbackID == "" {
		cfg.Risk.CTOFallbackID = "exec:cto"
	}
	if *sensitive != "" {
		cfg.Risk.SensitivePrefixes = splitNonEmpty(*sensitive)
	} else if len(cfg.Risk.SensitivePrefixes) == 0 {
		cfg.Risk.SensitivePrefixes = []string{"secrets/", "security/", "credentials/"}
	}
	if *similarityThreshold > 0 {
		cfg.Architect.SimilarityThreshold = *similarityThreshold
	} else if cfg.Architect.SimilarityThreshold <= 0 {
		cfg.Architect.SimilarityThreshold = 0.9
	}
	if *workers > 0 {
		cfg.General.WorkerPoolSize = *workers
	} else if cfg.General.WorkerPoolSize <= 0 {
		cfg.General.WorkerPoolSize = 4
	}
	if *objectDir != "" {
		cfg.Store.ObjectDir = *objectDir
	}
	if *verbose {
		cfg.General.LogLevel = "debug"
	} else if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "gemini-embedding-001"
	}
	if cfg.Embedding.Dim <= 0 {
		cfg.Embedding.Dim = 768
	}

	logger := configureLogger(cfg.General.LogLevel)
	slog.SetDefault(logger)

	tree, err := engine.Load(cfg.Tree.Path)
	if err != nil {
		logger.Error("failed to load tree", "path", cfg.Tree.Path, "error", err)
		os.Exit(1)
	}

	switch cmd {
	case "show-tree":
		runShowTree(tree)
		return
	case "show-leaves":
		runShowLeaves(tree, *target)
		return
	}

	if *intent == "" {
		die("missing -intent")
	}
	if *target != "" && tree.Get(*target) == nil {
		logger.Error("unknown target node", "target", *target)
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.Store.DocumentDB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create db directory", "error", err)
			os.Exit(1)
		}
	}

	docs, err := store.Open(cfg.Store.DocumentDB)
	if err != nil {
		logger.Error("failed to open document store", "path", cfg.Store.DocumentDB, "error", err)
		os.Exit(1)
	}
	defer docs.Close()

	pool := effects.NewPool(cfg.General.WorkerPoolSize, *queueDepth, logger)
	defer pool.Shutdown()
	submit := pool.Submit

	var objects store.ObjectStore
	if cfg.Store.ObjectDir != "" {
		localObjects, err := store.NewLocalObjectStore(cfg.Store.ObjectDir)
		if err != nil {
			logger.Error("failed to open object store", "dir", cfg.Store.ObjectDir, "error", err)
			os.Exit(1)
		}
		objects = localObjects
	}
	content := store.New(docs, objects, logger, submit)

	apiKey := *geminiAPIKey
	if apiKey == "" && cfg.Embedding.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.Embedding.APIKeyEnv)
	}
	var embeddingIdx *embedding.Index
	if apiKey != "" {
		backend, err := embedding.NewGenAIBackend(context.Background(), apiKey, cfg.Embedding.Model, cfg.Embedding.Dim)
		if err != nil {
			logger.Warn("failed to initialize embedding backend, continuing without semantic search", "error", err)
			embeddingIdx = embedding.New(nil, docs, submit, logger)
		} else {
			embeddingIdx = embedding.New(backend, docs, submit, logger)
		}
	} else {
		embeddingIdx = embedding.New(nil, docs, submit, logger)
	}

	gitLayer := git.New(cfg.Git.Workspace, cfg.Git.DefaultBranch, func(commitID, message, diffSummary string) {
		embeddingIdx.EmbedAndStore("commits", commitID, message+"\n"+diffSummary)
	})

	// codie.New receives no executeIntent callback here, so the
	// EXECUTE_INTENT safe-call always returns status "blocked".
	codieInterp := codie.New(cfg.Codie.ValidatorsDir, nil)

	arch := architect.New(docs, tree, embeddingIdx, gitLayer, cfg.Architect.SimilarityThreshold, logger, submit)

	exec := executor.New(cfg.Risk.SensitivePrefixes, cfg.Risk.CTOFallbackID, codieInterp, content, arch, submit, logger)
	exec.SetClaudeCLI(*claudeCLI)

	// No external crate-dependency manifest is wired in yet, so the
	// blast-radius PLAN optimization stays off; a future revision can
	// load one and pass engine.BuildDepGraph(deps) here instead of nil.
	engineInstance := ptc.New(tree, exec, nil, docs, content, gitLayer, submit, logger)

	runCtx := context.Background()
	if cfg.General.DefaultTimeout.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, cfg.General.DefaultTimeout.Duration)
		defer cancel()
	}

	trace, err := engineInstance.Run(runCtx, *intent, *target, *dryRun)
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	if *jsonOutput {
		raw, err := json.MarshalIndent(trace, "", "  ")
		if err != nil {
			die("failed to encode trace: %v", err)
		}
		fmt.Println(string(raw))
	} else {
		fmt.Printf("run %s: status=%s decomposed=%d approved=%d blocked=%d completed=%d failed=%d duration_ms=%d\n",
			trace.RunID, trace.Status, trace.Counts.Decomposed, trace.Counts.Approved,
			trace.Counts.Blocked, trace.Counts.Completed, trace.Counts.Failed, trace.DurationMS)
		for _, esc := range trace.Escalations {
			fmt.Printf("  escalation: %s -> %s (%s)\n", esc.From, esc.To, esc.Reason)
		}
	}

}

func splitNonEmpty(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runShowTree(tree *engine.Tree) {
	root := tree.Root()
	var walk func(n *engine.Node, depth int)
	walk = func(n *engine.Node, depth int) {
		fmt.Printf("%s- %s (%s) [%s]\n", strings.Repeat("  ", depth), n.Name, n.ID, n.Scale)
		for _, childID := range n.Children {
			if child := tree.Get(childID); child != nil {
				walk(child, depth+1)
			}
		}
	}
	walk(root, 0)
}

func runShowLeaves(tree *engine.Tree, from string) {
	for _, leaf := range tree.Leaves(from) {
		fmt.Printf("%s\t%s\t%s\n", leaf.ID, leaf.Name, leaf.Scale)
	}
}
