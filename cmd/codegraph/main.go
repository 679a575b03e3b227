// Command codegraph ingests codebases into a SQLite code graph and serves
// hybrid retrieval queries over it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lodestone-ai/codegraph/internal/config"
	"github.com/lodestone-ai/codegraph/internal/embed"
	"github.com/lodestone-ai/codegraph/internal/ingest"
	"github.com/lodestone-ai/codegraph/internal/model"
	"github.com/lodestone-ai/codegraph/internal/retrieve"
	"github.com/lodestone-ai/codegraph/internal/store"
)

const usage = `usage: codegraph <command> [flags]

commands:
  ingest     analyze a codebase into a new snapshot
  search     hybrid retrieval over a snapshot
  callers    list callers of a symbol
  callees    list callees of a symbol
  deps       list a file's imports or dependents
  endpoints  list detected HTTP endpoints by tag
  types      summarize type annotation usage
`

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(ctx, log, os.Args[1], os.Args[2:]); err != nil {
		log.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	if os.Getenv("CODEGRAPH_DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func run(ctx context.Context, log *slog.Logger, command string, args []string) error {
	switch command {
	case "ingest":
		return runIngest(ctx, log, args)
	case "search":
		return runSearch(ctx, log, args)
	case "callers":
		return runCallGraph(args, true)
	case "callees":
		return runCallGraph(args, false)
	case "deps":
		return runDeps(args)
	case "endpoints":
		return runEndpoints(args)
	case "types":
		return runTypes(args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stderr, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// commonFlags wires the flags shared by every command onto a flag set.
func commonFlags(fs *flag.FlagSet) (configPath, dbPath *string) {
	configPath = fs.String("config", "codegraph.yaml", "config file path")
	dbPath = fs.String("db", "", "database path (overrides config)")
	return configPath, dbPath
}

func openEnv(configPath, dbPath string) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

// resolveSnapshot picks the requested snapshot, defaulting to the latest
// completed one.
func resolveSnapshot(st *store.Store, id string) (*model.Snapshot, error) {
	if id != "" {
		return st.GetSnapshot(id)
	}
	snap, err := st.LatestCompletedSnapshot()
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("no completed snapshot; run ingest first")
	}
	return snap, nil
}

func runIngest(ctx context.Context, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath, dbPath := commonFlags(fs)
	path := fs.String("path", ".", "directory or local clone to analyze")
	url := fs.String("url", "", "remote git URL (implies a shallow clone)")
	name := fs.String("name", "", "repository name (defaults to the path base)")
	sourceType := fs.String("source", "", "source type: directory, git_local or git_remote")
	noEmbed := fs.Bool("no-embed", false, "skip embeddings; lexical and graph retrieval only")
	fs.Parse(args)

	cfg, st, err := openEnv(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	src := ingest.Source{Name: *name, Path: *path, RemoteURL: *url}
	switch {
	case *sourceType != "":
		src.Type = model.SourceType(*sourceType)
	case *url != "":
		src.Type = model.SourceGitRemote
	default:
		src.Type = model.SourceDirectory
	}
	if src.Name == "" {
		if *url != "" {
			src.Name = *url
		} else if abs, err := filepath.Abs(*path); err == nil {
			src.Name = filepath.Base(abs)
		} else {
			src.Name = *path
		}
	}

	var batcher *embed.Batcher
	if !*noEmbed {
		batcher = embed.NewBatcher(log, embed.NewOpenAI(cfg.Embed), cfg.Embed)
	}

	snap, err := ingest.New(log, st, cfg, batcher).Ingest(ctx, src)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot %s completed\n", snap.ID)
	for language, count := range snap.LangProfile {
		fmt.Printf("  %-12s %d\n", language, count)
	}
	return nil
}

func runSearch(ctx context.Context, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath, dbPath := commonFlags(fs)
	snapshotID := fs.String("snapshot", "", "snapshot id (defaults to latest completed)")
	query := fs.String("query", "", "search query")
	topK := fs.Int("top", 0, "result count (defaults to config top_k)")
	noEmbed := fs.Bool("no-embed", false, "skip the vector signal")
	noExpand := fs.Bool("no-expand", false, "skip graph expansion")
	wLex := fs.Float64("w-lexical", -1, "lexical weight (defaults to config)")
	wVec := fs.Float64("w-vector", -1, "vector weight (defaults to config)")
	wGraph := fs.Float64("w-graph", -1, "graph weight (defaults to config)")
	fs.Parse(args)

	if *query == "" {
		return fmt.Errorf("search needs -query")
	}
	cfg, st, err := openEnv(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := resolveSnapshot(st, *snapshotID)
	if err != nil {
		return err
	}

	var embedder embed.Embedder
	if !*noEmbed {
		embedder = embed.NewOpenAI(cfg.Embed)
	}
	req := retrieve.Request{
		SnapshotID: snap.ID, Query: *query, TopK: *topK, NoExpand: *noExpand,
	}
	if *wLex >= 0 || *wVec >= 0 || *wGraph >= 0 {
		w := retrieve.Weights{
			Lexical: cfg.Search.LexicalWeight,
			Vector:  cfg.Search.VectorWeight,
			Graph:   cfg.Search.GraphWeight,
		}
		if *wLex >= 0 {
			w.Lexical = *wLex
		}
		if *wVec >= 0 {
			w.Vector = *wVec
		}
		if *wGraph >= 0 {
			w.Graph = *wGraph
		}
		req.Weights = &w
	}

	r := retrieve.New(log, st, embedder, cfg.Search)
	results, err := r.Retrieve(ctx, req)
	if err != nil {
		return err
	}

	for i, res := range results {
		fmt.Printf("%2d. %.4f  chunk %s (%s, lines %d-%d)\n",
			i+1, res.Score, res.Chunk.ID, res.Chunk.Type, res.Chunk.StartLine, res.Chunk.EndLine)
		fmt.Printf("    signals: lexical %.3f  vector %.3f  graph %.3f\n",
			res.Lexical, res.Vector, res.Graph)
		fmt.Println(indent(res.Chunk.Content, "    "))
	}
	return nil
}

func runCallGraph(args []string, callers bool) error {
	fs := flag.NewFlagSet("callgraph", flag.ExitOnError)
	configPath, dbPath := commonFlags(fs)
	snapshotID := fs.String("snapshot", "", "snapshot id (defaults to latest completed)")
	symbol := fs.String("symbol", "", "symbol name or qualified name")
	depth := fs.Int("depth", 1, "traversal depth for callees")
	fs.Parse(args)

	if *symbol == "" {
		return fmt.Errorf("needs -symbol")
	}
	_, st, err := openEnv(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := resolveSnapshot(st, *snapshotID)
	if err != nil {
		return err
	}
	matches, err := st.SymbolsByName(snap.ID, *symbol)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no symbol named %q in snapshot %s", *symbol, snap.ID)
	}

	for _, sym := range matches {
		var related []model.Symbol
		if callers {
			related, err = st.Callers(sym.ID)
		} else if *depth > 1 {
			related, err = st.TraverseCallees(sym.ID, *depth, 100)
		} else {
			related, err = st.Callees(sym.ID)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", sym.QualName, sym.Kind)
		for _, r := range related {
			fmt.Printf("  %s  %s\n", r.QualName, r.Signature)
		}
		if len(related) == 0 {
			fmt.Println("  (none)")
		}
	}
	return nil
}

func runDeps(args []string) error {
	fs := flag.NewFlagSet("deps", flag.ExitOnError)
	configPath, dbPath := commonFlags(fs)
	snapshotID := fs.String("snapshot", "", "snapshot id (defaults to latest completed)")
	file := fs.String("file", "", "file path relative to the repo root")
	reverse := fs.Bool("reverse", false, "list dependents instead of imports")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("deps needs -file")
	}
	_, st, err := openEnv(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := resolveSnapshot(st, *snapshotID)
	if err != nil {
		return err
	}
	f, err := st.FileByPath(snap.ID, *file)
	if err != nil {
		return fmt.Errorf("file %q not found in snapshot %s", *file, snap.ID)
	}

	var files []model.File
	if *reverse {
		files, err = st.ReverseDependencies(f.ID)
	} else {
		files, err = st.FileImports(f.ID)
	}
	if err != nil {
		return err
	}
	for _, dep := range files {
		fmt.Println(dep.Path)
	}
	return nil
}

func runEndpoints(args []string) error {
	fs := flag.NewFlagSet("endpoints", flag.ExitOnError)
	configPath, dbPath := commonFlags(fs)
	snapshotID := fs.String("snapshot", "", "snapshot id (defaults to latest completed)")
	fs.Parse(args)

	_, st, err := openEnv(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := resolveSnapshot(st, *snapshotID)
	if err != nil {
		return err
	}
	grouped, err := st.EndpointsByTag(snap.ID)
	if err != nil {
		return err
	}
	for tag, eps := range grouped {
		if tag == "" {
			tag = "(untagged)"
		}
		fmt.Printf("%s\n", tag)
		for _, ep := range eps {
			fmt.Printf("  %-7s %-40s %s\n", ep.Method, ep.Path, ep.Framework)
		}
	}
	return nil
}

func runTypes(args []string) error {
	fs := flag.NewFlagSet("types", flag.ExitOnError)
	configPath, dbPath := commonFlags(fs)
	snapshotID := fs.String("snapshot", "", "snapshot id (defaults to latest completed)")
	top := fs.Int("top", 15, "how many type names to list")
	typeName := fs.String("name", "", "list symbols annotated with this type")
	fs.Parse(args)

	_, st, err := openEnv(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := resolveSnapshot(st, *snapshotID)
	if err != nil {
		return err
	}

	if *typeName != "" {
		syms, err := st.SymbolsByTypeName(snap.ID, *typeName)
		if err != nil {
			return err
		}
		for _, sym := range syms {
			fmt.Printf("%s  %s\n", sym.QualName, sym.Signature)
		}
		return nil
	}

	byCategory, topTypes, err := st.TypeUsageStats(snap.ID, *top)
	if err != nil {
		return err
	}
	fmt.Println("categories:")
	for cat, n := range byCategory {
		fmt.Printf("  %-10s %d\n", cat, n)
	}
	fmt.Println("top types:")
	for _, tc := range topTypes {
		fmt.Printf("  %-30s %-10s %d\n", tc.TypeName, tc.Category, tc.Count)
	}
	return nil
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
