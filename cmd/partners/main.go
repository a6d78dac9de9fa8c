package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"partners/internal/config"
	"partners/internal/connectors"
	"partners/internal/detector"
	"partners/internal/listener"
	"partners/internal/logger"
	"partners/internal/pipeline"
	"partners/internal/storage"
	"partners/internal/store"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := logger.New(os.Stderr, cfg.LogLevel)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	st := store.New(db)

	policy, err := pipeline.NewPolicy(cfg.Thresholds)
	must(err)
	client := detector.NewClient(cfg)
	analysis := pipeline.NewAnalysisService(log, st, client, policy, db)
	if _, err := analysis.Hydrate(); err != nil && !errors.Is(err, pipeline.ErrCacheWrite) {
		must(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "analyze":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "upload path (.xlsx or .html)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		snap, err := analysis.AnalyzeFile(ctx, *file)
		must(err)
		printSummary(snap)
	case "import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "saved detection response (.json)")
		name := fs.String("filename", "", "upload filename to record (default: the json file name)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		blob, err := os.ReadFile(*file)
		must(err)
		payload, err := detector.DecodePayload(blob)
		must(err)
		filename := *name
		if filename == "" {
			filename = filepath.Base(*file)
		}
		snap, err := analysis.ImportPayload(ctx, filename, payload)
		must(err)
		printSummary(snap)
	case "view":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		status := fs.String("status", pipeline.StatusAll, "all|duplicate|potential_duplicate|no_match")
		query := fs.String("q", "", "search name, acronym or id")
		page := fs.Int("page", 1, "page number")
		pageSize := fs.Int("pageSize", cfg.ViewPageSize, "rows per page")
		_ = fs.Parse(os.Args[2:])
		snap, _ := st.Get()
		if snap == nil {
			fmt.Println("no analysis loaded; run analyze or import first")
			return
		}
		params := pipeline.ViewParams{Status: *status, Query: *query, Page: *page, PageSize: *pageSize}
		res := pipeline.View(snap, params)
		if len(res.Items) == 0 && res.TotalPages > 0 {
			params.Page = pipeline.ClampPage(params.Page, res.TotalPages)
			res = pipeline.View(snap, params)
		}
		printView(os.Stdout, snap, res, params.Page)
	case "export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		status := fs.String("status", pipeline.StatusAll, "all|duplicate|potential_duplicate|no_match")
		query := fs.String("q", "", "search name, acronym or id")
		format := fs.String("format", "csv", "csv|xlsx")
		outDir := fs.String("out", cfg.OutputDir, "output directory")
		_ = fs.Parse(os.Args[2:])
		snap, err := analysis.Current()
		must(err)
		records := pipeline.Filter(snap, *status, *query)
		path := filepath.Join(*outDir, pipeline.ExportFilename(snap.AnalysisID, *format))
		switch *format {
		case "csv":
			must(pipeline.WriteCSV(records, path))
		case "xlsx":
			must(pipeline.ExportRowsToXLSX(records, path))
		default:
			must(fmt.Errorf("unsupported format: %s", *format))
		}
		fmt.Printf("exported %d rows to %s\n", len(records), path)
	case "reclassify":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		potential := fs.Float64("potential", cfg.Thresholds.Potential, "potential duplicate threshold")
		duplicate := fs.Float64("duplicate", cfg.Thresholds.Duplicate, "duplicate threshold")
		exact := fs.Float64("exact", cfg.Thresholds.Exact, "exact match threshold")
		_ = fs.Parse(os.Args[2:])
		next, err := pipeline.NewPolicy(config.Thresholds{Potential: *potential, Duplicate: *duplicate, Exact: *exact})
		must(err)
		snap, err := analysis.Reclassify(next)
		must(err)
		printSummary(snap)
	case "clear":
		must(st.Clear())
		fmt.Println("analysis cleared")
	case "config":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		remote := fs.Bool("remote", false, "also fetch the detection service configuration")
		_ = fs.Parse(os.Args[2:])
		th := policy.Thresholds()
		fmt.Printf("thresholds potential=%g duplicate=%g exact=%g\n", th.Potential, th.Duplicate, th.Exact)
		fmt.Printf("detector url=%s pageSize=%d db=%s\n", cfg.DetectorAPIBaseURL, cfg.ViewPageSize, cfg.DBPath)
		if *remote {
			out, err := client.RemoteConfig(ctx)
			must(err)
			blob, _ := json.MarshalIndent(out, "", "  ")
			fmt.Printf("remote config:\n%s\n", blob)
		}
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := connectors.New(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(log, db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d known=%d\n", *provider, result.Fetched, result.Stored, result.Known)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		intake := pipeline.NewIntakeService(log, db, analysis)
		if strings.TrimSpace(*messageID) != "" {
			res, err := intake.ProcessByProviderMessageID(ctx, *provider, *messageID)
			printIntake(res)
			must(err)
			return
		}
		results, err := intake.ProcessPending(ctx, *batch, *provider)
		for _, res := range results {
			printIntake(res)
		}
		must(err)
		fmt.Printf("processed pending messages=%d\n", len(results))
	case "mail:listen":
		conn, err := connectors.New(cfg, cfg.MailListenerProvider)
		must(err)
		s := listener.NewService(log, cfg, db, conn, analysis)
		must(s.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: partners <command>")
	fmt.Println("commands:")
	fmt.Println("  analyze --file=./partners.xlsx")
	fmt.Println("  import --file=./response.json [--filename=partners.xlsx]")
	fmt.Println("  view [--status=all|duplicate|potential_duplicate|no_match] [--q=...] [--page=1] [--pageSize=50]")
	fmt.Println("  export [--status=...] [--q=...] [--format=csv|xlsx] [--out=./out]")
	fmt.Println("  reclassify [--potential=0.75] [--duplicate=0.85] [--exact=1.0]")
	fmt.Println("  clear")
	fmt.Println("  config [--remote]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
}

func must(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, pipeline.ErrNoSnapshot) {
		fmt.Fprintln(os.Stderr, "error: no analysis loaded; run analyze or import first")
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
