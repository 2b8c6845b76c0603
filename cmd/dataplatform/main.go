package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fitnessllm/dataplatform/pkg/batch"
	"github.com/fitnessllm/dataplatform/pkg/bootstrap"
	"github.com/fitnessllm/dataplatform/pkg/orchestrator"
	"github.com/fitnessllm/dataplatform/pkg/types"

	_ "github.com/fitnessllm/dataplatform/pkg/sources/strava"
)

func main() {
	stageFlag := flag.String("stage", "full_etl", "Stage to run: ingest, bronze_etl, silver_etl, full_etl or batch")
	userFlag := flag.String("user", "", "User id (required unless -stage batch)")
	sourceFlag := flag.String("source", "strava", "Data source name")
	streamsFlag := flag.String("streams", "", "Comma-separated stream types (default: full catalog)")
	workersFlag := flag.Int("workers", 0, "Batch worker pool width (default: WORKER env or CPU count)")
	sampleFlag := flag.Int("sample", 0, "Cap on activities per stream (default: SAMPLE env)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.NewService(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "service init failed: %v\n", err)
		os.Exit(1)
	}
	if *workersFlag > 0 {
		svc.Config.Workers = *workersFlag
	}
	if *sampleFlag > 0 {
		svc.Config.Sample = *sampleFlag
	}

	var streams []string
	if *streamsFlag != "" {
		for _, s := range strings.Split(*streamsFlag, ",") {
			if s = strings.TrimSpace(s); s != "" {
				streams = append(streams, s)
			}
		}
	}

	orch, err := orchestrator.FromService(ctx, svc, *sourceFlag, streams)
	if err != nil {
		slog.Error("Failed to wire pipeline", "error", err)
		os.Exit(1)
	}

	if *stageFlag == "batch" {
		runBatch(ctx, svc, orch, *sourceFlag)
		return
	}

	if *userFlag == "" {
		fmt.Fprintln(os.Stderr, "-user is required unless -stage batch")
		os.Exit(2)
	}
	stages, err := types.ParseStages([]string{*stageFlag})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	result := orch.Run(ctx, *userFlag, stages)
	printJSON(result)
	if !result.Succeeded() {
		os.Exit(1)
	}
}

func runBatch(ctx context.Context, svc *bootstrap.Service, orch *orchestrator.Orchestrator, dataSource string) {
	coordinator := batch.NewCoordinator(svc.DB, svc.Pub, orch, dataSource, svc.Config.Workers)
	report, err := coordinator.RunAll(ctx, types.FullPipeline)
	if report != nil {
		printJSON(report)
	}
	if err != nil {
		slog.Error("Batch aborted", "error", err)
		os.Exit(1)
	}
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		slog.Error("Failed to encode report", "error", err)
	}
}
