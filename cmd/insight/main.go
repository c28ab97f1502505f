package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-insight/internal/dto"
	"github.com/noah-isme/campus-insight/internal/models"
	"github.com/noah-isme/campus-insight/internal/query"
	"github.com/noah-isme/campus-insight/internal/service"
	"github.com/noah-isme/campus-insight/pkg/config"
	appErrors "github.com/noah-isme/campus-insight/pkg/errors"
	"github.com/noah-isme/campus-insight/pkg/logger"
)

const usage = `usage: insight <command> [flags]

commands:
  list      load datasets and print their summaries
  query     run a JSON or YAML query document
  schedule  build a timetable from a sections query and a rooms query

run "insight <command> -h" for command flags`

type commonFlags struct {
	datasets    datasetFlags
	exportFmt   string
	title       string
	async       bool
	metricsFile string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.Var(&c.datasets, "dataset", "dataset to load as id:kind:path (repeatable)")
	fs.StringVar(&c.exportFmt, "export", "", "also render the result as csv or pdf")
	fs.StringVar(&c.title, "title", "campus insight export", "export title")
	fs.BoolVar(&c.async, "async", false, "render the export on the background queue")
	fs.StringVar(&c.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to initialise", zap.Error(err))
	}

	code := run(ctx, a, os.Args[1], os.Args[2:], os.Stdout)
	a.Close()
	os.Exit(code)
}

func run(ctx context.Context, a *app, command string, args []string, out io.Writer) int {
	var flags commonFlags
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	flags.register(fs)

	var queryPath, sectionsPath, roomsPath string
	switch command {
	case "list":
	case "query":
		fs.StringVar(&queryPath, "q", "", "query document (.json, .yaml or .yml)")
	case "schedule":
		fs.StringVar(&sectionsPath, "sections", "", "query document selecting course sections")
		fs.StringVar(&roomsPath, "rooms", "", "query document selecting rooms")
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if flags.metricsFile != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(flags.metricsFile, a.metrics.Registry()); err != nil {
				a.logger.Warn("failed to write metrics", zap.Error(err))
			}
		}()
	}

	if err := a.loadDatasets(ctx, flags.datasets); err != nil {
		return fail(a, err)
	}

	var (
		result  any
		request *dto.ExportRequest
	)
	switch command {
	case "list":
		result = a.datasets.List(ctx)
	case "query":
		if queryPath == "" {
			return fail(a, appErrors.Clone(appErrors.ErrValidation, "query requires -q"))
		}
		columns, records, err := a.runQueryFile(ctx, queryPath)
		if err != nil {
			return fail(a, err)
		}
		result = records
		if flags.exportFmt != "" {
			request = &dto.ExportRequest{
				Title:   flags.title,
				Format:  models.ExportFormat(flags.exportFmt),
				Columns: columns,
				Records: toMaps(records),
			}
		}
	case "schedule":
		if sectionsPath == "" || roomsPath == "" {
			return fail(a, appErrors.Clone(appErrors.ErrValidation, "schedule requires -sections and -rooms"))
		}
		resp, err := a.schedule(ctx, sectionsPath, roomsPath)
		if err != nil {
			return fail(a, err)
		}
		result = resp
		if flags.exportFmt != "" {
			req := service.ScheduleExportRequest(flags.title, models.ExportFormat(flags.exportFmt), resp.Assignments)
			request = &req
		}
	}

	if err := writeJSON(out, result); err != nil {
		return fail(a, err)
	}
	if request != nil {
		if err := a.export(ctx, *request, flags.async); err != nil {
			return fail(a, err)
		}
	}
	return 0
}

func (a *app) schedule(ctx context.Context, sectionsPath, roomsPath string) (*dto.GenerateScheduleResponse, error) {
	_, sectionRecords, err := a.runQueryFile(ctx, sectionsPath)
	if err != nil {
		return nil, err
	}
	_, roomRecords, err := a.runQueryFile(ctx, roomsPath)
	if err != nil {
		return nil, err
	}
	req := dto.GenerateScheduleRequest{
		Sections: make([]models.SectionRecord, len(sectionRecords)),
		Rooms:    make([]models.RoomRecord, len(roomRecords)),
	}
	for i, rec := range sectionRecords {
		req.Sections[i] = models.SectionFromRecord(rec)
	}
	for i, rec := range roomRecords {
		req.Rooms[i] = models.RoomFromRecord(rec)
	}
	return a.schedules.Generate(ctx, req), nil
}

func (a *app) export(ctx context.Context, req dto.ExportRequest, async bool) error {
	var (
		status *dto.ExportJobResponse
		err    error
	)
	if async {
		status, err = a.exports.Submit(ctx, req)
		if err == nil {
			waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			status, err = a.exports.Wait(waitCtx, status.ID, 0)
		}
	} else {
		status, err = a.exports.Save(ctx, req)
	}
	if err != nil {
		return err
	}
	if status.Status != models.ExportStatusFinished {
		return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("export %s ended as %s: %s", status.ID, status.Status, status.Error))
	}
	a.logger.Info("export written", zap.String("job_id", status.ID), zap.String("path", status.Path))
	return nil
}

func toMaps(records []query.Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = rec
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail reports err on stderr in the typed error shape and returns the exit code.
func fail(a *app, err error) int {
	typed := appErrors.FromError(err)
	a.logger.Debug("command failed", zap.String("code", typed.Code), zap.Error(err))
	_ = writeJSON(os.Stderr, typed)
	return 1
}
