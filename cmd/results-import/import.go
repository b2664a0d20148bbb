package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/internal/repository"
	"github.com/noah-isme/school-site-api/internal/service"
	"github.com/noah-isme/school-site-api/pkg/cache"
	"github.com/noah-isme/school-site-api/pkg/config"
	"github.com/noah-isme/school-site-api/pkg/database"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
	"github.com/noah-isme/school-site-api/pkg/logger"
	"github.com/noah-isme/school-site-api/pkg/storage"
)

type importOptions struct {
	file       string
	examType   string
	dryRun     bool
	migrate    bool
	flushCache bool
}

func newRootCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:           "results-import",
		Short:         "Bulk import exam results from a CSV file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "CSV file using the basic or complete template (required)")
	cmd.Flags().StringVar(&opts.examType, "exam-type", "", "Exam type for files without an exam_type column")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate and print the grouped records without writing")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "Ensure the results schema before importing")
	cmd.Flags().BoolVar(&opts.flushCache, "flush-cache", false, "Drop every cached result lookup after importing")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(ctx context.Context, opts importOptions, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	content, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.file, err)
	}
	upload := service.ResultUpload{
		Filename: filepath.Base(opts.file),
		Content:  content,
		ExamType: opts.examType,
	}
	svcCfg := service.ResultServiceConfig{
		ExamTypes:      cfg.Results.ExamTypes,
		MaxExamTypes:   cfg.Results.MaxExamTypes,
		MaxUploadBytes: cfg.Results.MaxUploadBytes,
		CacheTTL:       cfg.Results.CacheTTL,
	}

	if opts.dryRun {
		svc := service.NewResultService(nil, nil, nil, nil, nil, svcCfg, nil, logr)
		prepared, err := svc.PrepareUpload(upload)
		if err != nil {
			return reportError(out, err)
		}
		renderPreview(out, prepared)
		return nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if opts.migrate {
		if err := database.EnsureResultSchema(ctx, db); err != nil {
			return fmt.Errorf("migrate results schema: %w", err)
		}
	}

	cacheSvc := service.NewCacheService(nil, nil, cfg.Results.CacheTTL, logr, false)
	redisClient, err := cache.NewRedis(ctx, cfg.Redis, cfg.Results)
	if err != nil {
		logr.Warn("redis unavailable, cached lookups will expire on their own", zap.Error(err))
	} else if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, "school-site")
		defer cacheRepo.Close()
		cacheSvc = service.NewCacheService(cacheRepo, nil, cfg.Results.CacheTTL, logr, true)
	}

	archive, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		return fmt.Errorf("prepare upload archive: %w", err)
	}

	svc := service.NewResultService(repository.NewResultRepository(db), cacheSvc, nil, archive, nil, svcCfg, nil, logr)
	result, err := svc.Upload(ctx, upload)
	if err != nil {
		return reportError(out, err)
	}
	renderResult(out, result)

	if opts.flushCache && cacheSvc.Enabled() {
		if err := cacheSvc.Invalidate(ctx, service.LookupCachePattern); err != nil {
			return fmt.Errorf("flush lookup cache: %w", err)
		}
		fmt.Fprintln(out, "Lookup cache flushed")
	}
	return nil
}

func reportError(out io.Writer, err error) error {
	appErr := appErrors.FromError(err)
	red := color.New(color.FgRed)
	for _, detail := range appErr.Details {
		red.Fprintf(out, "  - %s\n", detail)
	}
	return appErr
}

func renderPreview(out io.Writer, prepared *service.PreparedUpload) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Roll No", "Class Code", "Student", "Exam", "Status", "Grade", "Subjects"})
	for _, record := range prepared.Records {
		table.Append([]string{
			record.RollNo,
			record.ClassCode,
			record.StudentName,
			record.ExamType,
			string(record.ResultStatus),
			record.Grade,
			strconv.Itoa(len(record.Subjects)),
		})
	}
	table.Render()

	color.New(color.FgCyan).Fprintf(out, "%s template: %d records, %d skipped rows (dry run, nothing written)\n",
		prepared.Kind, len(prepared.Records), prepared.SkippedRows)
}

func renderResult(out io.Writer, result *models.BulkUploadResult) {
	if len(result.Duplicates) > 0 {
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Roll No", "Class Code", "Exam (already stored)"})
		for _, dup := range result.Duplicates {
			table.Append([]string{dup.RollNo, dup.ClassCode, dup.ExamType})
		}
		table.Render()
	}

	color.New(color.FgGreen).Fprintf(out, "Imported %d of %d records (%s template)\n", result.Inserted, result.Records, result.Template)
	if result.SkippedRows > 0 || len(result.Duplicates) > 0 {
		color.New(color.FgYellow).Fprintf(out, "%d skipped rows, %d duplicates\n", result.SkippedRows, len(result.Duplicates))
	}
	if result.ArchivePath != "" {
		fmt.Fprintf(out, "Archived upload: %s\n", result.ArchivePath)
	}
}
