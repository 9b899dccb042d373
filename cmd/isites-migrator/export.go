package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"isites_migrator/internal/blobstore"
	"isites_migrator/internal/selector"
	"isites_migrator/internal/service"
	"isites_migrator/internal/storage/postgres"
)

func newExportCmd(e *env) *cobra.Command {
	var (
		termID  int64
		keyword string
		csvPath string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export iSites course files and upload the archives to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := oneSelection(cmd.Flags().Changed("term-id"), keyword != "", csvPath != ""); err != nil {
				return fmt.Errorf("%w: use one of --term-id, --keyword, --csv", err)
			}

			ctx := cmd.Context()
			svc, err := e.exportService(ctx)
			if err != nil {
				return err
			}

			switch {
			case keyword != "":
				_, err := svc.ExportCourse(ctx, keyword)
				return err
			case csvPath != "":
				batch, err := selector.ReadExportFile(csvPath)
				if err != nil {
					return err
				}
				e.logSkipped(batch)
				svc.ExportBatch(ctx, batch.Selectors)
			default:
				if _, err := svc.ExportTerm(ctx, termID); err != nil {
					return err
				}
			}
			return ctx.Err()
		},
	}

	cmd.Flags().Int64Var(&termID, "term-id", 0, "export every official iSites course of a term")
	cmd.Flags().StringVar(&keyword, "keyword", "", "export a single iSites course")
	cmd.Flags().StringVar(&csvPath, "csv", "", "export the courses listed in a one-column CSV file")
	return cmd
}

func (e *env) exportService(ctx context.Context) (*service.ExportService, error) {
	db, err := sqlx.Connect("postgres", e.cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	e.onClose(db.Close)
	e.logger.Info("connected to database")

	blobs, err := e.blobStore(ctx)
	if err != nil {
		return nil, err
	}

	return service.NewExportService(
		postgres.NewSiteStore(db),
		postgres.NewTopicStore(db),
		postgres.NewFileStore(db),
		postgres.NewTopicTextStore(db),
		postgres.NewTransactionManager(db),
		blobs,
		e.events,
		e.logger,
		e.cfg.Export,
	), nil
}

func (e *env) blobStore(ctx context.Context) (*blobstore.S3Store, error) {
	s3 := e.cfg.S3
	store, err := blobstore.NewS3Store(ctx, blobstore.Config{
		Region:          s3.Region,
		Endpoint:        s3.Endpoint,
		AccessKeyID:     s3.AccessKeyID,
		SecretAccessKey: s3.SecretAccessKey,
		Bucket:          s3.Bucket,
		KeyPrefix:       s3.KeyPrefix,
	}, e.logger)
	if err != nil {
		return nil, err
	}
	e.logger.Info("using blob store", "bucket", store.Bucket(), "key_prefix", s3.KeyPrefix)
	return store, nil
}

func (e *env) logSkipped(batch *selector.Batch) {
	for _, row := range batch.Skipped {
		e.logger.Error("skipping malformed row", "line", row.Line, "reason", row.Reason)
	}
	e.logger.Info("read batch file", "courses", len(batch.Selectors), "skipped", len(batch.Skipped))
}
