package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"isites_migrator/internal/canvas"
	"isites_migrator/internal/domain"
	"isites_migrator/internal/selector"
	"isites_migrator/internal/service"
)

func newImportCmd(e *env) *cobra.Command {
	var (
		keyword  string
		courseID string
		csvPath  string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import published course archives into Canvas and wait for completion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := oneSelection(keyword != "", csvPath != ""); err != nil {
				return fmt.Errorf("%w: use one of --keyword, --csv", err)
			}
			if keyword != "" && courseID == "" {
				return errors.New("--canvas-course-id is required with --keyword")
			}

			ctx := cmd.Context()
			blobs, err := e.blobStore(ctx)
			if err != nil {
				return err
			}

			lms := canvas.New(canvas.Config{
				BaseURL: e.cfg.Canvas.BaseURL,
				Token:   e.cfg.Canvas.Token,
				Timeout: e.cfg.Canvas.Timeout,
			}, e.logger)

			svc := service.NewImportService(lms, blobs, e.events, e.logger, e.cfg.Import, nil)

			var jobs []*domain.MigrationJob
			if keyword != "" {
				job, err := svc.Submit(ctx, domain.CourseSelector{Keyword: keyword, CanvasCourseID: courseID})
				if err != nil {
					return err
				}
				jobs = append(jobs, job)
			} else {
				batch, err := selector.ReadImportFile(csvPath)
				if err != nil {
					return err
				}
				e.logSkipped(batch)
				jobs, _ = svc.SubmitBatch(ctx, batch.Selectors)
			}

			_, err = svc.Await(ctx, jobs)
			return err
		},
	}

	cmd.Flags().StringVar(&keyword, "keyword", "", "iSites keyword of the course archive to import")
	cmd.Flags().StringVar(&courseID, "canvas-course-id", "", "Canvas course receiving the archive")
	cmd.Flags().StringVar(&csvPath, "csv", "", "import the keyword,canvas_course_id pairs of a CSV file")
	return cmd
}
