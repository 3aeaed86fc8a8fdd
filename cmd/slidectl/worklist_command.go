package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wsiviewer/backend/internal/application/worklist"
)

func newWorklistCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worklist",
		Short: "List the slide microscopy studies of the default archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := ctx.clientMapping()
			if err != nil {
				return err
			}
			svc := worklist.NewService(mapping.Default(), ctx.logger)
			studies, err := svc.SearchStudies(ctx.requestContext(cmd.Context()))
			if err != nil {
				return fmt.Errorf("search studies: %w", err)
			}
			if len(studies) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No studies found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStudies(studies))
			return nil
		},
	}
}

func renderStudies(studies []worklist.StudySummary) string {
	rows := make([][]string, 0, len(studies))
	for _, s := range studies {
		rows = append(rows, []string{
			s.StudyInstanceUID,
			s.PatientName,
			s.PatientID,
			s.StudyDate,
			s.AccessionNumber,
			strings.Join(s.ModalitiesInStudy, ","),
		})
	}
	return renderTable(
		[]string{"Study UID", "Patient", "Patient ID", "Date", "Accession", "Modalities"},
		rows,
		nil,
	)
}
