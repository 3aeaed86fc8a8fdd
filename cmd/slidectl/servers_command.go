package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
)

func newServersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the configured archives and the storage classes they serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := ctx.clientMapping()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderServers(mapping))
			return nil
		},
	}
}

func renderServers(mapping *dicomweb.ClientMapping) string {
	defaultID := mapping.Default().ID()

	rows := make([][]string, 0, len(mapping.Managers()))
	for _, m := range mapping.Managers() {
		classes := make([]string, 0)
		for _, class := range dicom.StorageClasses() {
			if mapping.For(class) == m {
				classes = append(classes, class.Name())
			}
		}
		id := m.ID()
		if id == defaultID {
			id += " (default)"
		}
		rows = append(rows, []string{
			id,
			m.BaseURL(),
			yesNo(m.Readable()),
			yesNo(m.Writable()),
			strings.Join(classes, "\n"),
		})
	}
	return renderTable(
		[]string{"Server", "URL", "Read", "Write", "Storage classes"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
