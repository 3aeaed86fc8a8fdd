package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wsiviewer/backend/internal/application/caseviewer"
	"github.com/wsiviewer/backend/internal/domain/slide"
	"github.com/wsiviewer/backend/internal/domain/viewer"
)

func newSlidesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "slides <study-instance-uid>",
		Short: "Group the series of a study into slides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := ctx.clientMapping()
			if err != nil {
				return err
			}
			svc := caseviewer.NewService(mapping.Default(), caseviewer.WithLogger(ctx.logger))
			cv := svc.LoadCase(ctx.requestContext(cmd.Context()), viewer.Route{StudyInstanceUID: args[0]})
			if cv.Status == caseviewer.StatusFailed {
				return errors.New(cv.Error)
			}
			if len(cv.Slides) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No slides found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSlides(cv.Slides))
			return nil
		},
	}
}

func renderSlides(slides []*slide.Slide) string {
	rows := make([][]string, 0, len(slides))
	for i, s := range slides {
		acquisition, _ := s.AcquisitionUID()
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			s.ContainerIdentifier(),
			s.Description(),
			acquisition,
			strings.Join(s.SeriesInstanceUIDs(), "\n"),
			strings.Join(s.OpticalPathIdentifiers(), ","),
			strconv.Itoa(len(s.VolumeImages())),
			yesNo(len(s.LabelImages()) > 0),
			strings.Join(s.Warnings(), "\n"),
		})
	}
	return renderTable(
		[]string{"#", "Container", "Description", "Acquisition UID", "Series", "Optical paths", "Volume images", "Label", "Warnings"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}
