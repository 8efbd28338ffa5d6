package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mvdown/internal/backend"
	"mvdown/internal/presenter"
)

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "formats <url>",
		Short: "List the formats the backend offers for a media URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Formats(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("fetch formats: %w", err)
			}
			out := cmd.OutOrStdout()
			status := newStatusPrinter(out)

			fmt.Fprintf(out, "Title: %s\n", fallbackText(resp.Title, "(untitled)"))
			if resp.IsPlaylist {
				fmt.Fprintln(out, "Playlist: formats apply to every entry")
			}
			for _, section := range []struct {
				title   string
				formats []backend.Format
				audio   bool
			}{
				{"Video formats", resp.VideoFormats, false},
				{"Audio formats", resp.AudioFormats, true},
			} {
				fmt.Fprintln(out)
				status.header(section.title)
				if len(section.formats) == 0 {
					fmt.Fprintln(out, "None")
					continue
				}
				fmt.Fprintln(out, renderFormats(section.formats, section.audio))
			}
			fmt.Fprintf(out, "\nDownload with: mvdown download %q --format <id>\n", args[0])
			return nil
		},
	}
}

func renderFormats(formats []backend.Format, audio bool) string {
	quality := left("Resolution")
	if audio {
		quality = right("Bitrate")
	}
	rows := make([][]string, 0, len(formats))
	for _, f := range formats {
		q := f.Resolution
		if audio && f.ABR > 0 {
			q = fmt.Sprintf("%.0f kbps", f.ABR)
		}
		size := "--"
		if f.Filesize > 0 {
			size = presenter.FormatSize(f.Filesize)
		}
		rows = append(rows, []string{f.FormatID, f.Ext, q, size, f.FormatNote})
	}
	return renderTable([]column{left("ID"), left("Ext"), quality, right("Size"), left("Note")}, rows)
}

func fallbackText(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
