package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mvdown/internal/fetch"
	"mvdown/internal/presenter"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Manage finished files on the server",
	}
	filesCmd.AddCommand(newFilesListCommand(ctx))
	filesCmd.AddCommand(newFilesDeleteCommand(ctx))
	filesCmd.AddCommand(newFilesDeleteAllCommand(ctx))
	return filesCmd
}

func newFilesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List files stored on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			files, err := client.Files(cmd.Context())
			if err != nil {
				return fmt.Errorf("list files: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No files on the server")
				return nil
			}
			var total int64
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				total += f.Size
				rows = append(rows, []string{f.Name, fallbackText(f.Type, "other"), presenter.FormatSize(f.Size)})
			}
			fmt.Fprintln(out, renderTable([]column{left("Name"), left("Type"), right("Size")}, rows))
			fmt.Fprintf(out, "%d files, %s\n", len(files), presenter.FormatSize(total))
			return nil
		},
	}
}

func newFilesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete one file from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.DeleteFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (freed %s)\n", fallbackText(resp.Filename, args[0]), presenter.FormatSize(resp.FreedBytes))
			return nil
		},
	}
}

func newFilesDeleteAllCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every file from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("refusing to delete every server file without --yes")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.DeleteAllFiles(cmd.Context())
			if err != nil {
				return fmt.Errorf("delete all files: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d files (freed %s)\n", resp.DeletedCount, presenter.FormatSize(resp.FreedBytes))
			if !resp.Success {
				return errors.New("server reported that some files could not be deleted")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm deleting every file")
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var dir string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "fetch <name>",
		Short: "Save a finished server file into the download directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			target := cfg.Paths.DownloadDir
			if strings.TrimSpace(dir) != "" {
				target = dir
			}
			var bar io.Writer
			if errOut := cmd.ErrOrStderr(); presenter.IsTerminal(errOut) {
				bar = errOut
			}
			res, err := fetch.Fetch(cmd.Context(), client, args[0], fetch.Options{
				Dir:       target,
				Overwrite: overwrite,
				Progress:  bar,
				Logger:    ctx.loggerValue(),
			})
			if err != nil {
				return err
			}
			printFetchResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Destination directory (defaults to paths.download_dir)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing local file instead of picking a new name")
	return cmd
}
