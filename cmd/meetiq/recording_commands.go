package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"meetiq/internal/capture"
	"meetiq/internal/recordings"
	"meetiq/internal/textutil"
)

func newNewCommand(ctx *commandContext) *cobra.Command {
	var idFlag string

	cmd := &cobra.Command{
		Use:   "new [subject...]",
		Short: "Register a new recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer pipe.Close()

			subject := textutil.NormalizeSubject(strings.Join(args, " "))
			rec, err := pipe.store.Create(cmd.Context(), strings.TrimSpace(idFlag), pipe.cfg.Client.OwnerID, subject)
			if err != nil {
				return fmt.Errorf("create recording: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created recording %s\n", rec.ID)
			if rec.Subject != "" {
				fmt.Fprintf(out, "Subject: %s\n", rec.Subject)
			}
			fmt.Fprintf(out, "Import chunks with: meetiq import %s <dir>\n", rec.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&idFlag, "id", "", "Explicit recording identifier (defaults to a generated UUID)")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var uploadAfter bool

	cmd := &cobra.Command{
		Use:   "import <recording-id> <dir>",
		Short: "Import chunk files from a finished capture session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer pipe.Close()

			recordingID, dir := args[0], args[1]
			imported, err := capture.ImportDirectory(cmd.Context(), pipe.store, pipe.blobs, recordingID, dir, pipe.cfg.Capture.Extensions)
			if err != nil {
				return fmt.Errorf("import chunks: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d chunks into recording %s\n", imported, recordingID)
			if !uploadAfter {
				return nil
			}
			return runUpload(cmd.Context(), cmd, pipe, recordingID)
		},
	}

	cmd.Flags().BoolVar(&uploadAfter, "upload", false, "Upload the recording immediately after importing")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <recording-id> [dir]",
		Short: "Watch a capture directory and import chunks as they appear",
		Long: `Watch tails a capture directory during a live recording session, importing
each chunk file once its writer has gone quiet. Stop with Ctrl-C when the
session ends, then run meetiq upload.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer pipe.Close()

			recordingID := args[0]
			dir := pipe.cfg.Paths.CaptureDir
			if len(args) == 2 {
				dir = args[1]
			}
			if strings.TrimSpace(dir) == "" {
				return errors.New("no capture directory configured; pass one explicitly")
			}

			watchCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s for recording %s (Ctrl-C to stop)\n", dir, recordingID)

			watcher := capture.NewWatcher(pipe.cfg, pipe.store, pipe.blobs, pipe.logger)
			imported, err := watcher.Run(watchCtx, recordingID, dir)
			if err != nil {
				return fmt.Errorf("watch capture dir: %w", err)
			}
			fmt.Fprintf(out, "Captured %d chunks; upload with: meetiq upload %s\n", imported, recordingID)
			return nil
		},
	}
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings and their upload state",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer pipe.Close()

			recs, err := pipe.store.ListAll(cmd.Context(), pipe.cfg.Client.OwnerID)
			if err != nil {
				return fmt.Errorf("list recordings: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No recordings yet. Start one with: meetiq new")
				return nil
			}

			rows := make([][]string, 0, len(recs))
			for _, rec := range recs {
				rows = append(rows, []string{
					shortID(rec.ID),
					textutil.Truncate(displaySubject(rec), 32),
					string(rec.Status),
					fmt.Sprintf("%d/%d", rec.UploadedChunks, rec.TotalChunks),
					progressCell(rec),
					humanize.Time(rec.UpdatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "SUBJECT", "STATUS", "CHUNKS", "PROGRESS", "UPDATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show <recording-id>",
		Aliases: []string{"status"},
		Short:   "Show one recording in detail, including its analysis result",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer pipe.Close()

			rec, err := resolveRecording(cmd.Context(), pipe, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recording: %s\n", rec.ID)
			fmt.Fprintf(out, "Subject:   %s\n", displaySubject(rec))
			fmt.Fprintf(out, "Status:    %s\n", rec.Status)
			fmt.Fprintf(out, "Chunks:    %d/%d uploaded\n", rec.UploadedChunks, rec.TotalChunks)
			if rec.DurationSeconds > 0 {
				fmt.Fprintf(out, "Duration:  %.0fs\n", rec.DurationSeconds)
			}
			if rec.JobID != "" {
				fmt.Fprintf(out, "Job:       %s\n", rec.JobID)
			}
			if rec.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:     %s\n", rec.ErrorMessage)
			}
			if rec.ProgressMessage != "" && rec.Status != recordings.StatusCompleted {
				fmt.Fprintf(out, "Progress:  %s (%s)\n", rec.ProgressMessage, progressCell(rec))
			}

			chunks, err := pipe.store.ListChunks(cmd.Context(), rec.ID)
			if err != nil {
				return fmt.Errorf("list chunks: %w", err)
			}
			if len(chunks) > 0 {
				var total int64
				for _, chunk := range chunks {
					total += chunk.SizeBytes
				}
				fmt.Fprintf(out, "Size:      %s in %d chunks\n", humanize.Bytes(uint64(total)), len(chunks))
			}

			if rec.Result != nil {
				fmt.Fprintln(out)
				printResult(out, rec.Result)
			}
			return nil
		},
	}
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <recording-id>",
		Short: "Retry a failed upload, re-sending only what the server is missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer pipe.Close()

			rec, err := resolveRecording(cmd.Context(), pipe, args[0])
			if err != nil {
				return err
			}
			if rec.Status == recordings.StatusCompleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Recording %s is already completed\n", rec.ID)
				return nil
			}
			return runUpload(cmd.Context(), cmd, pipe, rec.ID)
		},
	}
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "cancel <recording-id>",
		Short: "Cancel an in-flight upload, optionally removing the recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer pipe.Close()

			rec, err := resolveRecording(cmd.Context(), pipe, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if pipe.orchestrator.Cancel(rec.ID) {
				fmt.Fprintf(out, "Cancellation requested for recording %s\n", rec.ID)
			}
			if !remove {
				return nil
			}

			chunks, err := pipe.store.ListChunks(cmd.Context(), rec.ID)
			if err != nil {
				return fmt.Errorf("list chunks: %w", err)
			}
			removed, err := pipe.store.Remove(cmd.Context(), rec.ID)
			if err != nil {
				return fmt.Errorf("remove recording: %w", err)
			}
			if removed {
				for _, chunk := range chunks {
					_ = pipe.blobs.Remove(chunk.BlobRef)
				}
				fmt.Fprintf(out, "Removed recording %s and %d chunk files\n", rec.ID, len(chunks))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Delete the recording and its chunk files")
	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var resetStuck bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Summarize recording state and recover interrupted uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer pipe.Close()

			out := cmd.OutOrStdout()
			if resetStuck {
				reset, err := pipe.store.ResetStuckUploading(cmd.Context())
				if err != nil {
					return fmt.Errorf("reset stuck uploads: %w", err)
				}
				if reset > 0 {
					fmt.Fprintf(out, "Marked %d interrupted uploads as failed; retry with: meetiq retry <id>\n", reset)
				}
			}

			health, err := pipe.store.Health(cmd.Context(), pipe.cfg.Client.OwnerID)
			if err != nil {
				return fmt.Errorf("recording health: %w", err)
			}
			rows := [][]string{
				{"pending", fmt.Sprintf("%d", health.Pending)},
				{"uploading", fmt.Sprintf("%d", health.Uploading)},
				{"processing", fmt.Sprintf("%d", health.Processing)},
				{"completed", fmt.Sprintf("%d", health.Completed)},
				{"failed", fmt.Sprintf("%d", health.Failed)},
				{"total", fmt.Sprintf("%d", health.Total)},
			}
			fmt.Fprintln(out, renderTable(
				[]string{"STATUS", "COUNT"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&resetStuck, "reset-stuck", false, "Fail recordings left in uploading by an interrupted process")
	return cmd
}

func resolveRecording(ctx context.Context, pipe *pipeline, arg string) (*recordings.Recording, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, errors.New("recording id is required")
	}

	rec, err := pipe.store.GetByID(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("load recording: %w", err)
	}
	if rec != nil {
		return rec, nil
	}

	// Allow the short prefix that list prints.
	recs, err := pipe.store.ListAll(ctx, pipe.cfg.Client.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	var match *recordings.Recording
	for _, candidate := range recs {
		if strings.HasPrefix(candidate.ID, arg) {
			if match != nil {
				return nil, fmt.Errorf("recording id prefix %q is ambiguous", arg)
			}
			match = candidate
		}
	}
	if match == nil {
		return nil, fmt.Errorf("recording %s not found", arg)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func displaySubject(rec *recordings.Recording) string {
	if strings.TrimSpace(rec.Subject) == "" {
		return "(untitled)"
	}
	return rec.Subject
}

func progressCell(rec *recordings.Recording) string {
	switch rec.Status {
	case recordings.StatusCompleted:
		return "100%"
	case recordings.StatusPending:
		return "-"
	default:
		return fmt.Sprintf("%.0f%%", rec.ProgressPercent*100)
	}
}
