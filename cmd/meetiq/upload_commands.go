package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"meetiq/internal/recordings"
	"meetiq/internal/uploader"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <recording-id>",
		Short: "Upload a recording and wait for its analysis",
		Long: `Upload sends every captured chunk to the backend, verifies receipt,
and polls the analysis job until it finishes. Interrupt with Ctrl-C to cancel;
a recording whose upload completed keeps its job and can be resumed later.`,
		Args: cobra.ExactArgs(1),
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
			return runUpload(cmd.Context(), cmd, pipe, rec.ID)
		},
	}
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <recording-id>",
		Short: "Resume the status check for a recording stuck in processing",
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
			if strings.TrimSpace(rec.JobID) == "" {
				return fmt.Errorf("recording %s has no saved job; run: meetiq upload %s", rec.ID, rec.ID)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			attachProgress(pipe, cmd.OutOrStdout())
			watchForInterrupt(runCtx, pipe, rec.ID)

			if pipe.orchestrator.ResumeStatusCheck(runCtx, rec.ID, rec.JobID) {
				fmt.Fprintf(cmd.OutOrStdout(), "Recording %s completed\n", rec.ID)
				return nil
			}
			return reportOutcome(cmd.Context(), pipe, rec.ID)
		},
	}
	return cmd
}

// runUpload drives one full upload attempt with progress echoed to the
// terminal and Ctrl-C wired to cooperative cancellation.
func runUpload(ctx context.Context, cmd *cobra.Command, pipe *pipeline, recordingID string) error {
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	attachProgress(pipe, out)
	watchForInterrupt(runCtx, pipe, recordingID)

	if pipe.orchestrator.UploadMeeting(runCtx, recordingID) {
		fmt.Fprintf(out, "Recording %s completed\n", recordingID)
		return nil
	}
	return reportOutcome(ctx, pipe, recordingID)
}

func attachProgress(pipe *pipeline, out io.Writer) {
	if !stdoutIsTerminal() {
		return
	}
	pipe.orchestrator.Subscribe(uploader.ProgressFunc(func(event uploader.Event) {
		fmt.Fprintf(out, "[%3.0f%%] %s\n", event.Progress*100, event.Message)
	}))
}

// watchForInterrupt converts a context cancellation (Ctrl-C) into a
// cooperative cancel request so the orchestrator stops at the next safe point.
func watchForInterrupt(ctx context.Context, pipe *pipeline, recordingID string) {
	go func() {
		<-ctx.Done()
		pipe.orchestrator.Cancel(recordingID)
	}()
}

// reportOutcome turns a failed attempt's persisted state into the error the
// command exits with.
func reportOutcome(ctx context.Context, pipe *pipeline, recordingID string) error {
	rec, err := pipe.store.GetByID(ctx, recordingID)
	if err != nil || rec == nil {
		return fmt.Errorf("upload of recording %s did not complete", recordingID)
	}
	switch {
	case rec.Status == recordings.StatusProcessing && rec.JobID != "":
		return fmt.Errorf("recording %s is still processing; check later with: meetiq resume %s", recordingID, shortID(recordingID))
	case rec.ErrorMessage != "":
		return errors.New(rec.ErrorMessage)
	default:
		return fmt.Errorf("upload of recording %s did not complete", recordingID)
	}
}
