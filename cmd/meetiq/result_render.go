package main

import (
	"fmt"
	"io"
	"strings"

	"meetiq/internal/recordings"
)

// printResult renders an analysis result as the human-readable block shown by
// meetiq show.
func printResult(out io.Writer, result *recordings.AnalysisResult) {
	fmt.Fprintln(out, "Analysis:")
	if result.IsFinancialMeeting {
		fmt.Fprintln(out, "  Financial meeting: yes")
		if len(result.FinancialProducts) > 0 {
			fmt.Fprintf(out, "  Products discussed: %s\n", strings.Join(result.FinancialProducts, ", "))
		}
		if result.ClientIntent != "" {
			fmt.Fprintf(out, "  Client intent: %s\n", result.ClientIntent)
		}
	}
	if len(result.MeetingSummary) > 0 {
		fmt.Fprintln(out, "  Summary:")
		for _, line := range result.MeetingSummary {
			fmt.Fprintf(out, "    - %s\n", line)
		}
	}
	if len(result.ActionItems) > 0 {
		fmt.Fprintln(out, "  Action items:")
		for _, item := range result.ActionItems {
			fmt.Fprintf(out, "    - %s\n", item)
		}
	}
	if result.FollowUpDate != nil && strings.TrimSpace(*result.FollowUpDate) != "" {
		fmt.Fprintf(out, "  Follow-up: %s\n", *result.FollowUpDate)
	}
	if result.ConfidenceLevel != "" {
		fmt.Fprintf(out, "  Confidence: %s\n", result.ConfidenceLevel)
	}
}
