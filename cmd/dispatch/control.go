package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"bulksender/internal/dispatch"
	"bulksender/internal/logging"
)

type campaignControl interface {
	Pause() error
	Resume() error
	Stop() error
	Status() dispatch.Status
}

// handleControl applies one console command to the running campaign
func handleControl(ctrl campaignControl, line string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return "", nil
	case "p", "pause":
		if err := ctrl.Pause(); err != nil {
			return "", err
		}
		return "pause requested, waiting for the in-flight message", nil
	case "r", "resume":
		if err := ctrl.Resume(); err != nil {
			return "", err
		}
		return "resumed", nil
	case "s", "stop":
		if err := ctrl.Stop(); err != nil {
			return "", err
		}
		return "stopped", nil
	case "?", "status":
		return formatStatus(ctrl.Status()), nil
	default:
		return "", fmt.Errorf("unknown command %q (pause, resume, stop, status)", line)
	}
}

// readControls feeds console lines to handleControl until r is exhausted
func readControls(r io.Reader, w io.Writer, ctrl campaignControl) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		msg, err := handleControl(ctrl, scanner.Text())
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}
		if msg != "" {
			fmt.Fprintln(w, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		logging.Warn().Err(err).Msg("stopped reading console commands")
	}
}

func formatStatus(s dispatch.Status) string {
	return fmt.Sprintf("%s: %s sent=%d failed=%d pending=%d skipped=%d (%.1f%%)",
		s.CampaignID, s.State, s.Progress.SentCount, s.Progress.FailedCount,
		s.PendingCount, s.SkippedCount, s.Progress.PercentComplete)
}
