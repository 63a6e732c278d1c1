package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kmg/ocrdesk/internal/events"
	"github.com/kmg/ocrdesk/internal/poll"
	"github.com/kmg/ocrdesk/internal/queue"
	"github.com/kmg/ocrdesk/internal/simulator"
	"github.com/kmg/ocrdesk/internal/state"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of credentials, jobs and progress",
	Long: `Live dashboard of credentials, jobs and progress.

Two producers keep the view fresh: the manager's event stream wakes an
immediate refresh, and a fixed-cadence poller covers for a silently dead
stream. Ctrl-C exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		return runSession(ws)
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the console against a built-in fake manager",
	Long: `Run the console against a built-in fake manager.

A simulated pipeline with seeded folders advances on its own, so every
screen of the console can be tried without the real OCR manager.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sim := simulator.New()
		sim.RegisterFolder("/demo/batch-a", 5)
		sim.RegisterFolder("/demo/batch-b", 3)
		sim.RegisterFolder("/demo/empty", 0)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("starting fake manager: %w", err)
		}
		srv := &http.Server{Handler: sim.Handler()}
		go srv.Serve(ln)
		defer srv.Close()

		serverURL = "http://" + ln.Addr().String()
		printStatus("demo manager", "%s", serverURL)

		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		// Stage and launch one job so the dashboard has something to show.
		for _, p := range []string{"/demo/batch-a", "/demo/batch-b"} {
			if err := ws.ctrl.AddFolder(cmd.Context(), p); err != nil {
				return err
			}
		}
		if _, err := ws.ctrl.CreateJob(cmd.Context(), true); err != nil {
			return err
		}

		go func() {
			ticker := time.NewTicker(800 * time.Millisecond)
			defer ticker.Stop()
			for range ticker.C {
				sim.Advance()
			}
		}()

		return runSession(ws)
	},
}

func runSession(ws *workspace) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ws.store.ReconcileAll(ctx); err != nil {
		// A flaky first fetch is banner material, not a fatal error; the
		// stream and the poller will catch the view up.
		ws.store.Log("initial refresh incomplete: %v", err)
	}

	listener := events.NewListener(ws.client, ws.store, ws.logger, ws.cfg.Stream.RetryInterval)
	scheduler := poll.NewScheduler(ws.store, ws.cfg.Poll.Interval, ws.logger)
	go listener.Run(ctx)
	go scheduler.Run(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stdout, "\nsession closed")
			return nil
		case <-ticker.C:
			fmt.Fprint(os.Stdout, "\033[2J\033[H")
			fmt.Fprintln(os.Stdout, renderDashboard(ws.store.Snapshot(), ws.store.Logs(), ws.queue.Entries(), ws.ctrl.LastError(), ws.ctrl.QueueNotice()))
		}
	}
}

// renderDashboard paints one frame. Pure so tests can pin the layout.
func renderDashboard(snap state.Snapshot, logs []state.LogEntry, pending []queue.Entry, lastErr, notice string) string {
	var b strings.Builder

	b.WriteString(render(styleHeader, "OCR Local Manager"))
	b.WriteString("\n\n")

	if lastErr != "" {
		b.WriteString(render(styleError, "error: "+lastErr))
		b.WriteString("\n\n")
	}

	running := "none"
	if job := snap.RunningJob(); job != nil {
		running = job.ID
	}
	completed := "none"
	if job := snap.LatestCompletedJob(); job != nil {
		completed = job.ID
	}

	rows := [][2]string{
		{"active keys", fmt.Sprintf("%d", snap.ActiveCredentialCount())},
		{"units remaining", fmt.Sprintf("%d", snap.TotalRemainingUnits())},
		{"running job", running},
		{"current folder", snap.FolderProgress()},
		{"current file", snap.FileProgress()},
		{"last completed", completed},
		{"completed progress", snap.CompletedProgress()},
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("  %s %s\n", render(styleLabel, row[0]+":"), row[1]))
	}
	if item := snap.RunningItem(); item != nil {
		b.WriteString(render(styleMuted, "  processing: "+item.FolderPath))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(render(styleHeader, "Pending queue"))
	b.WriteString("\n")
	if len(pending) == 0 {
		b.WriteString(render(styleMuted, "  (empty)"))
		b.WriteString("\n")
	}
	for i, e := range pending {
		line := fmt.Sprintf("  %d. %s (%d images)", i+1, e.Path, e.ImageCount)
		if e.Note != "" {
			line += " " + render(styleWarning, "["+e.Note+"]")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if notice != "" {
		b.WriteString(render(styleMuted, "  note: "+notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(render(styleHeader, "Activity"))
	b.WriteString("\n")
	max := len(logs)
	if max > 8 {
		max = 8
	}
	for _, entry := range logs[:max] {
		b.WriteString(render(styleMuted, fmt.Sprintf("  %s  %s", entry.At.Format("15:04:05"), entry.Message)))
		b.WriteString("\n")
	}

	return b.String()
}

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(demoCmd)
}
