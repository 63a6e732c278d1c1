package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kmg/ocrdesk/internal/api"
	"github.com/kmg/ocrdesk/internal/queue"
	"github.com/kmg/ocrdesk/internal/verify"
)

// --- credentials ---

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Inspect and manage OCR service-account keys",
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered keys with quota usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		creds, err := ws.client.Credentials(cmd.Context())
		if err != nil {
			return err
		}
		if len(creds) == 0 {
			printWarning("no credentials registered; run `ocrdesk credentials scan`")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILE\tACCOUNT\tUSED\tCAP\tREMAINING\tRESET\tSTATUS")
		for _, c := range creds {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				c.ID, c.FileName, c.ServiceAccountEmail, c.UsedUnits, c.CapUnits,
				c.RemainingUnits, c.ResetAt, c.Status)
		}
		return w.Flush()
	},
}

var credentialsScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Trigger server-side key discovery",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.ctrl.ScanCredentials(cmd.Context()); err != nil {
			return err
		}
		snap := ws.store.Snapshot()
		printSuccess("Scan complete: %d keys, %d active, %d units remaining",
			len(snap.Credentials), snap.ActiveCredentialCount(), snap.TotalRemainingUnits())
		return nil
	},
}

var credentialsAdjustCmd = &cobra.Command{
	Use:   "adjust <id>",
	Short: "Override a key's used-units counter",
	Long: `Override a key's used-units counter.

The server recomputes the remaining quota; a justification is mandatory and
lands in the audit trail.

Example:
  ocrdesk credentials adjust cred-1 --used 1200 --reason "counter drift after restart"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		used, _ := cmd.Flags().GetString("used")
		reason, _ := cmd.Flags().GetString("reason")

		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.ctrl.AdjustUsage(cmd.Context(), args[0], used, reason); err != nil {
			return err
		}
		printSuccess("Usage adjusted: %s", args[0])
		return nil
	},
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Stage folders for the next job",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Validate and stage one folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.ctrl.AddFolder(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, queue.ErrEmptyPath) || errors.Is(err, queue.ErrDuplicate) {
				printWarning("%v", err)
				return nil
			}
			return err
		}
		printSuccess("%s", ws.ctrl.QueueNotice())
		return nil
	},
}

var queuePickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Stage a folder via the host's native dialog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.ctrl.PickFolder(cmd.Context()); err != nil {
			return err
		}
		printStatus("queue", "%s", ws.ctrl.QueueNotice())
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the staged folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		entries := ws.queue.Entries()
		if len(entries) == 0 {
			printStatus("queue", "empty")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tPATH\tIMAGES\tNOTE")
		for i, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i+1, e.Path, e.ImageCount, e.Note)
		}
		return w.Flush()
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every staged folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		ws.ctrl.ClearQueue()
		printSuccess("Queue cleared")
		return nil
	},
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Create and control batch jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		jobs, err := ws.client.Jobs(cmd.Context())
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			printStatus("jobs", "none")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSTRATEGY\tPAR\tDONE\tTOTAL\tCREATED\tERROR")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				j.ID, j.Status, j.Strategy, j.Parallelism, j.ProcessedItems,
				j.TotalItems, j.CreatedAt, j.LastError)
		}
		return w.Flush()
	},
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a job from the staged folders",
	Long: `Create a job from the staged folders.

The pending queue is submitted in its staged order and discarded on success;
the server owns the job from then on.

Example:
  ocrdesk jobs create --strategy ROUND_ROBIN --parallelism 4 --start`,
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, _ := cmd.Flags().GetString("strategy")
		parallelism, _ := cmd.Flags().GetString("parallelism")
		autoStart, _ := cmd.Flags().GetBool("start")

		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		ws.ctrl.SetJobForm(strategy, parallelism)
		jobID, err := ws.ctrl.CreateJob(cmd.Context(), autoStart)
		if err != nil {
			return err
		}
		if autoStart {
			printSuccess("Job %s created and started", jobID)
		} else {
			printSuccess("Job %s created; start it with `ocrdesk jobs start %s`", jobID, jobID)
		}
		return nil
	},
}

var jobsStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start a pending job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.ctrl.StartJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess("Start requested: %s", args[0])
		return nil
	},
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.ctrl.StopJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess("Stop requested: %s", args[0])
		return nil
	},
}

// --- links ---

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Show cloud-console shortcuts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		links, err := ws.client.ExternalLinks(cmd.Context())
		if err != nil {
			return err
		}
		printStatus("key creation", "%s", links.KeyCreationURL)
		printStatus("key monitoring", "%s", links.KeyMonitoringURL)
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the local audit trail of operator actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ws, err := newWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if ws.db == nil {
			printWarning("local storage unavailable; no history recorded")
			return nil
		}

		actions, err := ws.db.RecentActions(limit)
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			printStatus("history", "empty")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AT\tACTION\tDETAIL")
		for _, a := range actions {
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.At, a.Action, a.Detail)
		}
		return w.Flush()
	},
}

// --- verify ---

var verifyCmd = &cobra.Command{
	Use:   "verify <pdf>",
	Short: "Check that a converted PDF is valid and searchable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := verify.File(args[0])
		if err != nil {
			return err
		}
		if result.HasText {
			printSuccess("%s", result.Describe())
		} else {
			printWarning("%s", result.Describe())
		}
		return nil
	},
}

func init() {
	credentialsAdjustCmd.Flags().String("used", "", "new used-units value (required)")
	credentialsAdjustCmd.Flags().String("reason", "", "justification for the correction (required)")
	credentialsCmd.AddCommand(credentialsListCmd)
	credentialsCmd.AddCommand(credentialsScanCmd)
	credentialsCmd.AddCommand(credentialsAdjustCmd)

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queuePickCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueClearCmd)

	jobsCreateCmd.Flags().String("strategy", api.StrategyMaxRemaining, "key selection strategy (MAX_REMAINING, ROUND_ROBIN, FILENAME_ORDER)")
	jobsCreateCmd.Flags().String("parallelism", "2", "parallel folders, 1-8")
	jobsCreateCmd.Flags().Bool("start", false, "start the job immediately")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsCreateCmd)
	jobsCmd.AddCommand(jobsStartCmd)
	jobsCmd.AddCommand(jobsStopCmd)

	historyCmd.Flags().Int("limit", 50, "number of entries to show")

	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
}
