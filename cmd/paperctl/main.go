// paperctl is the operations CLI: inspect paper ingestion state and
// requeue runs orphaned by crashed workers, straight against the store.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"paperchat/internal/app"
	"paperchat/internal/ingest"
	"paperchat/internal/store"
)

var (
	tenantFlag   string
	stallAgeFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "paperctl",
	Short:         "Operate the paper ingestion pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var paperCmd = &cobra.Command{
	Use:   "paper",
	Short: "Inspect papers",
}

var paperListCmd = &cobra.Command{
	Use:   "list",
	Short: "List papers for a tenant",
	Args:  cobra.NoArgs,
	RunE:  runPaperList,
}

var paperStatusCmd = &cobra.Command{
	Use:   "status [paper-id]",
	Short: "Show one paper's ingestion state",
	Args:  cobra.ExactArgs(1),
	RunE:  runPaperStatus,
}

var stalledCmd = &cobra.Command{
	Use:   "stalled",
	Short: "Manage runs stuck in processing",
}

var stalledListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stalled ingestion runs across all tenants",
	Args:  cobra.NoArgs,
	RunE:  runStalledList,
}

var stalledRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Reset stalled runs to pending and enqueue them again",
	Args:  cobra.NoArgs,
	RunE:  runStalledRequeue,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&tenantFlag, "tenant", "t", "", "Tenant namespace")
	rootCmd.PersistentFlags().DurationVar(&stallAgeFlag, "stall-age", 15*time.Minute, "Age after which a processing run counts as stalled")

	paperCmd.AddCommand(paperListCmd)
	paperCmd.AddCommand(paperStatusCmd)
	stalledCmd.AddCommand(stalledListCmd)
	stalledCmd.AddCommand(stalledRequeueCmd)
	rootCmd.AddCommand(paperCmd)
	rootCmd.AddCommand(stalledCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func requireTenant() error {
	if strings.TrimSpace(tenantFlag) == "" {
		return fmt.Errorf("--tenant is required")
	}
	return nil
}

func runPaperList(cmd *cobra.Command, _ []string) error {
	if err := requireTenant(); err != nil {
		return err
	}
	deps, err := app.Build("paperctl")
	if err != nil {
		return err
	}
	defer deps.Close()

	docs, err := deps.Store.ListDocuments(cmd.Context(), tenantFlag)
	if err != nil {
		return err
	}
	printDocuments(docs)
	return nil
}

func runPaperStatus(cmd *cobra.Command, args []string) error {
	if err := requireTenant(); err != nil {
		return err
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("not a valid paper id: %s", args[0])
	}
	deps, err := app.Build("paperctl")
	if err != nil {
		return err
	}
	defer deps.Close()

	doc, err := deps.Store.GetDocument(cmd.Context(), tenantFlag, id)
	if err != nil {
		return err
	}
	fmt.Printf("ID:          %s\n", doc.ID)
	fmt.Printf("Title:       %s\n", doc.Title)
	fmt.Printf("Source:      %s\n", doc.Source)
	fmt.Printf("Status:      %s\n", doc.Status)
	if doc.Stage != "" {
		fmt.Printf("Stage:       %s\n", doc.Stage)
	}
	fmt.Printf("Chunks:      %d\n", doc.ChunkCount)
	fmt.Printf("Updated:     %s\n", doc.UpdatedAt.Format(time.RFC3339))
	return nil
}

func runStalledList(cmd *cobra.Command, _ []string) error {
	deps, err := app.Build("paperctl")
	if err != nil {
		return err
	}
	defer deps.Close()

	docs, err := deps.Store.ListStalled(cmd.Context(), time.Now().Add(-stallAgeFlag))
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No stalled runs.")
		return nil
	}
	printDocuments(docs)
	return nil
}

func runStalledRequeue(cmd *cobra.Command, _ []string) error {
	deps, err := app.Build("paperctl")
	if err != nil {
		return err
	}
	defer deps.Close()

	n, err := ingest.RequeueStalled(cmd.Context(), deps.Store, deps.Queue, deps.Log, stallAgeFlag)
	if err != nil {
		return err
	}
	fmt.Printf("Requeued %d stalled run(s).\n", n)
	return nil
}

func printDocuments(docs []store.Document) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTENANT\tSTATUS\tSTAGE\tCHUNKS\tUPDATED\tTITLE")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			d.ID, d.TenantID, d.Status, d.Stage, d.ChunkCount,
			d.UpdatedAt.Format(time.RFC3339), d.Title)
	}
	w.Flush()
}
