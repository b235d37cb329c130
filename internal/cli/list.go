package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/halim/aria/pkg/conversation"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations",
	Long:  `List saved conversations, newest first. The index can be used with run --resume and show.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := conversation.NewStore(cfg.ConversationsDir())
	if err != nil {
		return err
	}

	summaries, err := store.List()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no conversations yet")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tAGE\tMSGS\tTITLE")
	for i, s := range summaries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			i, s.ID, formatAge(time.Since(s.UpdatedAt)), s.MessageCount, s.Title)
	}
	return w.Flush()
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
