package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halim/aria/pkg/conversation"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <conversation>",
	Short: "Show a conversation transcript",
	Long: `Show a conversation transcript as markdown. The conversation is
identified by its list index, full id, or a unique id prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print the raw conversation document")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := conversation.NewStore(cfg.ConversationsDir())
	if err != nil {
		return err
	}

	conv, err := store.Resolve(args[0])
	if err != nil {
		return err
	}

	if showJSON {
		data, err := json.MarshalIndent(conv, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), conv.Markdown())
	return nil
}
