package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halim/aria/pkg/conversation"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
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
	if err := store.Delete(conv.ID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", conv.ID)
	return nil
}
