package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/whispers-app/whispers/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(os.Stdout, "config file   %s\n", config.GetConfigFilePath())
		for _, key := range []string{"relay.url", "relay.user_id", "api.base_url", "log.level", "log.file"} {
			fmt.Fprintf(os.Stdout, "%-13s %s\n", key, config.GetString(key))
		}
		return nil
	},
}

var configSetUserCmd = &cobra.Command{
	Use:   "set-user [user-id]",
	Short: "Store the user id to act as (a new random id when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := uuid.NewString()
		if len(args) == 1 {
			userID = args[0]
		}
		if err := config.SetString("relay.user_id", userID); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		printSuccess("Acting as %s", userID)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetString(args[0], args[1]); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		printSuccess("%s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetUserCmd)
	configCmd.AddCommand(configSetCmd)
}
