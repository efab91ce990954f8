package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whispers-app/whispers/pkg/api"
	"github.com/whispers-app/whispers/pkg/config"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or change a public profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show [user-id]",
	Short: "Show a profile (default: your own)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := config.GetString("relay.user_id")
		if len(args) == 1 {
			userID = args[0]
		}
		if userID == "" {
			return errNoUser
		}

		profile, err := api.NewFromConfig().Profile(cmd.Context(), userID)
		if err != nil {
			if api.IsNotFound(err) {
				return fmt.Errorf("no profile for %s", userID)
			}
			return err
		}

		_, _ = bold.Fprintln(os.Stdout, profile.Username)
		_, _ = faint.Fprintf(os.Stdout, "id %s · avatar %s\n", profile.ID, profile.AvatarSeed)
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <username> [avatar-seed]",
	Short: "Create or update your profile",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := config.GetString("relay.user_id")
		if userID == "" {
			return errNoUser
		}
		seed := args[0]
		if len(args) == 2 {
			seed = args[1]
		}

		profile, err := api.NewFromConfig().UpsertProfile(cmd.Context(), userID, args[0], seed)
		if err != nil {
			return err
		}
		printSuccess("Profile saved as %s", profile.Username)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}
