package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/lockbox/internal/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user profiles and roles",
}

var userEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create the acting user's profile if missing",
	Args:  cobra.NoArgs,
	RunE:  runUserEnsure,
}

var userRoleCmd = &cobra.Command{
	Use:     "role <user-id> <admin|user|auditor>",
	Short:   "Change a user's role (admins only)",
	Example: `  lockbox user role alice auditor --user root`,
	Args:    cobra.ExactArgs(2),
	RunE:    runUserRole,
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove <user-id>",
	Short: "Remove a user and all their files",
	Long: `Remove deletes the user's encrypted files and profile. Audit entries
are kept with the user and file references cleared. Users may remove
themselves; admins may remove anyone.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserRemove,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userEnsureCmd, userRoleCmd, userRemoveCmd)
}

func runUserEnsure(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	return withUser(ctx, func(a *app, user string) error {
		profile, err := a.users.EnsureProfile(ctx, user)
		if err != nil {
			return fail(err)
		}

		if jsonOutput {
			printJSON(profile)
			return nil
		}

		printSuccess("Profile %s (role: %s)", profile.UserID, profile.Role)
		return nil
	})
}

func runUserRole(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	target := args[0]

	role, err := models.ParseRole(args[1])
	if err != nil {
		return fail(err)
	}

	return withUser(ctx, func(a *app, user string) error {
		if err := a.users.SetRole(ctx, user, target, role); err != nil {
			return fail(err)
		}

		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": true,
				"user_id": target,
				"role":    role,
			})
			return nil
		}

		printSuccess("%s is now %s", target, role)
		return nil
	})
}

func runUserRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	target := args[0]

	return withUser(ctx, func(a *app, user string) error {
		if user != target {
			role, err := a.users.Role(ctx, user)
			if err != nil {
				return fail(err)
			}
			if role != models.RoleAdmin {
				return fail(fmt.Errorf("remove %s: %w", target, models.ErrAuthorization))
			}
		}

		if err := a.users.Remove(ctx, target); err != nil {
			return fail(err)
		}

		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "user_id": target})
			return nil
		}

		printSuccess("Removed %s", target)
		return nil
	})
}
