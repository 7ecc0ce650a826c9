/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/eduaventuras/apiserver/config"
	"github.com/eduaventuras/apiserver/internal/auth"
	"github.com/eduaventuras/apiserver/internal/logging"
	"github.com/eduaventuras/apiserver/internal/server"
	"github.com/eduaventuras/apiserver/internal/services"
	"github.com/spf13/cobra"
)

var adminInput services.Registration

// adminCmd groups administrator account maintenance.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an administrator account",
	Long: `Creates an administrator account. Administrators cannot self-register. Usage:

	eduaventuras admin create --email admin@example.com --password secret --name Ana
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)

		repos, closeRepos, err := server.OpenRepositories(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open datastore: %w", err)
		}
		defer func() {
			_ = closeRepos()
		}()

		users := services.NewUserService(repos.Users, repos.Subjects, auth.NewHasher(cfg.Auth.BcryptCost), nil, nil, logger)
		user, err := users.CreateAdmin(cmd.Context(), adminInput)
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created administrator %s (id %d)\n", user.Email, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)

	flags := adminCreateCmd.Flags()
	flags.StringVar(&adminInput.Email, "email", "", "administrator e-mail")
	flags.StringVar(&adminInput.Password, "password", "", "initial password")
	flags.StringVar(&adminInput.Name, "name", "", "first name")
	flags.StringVar(&adminInput.LastName, "last-name", "", "last name")
	_ = adminCreateCmd.MarkFlagRequired("email")
	_ = adminCreateCmd.MarkFlagRequired("password")
	_ = adminCreateCmd.MarkFlagRequired("name")
}
