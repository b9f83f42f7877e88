package cmd

import (
	"fmt"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/auth"

	"github.com/spf13/cobra"
)

var (
	tokenUserID string
	tokenOrgID  uint
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator token",
	Long: `Issues a signed operator bearer token for the given user and organization.
Intended for operations and integration testing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		tokens, err := auth.NewTokenManager(cfg.Auth)
		if err != nil {
			return err
		}
		token, err := tokens.GenerateToken(tokenUserID, tokenOrgID)
		if err != nil {
			return err
		}

		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "operator user id")
	tokenCmd.Flags().UintVar(&tokenOrgID, "org", 0, "organization id")
	_ = tokenCmd.MarkFlagRequired("user")
	_ = tokenCmd.MarkFlagRequired("org")
}
