package cmd

import (
	"context"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	memberOrgID  uint
	memberUserID string
	memberRole   string
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Organization membership administration",
}

var memberAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Grant a user a role in an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := buildComponents(loadConfig())
		defer c.Close()

		role := models.MemberRole(memberRole)
		if err := c.svc.AddMember(context.Background(), memberOrgID, memberUserID, role); err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"organization_id": memberOrgID,
			"user_id":         memberUserID,
			"role":            role,
		}).Info("Membership saved")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(memberCmd)
	memberCmd.AddCommand(memberAddCmd)

	memberAddCmd.Flags().UintVar(&memberOrgID, "org", 0, "organization id")
	memberAddCmd.Flags().StringVar(&memberUserID, "user", "", "operator user id")
	memberAddCmd.Flags().StringVar(&memberRole, "role", string(models.RoleViewer), "owner, admin, manager or viewer")
	_ = memberAddCmd.MarkFlagRequired("org")
	_ = memberAddCmd.MarkFlagRequired("user")
}
