package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var lockReason string

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Device credential administration",
}

var deviceLockCmd = &cobra.Command{
	Use:   "lock <device_uuid>",
	Short: "Lock a device credential",
	Long:  `Locks a device credential. Every request authenticated with it is rejected until unlocked.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDeviceLock(args[0], true)
	},
}

var deviceUnlockCmd = &cobra.Command{
	Use:   "unlock <device_uuid>",
	Short: "Unlock a device credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDeviceLock(args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceLockCmd, deviceUnlockCmd)

	deviceLockCmd.Flags().StringVar(&lockReason, "reason", "", "why the device is locked")
}

func setDeviceLock(deviceUUID string, locked bool) error {
	c := buildComponents(loadConfig())
	defer c.Close()

	reason := lockReason
	if !locked {
		reason = ""
	}
	return c.svc.SetDeviceLock(context.Background(), deviceUUID, locked, reason)
}
