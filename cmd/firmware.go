package cmd

import (
	"context"
	"fmt"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/service"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/signing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	firmwareDeviceType   string
	firmwareVersion      string
	firmwareFileURL      string
	firmwareMinBattery   int
	firmwareRollback     string
	firmwareMandatory    bool
	firmwareBackup       bool
	firmwareChangelog    string
	firmwareOverwriteKey bool
)

var firmwareCmd = &cobra.Command{
	Use:   "firmware",
	Short: "Manage firmware signing keys and releases",
}

var firmwareKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the firmware signing key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		keysDir, err := cfg.Firmware.GetAbsoluteKeysDir()
		if err != nil {
			return err
		}
		if !firmwareOverwriteKey {
			if _, err := signing.LoadKeyPair(cfg.Firmware.KeyID, keysDir); err == nil {
				return fmt.Errorf("key %q already exists in %s (use --force to replace it)", cfg.Firmware.KeyID, keysDir)
			}
		}

		keyPair, err := signing.GenerateKeyPair(cfg.Firmware.KeyID)
		if err != nil {
			return err
		}
		if err := signing.SaveKeyPair(keyPair, keysDir); err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"key_id":   cfg.Firmware.KeyID,
			"keys_dir": keysDir,
		}).Info("Generated firmware signing key pair")
		return nil
	},
}

var firmwarePublishCmd = &cobra.Command{
	Use:   "publish <file>",
	Short: "Sign a firmware build and add it to the catalog",
	Long: `Computes the sha256 hash and size of the build, signs the hash with the
configured key and records an immutable release with the next build number.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		keysDir, err := cfg.Firmware.GetAbsoluteKeysDir()
		if err != nil {
			return err
		}
		keyPair, err := signing.LoadKeyPair(cfg.Firmware.KeyID, keysDir)
		if err != nil {
			return err
		}
		signature, err := signing.SignFile(keyPair, args[0])
		if err != nil {
			return err
		}

		req := service.PublishFirmwareRequest{
			DeviceType:     models.DeviceCategory(firmwareDeviceType),
			Version:        firmwareVersion,
			FileURL:        firmwareFileURL,
			Signature:      signature,
			IsMandatory:    firmwareMandatory,
			RequiresBackup: firmwareBackup,
			Changelog:      firmwareChangelog,
		}
		if cmd.Flags().Changed("min-battery") {
			req.MinBatteryLevel = &firmwareMinBattery
		}
		if firmwareRollback != "" {
			req.RollbackVersion = &firmwareRollback
		}

		c := buildComponents(cfg)
		defer c.Close()

		firmware, err := c.svc.PublishFirmware(context.Background(), req)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"device_type":  firmwareDeviceType,
			"version":      firmware.Version,
			"build_number": firmware.BuildNumber,
			"file_hash":    firmware.FileHash,
		}).Info("Published firmware")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(firmwareCmd)
	firmwareCmd.AddCommand(firmwareKeygenCmd, firmwarePublishCmd)

	firmwareKeygenCmd.Flags().BoolVar(&firmwareOverwriteKey, "force", false, "replace an existing key pair")

	firmwarePublishCmd.Flags().StringVar(&firmwareDeviceType, "device-type", "", "device category (tag, gateway)")
	firmwarePublishCmd.Flags().StringVar(&firmwareVersion, "version", "", "firmware version string")
	firmwarePublishCmd.Flags().StringVar(&firmwareFileURL, "url", "", "download URL of the build")
	firmwarePublishCmd.Flags().IntVar(&firmwareMinBattery, "min-battery", 0, "minimum battery level required to install")
	firmwarePublishCmd.Flags().StringVar(&firmwareRollback, "rollback-version", "", "version to restore on rollback")
	firmwarePublishCmd.Flags().BoolVar(&firmwareMandatory, "mandatory", false, "mark the update as mandatory")
	firmwarePublishCmd.Flags().BoolVar(&firmwareBackup, "requires-backup", false, "devices must back up state before flashing")
	firmwarePublishCmd.Flags().StringVar(&firmwareChangelog, "changelog", "", "release notes")
	_ = firmwarePublishCmd.MarkFlagRequired("device-type")
	_ = firmwarePublishCmd.MarkFlagRequired("version")
	_ = firmwarePublishCmd.MarkFlagRequired("url")
}
