package cmd

import (
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Runs database migrations and seeds the device type catalog for the
configured manufacturer. Safe to run repeatedly.`,
	Run: func(cmd *cobra.Command, args []string) {
		runMigration()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigration() {
	cfg := loadConfig()

	log.Info("Connecting to database...")
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Running database migrations...")
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	log.WithField("manufacturer", cfg.Protocol.Manufacturer).Info("Seeding device types...")
	if err := database.SeedDeviceTypes(db, cfg.Protocol.Manufacturer); err != nil {
		log.Fatalf("Failed to seed device types: %v", err)
	}

	log.Info("Database migrations completed successfully")
}
