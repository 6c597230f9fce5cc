package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/frahmantamala/clinic-management/internal/seed"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	seedClear     bool
	seedUsersFile string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long: `Seed staff accounts for every role and book appointments for the existing
patients. Appointments never double-book a patient or a staff member.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			log.Fatalf("failed to initialize dependencies: %v", err)
		}
		defer deps.Close()

		services := buildServices(deps)
		seeder := seed.New(deps.Gorm, services.Recorder, deps.Logger,
			seed.WithBCryptCost(deps.Config.Security.BCryptCost))

		if seedClear {
			if err := seeder.Clear(ctx); err != nil {
				log.Fatalf("failed to clear tables: %v", err)
			}
			fmt.Println("Cleared appointments, activity log and media.")
		}

		extra, err := seed.LoadUsers(afero.NewOsFs(), seedUsersFile)
		if err != nil {
			log.Fatalf("failed to load users: %v", err)
		}
		admin, created, err := seeder.Users(ctx, extra)
		if err != nil {
			log.Fatalf("failed to seed users: %v", err)
		}
		fmt.Printf("Users created: %d\n", created)

		booked, err := seeder.Appointments(ctx, services.Appointment, admin)
		if err != nil {
			log.Fatalf("failed to seed appointments: %v", err)
		}
		fmt.Printf("Appointments created: %d\n", booked)

		services.Dashboard.InvalidateStats(ctx)
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedClear, "clear", false, "delete appointments, activity log and media before seeding")
	seedCmd.Flags().StringVar(&seedUsersFile, "users", "db/src/users.json", "optional JSON file of extra staff")
}
