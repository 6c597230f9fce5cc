package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/frahmantamala/clinic-management/internal/patient"
	patientPostgres "github.com/frahmantamala/clinic-management/internal/patient/postgres"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var importAvatarDir string

var patientsCmd = &cobra.Command{
	Use:   "patients",
	Short: "Patient maintenance tasks",
}

var patientsImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import patients from a CSV file",
	Long: `Import patients from a CSV file of id,full name,avatar file rows. Each
patient gets a generated unique email and birthday and is attributed to a
random existing user. Avatars are read from the --avatars directory.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		file := "db/src/patients.csv"
		if len(args) == 1 {
			file = args[0]
		}

		ctx := context.Background()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			log.Fatalf("failed to initialize dependencies: %v", err)
		}
		defer deps.Close()

		services := buildServices(deps)
		importer := patient.NewImporter(patientPostgres.NewImportRepository(deps.Gorm), services.Media,
			afero.NewOsFs(), deps.Logger,
			patient.WithImportBCryptCost(deps.Config.Security.BCryptCost))

		result, err := importer.Import(ctx, file, importAvatarDir)
		if err != nil {
			log.Fatalf("import failed: %v", err)
		}
		fmt.Printf("Imported: %d\n", result.Imported)
		fmt.Printf("Skipped: %d\n", result.Skipped)

		services.Dashboard.InvalidateStats(ctx)
	},
}

func init() {
	patientsImportCmd.Flags().StringVar(&importAvatarDir, "avatars", "db/avatars", "directory holding avatar images named in the CSV")
	patientsCmd.AddCommand(patientsImportCmd)
}
