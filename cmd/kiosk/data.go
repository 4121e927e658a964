package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/config"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/spf13/cobra"
)

var seedFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load employees and notifications into the local directory",
	Long: `The import command reads a YAML seed file (or the built-in demo data when
--file is omitted) and writes it into the local directory. Existing
records with the same ids are replaced.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd.Flags())
		if err != nil {
			return err
		}
		if cfg.Directory.Driver != config.DriverLocal {
			return fmt.Errorf("import needs the local directory driver, config uses %q", cfg.Directory.Driver)
		}
		if cfg.Directory.DataDir == "" {
			return fmt.Errorf("directory.data_dir is empty, an in-memory directory cannot be imported into")
		}

		seed, err := loadSeed(seedFile)
		if err != nil {
			return err
		}
		db, err := openLocal(cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Import(seed); err != nil {
			return fmt.Errorf("importing seed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d employees and %d notifications\n",
			len(seed.Employees), len(seed.Notifications))
		return nil
	},
}

var worklogsCmd = &cobra.Command{
	Use:   "worklogs [employee-id]",
	Short: "List work-log records from the local directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd.Flags())
		if err != nil {
			return err
		}
		if cfg.Directory.Driver != config.DriverLocal {
			return fmt.Errorf("worklogs needs the local directory driver, config uses %q", cfg.Directory.Driver)
		}

		db, err := openLocal(cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()

		var employeeID string
		if len(args) == 1 {
			employeeID = args[0]
		}
		logs, err := db.WorkLogs(cmd.Context(), employeeID)
		if err != nil {
			return err
		}
		employees, err := db.Employees(cmd.Context())
		if err != nil {
			return err
		}
		names := make(map[string]string, len(employees))
		for _, e := range employees {
			names[e.ID] = e.FullName()
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEMPLOYEE\tNAME\tSTATUS")
		for _, l := range logs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", gateway.FormatTimestamp(l.Timestamp), l.EmployeeID, names[l.EmployeeID], l.Status)
		}
		return w.Flush()
	},
}

func init() {
	importCmd.Flags().StringVar(&seedFile, "file", "", "Seed file to import (default: built-in demo data)")
}
