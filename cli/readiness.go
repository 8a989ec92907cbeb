package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/policy"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/readiness"
)

func readinessCmd(a *app) *cobra.Command {
	var (
		phase      policy.Phase
		maxDays    int
		maxEvents  int
		suspicious bool
		noExport   bool
	)
	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Assess which devices can progress to the next deployment phase",
		Long: "Classify Windows policies by deployment phase, count open events per device and " +
			"report which devices in the target phase meet the contact and event thresholds.\n\n" + policy.Ladder,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.connect(ctx)
			if err != nil {
				return err
			}

			cfg := a.cfg.Readiness
			flags := cmd.Flags()
			if flags.Changed("phase") {
				cfg.TargetPhase = phase
			}
			if flags.Changed("max-days") {
				cfg.MaxDaysSinceLastContact = maxDays
			}
			if flags.Changed("max-events") {
				cfg.MaxOpenEventQuantity = maxEvents
			}
			if flags.Changed("include-suspicious") {
				cfg.IncludeSuspiciousEvents = &suspicious
			}

			now := time.Now()
			assessment, err := readiness.Assess(log.Logger.WithContext(ctx), client, cfg, now)
			if err != nil {
				return err
			}
			fmt.Println(assessment.Summary())
			if noExport {
				return nil
			}

			multi, err := client.MultitenancyEnabled(ctx)
			if err != nil {
				return err
			}
			msp := ""
			if len(assessment.Policies) > 0 {
				msp = assessment.Policies[0].MSPName
			}
			path, err := assessment.Export(a.cfg.Export.Dir, readiness.ServerShortName(multi, msp, client.Host()))
			if err != nil {
				return fmt.Errorf("export results: %w", err)
			}
			fmt.Printf("Results exported to %s\n", path)
			return nil
		},
	}

	f := cmd.Flags()
	f.Var(&phase, "phase", "Deployment phase to evaluate: 1, 1.5 or 2 (overrides config)")
	f.IntVar(&maxDays, "max-days", 0, "Maximum days since last contact (overrides config)")
	f.IntVar(&maxEvents, "max-events", 0, "Maximum open events per device (overrides config)")
	f.BoolVar(&suspicious, "include-suspicious", false, "Count suspicious events too (overrides config)")
	f.BoolVar(&noExport, "no-export", false, "Print the summary only")
	return cmd
}

func phasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "Describe the deployment phases",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(os.Stdout, policy.Ladder, "\n")
		},
	}
}
