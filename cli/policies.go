package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/policy"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/posture"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/readiness"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/sheet"
)

const auditSheet = "Policy Audit"

func policiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "policies",
		Aliases: []string{"policy"},
		Short:   "Inspect Windows policies",
	}
	cmd.AddCommand(policyPhasesCmd(a), policyAuditCmd(a))
	return cmd
}

func policyPhasesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "Show the deployment phase of every Windows policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			policies, err := client.ListPolicies(cmd.Context(), true)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PHASE\tID\tNAME\tRULE")
			fmt.Fprintln(w, "-----\t--\t----\t----")
			for _, p := range policy.Windows(policies) {
				d := policy.Explain(p)
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", d.Phase, p.ID, p.Name, d.Rule)
			}
			return w.Flush()
		},
	}
}

func policyAuditCmd(a *app) *cobra.Command {
	var deviceCounts bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare Windows policies against the prescribed settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			policies, err := client.ListPolicies(ctx, true)
			if err != nil {
				return err
			}
			windows := policy.Windows(policies)
			rows := policy.Audit(windows)

			if deviceCounts {
				devices, err := client.ListDevices(ctx, false)
				if err != nil {
					return err
				}
				policy.AttachDeviceCounts(rows, posture.CountByPolicy(devices))
			}

			nonConforming := 0
			for _, r := range rows {
				if !r.Conforming() {
					nonConforming++
				}
			}

			multi := policy.MultiMSP(windows)
			header, body := policy.Table(rows, multi)
			msp := ""
			if len(windows) > 0 {
				msp = windows[0].MSPName
			}
			multiTenant, err := client.MultitenancyEnabled(ctx)
			if err != nil {
				return err
			}
			server := readiness.ServerShortName(multiTenant, msp, client.Host())
			path := filepath.Join(a.cfg.Export.Dir, fmt.Sprintf("policy_audit_%s_UTC_%s.xlsx", stamp(time.Now()), server))
			if err := sheet.Write(path, sheet.Table{Name: auditSheet, Header: header, Rows: sheet.Strings(body)}); err != nil {
				return fmt.Errorf("export audit: %w", err)
			}

			fmt.Printf("%d of %d Windows policies deviate from the prescribed settings\n", nonConforming, len(rows))
			fmt.Printf("Audit exported to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&deviceCounts, "device-counts", false, "Add the number of devices assigned to each policy")
	return cmd
}
