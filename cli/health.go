package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/health"
)

func healthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check console reachability, credentials and clock drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			st := health.Check(cmd.Context(), client, time.Duration(a.cfg.Health.TimeDriftMaxS)*time.Second)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Console:\t%s\n", client.URL())
			fmt.Fprintf(w, "Reachable:\t%v\n", st.ConsoleReachable)
			fmt.Fprintf(w, "Authorized:\t%v\n", st.Authorized)
			fmt.Fprintf(w, "Time drift:\t%ds\n", st.TimeDrift)
			for _, issue := range st.Issues {
				fmt.Fprintf(w, "Issue:\t%s\n", issue)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !st.Healthy {
				return errors.New("console is unhealthy")
			}
			return nil
		},
	}
}
