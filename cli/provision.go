package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/agentdl"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/exclusions"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/sheet"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/users"
)

func usersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage console users",
	}

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Create users listed in a spreadsheet",
		Long: "Create one console user per row. Required columns (case sensitive): username, password, " +
			"first_name, last_name, email, role. Every row is checked before the first user is created.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := sheet.Read(file)
			if err != nil {
				return err
			}
			list, err := users.FromRows(rows)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			client, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			n, err := users.Import(cmd.Context(), client, list, nil)
			fmt.Printf("Created %d of %d users\n", n, len(list))
			return err
		},
	}
	importCmd.Flags().StringVarP(&file, "file", "f", "users.xlsx", "Spreadsheet of users")
	cmd.AddCommand(importCmd)
	return cmd
}

func exclusionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exclusions",
		Short: "Manage policy exclusions",
	}

	var processFile, folderFile string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Add process and folder exclusions to Windows policies",
		Long: "Rows carry Process (or Folder), Comment and Policies. Policies set to All applies the row " +
			"to every Windows policy; otherwise it applies to each policy whose name appears in the cell.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if processFile == "" && folderFile == "" {
				return errors.New("pass --process and/or --folder")
			}
			sources := []struct {
				kind console.ExclusionKind
				file string
			}{
				{console.ExclusionProcess, processFile},
				{console.ExclusionFolder, folderFile},
			}

			rules := map[console.ExclusionKind][]exclusions.Rule{}
			for _, src := range sources {
				if src.file == "" {
					continue
				}
				rows, err := sheet.Read(src.file)
				if err != nil {
					return err
				}
				if rules[src.kind], err = exclusions.FromRows(rows, src.kind); err != nil {
					return fmt.Errorf("%s: %w", src.file, err)
				}
			}

			ctx := cmd.Context()
			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			policies, err := client.ListPolicies(ctx, false)
			if err != nil {
				return err
			}
			var plan []exclusions.Assignment
			for _, src := range sources {
				plan = append(plan, exclusions.Plan(policies, src.kind, rules[src.kind])...)
			}
			n, err := exclusions.Apply(ctx, client, plan, nil)
			fmt.Printf("Added %d exclusions across %d policy lists\n", n, len(plan))
			return err
		},
	}
	importCmd.Flags().StringVar(&processFile, "process", "", "Spreadsheet of process exclusions")
	importCmd.Flags().StringVar(&folderFile, "folder", "", "Spreadsheet of folder exclusions")
	cmd.AddCommand(importCmd)
	return cmd
}

func agentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Agent installers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "download",
		Short: "Download the newest Windows agent installer",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			path, err := agentdl.DownloadLatestWindows(cmd.Context(), client, a.cfg.Export.Dir, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Installer saved to %s\n", path)
			return nil
		},
	})
	return cmd
}
