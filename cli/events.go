package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/batch"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/sheet"
)

var errNoSelection = errors.New("select events with --file or at least one match flag")

var previewColumns = []string{"id", "device_id", "hostname", "status", "type", "threat_severity", "action", "path", "timestamp"}

func eventsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Change the state of events in bulk",
	}
	cmd.AddCommand(
		eventActionCmd(a, "close", "Close events"),
		eventActionCmd(a, "archive", "Archive events"),
		eventActionCmd(a, "remediate", "Close, then archive events"),
	)
	return cmd
}

func eventActionCmd(a *app, name, short string) *cobra.Command {
	var (
		file   string
		column string
		match  console.EventMatch
		dryRun bool
		size   int
	)
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Long: short + ". Event ids come from a spreadsheet (--file) or from a live query " +
			"matched on status, hostname, type, path and severity. A live query writes a preview " +
			"workbook of the matched events before anything is changed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := batch.ParseOps(name)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			client, err := a.connect(ctx)
			if err != nil {
				return err
			}

			var ids []int64
			switch {
			case file != "":
				rows, err := sheet.Read(file)
				if err != nil {
					return err
				}
				if ids, err = batch.IDsFromRows(rows, column); err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				log.Info().Str("file", file).Int("ids", len(ids)).Msg("Read event ids")
			case matchSet(match):
				events, err := client.ListEvents(ctx, nil, 0)
				if err != nil {
					return err
				}
				var matched []console.Event
				for _, e := range events {
					if match.Matches(e) {
						matched = append(matched, e)
						ids = append(ids, e.ID)
					}
				}
				path := filepath.Join(a.cfg.Export.Dir, fmt.Sprintf("events_to_%s_%s_UTC.xlsx", name, stamp(time.Now())))
				if err := sheet.Write(path, sheet.Table{Name: "events", Header: previewColumns, Rows: previewRows(matched)}); err != nil {
					return fmt.Errorf("write preview: %w", err)
				}
				fmt.Printf("%d of %d events matched; preview written to %s\n", len(matched), len(events), path)
			default:
				return errNoSelection
			}

			if dryRun {
				fmt.Printf("Dry run: %d events would be passed to %s\n", len(ids), name)
				return nil
			}
			if size <= 0 {
				size = a.cfg.Batch.Size
			}
			m, err := batch.NewMutator(client, batch.Options{Size: size})
			if err != nil {
				return err
			}
			n, err := m.Apply(ctx, ids, ops...)
			if err != nil {
				return err
			}
			fmt.Printf("Applied %s to %d events in %d batches\n", name, len(batch.Dedupe(ids)), n)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "Spreadsheet of event ids")
	f.StringVar(&column, "column", "id", "Column holding the event id")
	f.StringSliceVar(&match.Status, "status", nil, "Match event status")
	f.StringSliceVar(&match.Hostname, "hostname", nil, "Match device hostname")
	f.StringSliceVar(&match.Type, "type", nil, "Match event type")
	f.StringSliceVar(&match.Path, "path", nil, "Match file path")
	f.StringSliceVar(&match.ThreatSeverity, "severity", nil, "Match threat severity")
	f.BoolVar(&dryRun, "dry-run", false, "Select and preview without changing anything")
	f.IntVar(&size, "batch-size", 0, "Ids per bulk call (overrides config)")
	cmd.MarkFlagsMutuallyExclusive("file", "status")
	cmd.MarkFlagsMutuallyExclusive("file", "hostname")
	return cmd
}

func matchSet(m console.EventMatch) bool {
	return len(m.Status)+len(m.Hostname)+len(m.Type)+len(m.Path)+len(m.ThreatSeverity) > 0
}

func previewRows(events []console.Event) [][]any {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.ID, e.DeviceID, e.Hostname, e.Status, e.Type, e.ThreatSeverity, e.Action, e.Path, e.Timestamp})
	}
	return rows
}
