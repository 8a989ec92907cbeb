package readiness

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/posture"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/search"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/sheet"
)

// Sheet names of the readiness workbook.
const (
	SheetReady    = "ready_for_next_phase"
	SheetNotReady = "not_ready_for_next_phase"
	SheetConfig   = "config"
	SheetCriteria = "event_search_criteria"
)

var deviceColumns = []string{
	"id", "hostname", "os", "policy_id", "policy_name", "msp_name",
	"last_contact", "last_registration",
	"deployment_phase", "event_count", "last_contact_days_ago", "days_since_deployment",
	"ready_to_move_to_next_phase",
}

// DeviceRows renders postures for export with the readiness flag set to ready.
func DeviceRows(devices []posture.DevicePosture, ready bool) [][]any {
	rows := make([][]any, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []any{
			d.Device.ID, d.Device.Hostname, d.Device.OS, d.Device.PolicyID, d.Device.PolicyName, d.Device.MSPName,
			d.Device.LastContact, d.Device.LastRegistration,
			d.Phase.String(), d.EventCount, d.LastContactDaysAgo, d.DaysSinceDeployment,
			ready,
		})
	}
	return rows
}

// Tables returns the four worksheets of the readiness workbook.
func (a *Assessment) Tables() []sheet.Table {
	return []sheet.Table{
		{Name: SheetReady, Header: deviceColumns, Rows: DeviceRows(a.Ready, true)},
		{Name: SheetNotReady, Header: deviceColumns, Rows: DeviceRows(a.NotReady, false)},
		{Name: SheetConfig, Header: []string{"setting", "value"}, Rows: sheet.Pairs(a.Config.Rows())},
		{Name: SheetCriteria, Header: []string{"field", "values"}, Rows: sheet.Pairs(search.Criteria(a.EventFilter))},
	}
}

// Export writes the workbook into dir and returns its path.
func (a *Assessment) Export(dir, server string) (string, error) {
	path := filepath.Join(dir, FileName(a.Config, a.GeneratedAt, server))
	if err := sheet.Write(path, a.Tables()...); err != nil {
		return "", err
	}
	return path, nil
}

// FileName names the workbook after the phase, the UTC generation time and
// the console.
func FileName(cfg Config, at time.Time, server string) string {
	return fmt.Sprintf("deployment_phase_%s_progression_readiness_assessment_%s_UTC_%s.xlsx",
		cfg.TargetPhase, at.UTC().Format("2006-01-02_15.04"), server)
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// ServerShortName picks the export suffix: the MSP name reduced to [a-z0-9]
// on multi-tenant consoles, otherwise the first label of the console host.
func ServerShortName(multiTenant bool, mspName, host string) string {
	if multiTenant && mspName != "" {
		return nonAlnum.ReplaceAllString(strings.ToLower(mspName), "")
	}
	label, _, _ := strings.Cut(host, ".")
	return label
}
