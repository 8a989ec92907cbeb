package policy

import (
	"sort"
	"strconv"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
)

// ManualReview marks settings the console API does not expose.
const ManualReview = "-manual_review-"

// Setting is one column of the prescribed-settings audit. Value is nil for
// settings that require manual review.
type Setting struct {
	Column   string
	Expected string
	Value    func(d console.PolicyData) string
}

// Prescribed lists the audited settings in report column order.
var Prescribed = []Setting{
	{Column: "D-Cloud Reputation Service"},
	{Column: "Static Analysis PE Detection", Expected: console.LevelMedium, Value: func(d console.PolicyData) string { return d.DetectionLevel }},
	{Column: "Static Analysis PE Prevention", Expected: console.LevelMedium, Value: func(d console.PolicyData) string { return d.PreventionLevel }},
	{Column: "Known PUA", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.ProtectionLevelPUA }},
	{Column: "Embedded DDE Objects"},
	{Column: "Network Drive Protection", Expected: "True", Value: func(d console.PolicyData) string { return boolText(d.ScanNetworkDrives) }},
	{Column: "Macro Execution", Expected: "USE_D_BRAIN", Value: func(d console.PolicyData) string { return d.OfficeMacroScriptAction }},
	{Column: "Ransomware", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.RansomwareBehavior }},
	{Column: "In-Memory Protection", Expected: "True", Value: func(d console.PolicyData) string { return boolText(d.InMemoryProtection) }},
	{Column: "Arbitrary Shellcode", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.ArbitraryShellcodeExecution }},
	{Column: "Remote Code Injection", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.RemoteCodeInjection }},
	{Column: "Reflective DLL Injection", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.ReflectiveDLLLoading }},
	{Column: ".Net Reflection", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.ReflectiveDotnetInjection }},
	{Column: "AMSI Bypass", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.AMSIBypass }},
	{Column: "Credential Dumping", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.CredentialsDump }},
	{Column: "Known Payload Execution", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.KnownPayloadExecution }},
	{Column: "Suspicious Script Execution"},
	{Column: "Malicious PowerShell Commands"},
	{Column: "Suspicious Activity Detection"},
	{Column: "PowerShell", Expected: console.ActionAllow, Value: func(d console.PolicyData) string { return d.PowerShellScriptAction }},
	{Column: "HTML Applications", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.HTMLApplicationsAction }},
	{Column: "ActiveScript Usage", Expected: console.ActionAllow, Value: func(d console.PolicyData) string { return d.PreventAllActiveScriptUsage }},
	{Column: "ActiveScript Execution", Expected: console.ActionPrevent, Value: func(d console.PolicyData) string { return d.ActiveScriptAction }},
}

// Check renders the value of s for d: conforming values as-is and
// non-conforming ones wrapped in hyphens.
func (s Setting) Check(d console.PolicyData) string {
	if s.Value == nil {
		return ManualReview
	}
	v := s.Value(d)
	if v == s.Expected {
		return v
	}
	return "-" + v + "-"
}

// AuditRow is the audit of one policy. Values follow the order of Prescribed.
type AuditRow struct {
	MSPID       int64
	MSPName     string
	ID          int64
	Name        string
	Values      []string
	DeviceCount *int
}

// Conforming reports whether every API-visible setting matched.
func (r AuditRow) Conforming() bool {
	for i, v := range r.Values {
		if Prescribed[i].Value != nil && v != Prescribed[i].Expected {
			return false
		}
	}
	return true
}

// Audit checks every policy against Prescribed. Rows are sorted by MSP name,
// then policy name.
func Audit(policies []console.Policy) []AuditRow {
	rows := make([]AuditRow, 0, len(policies))
	for _, p := range policies {
		row := AuditRow{MSPID: p.MSPID, MSPName: p.MSPName, ID: p.ID, Name: p.Name}
		for _, s := range Prescribed {
			row.Values = append(row.Values, s.Check(p.Settings))
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].MSPName != rows[j].MSPName {
			return rows[i].MSPName < rows[j].MSPName
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// AttachDeviceCounts sets DeviceCount on every row from a policy id index.
func AttachDeviceCounts(rows []AuditRow, counts map[int64]int) {
	for i := range rows {
		n := counts[rows[i].ID]
		rows[i].DeviceCount = &n
	}
}

// MultiMSP reports whether the policies belong to more than one MSP.
func MultiMSP(policies []console.Policy) bool {
	seen := map[int64]struct{}{}
	for _, p := range policies {
		seen[p.MSPID] = struct{}{}
	}
	return len(seen) > 1
}

// Table renders rows for export. MSP columns are included when multiMSP is
// set and the device count column when any row carries a count.
func Table(rows []AuditRow, multiMSP bool) (header []string, body [][]string) {
	withCounts := false
	for _, r := range rows {
		if r.DeviceCount != nil {
			withCounts = true
			break
		}
	}
	if multiMSP {
		header = append(header, "MSP ID", "MSP Name")
	}
	header = append(header, "ID", "Name")
	for _, s := range Prescribed {
		header = append(header, s.Column)
	}
	if withCounts {
		header = append(header, "Device Count")
	}

	for _, r := range rows {
		var line []string
		if multiMSP {
			line = append(line, strconv.FormatInt(r.MSPID, 10), r.MSPName)
		}
		line = append(line, strconv.FormatInt(r.ID, 10), r.Name)
		line = append(line, r.Values...)
		if withCounts {
			n := 0
			if r.DeviceCount != nil {
				n = *r.DeviceCount
			}
			line = append(line, strconv.Itoa(n))
		}
		body = append(body, line)
	}
	return header, body
}

func boolText(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
