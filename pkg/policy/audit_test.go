package policy

import (
	"testing"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
)

func prescribedData() console.PolicyData {
	return console.PolicyData{
		DetectionLevel:              console.LevelMedium,
		PreventionLevel:             console.LevelMedium,
		ProtectionLevelPUA:          console.ActionPrevent,
		ScanNetworkDrives:           true,
		OfficeMacroScriptAction:     "USE_D_BRAIN",
		RansomwareBehavior:          console.ActionPrevent,
		InMemoryProtection:          true,
		ArbitraryShellcodeExecution: console.ActionPrevent,
		RemoteCodeInjection:         console.ActionPrevent,
		ReflectiveDLLLoading:        console.ActionPrevent,
		ReflectiveDotnetInjection:   console.ActionPrevent,
		AMSIBypass:                  console.ActionPrevent,
		CredentialsDump:             console.ActionPrevent,
		KnownPayloadExecution:       console.ActionPrevent,
		PowerShellScriptAction:      console.ActionAllow,
		HTMLApplicationsAction:      console.ActionPrevent,
		PreventAllActiveScriptUsage: console.ActionAllow,
		ActiveScriptAction:          console.ActionPrevent,
	}
}

func TestAuditMarksNonConformingValues(t *testing.T) {
	good := console.Policy{ID: 1, Name: "b-servers", OS: console.OSWindows, Settings: prescribedData()}
	bad := good
	bad.ID = 2
	bad.Name = "a-workstations"
	bad.Settings.AMSIBypass = console.ActionDetect
	bad.Settings.ScanNetworkDrives = false

	rows := Audit([]console.Policy{good, bad})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Name != "a-workstations" {
		t.Fatalf("rows not sorted by name: %q first", rows[0].Name)
	}
	if !rows[1].Conforming() {
		t.Errorf("prescribed policy reported non-conforming: %v", rows[1].Values)
	}
	if rows[0].Conforming() {
		t.Error("modified policy reported conforming")
	}

	values := map[string]string{}
	for i, s := range Prescribed {
		values[s.Column] = rows[0].Values[i]
	}
	if values["AMSI Bypass"] != "-DETECT-" {
		t.Errorf("AMSI Bypass = %q", values["AMSI Bypass"])
	}
	if values["Network Drive Protection"] != "-False-" {
		t.Errorf("Network Drive Protection = %q", values["Network Drive Protection"])
	}
	if values["Embedded DDE Objects"] != ManualReview {
		t.Errorf("Embedded DDE Objects = %q", values["Embedded DDE Objects"])
	}
	if values["Ransomware"] != console.ActionPrevent {
		t.Errorf("Ransomware = %q", values["Ransomware"])
	}
}

func TestTableColumns(t *testing.T) {
	policies := []console.Policy{
		{ID: 1, Name: "x", MSPID: 1, MSPName: "Acme", OS: console.OSWindows},
		{ID: 2, Name: "y", MSPID: 2, MSPName: "Globex", OS: console.OSWindows},
	}
	rows := Audit(policies)

	header, body := Table(rows, false)
	if header[0] != "ID" || len(header) != 2+len(Prescribed) {
		t.Fatalf("unexpected header %v", header)
	}

	if !MultiMSP(policies) {
		t.Fatal("expected policies to span two MSPs")
	}
	AttachDeviceCounts(rows, map[int64]int{2: 7})
	header, body = Table(rows, true)
	if header[0] != "MSP ID" || header[len(header)-1] != "Device Count" {
		t.Fatalf("unexpected header %v", header)
	}
	last := body[1][len(body[1])-1]
	if last != "7" || body[0][len(body[0])-1] != "0" {
		t.Errorf("device counts = %q, %q", body[0][len(body[0])-1], last)
	}
}
