package console

import (
	"encoding/json"
	"strings"
	"time"
)

// Operating system tags reported by the console.
const (
	OSWindows = "WINDOWS"
	OSMac     = "MAC"
	OSLinux   = "LINUX"
	OSAndroid = "ANDROID"
	OSIOS     = "IOS"
	OSChrome  = "CHROME"
)

// Policy setting values.
const (
	LevelDisabled = "DISABLED"
	LevelLow      = "LOW"
	LevelMedium   = "MEDIUM"
	LevelHigh     = "HIGH"

	ActionDetect  = "DETECT"
	ActionPrevent = "PREVENT"
	ActionAllow   = "ALLOW"
)

type Policy struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	OS      string `json:"os"`
	MSPID   int64  `json:"msp_id"`
	MSPName string `json:"msp_name"`

	// Settings is only populated when policies are listed with data.
	Settings PolicyData `json:"-"`
}

// PolicyData is the subset of the policy settings object the pipeline reads.
type PolicyData struct {
	PreventionLevel    string `json:"prevention_level"`
	DetectionLevel     string `json:"detection_level"`
	InMemoryProtection bool   `json:"in_memory_protection"`

	RemoteCodeInjection         string `json:"remote_code_injection"`
	ArbitraryShellcodeExecution string `json:"arbitrary_shellcode_execution"`
	ReflectiveDLLLoading        string `json:"reflective_dll_loading"`
	ReflectiveDotnetInjection   string `json:"reflective_dotnet_injection"`
	AMSIBypass                  string `json:"amsi_bypass"`
	CredentialsDump             string `json:"credentials_dump"`
	HTMLApplicationsAction      string `json:"html_applications_action"`
	ActiveScriptAction          string `json:"activescript_action"`

	KnownPayloadExecution       string `json:"known_payload_execution"`
	ProtectionLevelPUA          string `json:"protection_level_pua"`
	ScanNetworkDrives           bool   `json:"scan_network_drives"`
	OfficeMacroScriptAction     string `json:"office_macro_script_action"`
	RansomwareBehavior          string `json:"ransomware_behavior"`
	PowerShellScriptAction      string `json:"powershell_script_action"`
	PreventAllActiveScriptUsage string `json:"prevent_all_activescript_usage"`
}

// AdvancedActions returns the eight in-memory and script-control actions in a
// fixed order. Phase 2 and 3 are decided on these values only.
func (d PolicyData) AdvancedActions() []string {
	return []string{
		d.RemoteCodeInjection,
		d.ArbitraryShellcodeExecution,
		d.ReflectiveDLLLoading,
		d.ReflectiveDotnetInjection,
		d.AMSIBypass,
		d.CredentialsDump,
		d.HTMLApplicationsAction,
		d.ActiveScriptAction,
	}
}

type Device struct {
	ID                 int64  `json:"id"`
	Hostname           string `json:"hostname"`
	OS                 string `json:"os"`
	PolicyID           int64  `json:"policy_id"` // 0 when no policy is assigned
	PolicyName         string `json:"policy_name"`
	LastContact        string `json:"last_contact"`
	LastRegistration   string `json:"last_registration"`
	DeactivationStatus string `json:"deactivation_status"`
	MSPName            string `json:"msp_name"`
}

// Active reports whether the device has not been deactivated. Consoles that
// omit the field report active devices only.
func (d Device) Active() bool {
	s := strings.ToUpper(d.DeactivationStatus)
	return s == "" || s == "ACTIVE"
}

// Event statuses.
const (
	StatusOpen     = "OPEN"
	StatusClosed   = "CLOSED"
	StatusArchived = "ARCHIVED"
)

type Event struct {
	ID             int64  `json:"id"`
	DeviceID       int64  `json:"device_id"`
	Status         string `json:"status"`
	Type           string `json:"type"`
	ThreatSeverity string `json:"threat_severity"`
	Action         string `json:"action"`
	Path           string `json:"path"`
	FileType       string `json:"file_type"`
	Timestamp      string `json:"timestamp"`
	Hostname       string `json:"-"`

	// Raw is the complete record as returned by the console.
	Raw map[string]any `json:"-"`
}

func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var info struct {
		RecordedDeviceInfo struct {
			Hostname string `json:"hostname"`
		} `json:"recorded_device_info"`
	}
	_ = json.Unmarshal(data, &info)

	*e = Event(p)
	e.Raw = raw
	e.Hostname = info.RecordedDeviceInfo.Hostname
	return nil
}

// Record returns a copy of the raw record safe for mutation by callers.
func (e Event) Record() map[string]any {
	if len(e.Raw) == 0 {
		type plain Event
		out := map[string]any{}
		data, _ := json.Marshal(plain(e))
		_ = json.Unmarshal(data, &out)
		if e.Hostname != "" {
			out["recorded_device_info"] = map[string]any{"hostname": e.Hostname}
		}
		return out
	}
	out := make(map[string]any, len(e.Raw))
	for k, v := range e.Raw {
		out[k] = v
	}
	return out
}

func (e Event) DeviceRef() int64 { return e.DeviceID }

type SuspiciousEvent struct {
	ID       int64  `json:"id"`
	DeviceID int64  `json:"device_id"`
	Status   string `json:"status"`
	Action   string `json:"action"`
	FileType string `json:"file_type"`
	Type     string `json:"type"`
}

func (e SuspiciousEvent) DeviceRef() int64 { return e.DeviceID }

// Filter is the body accepted by the event and suspicious-event search
// endpoints. Empty fields are not sent.
type Filter struct {
	Status         []string   `json:"status,omitempty" yaml:"status,omitempty"`
	ThreatSeverity []string   `json:"threat_severity,omitempty" yaml:"threat_severity,omitempty"`
	Type           []string   `json:"type,omitempty" yaml:"type,omitempty"`
	Action         []string   `json:"action,omitempty" yaml:"action,omitempty"`
	FileType       []string   `json:"file_type,omitempty" yaml:"file_type,omitempty"`
	Timestamp      *TimeRange `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// EventMatch selects events client side. Empty fields match everything;
// non-empty fields match when the event value equals any listed value
// (case-insensitive).
type EventMatch struct {
	Status         []string
	Hostname       []string
	Type           []string
	Path           []string
	ThreatSeverity []string
}

func (m EventMatch) Matches(e Event) bool {
	return anyOf(m.Status, e.Status) &&
		anyOf(m.Hostname, e.Hostname) &&
		anyOf(m.Type, e.Type) &&
		anyOf(m.Path, e.Path) &&
		anyOf(m.ThreatSeverity, e.ThreatSeverity)
}

func anyOf(want []string, got string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if strings.EqualFold(w, got) {
			return true
		}
	}
	return false
}

type User struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// Exclusion is one allow-list entry added to a policy.
type Exclusion struct {
	Item    string `json:"item"`
	Comment string `json:"comment"`
}

// ExclusionKind selects the policy allow list an exclusion is written to.
type ExclusionKind string

const (
	ExclusionProcess ExclusionKind = "process"
	ExclusionFolder  ExclusionKind = "folder"
)

// AgentVersion is an installer build offered by the console. Raw is posted
// back verbatim when requesting the installer.
type AgentVersion struct {
	OS      string         `json:"os"`
	Version string         `json:"version"`
	Raw     map[string]any `json:"-"`
}

func (v *AgentVersion) UnmarshalJSON(data []byte) error {
	type plain AgentVersion
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = AgentVersion(p)
	v.Raw = raw
	return nil
}
