package console_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console/consoletest"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/telemetry"
)

func newClient(t *testing.T, srv *consoletest.Server) *console.Client {
	t.Helper()
	logger := zerolog.Nop()
	c, err := console.New(console.Options{
		URL:              srv.URL,
		APIKey:           consoletest.APIKey,
		RetryInitialMs:   1,
		RetryMaxMs:       2,
		RetryMaxAttempts: 2,
		Logger:           &logger,
	})
	require.NoError(t, err)
	return c
}

func TestNormalizeURL(t *testing.T) {
	u, err := console.NormalizeURL("acme.customers.deepinstinctweb.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.customers.deepinstinctweb.com", u.String())

	u, err = console.NormalizeURL("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)

	_, err = console.NormalizeURL("  ")
	assert.ErrorIs(t, err, console.ErrNoConsoleURL)
}

func TestListDevicesFollowsCursor(t *testing.T) {
	srv := consoletest.New(t)
	srv.Devices = []console.Device{
		{ID: 1, Hostname: "a"},
		{ID: 2, Hostname: "b"},
		{ID: 3, Hostname: "c", DeactivationStatus: "DEACTIVATED"},
		{ID: 4, Hostname: "d"},
		{ID: 5, Hostname: "e"},
	}
	c := newClient(t, srv)

	devices, err := c.ListDevices(context.Background(), false)
	require.NoError(t, err)
	var hosts []string
	for _, d := range devices {
		hosts = append(hosts, d.Hostname)
	}
	assert.Equal(t, []string{"a", "b", "d", "e"}, hosts)
	assert.Equal(t, 3, srv.Requests("/api/v1/devices"))

	all, err := c.ListDevices(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestListPoliciesWithData(t *testing.T) {
	srv := consoletest.New(t)
	srv.Policies = []console.Policy{
		{ID: 7, Name: "Servers", OS: console.OSWindows, Settings: console.PolicyData{PreventionLevel: console.LevelHigh}},
		{ID: 8, Name: "Macs", OS: console.OSMac},
	}
	c := newClient(t, srv)

	policies, err := c.ListPolicies(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, console.LevelHigh, policies[0].Settings.PreventionLevel)
	assert.Equal(t, 1, srv.Requests("/api/v1/policies/8/data"))

	bare, err := c.ListPolicies(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, bare[0].Settings.PreventionLevel)
}

func TestListEventsSearchAndMinID(t *testing.T) {
	srv := consoletest.New(t)
	srv.Events = []console.Event{
		{ID: 1, DeviceID: 10, Status: console.StatusOpen, Type: "STATIC_ANALYSIS"},
		{ID: 2, DeviceID: 10, Status: console.StatusClosed, Type: "STATIC_ANALYSIS"},
		{ID: 3, DeviceID: 11, Status: console.StatusOpen, Type: "AMSI_BYPASS", Hostname: "host-11"},
		{ID: 5, DeviceID: 12, Status: console.StatusOpen, Type: "STATIC_ANALYSIS"},
	}
	c := newClient(t, srv)

	filter := &console.Filter{Status: []string{console.StatusOpen}}
	events, err := c.ListEvents(context.Background(), filter, 0)
	require.NoError(t, err)
	var ids []int64
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int64{1, 3, 5}, ids)
	assert.Equal(t, "host-11", events[1].Hostname)
	assert.Equal(t, "AMSI_BYPASS", events[1].Raw["type"])

	searches := srv.Searches()
	require.NotEmpty(t, searches)
	assert.Equal(t, []string{console.StatusOpen}, searches[0].Status)

	after, err := c.ListEvents(context.Background(), nil, 3)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, int64(5), after[0].ID)
}

func TestListSuspiciousEvents(t *testing.T) {
	srv := consoletest.New(t)
	srv.Suspicious = []console.SuspiciousEvent{
		{ID: 1, DeviceID: 4, Status: console.StatusOpen, Action: "DETECTED", FileType: "ACTIVE_SCRIPT"},
		{ID: 2, DeviceID: 4, Status: console.StatusOpen, Action: "DETECTED", FileType: "PE"},
	}
	c := newClient(t, srv)

	events, err := c.ListSuspiciousEvents(context.Background(), &console.Filter{FileType: []string{"ACTIVE_SCRIPT"}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(4), events[0].DeviceRef())
}

func TestReadsRetryTransientFailures(t *testing.T) {
	srv := consoletest.New(t)
	srv.Policies = []console.Policy{{ID: 1, Name: "Default", OS: console.OSWindows}}
	srv.Fail("/api/v1/policies/", http.StatusServiceUnavailable, http.StatusTooManyRequests)
	c := newClient(t, srv)

	policies, err := c.ListPolicies(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, policies, 1)
	assert.Equal(t, 3, srv.Requests("/api/v1/policies/"))
}

func TestReadsGiveUpAfterRetryBudget(t *testing.T) {
	srv := consoletest.New(t)
	srv.Fail("/api/v1/policies/", 500, 500, 500, 500)
	c := newClient(t, srv)

	_, err := c.ListPolicies(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, console.ErrUnexpectedStatus)
	assert.Equal(t, 3, srv.Requests("/api/v1/policies/"))
}

func TestMutationsAreSentOnce(t *testing.T) {
	srv := consoletest.New(t)
	srv.Fail("/api/v1/events/actions/close", http.StatusBadGateway)
	c := newClient(t, srv)

	err := c.CloseEvents(context.Background(), []int64{1, 2})
	require.Error(t, err)
	var se *console.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Equal(t, 1, srv.Requests("/api/v1/events/actions/close"))

	require.NoError(t, c.CloseEvents(context.Background(), []int64{1, 2}))
	require.NoError(t, c.ArchiveEvents(context.Background(), []int64{1, 2}))
	assert.Equal(t, [][]int64{{1, 2}}, srv.Closed())
	assert.Equal(t, [][]int64{{1, 2}}, srv.Archived())

	assert.ErrorIs(t, c.ArchiveEvents(context.Background(), nil), console.ErrEmptyIDs)
}

func TestUnauthorized(t *testing.T) {
	srv := consoletest.New(t)
	logger := zerolog.Nop()
	c, err := console.New(console.Options{URL: srv.URL, APIKey: "wrong", Logger: &logger})
	require.NoError(t, err)

	_, err = c.ListPolicies(context.Background(), false)
	assert.ErrorIs(t, err, console.ErrUnauthorized)
	assert.Equal(t, 1, srv.Requests("/api/v1/policies/"))
}

func TestMultitenancyEnabled(t *testing.T) {
	srv := consoletest.New(t)
	c := newClient(t, srv)

	enabled, err := c.MultitenancyEnabled(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled)

	srv.MultiTenancy = true
	enabled, err = c.MultitenancyEnabled(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestHealthCheckReturnsServerClock(t *testing.T) {
	srv := consoletest.New(t)
	c := newClient(t, srv)

	ts, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}

func TestProvisioningCalls(t *testing.T) {
	srv := consoletest.New(t)
	srv.Versions = []map[string]any{{"os": "WINDOWS", "version": "3.1.0.20", "build": "x64"}}
	srv.Installer = []byte("MZ")
	c := newClient(t, srv)
	ctx := context.Background()

	require.NoError(t, c.CreateUser(ctx, console.User{Username: "jdoe", Role: "READ_ONLY"}))
	assert.Equal(t, "jdoe", srv.Users()[0].Username)

	items := []console.Exclusion{{Item: `C:\tools\agent.exe`, Comment: "backup"}}
	require.NoError(t, c.AddExclusions(ctx, 7, console.ExclusionProcess, items))
	assert.Equal(t, items, srv.Exclusions(7, console.ExclusionProcess))
	require.NoError(t, c.AddExclusions(ctx, 7, console.ExclusionFolder, nil))

	versions, err := c.AgentVersions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "x64", versions[0].Raw["build"])

	data, err := c.DownloadInstaller(ctx, versions[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("MZ"), data)
}

func TestRequestsAreTraced(t *testing.T) {
	srv := consoletest.New(t)
	recorder := telemetry.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	logger := zerolog.Nop()
	c, err := console.New(console.Options{URL: srv.URL, APIKey: consoletest.APIKey, Logger: &logger, TracerProvider: tp})
	require.NoError(t, err)

	_, err = c.ListDevices(context.Background(), false)
	require.NoError(t, err)

	span := recorder.FirstSpanNamed("console.list_devices")
	require.NotNil(t, span)
	var status int64
	for _, attr := range span.Attributes() {
		if attr.Key == "http.status_code" {
			status = attr.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(http.StatusOK), status)
}
