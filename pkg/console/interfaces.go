package console

import (
	"context"
	"net/http"
)

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher is the read side of the console used by the compliance pipeline.
type Fetcher interface {
	ListPolicies(ctx context.Context, includeData bool) ([]Policy, error)
	ListDevices(ctx context.Context, includeDeactivated bool) ([]Device, error)
	ListEvents(ctx context.Context, filter *Filter, minID int64) ([]Event, error)
	ListSuspiciousEvents(ctx context.Context, filter *Filter) ([]SuspiciousEvent, error)
}

// EventMutator transitions event state in bulk.
type EventMutator interface {
	CloseEvents(ctx context.Context, ids []int64) error
	ArchiveEvents(ctx context.Context, ids []int64) error
}

var (
	_ Fetcher      = (*Client)(nil)
	_ EventMutator = (*Client)(nil)
)
