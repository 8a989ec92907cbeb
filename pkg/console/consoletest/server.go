// Package consoletest serves an in-memory management console for tests.
package consoletest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
)

const APIKey = "test-api-key"

// Server is a fake console. Fixtures may be changed between calls while
// holding no lock; recorded calls are read through the accessor methods.
type Server struct {
	*httptest.Server

	PageSize     int
	Policies     []console.Policy
	Devices      []console.Device
	Events       []console.Event
	Suspicious   []console.SuspiciousEvent
	Versions     []map[string]any
	Installer    []byte
	MultiTenancy bool

	mu         sync.Mutex
	failures   map[string][]int
	closed     [][]int64
	archived   [][]int64
	searches   []console.Filter
	users      []console.User
	exclusions map[string][]console.Exclusion
	requests   map[string]int
}

func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		PageSize:   2,
		failures:   map[string][]int{},
		exclusions: map[string][]console.Exclusion{},
		requests:   map[string]int{},
	}

	r := gin.New()
	r.Use(s.injectFailures, s.authorize)
	api := r.Group("/api/v1")
	api.GET("/health_check", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.GET("/multi-tenancy/", s.multiTenancy)
	api.GET("/policies/", s.listPolicies)
	api.GET("/policies/:id/data", s.policyData)
	api.POST("/policies/:id/exclusion-list/:kind", s.addExclusions)
	api.GET("/devices", s.listDevices)
	api.GET("/events/", s.listEvents)
	api.POST("/events/search", s.searchEvents)
	api.POST("/events/actions/:action", s.eventAction)
	api.GET("/suspicious-events/", s.listSuspicious)
	api.POST("/suspicious-events/search", s.searchSuspicious)
	api.POST("/users/", s.createUser)
	api.GET("/deployment/agent-versions", func(c *gin.Context) { c.JSON(http.StatusOK, s.Versions) })
	api.POST("/deployment/download-installer", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/octet-stream", s.Installer)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

// Fail makes the next len(statuses) requests whose path starts with prefix
// answer with the given status codes, in order.
func (s *Server) Fail(prefix string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prefix] = append(s.failures[prefix], statuses...)
}

func (s *Server) Closed() [][]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]int64(nil), s.closed...)
}

func (s *Server) Archived() [][]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]int64(nil), s.archived...)
}

func (s *Server) Searches() []console.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]console.Filter(nil), s.searches...)
}

func (s *Server) Users() []console.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]console.User(nil), s.users...)
}

// Exclusions returns the items added to policyID's allow list of kind.
func (s *Server) Exclusions(policyID int64, kind console.ExclusionKind) []console.Exclusion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]console.Exclusion(nil), s.exclusions[exclusionKey(policyID, string(kind))]...)
}

// Requests returns how many requests reached path, including injected failures.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func (s *Server) authorize(c *gin.Context) {
	if c.GetHeader("Authorization") != APIKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	c.Next()
}

func (s *Server) injectFailures(c *gin.Context) {
	path := c.Request.URL.Path
	s.mu.Lock()
	s.requests[path]++
	var status int
	for prefix, queue := range s.failures {
		if len(queue) > 0 && strings.HasPrefix(path, prefix) {
			status = queue[0]
			s.failures[prefix] = queue[1:]
			break
		}
	}
	s.mu.Unlock()
	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"error": "injected failure"})
		return
	}
	c.Next()
}

func (s *Server) multiTenancy(c *gin.Context) {
	if !s.MultiTenancy {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

func (s *Server) listPolicies(c *gin.Context) {
	out := make([]gin.H, 0, len(s.Policies))
	for _, p := range s.Policies {
		out = append(out, gin.H{"id": p.ID, "name": p.Name, "os": p.OS, "msp_id": p.MSPID, "msp_name": p.MSPName})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) policyData(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	for _, p := range s.Policies {
		if p.ID == id {
			c.JSON(http.StatusOK, gin.H{"id": p.ID, "os": p.OS, "data": p.Settings})
			return
		}
	}
	c.Status(http.StatusNotFound)
}

func (s *Server) listDevices(c *gin.Context) {
	after, _ := strconv.ParseInt(c.Query("after_device_id"), 10, 64)
	devices := append([]console.Device(nil), s.Devices...)
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	page, last := paginate(devices, after, s.PageSize, func(d console.Device) int64 { return d.ID })
	c.JSON(http.StatusOK, gin.H{"devices": page, "last_id": last})
}

func (s *Server) listEvents(c *gin.Context) {
	s.serveEvents(c, c.Query("after_event_id"), nil)
}

func (s *Server) searchEvents(c *gin.Context) {
	var f console.Filter
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.searches = append(s.searches, f)
	s.mu.Unlock()
	s.serveEvents(c, c.Query("after_id"), &f)
}

func (s *Server) serveEvents(c *gin.Context, afterParam string, f *console.Filter) {
	after, _ := strconv.ParseInt(afterParam, 10, 64)
	var events []console.Event
	for _, e := range s.Events {
		if f == nil || matches(f, e.Status, e.Type, e.Action, e.ThreatSeverity, e.FileType) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	page, last := paginate(events, after, s.PageSize, func(e console.Event) int64 { return e.ID })
	records := make([]map[string]any, 0, len(page))
	for _, e := range page {
		records = append(records, e.Record())
	}
	c.JSON(http.StatusOK, gin.H{"events": records, "last_id": last})
}

func (s *Server) listSuspicious(c *gin.Context) {
	s.serveSuspicious(c, c.Query("after_event_id"), nil)
}

func (s *Server) searchSuspicious(c *gin.Context) {
	var f console.Filter
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.searches = append(s.searches, f)
	s.mu.Unlock()
	s.serveSuspicious(c, c.Query("after_id"), &f)
}

func (s *Server) serveSuspicious(c *gin.Context, afterParam string, f *console.Filter) {
	after, _ := strconv.ParseInt(afterParam, 10, 64)
	var events []console.SuspiciousEvent
	for _, e := range s.Suspicious {
		if f == nil || matches(f, e.Status, e.Type, e.Action, "", e.FileType) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	page, last := paginate(events, after, s.PageSize, func(e console.SuspiciousEvent) int64 { return e.ID })
	c.JSON(http.StatusOK, gin.H{"events": page, "last_id": last})
}

func (s *Server) eventAction(c *gin.Context) {
	var body struct {
		IDs []int64 `json:"ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch c.Param("action") {
	case "close":
		s.closed = append(s.closed, body.IDs)
	case "archive":
		s.archived = append(s.archived, body.IDs)
	default:
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createUser(c *gin.Context) {
	var u console.User
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.users = append(s.users, u)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, u)
}

func (s *Server) addExclusions(c *gin.Context) {
	var body struct {
		Items []console.Exclusion `json:"items"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	s.mu.Lock()
	key := exclusionKey(id, c.Param("kind"))
	s.exclusions[key] = append(s.exclusions[key], body.Items...)
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func exclusionKey(id int64, kind string) string {
	return strconv.FormatInt(id, 10) + "/" + kind
}

// paginate returns up to size items with id greater than after. last is the
// id of the final item when more items may follow, nil otherwise.
func paginate[T any](items []T, after int64, size int, id func(T) int64) ([]T, *int64) {
	page := make([]T, 0, size)
	remaining := 0
	for _, item := range items {
		if id(item) <= after {
			continue
		}
		if len(page) < size {
			page = append(page, item)
			continue
		}
		remaining++
	}
	if remaining == 0 || len(page) == 0 {
		return page, nil
	}
	last := id(page[len(page)-1])
	return page, &last
}

func matches(f *console.Filter, status, typ, action, severity, fileType string) bool {
	return in(f.Status, status) && in(f.Type, typ) && in(f.Action, action) &&
		in(f.ThreatSeverity, severity) && in(f.FileType, fileType)
}

func in(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
