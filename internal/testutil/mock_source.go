// Package testutil provides a mock of the paginated CMS data API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// DataPath is the path the mock serves the dataset on.
const DataPath = "/data-api/v1/dataset/test/data"

// Param styles the mock can be told to accept.
const (
	StyleSizeOffset = "size_offset"
	StyleLimitSkip  = "limit_skip"
	StyleSocrata    = "socrata"
	StylePerPage    = "per_page"
)

// MockResponse defines a fixed response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSource is a configurable mock of the paginated data API.
type MockSource struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	rows     []map[string]any
	accepted map[string]bool
	headers  map[string]string

	// Tracking
	RequestCount      int
	Queries           []url.Values
	LastRequestHeader http.Header
}

// NewMockSource serves rows, accepting every param style by default.
func NewMockSource(rows []map[string]any) *MockSource {
	mock := &MockSource{
		handlers: make(map[string]http.HandlerFunc),
		rows:     rows,
		accepted: map[string]bool{
			StyleSizeOffset: true,
			StyleLimitSkip:  true,
			StyleSocrata:    true,
			StylePerPage:    true,
		},
		headers: map[string]string{
			"Content-Type": "application/json",
		},
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Queries = append(mock.Queries, r.URL.Query())
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		if r.URL.Path != DataPath {
			http.NotFound(w, r)
			return
		}
		mock.serveRows(w, r)
	}))

	return mock
}

// URL returns the mock server root URL.
func (m *MockSource) URL() string {
	return m.server.URL
}

// DataURL returns the dataset endpoint URL.
func (m *MockSource) DataURL() string {
	return m.server.URL + DataPath
}

// Close shuts down the mock server.
func (m *MockSource) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Queries = nil
	m.LastRequestHeader = nil
}

// Accept restricts the param styles answered with data. Requests using
// any other style get 400 Bad Request.
func (m *MockSource) Accept(styles ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = make(map[string]bool, len(styles))
	for _, s := range styles {
		m.accepted[s] = true
	}
}

// SetHeader adds a header to every data response.
func (m *MockSource) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSource) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockSource) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSource) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// serveRows answers a page request in whichever accepted style it uses.
func (m *MockSource) serveRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	style, size, offset, err := parsePage(q)

	m.mu.RLock()
	accepted := m.accepted[style]
	headers := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		headers[k] = v
	}
	rows := m.rows
	m.mu.RUnlock()

	if err != nil || !accepted {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unsupported pagination parameters"}`))
		return
	}

	page := []map[string]any{}
	for i := offset; i >= 0 && i < len(rows) && i < offset+size; i++ {
		page = append(page, rows[i])
	}

	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(page)
}

func parsePage(q url.Values) (style string, size, offset int, err error) {
	var sizeKey, offsetKey string
	switch {
	case q.Has("size"):
		style, sizeKey, offsetKey = StyleSizeOffset, "size", "offset"
	case q.Has("limit"):
		style, sizeKey, offsetKey = StyleLimitSkip, "limit", "skip"
	case q.Has("$limit"):
		style, sizeKey, offsetKey = StyleSocrata, "$limit", "$offset"
	case q.Has("per_page"):
		style, sizeKey, offsetKey = StylePerPage, "per_page", "page"
	default:
		return "", 0, 0, fmt.Errorf("no page size parameter")
	}

	size, err = strconv.Atoi(q.Get(sizeKey))
	if err != nil || size <= 0 {
		return style, 0, 0, fmt.Errorf("invalid %s", sizeKey)
	}
	offset, err = strconv.Atoi(q.Get(offsetKey))
	if err != nil {
		return style, 0, 0, fmt.Errorf("invalid %s", offsetKey)
	}
	if style == StylePerPage {
		offset = (offset - 1) * size
	}
	return style, size, offset, nil
}

// CMSRow builds a raw row using the CMS column names for year. Numbers are
// rendered as strings the way the API sends them.
func CMSRow(brand, generic, manufacturer string, year int, spending, claims, avgPerClaim float64) map[string]any {
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	y := "_" + strconv.Itoa(year)

	row := map[string]any{
		"Brnd_Name": brand,
		"Gnrc_Name": generic,
		"Mftr_Name": manufacturer,
	}
	row["Tot_Spndng"+y] = num(spending)
	row["Tot_Clms"+y] = num(claims)
	row["Tot_Benes"+y] = ""
	row["Tot_Dsg_Unts"+y] = num(claims * 30)
	row["Avg_Spnd_Per_Clm"+y] = num(avgPerClaim)
	row["Avg_Spnd_Per_Dsg_Unt_Wghtd"+y] = num(avgPerClaim / 30)
	return row
}
