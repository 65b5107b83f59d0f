package proxmox

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// fakeCluster serves a minimal Proxmox API under /api2/json
type fakeCluster struct {
	mu sync.Mutex

	authStatus int
	authBody   string
	authCalls  int
	lastForm   url.Values

	nodesStatus int
	nodesBody   string

	// guest listings keyed by "/nodes/<node>/<kind>"
	guestBodies   map[string]string
	guestStatuses map[string]int

	requests []string
	cookies  []string
	csrf     []string
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		authStatus:    http.StatusOK,
		authBody:      `{"data":{"ticket":"PVE:user@pam:TICKET","CSRFPreventionToken":"CSRF123"}}`,
		nodesStatus:   http.StatusOK,
		nodesBody:     `{"data":[]}`,
		guestBodies:   map[string]string{},
		guestStatuses: map[string]int{},
	}
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api2/json")
	f.requests = append(f.requests, r.Method+" "+path)

	if path == "/access/ticket" {
		f.authCalls++
		_ = r.ParseForm()
		f.lastForm = r.PostForm
		w.WriteHeader(f.authStatus)
		_, _ = w.Write([]byte(f.authBody))
		return
	}

	f.cookies = append(f.cookies, r.Header.Get("Cookie"))
	f.csrf = append(f.csrf, r.Header.Get("CSRFPreventionToken"))

	if path == "/nodes" {
		w.WriteHeader(f.nodesStatus)
		_, _ = w.Write([]byte(f.nodesBody))
		return
	}

	if status, ok := f.guestStatuses[path]; ok && status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"data":null}`))
		return
	}
	body, ok := f.guestBodies[path]
	if !ok {
		body = `{"data":[]}`
	}
	_, _ = w.Write([]byte(body))
}

func (f *fakeCluster) authCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls
}

func (f *fakeCluster) requestCount(req string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == req {
			n++
		}
	}
	return n
}

func testCredentials() Credentials {
	return Credentials{Server: "pve.example", Username: "user", Password: "pw"}
}

// newTestClient starts a server for f and returns a client pointed at it
func newTestClient(t *testing.T, f *fakeCluster) *Client {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)

	client, err := NewClient(testCredentials(), Options{
		Name:       "test",
		BaseURL:    ts.URL + "/api2/json",
		HTTPClient: ts.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func guestListBody(vmids ...interface{}) string {
	parts := make([]string, 0, len(vmids))
	for _, id := range vmids {
		switch v := id.(type) {
		case string:
			parts = append(parts, fmt.Sprintf(`{"vmid":%q,"status":"running"}`, v))
		default:
			parts = append(parts, fmt.Sprintf(`{"vmid":%v,"status":"running"}`, v))
		}
	}
	return `{"data":[` + strings.Join(parts, ",") + `]}`
}
