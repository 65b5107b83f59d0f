package proxmox

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Credentials identify a user against the cluster's ticket endpoint
type Credentials struct {
	Server   string
	Username string
	Password string
	Realm    string
}

// Identity returns username@realm, defaulting the realm to pam. A username
// that already names a realm is used as is.
func (c Credentials) Identity() string {
	if strings.Contains(c.Username, "@") {
		return c.Username
	}
	realm := c.Realm
	if realm == "" {
		realm = DefaultRealm
	}
	return fmt.Sprintf("%s@%s", c.Username, realm)
}

// Validate checks that the mandatory fields are present
func (c Credentials) Validate() error {
	switch {
	case c.Server == "":
		return &ConfigurationError{Field: "server"}
	case c.Username == "":
		return &ConfigurationError{Field: "username"}
	case c.Password == "":
		return &ConfigurationError{Field: "password"}
	}
	return nil
}

// Session is an authenticated ticket with its CSRF token
type Session struct {
	Ticket    string
	CSRFToken string
}

// Headers returns the request headers that authenticate a call with this session
func (s Session) Headers() http.Header {
	h := make(http.Header)
	h.Set("Cookie", "PVEAuthCookie="+s.Ticket)
	h.Set("CSRFPreventionToken", s.CSRFToken)
	return h
}

// SessionManager owns the ticket and CSRF token of one cluster and
// authenticates on demand. A nil session means unauthenticated.
type SessionManager struct {
	creds     Credentials
	transport *httpTransport
	metrics   *Metrics
	cluster   string

	mu      sync.Mutex
	session *Session
}

func newSessionManager(creds Credentials, transport *httpTransport, metrics *Metrics, cluster string) *SessionManager {
	return &SessionManager{
		creds:     creds,
		transport: transport,
		metrics:   metrics,
		cluster:   cluster,
	}
}

// Authenticate exchanges the credentials for a new ticket, replacing any
// stored session. On failure the manager is left unauthenticated.
func (m *SessionManager) Authenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticateLocked(ctx)
}

func (m *SessionManager) authenticateLocked(ctx context.Context) error {
	m.session = nil

	form := url.Values{}
	form.Set("username", m.creds.Identity())
	form.Set("password", m.creds.Password)

	resp, err := m.transport.postForm(ctx, "/access/ticket", form)
	if err != nil {
		m.metrics.observeAuth(m.cluster, false)
		return &AuthenticationError{Err: err}
	}

	if !resp.OK() {
		m.metrics.observeAuth(m.cluster, false)
		return &AuthenticationError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var data ticketData
	if err := decodeData(resp.Body, &data); err != nil {
		m.metrics.observeAuth(m.cluster, false)
		return &AuthenticationError{StatusCode: resp.StatusCode, Body: string(resp.Body), Err: err}
	}
	if data.Ticket == "" || data.CSRFPreventionToken == "" {
		m.metrics.observeAuth(m.cluster, false)
		return &AuthenticationError{
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Err:        fmt.Errorf("ticket response is missing ticket or CSRF token"),
		}
	}

	m.session = &Session{
		Ticket:    data.Ticket,
		CSRFToken: data.CSRFPreventionToken,
	}
	m.metrics.observeAuth(m.cluster, true)
	log.Printf("Authenticated to %s as %s", m.creds.Server, m.creds.Identity())
	return nil
}

// Headers returns authentication headers, authenticating first if no
// session is stored
func (m *SessionManager) Headers(ctx context.Context) (http.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		if err := m.authenticateLocked(ctx); err != nil {
			return nil, err
		}
	}
	return m.session.Headers(), nil
}

// ConfirmConnection forces a fresh authentication regardless of the stored session
func (m *SessionManager) ConfirmConnection(ctx context.Context) error {
	return m.Authenticate(ctx)
}

// Session returns the stored session and whether one exists
func (m *SessionManager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Invalidate drops the stored session so the next call re-authenticates
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
}
