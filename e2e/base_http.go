package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"parley/auth"
)

// BaseHTTPSuite carries the environment configuration and the HTTP plumbing
// shared by the scenario suites. Suites skip themselves when SERVER_ADDR is
// not set, so a plain `go test ./...` stays green without a running server.
type BaseHTTPSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping e2e suite")
	}
}

// Session is one authenticated browser-like identity: its own cookie jar,
// reused across every request of the scenario.
type Session struct {
	suite    *BaseHTTPSuite
	Username string
	client   *http.Client
}

// NewSession creates an identity with a fresh cookie jar.
func (s *BaseHTTPSuite) NewSession(username string) *Session {
	jar, err := cookiejar.New(nil)
	s.Require().NoError(err)
	return &Session{
		suite:    s,
		Username: username,
		client:   &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}
}

// Step prints a colorized header so scenario logs read as a storyboard.
func (s *BaseHTTPSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseHTTPSuite) baseURL() string {
	return "http://" + s.Config.ServerAddr
}

// Call sends one JSON request as this session and decodes the response into
// out when out is non-nil. It returns the status code; asserting on it is
// the caller's job.
func (c *Session) Call(method, path string, body any, out any) int {
	t := c.suite.T()
	t.Helper()

	var reqBody io.Reader
	var pretty []byte
	if body != nil {
		raw, err := json.Marshal(body)
		c.suite.Require().NoError(err)
		reqBody = bytes.NewReader(raw)
		pretty = raw
	}

	req, err := http.NewRequest(method, c.suite.baseURL()+path, reqBody)
	c.suite.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	c.suite.Require().NoError(err, "HTTP call failed: "+method+" "+path)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.suite.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] as %s in %v",
		method, path, resp.StatusCode, c.Username, time.Since(start))
	// Log full JSON request/response bodies if E2E_DEBUG_JSON is enabled
	if c.suite.Config.DebugJSON {
		if pretty != nil {
			fmt.Fprintf(&logBuilder, "\nREQUEST:\n%s", pretty)
		}
		fmt.Fprintf(&logBuilder, "\nRESPONSE:\n%s", raw)
	}
	t.Log(logBuilder.String())

	if out != nil && len(raw) > 0 {
		c.suite.Require().NoError(json.Unmarshal(raw, out),
			"failed to decode response of "+path)
	}
	return resp.StatusCode
}

// sessionToken digs the auth token out of the cookie jar.
func (c *Session) sessionToken() string {
	u, err := http.NewRequest(http.MethodGet, c.suite.baseURL()+"/", nil)
	c.suite.Require().NoError(err)
	for _, cookie := range c.client.Jar.Cookies(u.URL) {
		if cookie.Name == auth.SessionCookie {
			return cookie.Value
		}
	}
	return ""
}

// Dial opens the realtime socket for this session.
func (c *Session) Dial() *websocket.Conn {
	token := c.sessionToken()
	c.suite.Require().NotEmpty(token, "no session cookie, log in first")

	url := "ws://" + c.suite.Config.ServerAddr + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	c.suite.Require().NoError(err, "websocket dial failed")
	return conn
}

// NextEvent reads one realtime envelope, failing the suite on timeout.
func (c *Session) NextEvent(conn *websocket.Conn, timeout time.Duration) map[string]json.RawMessage {
	c.suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(timeout)))
	var envelope map[string]json.RawMessage
	c.suite.Require().NoError(conn.ReadJSON(&envelope))
	return envelope
}
