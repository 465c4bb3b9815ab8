package e2e

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	json "github.com/goccy/go-json"

	"chat-intel/transport/ws"
)

type BaseWsSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
// and skips the whole suite when no server address is configured.
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping end-to-end suite")
	}
}

// Client is one websocket connection with frame logging.
type Client struct {
	suite *BaseWsSuite
	name  string
	conn  *websocket.Conn
}

// Dial opens a websocket connection to the configured server.
func (s *BaseWsSuite) Dial(name string) *Client {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	u := url.URL{Scheme: "ws", Host: s.Config.ServerAddr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to connect to websocket server at "+u.String())

	client := &Client{suite: s, name: name, conn: conn}
	s.T().Cleanup(func() { _ = conn.Close() })
	return client
}

// Send writes one intent envelope.
func (c *Client) Send(intentType string, payload any) {
	raw, err := json.Marshal(payload)
	c.suite.Require().NoError(err)

	env := ws.Envelope{Type: intentType, Payload: raw}
	if c.suite.Config.DebugJSON {
		c.suite.T().Logf("%s -> %s %s", c.name, intentType, string(raw))
	}
	c.suite.Require().NoError(c.conn.WriteJSON(env))
}

// Expect reads frames until one of the wanted type arrives or the
// timeout elapses, decoding its payload into dst.
func (c *Client) Expect(eventType string, dst any, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for {
		c.suite.Require().NoError(c.conn.SetReadDeadline(deadline))

		_, data, err := c.conn.ReadMessage()
		c.suite.Require().NoError(err, "%s: no %q event before timeout", c.name, eventType)

		var env ws.Envelope
		c.suite.Require().NoError(json.Unmarshal(data, &env))
		if c.suite.Config.DebugJSON {
			c.suite.T().Logf("%s <- %s %s", c.name, env.Type, string(env.Payload))
		}
		if env.Type != eventType {
			continue
		}
		if dst != nil {
			c.suite.Require().NoError(json.Unmarshal(env.Payload, dst))
		}
		return
	}
}
