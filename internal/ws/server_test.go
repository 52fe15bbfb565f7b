package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"triprelay/internal/relay"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func newTestServer(t *testing.T) (*httptest.Server, *relay.Lifecycle) {
	t.Helper()
	reg := relay.NewRegistry()
	dir := relay.NewDirectory()
	eng := relay.NewEngine(reg, dir, relay.EngineOptions{})
	lc := relay.NewLifecycle(reg, dir, eng, nil)

	srv := httptest.NewServer(NewWsServer(lc, Options{QueueDepth: 16}))
	t.Cleanup(srv.Close)
	return srv, lc
}

func dial(t *testing.T, srv *httptest.Server, query string) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &testClient{t: t, conn: conn}
	hello := c.next()
	require.Equal(t, EventConnected, hello.Event)
	var body ConnectedBody
	require.NoError(t, json.Unmarshal(hello.Body, &body))
	require.NotEmpty(t, body.ConnectionID)
	c.id = body.ConnectionID
	return c
}

func (c *testClient) send(event string, body any) {
	c.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(Envelope{Event: event, Body: raw}))
}

func (c *testClient) next() frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(c.t, c.conn.ReadJSON(&f))
	return f
}

func waitMembers(t *testing.T, lc *relay.Lifecycle, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		ids, err := lc.Directory().Members(room)
		if n == 0 {
			return err != nil
		}
		return err == nil && len(ids) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTripOverWebsocket(t *testing.T) {
	srv, lc := newTestServer(t)

	driver := dial(t, srv, "?role=driver")
	user := dial(t, srv, "")

	driver.send(EventJoinRoom, "trip-1")
	user.send(EventJoinRoom, "trip-1")
	waitMembers(t, lc, "trip-1", 2)

	user.send(EventUserLocation, map[string]any{"roomId": "trip-1", "location": map[string]float64{"lat": 10, "lng": 20}})
	f := driver.next()
	assert.Equal(t, relay.EventMemberSnapshot, f.Event)
	assert.JSONEq(t, `[{"connectionId":"`+user.id+`","location":{"lat":10,"lng":20}}]`, string(f.Body))
	assert.Equal(t, relay.EventMemberSnapshot, user.next().Event)

	driver.send(EventDriverLocation, map[string]any{"roomId": "trip-1", "location": map[string]float64{"lat": 11, "lng": 21}})
	f = user.next()
	assert.Equal(t, relay.EventLocationBroadcast, f.Event)
	assert.JSONEq(t, `{"lat":11,"lng":21}`, string(f.Body))

	// the driver's own position is never echoed: the next frame it sees is
	// the departure snapshot
	require.NoError(t, user.conn.Close())
	f = driver.next()
	assert.Equal(t, relay.EventMemberSnapshot, f.Event)
	assert.JSONEq(t, `[]`, string(f.Body))
	waitMembers(t, lc, "trip-1", 1)
}

func TestLegacyEventNamesAndImplicitRoom(t *testing.T) {
	srv, lc := newTestServer(t)
	driver := dial(t, srv, "?room=r")
	user := dial(t, srv, "?room=r")
	waitMembers(t, lc, "r", 2)

	driver.send("driverLocation", map[string]any{"location": map[string]float64{"lat": 1, "lng": 2}})
	f := user.next()
	assert.Equal(t, relay.EventLocationBroadcast, f.Event)
	assert.JSONEq(t, `{"lat":1,"lng":2}`, string(f.Body))
}

func TestLegacyBareCoordinates(t *testing.T) {
	srv, lc := newTestServer(t)
	driver := dial(t, srv, "?room=r")
	user := dial(t, srv, "?room=r")
	waitMembers(t, lc, "r", 2)

	driver.send("driverLocation", map[string]float64{"lat": 1, "lng": 2})
	f := user.next()
	assert.Equal(t, relay.EventLocationBroadcast, f.Event)
	assert.JSONEq(t, `{"lat":1,"lng":2}`, string(f.Body))

	user.send("userLocation", map[string]float64{"lat": 3, "lng": 4})
	f = driver.next()
	assert.Equal(t, relay.EventMemberSnapshot, f.Event)
	assert.JSONEq(t, `[{"connectionId":"`+user.id+`","location":{"lat":3,"lng":4}}]`, string(f.Body))
}

func TestProtocolErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dial(t, srv, "")

	c.send("teleport", "x")
	f := c.next()
	assert.Equal(t, EventError, f.Event)
	assert.Contains(t, string(f.Body), ErrUnknownEvent.Error())

	c.send(EventUserLocation, "not-an-object")
	f = c.next()
	assert.Equal(t, EventError, f.Event)
	assert.Contains(t, string(f.Body), ErrInvalidBody.Error())

	c.send(EventDriverLocation, map[string]string{"roomId": "r"})
	f = c.next()
	assert.Equal(t, EventError, f.Event)
	assert.Contains(t, string(f.Body), "missing location")
}

func TestRelayErrorsAreDropped(t *testing.T) {
	srv, lc := newTestServer(t)
	c := dial(t, srv, "")

	c.send(EventUserLocation, map[string]any{"roomId": "elsewhere", "location": map[string]float64{"lat": 1, "lng": 1}})
	c.send(EventJoinRoom, "mine")
	waitMembers(t, lc, "mine", 1)
	c.send(EventUserLocation, map[string]any{"roomId": "mine", "location": map[string]float64{"lat": 1, "lng": 1}})

	// nothing was sent for the rejected event, not even an error
	f := c.next()
	assert.Equal(t, relay.EventMemberSnapshot, f.Event)
	assert.JSONEq(t, `[{"connectionId":"`+c.id+`","location":{"lat":1,"lng":1}}]`, string(f.Body))
}

func TestBadRoleRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?role=pilot"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestDisconnectCleansRegistry(t *testing.T) {
	srv, lc := newTestServer(t)
	c := dial(t, srv, "?room=solo")
	waitMembers(t, lc, "solo", 1)

	require.NoError(t, c.conn.Close())
	waitMembers(t, lc, "solo", 0)
	require.Eventually(t, func() bool { return lc.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
