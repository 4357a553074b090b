package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"proxy-fleet/pkg/archive"
	"proxy-fleet/pkg/fleet"
	"proxy-fleet/pkg/model"
)

type stubEngine struct {
	delay int
}

func (s *stubEngine) Proxies(context.Context) (map[string]model.ProxyNode, error) {
	return map[string]model.ProxyNode{
		"GLOBAL": {Name: "GLOBAL", Type: "Selector", All: []string{"Proxy"}},
		"Proxy":  {Name: "Proxy", Type: "Selector", All: []string{"HK-1"}, Now: "HK-1"},
		"HK-1":   {Name: "HK-1", Type: "Shadowsocks", History: []model.DelaySample{{Delay: 120}}},
	}, nil
}

func (s *stubEngine) Providers(context.Context) (map[string]model.ProxyProvider, error) {
	return map[string]model.ProxyProvider{
		"sub": {Name: "sub", VehicleType: "HTTP"},
	}, nil
}

func (s *stubEngine) TestNodeDelay(context.Context, string, string, string, int) (int, error) {
	return s.delay, nil
}
func (s *stubEngine) TestGroupDelay(context.Context, string, string, int) error { return nil }
func (s *stubEngine) UpdateProvider(context.Context, string) error              { return nil }
func (s *stubEngine) HealthCheckProvider(context.Context, string) error         { return nil }
func (s *stubEngine) SelectGroupMember(context.Context, string, string) error   { return nil }
func (s *stubEngine) Connections(context.Context) (model.ConnectionsSnapshot, error) {
	return model.ConnectionsSnapshot{}, nil
}
func (s *stubEngine) CloseConnection(context.Context, string) error { return nil }

func newTestServer(t *testing.T, requireJWT bool) (*httptest.Server, *fleet.Manager) {
	t.Helper()
	mgr := fleet.NewManager(&stubEngine{delay: 88}, model.Settings{TestURL: "https://t.example", TestTimeoutMs: 5000}, archive.NewMemoryStore())
	require.NoError(t, mgr.Refresh(context.Background()))

	mux := http.NewServeMux()
	RegisterRoutes(mux, mgr, archive.NewMemoryStore(), nil, requireJWT)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mgr
}

func jsonDecode(resp *http.Response, v interface{}) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, false)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSnapshotEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)
	resp, err := http.Get(srv.URL + "/api/v1/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap model.Snapshot
	require.NoError(t, jsonDecode(resp, &snap))
	require.Len(t, snap.Proxies, 2)
	require.Equal(t, 120, snap.Latency["HK-1"])
}

func TestLatencyEndpointResolvesChain(t *testing.T) {
	srv, _ := newTestServer(t, false)
	resp, err := http.Get(srv.URL + "/api/v1/latency?name=Proxy")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Name    string `json:"name"`
		Node    string `json:"node"`
		Group   bool   `json:"group"`
		Latency int    `json:"latency"`
	}
	require.NoError(t, jsonDecode(resp, &out))
	require.Equal(t, "Proxy", out.Name)
	require.Equal(t, "HK-1", out.Node)
	require.True(t, out.Group)
	require.Equal(t, 120, out.Latency)
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	srv, _ := newTestServer(t, true)
	resp, err := http.Get(srv.URL + "/api/v1/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSettingsRoundTrip(t *testing.T) {
	srv, mgr := newTestServer(t, false)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/settings",
		strings.NewReader(`{"testUrl":"https://other.example","testTimeoutMs":3000,"autoCloseConnections":true}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	st := mgr.Settings()
	require.Equal(t, "https://other.example", st.TestURL)
	require.Equal(t, 3000, st.TestTimeoutMs)
	require.True(t, st.AutoCloseConnections)
}

func TestTriggerNodeTest(t *testing.T) {
	srv, mgr := newTestServer(t, false)

	resp, err := http.Post(srv.URL+"/api/v1/test/node", "application/json",
		strings.NewReader(`{"name":"Proxy"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out map[string]string
	require.NoError(t, jsonDecode(resp, &out))
	require.NotEmpty(t, out["opId"])

	// The test runs in the background; wait for the latency cell to land.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.Current().Latency["HK-1"] == 88 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("latency for HK-1 never updated, got %d", mgr.Current().Latency["HK-1"])
}

func TestBusyEndpointShape(t *testing.T) {
	srv, _ := newTestServer(t, false)
	resp, err := http.Get(srv.URL + "/api/v1/busy")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out BusyResponse
	require.NoError(t, jsonDecode(resp, &out))
	require.False(t, out.AllUpdating)
	require.Empty(t, out.Nodes)
}
