package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "s3cret")
}

func TestClientProxies(t *testing.T) {
	c := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/proxies", r.URL.Path)
		require.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"proxies":{"GLOBAL":{"name":"GLOBAL","type":"Selector","all":["A"],"now":"A"},"A":{"name":"A","type":"Shadowsocks","udp":true,"history":[{"time":"t","delay":42}]}}}`))
	})
	proxies, err := c.Proxies(context.Background())
	require.NoError(t, err)
	require.Len(t, proxies, 2)
	require.Equal(t, "A", proxies["GLOBAL"].Now)
	require.True(t, proxies["A"].UDP)
	require.Equal(t, 42, proxies["A"].History[0].Delay)
}

func TestClientProviders(t *testing.T) {
	c := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/providers/proxies", r.URL.Path)
		_, _ = w.Write([]byte(`{"providers":{"sub":{"name":"sub","vehicleType":"HTTP","proxies":[{"name":"a1","type":"Trojan"}]}}}`))
	})
	providers, err := c.Providers(context.Background())
	require.NoError(t, err)
	require.Equal(t, "HTTP", providers["sub"].VehicleType)
	require.Len(t, providers["sub"].Proxies, 1)
}

func TestClientTestNodeDelay(t *testing.T) {
	c := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/proxies/HK-1/delay", r.URL.Path)
		require.Equal(t, "https://t.example", r.URL.Query().Get("url"))
		require.Equal(t, "5000", r.URL.Query().Get("timeout"))
		_, _ = w.Write([]byte(`{"delay":123}`))
	})
	delay, err := c.TestNodeDelay(context.Background(), "HK-1", "", "https://t.example", 5000)
	require.NoError(t, err)
	require.Equal(t, 123, delay)
}

func TestClientTestNodeDelayViaProvider(t *testing.T) {
	c := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/providers/proxies/sub/HK-1/healthcheck", r.URL.Path)
		_, _ = w.Write([]byte(`{"delay":77}`))
	})
	delay, err := c.TestNodeDelay(context.Background(), "HK-1", "sub", "https://t.example", 5000)
	require.NoError(t, err)
	require.Equal(t, 77, delay)
}

func TestClientTestGroupDelay(t *testing.T) {
	c := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/group/Auto/delay", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	})
	require.NoError(t, c.TestGroupDelay(context.Background(), "Auto", "https://t.example", 5000))
}

func TestClientSelectGroupMember(t *testing.T) {
	c := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/proxies/Proxy", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "HK-1", body["name"])
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.SelectGroupMember(context.Background(), "Proxy", "HK-1"))
}

func TestClientProviderOps(t *testing.T) {
	var gotUpdate, gotCheck bool
	c := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/providers/proxies/sub":
			gotUpdate = true
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/providers/proxies/sub/healthcheck":
			gotCheck = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	require.NoError(t, c.UpdateProvider(context.Background(), "sub"))
	require.NoError(t, c.HealthCheckProvider(context.Background(), "sub"))
	require.True(t, gotUpdate)
	require.True(t, gotCheck)
}

func TestClientConnections(t *testing.T) {
	c := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			require.Equal(t, "/connections", r.URL.Path)
			_, _ = w.Write([]byte(`{"downloadTotal":1,"uploadTotal":2,"connections":[{"id":"c1","chains":["HK-1","Proxy"]}]}`))
		case http.MethodDelete:
			require.Equal(t, "/connections/c1", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	})
	conns, err := c.Connections(context.Background())
	require.NoError(t, err)
	require.Len(t, conns.Connections, 1)
	require.Equal(t, []string{"HK-1", "Proxy"}, conns.Connections[0].Chains)
	require.NoError(t, c.CloseConnection(context.Background(), "c1"))
}

func TestClientStatusError(t *testing.T) {
	c := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	_, err := c.Proxies(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}
