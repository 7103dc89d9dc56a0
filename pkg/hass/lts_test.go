package hass

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHass speaks enough of the websocket API to accept recorder commands.
type fakeHass struct {
	token string
	known []string

	mu       sync.Mutex
	commands []map[string]any
	posts    []map[string]any
}

func (f *fakeHass) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{"type": "auth_required"})
		var auth map[string]any
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth["access_token"] != f.token {
			_ = conn.WriteJSON(map[string]any{"type": "auth_invalid", "message": "Invalid access token"})
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "auth_ok"})

		for {
			var cmd map[string]any
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			f.mu.Lock()
			f.commands = append(f.commands, cmd)
			f.mu.Unlock()

			var result any
			if cmd["type"] == "recorder/list_statistic_ids" {
				listed := []map[string]string{}
				for _, id := range f.known {
					listed = append(listed, map[string]string{"statistic_id": id})
				}
				result = listed
			}
			_ = conn.WriteJSON(map[string]any{"id": cmd["id"], "type": "result", "success": true, "result": result})
		}
	})
	mux.HandleFunc("/api/services/recorder/import_statistics", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.posts = append(f.posts, body)
		f.mu.Unlock()
	})
	return mux
}

func (f *fakeHass) recorded() (commands, posts []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands, f.posts
}

func testPoint() types.MeterPoint {
	day := func(d int) *time.Time { return types.Ptr(types.Date(2024, 1, d)) }
	return types.MeterPoint{
		ID:    "GI1",
		Alias: "Ma Maison",
		Measures: []types.Measure{
			{Kind: types.Informative, GasDate: day(2), EndIndex: types.Ptr(int64(120)), VolumeGross: types.Ptr(11.0), EnergyGross: types.Ptr(123.2), Price: types.Ptr(8.0)},
			{Kind: types.Informative, GasDate: day(1), EndIndex: types.Ptr(int64(110)), VolumeGross: types.Ptr(10.0), EnergyGross: types.Ptr(112.0), Price: types.Ptr(7.5)},
			{Kind: types.Published, GasDate: day(1), EndIndex: types.Ptr(int64(121)), VolumeGross: types.Ptr(21.0)},
			{Kind: types.Informative},
		},
	}
}

func newTestLTS(url, token string) *LTS {
	return NewLTS(LTSConfig{
		Host:          url,
		Token:         token,
		StatisticsURI: "/api/services/recorder/import_statistics",
		DeviceName:    "gazpar",
		WS:            WSOptions{MaxRetries: 1},
	})
}

func TestStatisticID(t *testing.T) {
	assert.Equal(t, "gazpar:gazpar_ma_maison_consumption_stat", StatisticID("gazpar", " Ma Maison ", SuffixVolume))
	assert.Equal(t, "gazpar:my_gazpar_home_consumption_pub_cost_stat", StatisticID("My Gazpar", "Home", SuffixPublishedCost))
	assert.Len(t, StatisticIDs("gazpar", "home"), 6)
}

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "ws://homeassistant.local:8123/api/websocket", WebsocketURL("http://homeassistant.local:8123/", false))
	assert.Equal(t, "wss://ha.example.org/api/websocket", WebsocketURL("https://ha.example.org", true))
}

func TestBuildSeries(t *testing.T) {
	series := BuildSeries("gazpar", testPoint())
	require.Len(t, series, 6)

	volume := series[0]
	assert.Equal(t, "gazpar:gazpar_ma_maison_consumption_stat", volume.Metadata.StatisticID)
	assert.Equal(t, "m³", volume.Metadata.Unit)
	assert.True(t, volume.Metadata.HasSum)
	require.Len(t, volume.Stats, 2)
	assert.Equal(t, types.Date(2024, 1, 1), volume.Stats[0].Start)
	assert.Equal(t, 10.0, volume.Stats[0].State)
	assert.Equal(t, 21.0, volume.Stats[1].Sum)

	cost := series[2]
	assert.Equal(t, "EUR", cost.Metadata.Unit)
	assert.InDelta(t, 15.5, cost.Stats[1].Sum, 1e-9)

	published := series[3]
	require.Len(t, published.Stats, 1)
	assert.Equal(t, 21.0, published.Stats[0].State)

	publishedEnergy := series[4]
	assert.Equal(t, 0.0, publishedEnergy.Stats[0].State)
}

func TestStatisticJSON(t *testing.T) {
	data, err := json.Marshal(Statistic{Start: types.Date(2024, 1, 1), State: 1.5, Sum: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2024-01-01T00:00:00+0000","state":1.5,"sum":3}`, string(data))
}

func TestImportOverWebsocket(t *testing.T) {
	fake := &fakeHass{token: "secret"}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	err := newTestLTS(server.URL, "secret").Import(context.Background(), []types.MeterPoint{testPoint()})
	require.NoError(t, err)

	commands, posts := fake.recorded()
	require.Len(t, commands, 6)
	assert.Equal(t, "recorder/import_statistics", commands[0]["type"])
	assert.EqualValues(t, 1, commands[0]["id"])
	assert.EqualValues(t, 6, commands[5]["id"])
	metadata := commands[1]["metadata"].(map[string]any)
	assert.Equal(t, "gazpar:gazpar_ma_maison_consumption_kwh_stat", metadata["statistic_id"])
	assert.Equal(t, "gazpar", metadata["source"])
	assert.Empty(t, posts)
}

func TestImportFallsBackToREST(t *testing.T) {
	fake := &fakeHass{token: "secret"}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	lts := newTestLTS(server.URL, "secret")
	lts.dial = func(ctx context.Context) (StatisticsClient, error) {
		return DialWS(ctx, WebsocketURL(server.URL, false), "wrong", WSOptions{MaxRetries: 1})
	}

	err := lts.Import(context.Background(), []types.MeterPoint{testPoint()})
	require.NoError(t, err)

	_, posts := fake.recorded()
	require.Len(t, posts, 2)
	assert.Equal(t, "gazpar:gazpar_ma_maison_consumption_stat", posts[0]["statistic_id"])
	stats := posts[0]["stats"].([]any)
	require.Len(t, stats, 2)
	assert.EqualValues(t, 120, stats[0].(map[string]any)["sum"])
	assert.Equal(t, "gazpar:gazpar_ma_maison_consumption_pub_stat", posts[1]["statistic_id"])
}

func TestDialRejectsBadToken(t *testing.T) {
	fake := &fakeHass{token: "secret"}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	_, err := DialWS(context.Background(), WebsocketURL(server.URL, false), "wrong", WSOptions{MaxRetries: 1})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestDelete(t *testing.T) {
	fake := &fakeHass{
		token: "secret",
		known: []string{"gazpar:gazpar_ma_maison_consumption_stat", "sensor.other", "gazpar:gazpar_ma_maison_consumption_pub_stat"},
	}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	err := newTestLTS(server.URL, "secret").Delete(context.Background(), []types.MeterPoint{testPoint()})
	require.NoError(t, err)

	commands, _ := fake.recorded()
	require.Len(t, commands, 2)
	assert.Equal(t, "recorder/list_statistic_ids", commands[0]["type"])
	assert.Equal(t, "recorder/clear_statistics", commands[1]["type"])
	assert.ElementsMatch(t,
		[]any{"gazpar:gazpar_ma_maison_consumption_stat", "gazpar:gazpar_ma_maison_consumption_pub_stat"},
		commands[1]["statistic_ids"])
}
