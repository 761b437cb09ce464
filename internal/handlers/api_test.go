package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jonboulle/clockwork"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"

	"github.com/abrezinsky/rallyoverlay/internal/errors"
	"github.com/abrezinsky/rallyoverlay/internal/handlers"
	"github.com/abrezinsky/rallyoverlay/internal/metrics"
	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/standings"
	"github.com/abrezinsky/rallyoverlay/internal/store"
	"github.com/abrezinsky/rallyoverlay/internal/testutil"
)

// fakeSync records calls instead of talking to a backend
type fakeSync struct {
	mu         sync.Mutex
	state      models.SyncState
	connectErr error
	connects   []string
	autos      chan string
}

func newFakeSync() *fakeSync {
	return &fakeSync{
		state: models.SyncState{Status: models.SyncDisconnected},
		autos: make(chan string, 4),
	}
}

func (f *fakeSync) Connect(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, key)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.state = models.SyncState{Status: models.SyncConnected, Key: key, Enabled: true}
	return nil
}

func (f *fakeSync) AutoConnect(ctx context.Context, key string) error {
	f.autos <- key
	return nil
}

func (f *fakeSync) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Status = models.SyncDisconnected
	f.state.Enabled = false
	return nil
}

func (f *fakeSync) GenerateKey(ctx context.Context, tag string) (string, error) {
	if tag != "1" && tag != "2" {
		return "", errors.InvalidInput("unknown provider")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Key = tag + "-TESTKEY1"
	return f.state.Key, nil
}

func (f *fakeSync) State(ctx context.Context) models.SyncState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

type testServer struct {
	t       *testing.T
	router  http.Handler
	store   *store.Store
	sync    *fakeSync
	clock   *clockwork.FakeClock
	metrics *metrics.Metrics
}

var testNow = time.Date(2026, 5, 9, 10, 0, 0, 0, time.UTC)

func templatesFS() fstest.MapFS {
	return fstest.MapFS{
		"setup.html":   &fstest.MapFile{Data: []byte(`<html>{{.Title}} key={{.SyncKey}}</html>`)},
		"overlay.html": &fstest.MapFile{Data: []byte(`<html>overlay key={{.SyncKey}} ws={{.WSPath}}</html>`)},
	}
}

func newTestServer(t *testing.T, mods ...func(*handlers.Deps)) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	s, err := store.New(context.Background(), testutil.NewTestLogger(), testutil.NewTestRepository(t), clock)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	fs := newFakeSync()
	m := metrics.New()
	deps := handlers.Deps{
		Store:     s,
		Standings: standings.NewEngine(clock),
		Sync:      fs,
		Metrics:   m,
		Log:       testutil.NewTestLogger(),
		Templates: templatesFS(),
		BaseURL:   func() string { return "http://rally.local:8080" },
	}
	for _, mod := range mods {
		mod(&deps)
	}
	h, err := handlers.New(deps)
	if err != nil {
		t.Fatalf("handlers.New() error = %v", err)
	}
	return &testServer{t: t, router: h.Router(), store: s, sync: fs, clock: clock, metrics: m}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

func (ts *testServer) createPilot(name string) models.Pilot {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/pilots", map[string]any{"name": name, "isActive": true})
	expectStatus(ts.t, rec, http.StatusCreated)
	return decode[models.Pilot](ts.t, rec)
}

func (ts *testServer) createStage(body map[string]any) models.Stage {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/stages", body)
	expectStatus(ts.t, rec, http.StatusCreated)
	return decode[models.Stage](ts.t, rec)
}

func TestPilotLifecycle(t *testing.T) {
	ts := newTestServer(t)

	p := ts.createPilot("Sébastien")
	if p.ID == "" || p.StartOrder != models.DefaultStartOrder {
		t.Errorf("created pilot = %+v", p)
	}

	rec := ts.do(http.MethodPut, "/api/pilots/"+p.ID, map[string]any{"carNumber": "17"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[models.Pilot](t, rec); got.CarNumber != "17" || got.Name != "Sébastien" {
		t.Errorf("updated pilot = %+v", got)
	}

	rec = ts.do(http.MethodPost, "/api/pilots/"+p.ID+"/toggle-active", nil)
	expectStatus(t, rec, http.StatusOK)
	if decode[models.Pilot](t, rec).IsActive {
		t.Error("toggle should have deactivated the pilot")
	}

	rec = ts.do(http.MethodGet, "/api/pilots", nil)
	if pilots := decode[[]models.Pilot](t, rec); len(pilots) != 1 {
		t.Errorf("len(pilots) = %d, want 1", len(pilots))
	}

	expectStatus(t, ts.do(http.MethodDelete, "/api/pilots/"+p.ID, nil), http.StatusNoContent)
	expectStatus(t, ts.do(http.MethodDelete, "/api/pilots/"+p.ID, nil), http.StatusNotFound)
}

func TestValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	stage := ts.createStage(map[string]any{"name": "SS1"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"empty pilot name", http.MethodPost, "/api/pilots", map[string]any{"name": "  "}, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/pilots", "{", http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/categories", "", http.StatusBadRequest},
		{"unknown stage type", http.MethodPost, "/api/stages", map[string]any{"name": "X", "type": "Hillclimb"}, http.StatusBadRequest},
		{"bad start clock", http.MethodPut, "/api/stages/" + stage.ID, map[string]any{"startTime": "noon"}, http.StatusBadRequest},
		{"unknown pilot update", http.MethodPut, "/api/pilots/nope", map[string]any{"name": "A"}, http.StatusNotFound},
		{"volume out of range", http.MethodPut, "/api/streams/cam1", map[string]any{"volume": 150}, http.StatusBadRequest},
		{"scene out of range", http.MethodPut, "/api/display", map[string]any{"currentScene": 9}, http.StatusBadRequest},
		{"unknown current stage", http.MethodPut, "/api/display", map[string]any{"currentStageId": "nope"}, http.StatusNotFound},
		{"no time fields", http.MethodPut, "/api/times/p/" + stage.ID, map[string]any{}, http.StatusBadRequest},
		{"lap zero", http.MethodPut, "/api/laps/p/" + stage.ID + "/0", map[string]any{"value": "1:00"}, http.StatusBadRequest},
		{"lap not a number", http.MethodPut, "/api/laps/p/" + stage.ID + "/x", map[string]any{"value": "1:00"}, http.StatusBadRequest},
		{"unknown standings stage", http.MethodGet, "/api/standings/nope", nil, http.StatusNotFound},
		{"unknown overall cutoff", http.MethodGet, "/api/overall?through=nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestTimesDeriveArrivalAndTotal(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createPilot("Ott")
	stage := ts.createStage(map[string]any{"name": "SS1", "startTime": "10:00"})

	rec := ts.do(http.MethodPut, "/api/times/"+p.ID+"/"+stage.ID, map[string]any{"start": "10:00", "total": "1:30.500"})
	expectStatus(t, rec, http.StatusOK)
	got := decode[handlers.TimesResponse](t, rec)
	if got.Arrival != "10:01:30.500" {
		t.Errorf("arrival = %q, want 10:01:30.500", got.Arrival)
	}
	if got.Status != standings.Finished {
		t.Errorf("status = %q, want %q", got.Status, standings.Finished)
	}

	rec = ts.do(http.MethodPut, "/api/times/"+p.ID+"/"+stage.ID, map[string]any{"arrival": "10:02:05.250"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[handlers.TimesResponse](t, rec); got.Total != "2:05.250" {
		t.Errorf("total = %q, want 2:05.250", got.Total)
	}

	rec = ts.do(http.MethodGet, "/api/times/"+p.ID+"/"+stage.ID, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[handlers.TimesResponse](t, rec); got.Start != "10:00" {
		t.Errorf("start = %q, want 10:00", got.Start)
	}
}

func TestLapsAndBreakdown(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createPilot("Loeb")
	stage := ts.createStage(map[string]any{"name": "Race", "type": "Lap Race", "numberOfLaps": 3})

	expectStatus(t, ts.do(http.MethodPut, "/api/laps/"+p.ID+"/"+stage.ID+"/2", map[string]any{"value": "1:10.000"}), http.StatusOK)
	rec := ts.do(http.MethodPut, "/api/laps/"+p.ID+"/"+stage.ID+"/1", map[string]any{"value": "1:05.000"})
	expectStatus(t, rec, http.StatusOK)
	if laps := decode[handlers.TimesResponse](t, rec).Laps; len(laps) != 2 || laps[0] != "1:05.000" {
		t.Errorf("laps = %v", laps)
	}

	rec = ts.do(http.MethodGet, "/api/laps/"+stage.ID+"/breakdown", nil)
	expectStatus(t, rec, http.StatusOK)
	if rows := decode[[]standings.LapBreakdownRow](t, rec); len(rows) != 1 {
		t.Errorf("breakdown rows = %d, want 1", len(rows))
	}

	rec = ts.do(http.MethodGet, "/api/standings/"+stage.ID, nil)
	expectStatus(t, rec, http.StatusOK)
	if res := decode[standings.Result](t, rec); res.Kind != "lap_race" {
		t.Errorf("kind = %q, want lap_race", res.Kind)
	}
}

func TestStandingsCacheFollowsDataVersion(t *testing.T) {
	ts := newTestServer(t)
	a := ts.createPilot("A")
	stage := ts.createStage(map[string]any{"name": "SS1"})
	ts.do(http.MethodPut, "/api/times/"+a.ID+"/"+stage.ID, map[string]any{"total": "2:00"})

	path := "/api/standings/" + stage.ID + "?order=leaderboard"
	first := decode[standings.Result](t, ts.do(http.MethodGet, path, nil))
	decode[standings.Result](t, ts.do(http.MethodGet, path, nil))

	if hits := promtest.ToFloat64(ts.metrics.CacheHitsTotal); hits != 1 {
		t.Errorf("cache hits = %v, want 1", hits)
	}

	b := ts.createPilot("B")
	ts.do(http.MethodPut, "/api/times/"+b.ID+"/"+stage.ID, map[string]any{"total": "1:50"})

	second := decode[standings.Result](t, ts.do(http.MethodGet, path, nil))
	if len(first.Rows) != 1 || len(second.Rows) != 2 {
		t.Fatalf("rows before/after = %d/%d, want 1/2", len(first.Rows), len(second.Rows))
	}
	if second.Rows[0].Pilot.ID != b.ID {
		t.Errorf("leader = %s, want B after the write", second.Rows[0].Pilot.Name)
	}
}

func TestOverallAndSplits(t *testing.T) {
	ts := newTestServer(t)
	a := ts.createPilot("A")
	b := ts.createPilot("B")
	ss1 := ts.createStage(map[string]any{"name": "SS1"})
	ss2 := ts.createStage(map[string]any{"name": "SS2"})
	for _, set := range []struct{ pilot, stage, total string }{
		{a.ID, ss1.ID, "2:00"}, {b.ID, ss1.ID, "2:10"},
		{a.ID, ss2.ID, "3:00"}, {b.ID, ss2.ID, "2:30"},
	} {
		expectStatus(t, ts.do(http.MethodPut, "/api/times/"+set.pilot+"/"+set.stage, map[string]any{"total": set.total}), http.StatusOK)
	}

	rows := decode[[]standings.OverallRow](t, ts.do(http.MethodGet, "/api/overall", nil))
	if len(rows) != 2 || rows[0].Pilot.ID != b.ID {
		t.Errorf("overall leader should be B (4:40 vs 5:00), got %+v", rows)
	}

	rows = decode[[]standings.OverallRow](t, ts.do(http.MethodGet, "/api/overall?through="+ss1.ID, nil))
	if len(rows) != 2 || rows[0].Pilot.ID != a.ID {
		t.Errorf("overall through SS1 leader should be A, got %+v", rows)
	}

	splits := decode[[]standings.SplitRow](t, ts.do(http.MethodGet, "/api/splits/"+ss2.ID, nil))
	if len(splits) != 2 || splits[0].BarPercent != 100 {
		t.Errorf("splits = %+v", splits)
	}
}

func TestStagePilotsAndCascade(t *testing.T) {
	ts := newTestServer(t)
	a := ts.createPilot("A")
	b := ts.createPilot("B")
	stage := ts.createStage(map[string]any{"name": "SS1"})

	rec := ts.do(http.MethodPut, "/api/stages/"+stage.ID+"/pilots", map[string]any{"pilotIds": []string{a.ID, a.ID}})
	expectStatus(t, rec, http.StatusOK)
	if ids := decode[handlers.StagePilotsRequest](t, rec).PilotIDs; len(ids) != 1 {
		t.Errorf("pilotIds = %v, want one deduped id", ids)
	}

	rec = ts.do(http.MethodPost, "/api/stages/"+stage.ID+"/pilots/"+b.ID+"/toggle", nil)
	expectStatus(t, rec, http.StatusOK)
	if ids := decode[handlers.StagePilotsRequest](t, rec).PilotIDs; len(ids) != 2 {
		t.Errorf("pilotIds = %v, want two", ids)
	}

	expectStatus(t, ts.do(http.MethodDelete, "/api/stages/"+stage.ID, nil), http.StatusNoContent)
	snap := ts.store.Snapshot()
	if len(snap.StagePilots) != 0 {
		t.Errorf("stagePilots after stage delete = %v", snap.StagePilots)
	}
}

func TestAudioAndDisplay(t *testing.T) {
	ts := newTestServer(t)

	expectStatus(t, ts.do(http.MethodPost, "/api/streams/cam1/solo", nil), http.StatusOK)
	expectStatus(t, ts.do(http.MethodPut, "/api/streams/cam2", map[string]any{"volume": 80}), http.StatusOK)
	expectStatus(t, ts.do(http.MethodPut, "/api/audio", map[string]any{"volume": 50}), http.StatusOK)

	rec := ts.do(http.MethodGet, "/api/streams/cam2/audio", nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[models.EffectiveAudio](t, rec)
	if !got.Muted || got.Volume != 40 {
		t.Errorf("cam2 effective audio = %+v, want muted at 40", got)
	}

	stage := ts.createStage(map[string]any{"name": "SS1"})
	rec = ts.do(http.MethodPut, "/api/display", map[string]any{"currentStageId": stage.ID, "currentScene": 3, "chromaKey": ""})
	expectStatus(t, rec, http.StatusOK)
	d := decode[models.DisplayConfig](t, rec)
	if d.CurrentStageID == nil || *d.CurrentStageID != stage.ID || d.CurrentScene != 3 || d.ChromaKey != models.DefaultChromaKey {
		t.Errorf("display = %+v", d)
	}

	expectStatus(t, ts.do(http.MethodPut, "/api/language", map[string]any{"language": "fr"}), http.StatusOK)
	if ts.store.Snapshot().Language != "fr" {
		t.Error("language not stored")
	}
}

func TestExportImportReset(t *testing.T) {
	ts := newTestServer(t)
	ts.createPilot("A")

	rec := ts.do(http.MethodGet, "/api/export", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "rally-export-2026-05-09") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	exported := rec.Body.String()

	expectStatus(t, ts.do(http.MethodPost, "/api/reset", nil), http.StatusOK)
	if len(ts.store.Snapshot().Pilots) != 0 {
		t.Fatal("reset left pilots behind")
	}

	expectStatus(t, ts.do(http.MethodPost, "/api/import", exported), http.StatusOK)
	if len(ts.store.Snapshot().Pilots) != 1 {
		t.Error("import did not restore the pilot")
	}

	expectStatus(t, ts.do(http.MethodPost, "/api/import", `{"pilots": 42}`), http.StatusBadRequest)
	expectStatus(t, ts.do(http.MethodPost, "/api/import", `not json`), http.StatusBadRequest)
	if len(ts.store.Snapshot().Pilots) != 1 {
		t.Error("failed import changed state")
	}
}

func TestVersionAndClock(t *testing.T) {
	ts := newTestServer(t)
	before := decode[handlers.VersionResponse](t, ts.do(http.MethodGet, "/api/version", nil))
	ts.createPilot("A")
	after := decode[handlers.VersionResponse](t, ts.do(http.MethodGet, "/api/version", nil))
	if after.DataVersion <= before.DataVersion {
		t.Errorf("version %d -> %d, want increase", before.DataVersion, after.DataVersion)
	}

	clock := decode[handlers.ClockResponse](t, ts.do(http.MethodGet, "/api/clock", nil))
	if clock.Clock != "10:00:00.000" {
		t.Errorf("clock = %q, want 10:00:00.000", clock.Clock)
	}
}

func TestSyncEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/sync/key", map[string]any{"provider": "2"})
	expectStatus(t, rec, http.StatusCreated)
	key := decode[handlers.SyncKeyResponse](t, rec)
	if key.Key != "2-TESTKEY1" || key.OverlayURL != "http://rally.local:8080/overlay?sync=2-TESTKEY1" {
		t.Errorf("key response = %+v", key)
	}
	expectStatus(t, ts.do(http.MethodPost, "/api/sync/key", map[string]any{"provider": "9"}), http.StatusBadRequest)

	rec = ts.do(http.MethodPost, "/api/sync/connect", map[string]any{"key": " 2-TESTKEY1 "})
	expectStatus(t, rec, http.StatusOK)
	if st := decode[models.SyncState](t, rec); st.Status != models.SyncConnected || st.Key != "2-TESTKEY1" {
		t.Errorf("state after connect = %+v", st)
	}

	rec = ts.do(http.MethodPost, "/api/sync/disconnect", nil)
	expectStatus(t, rec, http.StatusOK)
	if st := decode[models.SyncState](t, rec); st.Status != models.SyncDisconnected || st.Enabled {
		t.Errorf("state after disconnect = %+v", st)
	}

	expectStatus(t, ts.do(http.MethodPost, "/api/sync/connect", map[string]any{"key": ""}), http.StatusBadRequest)

	ts.sync.connectErr = errors.Unavailable(context.DeadlineExceeded, "sync channel unavailable")
	expectStatus(t, ts.do(http.MethodPost, "/api/sync/connect", map[string]any{"key": "1-AAAA"}), http.StatusServiceUnavailable)
}

func TestSyncQR(t *testing.T) {
	ts := newTestServer(t)

	expectStatus(t, ts.do(http.MethodGet, "/api/sync/qr", nil), http.StatusNotFound)

	rec := ts.do(http.MethodGet, "/api/sync/qr?key=1-ABCDEFGH", nil)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("body is not a PNG: %v", err)
	}
}

func TestOverlayAutoConnect(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"sync param", "?sync=1-ABC", "1-ABC"},
		{"legacy ws param", "?ws=2-XYZ", "2-XYZ"},
		{"sync wins", "?sync=1-A&ws=2-B", "1-A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(http.MethodGet, "/overlay"+tt.query, nil)
			expectStatus(t, rec, http.StatusOK)
			if !strings.Contains(rec.Body.String(), "key="+tt.want) {
				t.Errorf("body = %q", rec.Body.String())
			}
			select {
			case got := <-ts.sync.autos:
				if got != tt.want {
					t.Errorf("auto-connect key = %q, want %q", got, tt.want)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("auto-connect was not attempted")
			}
		})
	}

	t.Run("no key", func(t *testing.T) {
		ts := newTestServer(t)
		expectStatus(t, ts.do(http.MethodGet, "/overlay", nil), http.StatusOK)
		select {
		case got := <-ts.sync.autos:
			t.Errorf("unexpected auto-connect to %q", got)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestSetupPage(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Rally Overlay Setup") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMissingTemplateFails(t *testing.T) {
	_, err := handlers.New(handlers.Deps{
		Templates: fstest.MapFS{"setup.html": &fstest.MapFile{Data: []byte("ok")}},
	})
	if err == nil {
		t.Error("New() should fail without overlay.html")
	}
}

func TestRateLimitOnMutators(t *testing.T) {
	ts := newTestServer(t, func(d *handlers.Deps) {
		d.RateLimit = rate.Limit(0.001)
		d.RateBurst = 2
	})

	for i := 0; i < 2; i++ {
		ts.do(http.MethodPut, "/api/audio", map[string]any{"volume": 10})
	}
	rec := ts.do(http.MethodPut, "/api/audio", map[string]any{"volume": 10})
	expectStatus(t, rec, http.StatusTooManyRequests)

	// reads are never limited
	expectStatus(t, ts.do(http.MethodGet, "/api/state", nil), http.StatusOK)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/api/state", nil)

	rec := ts.do(http.MethodGet, "/metrics", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `rally_http_requests_total{method="GET",route="/api/state",status_code="200"} 1`) {
		t.Errorf("metrics missing /api/state counter:\n%s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(http.MethodGet, "/healthz", nil), http.StatusOK)

	down := newTestServer(t, func(d *handlers.Deps) {
		d.Ping = func(context.Context) error { return fmt.Errorf("database is closed") }
	})
	expectStatus(t, down.do(http.MethodGet, "/healthz", nil), http.StatusServiceUnavailable)
}
