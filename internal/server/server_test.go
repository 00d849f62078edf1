package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/aristath/riskguard/internal/database"
	"github.com/aristath/riskguard/internal/events"
	"github.com/aristath/riskguard/internal/modules/risk"
	riskhandlers "github.com/aristath/riskguard/internal/modules/risk/handlers"
	"github.com/aristath/riskguard/internal/scheduler"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

type recordedRequest struct {
	method string
	route  string
	status int
}

type fakeHTTPObserver struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (o *fakeHTTPObserver) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, recordedRequest{method, route, status})
}

func (o *fakeHTTPObserver) all() []recordedRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]recordedRequest(nil), o.requests...)
}

type fakeJob struct {
	name string
	err  error
	runs int
}

func (j *fakeJob) Name() string { return j.name }
func (j *fakeJob) Run() error {
	j.runs++
	return j.err
}

type directRunner struct{}

func (directRunner) RunNow(job scheduler.Job) error { return job.Run() }

type testServer struct {
	*Server
	bus      *events.Bus
	observer *fakeHTTPObserver
	job      *fakeJob
}

func newTestServer(t *testing.T) *testServer {
	log := testLogger()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "risk.db"),
		Profile: database.ProfileStandard,
		Name:    "risk",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus(log)
	manager := events.NewManager(bus, log)
	repo := risk.NewRepository(db.Conn(), log)
	aggregator := risk.NewAggregator(risk.NewMultiSink(repo, risk.NewBusSink(manager)), log)

	job := &fakeJob{name: "risk_event_retention"}
	system := NewSystemHandlers(log, db, directRunner{}, job)
	system.cpuSample = func() (float64, float64) { return 12.5, 40 }

	observer := &fakeHTTPObserver{}
	srv := New(Config{
		Log:            log,
		DB:             db,
		Port:           0,
		DevMode:        true,
		RiskHandler:    riskhandlers.NewHandler(aggregator, repo, risk.DefaultLimits(), manager, log),
		SystemHandlers: system,
		EventBus:       bus,
		Metrics:        observer,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("riskguard_up 1\n"))
		}),
	})

	return &testServer{Server: srv, bus: bus, observer: observer, job: job}
}

func (s *testServer) get(t *testing.T, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestHealth_DatabaseClosed(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.db.Close())

	rec, body := s.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "riskguard_up")
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.get(t, "/api/system/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 12.5, body["cpu_percent"])
	assert.Equal(t, 40.0, body["ram_percent"])

	db := body["database"].(map[string]interface{})
	assert.Equal(t, "risk", db["name"])
	assert.Equal(t, true, db["healthy"])
	assert.NotNil(t, db["stats"])
}

func TestTriggerRetention(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/system/jobs/retention", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.job.runs)

	s.job.err = errors.New("archive unavailable")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/system/jobs/retention", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "archive unavailable")
}

func TestTriggerRetention_NotRegistered(t *testing.T) {
	h := NewSystemHandlers(testLogger(), nil, nil, nil)

	rec := httptest.NewRecorder()
	h.HandleTriggerRetention(rec, httptest.NewRequest(http.MethodPost, "/api/system/jobs/retention", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRiskRoutesMounted(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.get(t, "/api/risk/limits")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "data")
}

func TestLoggingMiddleware_ObservesRoutePattern(t *testing.T) {
	s := newTestServer(t)

	s.get(t, "/api/risk/limits")
	s.get(t, "/does-not-exist")

	requests := s.observer.all()
	require.Len(t, requests, 2)
	assert.Equal(t, recordedRequest{http.MethodGet, "/api/risk/limits", http.StatusOK}, requests[0])
	assert.Equal(t, http.StatusNotFound, requests[1].status)
	assert.NotEqual(t, "/does-not-exist", requests[1].route)
}

func TestEventStream_SSE(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream?types=RISK_EVALUATED", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readMessage := func() map[string]interface{} {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				var msg map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &msg))
				return msg
			}
		}
	}

	assert.Equal(t, "connected", readMessage()["type"])
	require.Equal(t, 1, s.bus.SubscriberCount(events.RiskEvaluated))
	assert.Equal(t, 0, s.bus.SubscriberCount(events.ErrorOccurred))

	s.bus.Emit(events.RiskEvaluated, "risk", map[string]interface{}{"multiplier": 0.5})

	msg := readMessage()
	assert.Equal(t, "RISK_EVALUATED", msg["type"])
	assert.Equal(t, "risk", msg["module"])
	assert.Equal(t, 0.5, msg["data"].(map[string]interface{})["multiplier"])

	cancel()
	assert.Eventually(t, func() bool {
		return s.bus.SubscriberCount(events.RiskEvaluated) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventStream_WebSocket(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events/ws", nil)
	require.NoError(t, err)

	readMessage := func() map[string]interface{} {
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, websocket.MessageText, typ)
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	assert.Equal(t, "connected", readMessage()["type"])
	for _, eventType := range events.AllTypes() {
		assert.Equal(t, 1, s.bus.SubscriberCount(eventType), eventType)
	}

	s.bus.Emit(events.RiskMultiplierApplied, "risk", map[string]interface{}{"category": "Leverage"})

	msg := readMessage()
	assert.Equal(t, "RISK_MULTIPLIER_APPLIED", msg["type"])
	assert.Equal(t, "Leverage", msg["data"].(map[string]interface{})["category"])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool {
		return s.bus.SubscriberCount(events.RiskMultiplierApplied) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventStream_ScaleRequestPublishes(t *testing.T) {
	s := newTestServer(t)

	received := make(chan *events.Event, 10)
	unsubscribe := s.bus.Subscribe(events.RiskMultiplierApplied, func(e *events.Event) { received <- e })
	defer unsubscribe()

	body := `{"date":"2024-03-15","positions":[100,-50],"positions_weighted":[0.4,-0.2],` +
		`"covariance_matrix":[[0.0001,0],[0,0.0001]],"jump_covariance_matrix":[[0.0001,0],[0,0.0001]],` +
		`"limits":{"max_leverage":0.3,"max_correlation_risk":10,"max_portfolio_volatility":10,"max_jump_risk":10}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/risk/scale", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, received, 1)
	e := <-received
	assert.Equal(t, "Leverage", e.Data["category"])
}
