package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postpartum-htn-backend/config"
	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/notification"
	"postpartum-htn-backend/internal/store"
	"postpartum-htn-backend/internal/store/storetest"
	"postpartum-htn-backend/internal/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  store.Store
	rec    *notification.Recorder
	now    time.Time
}

func newTestServer(t *testing.T) *testServer {
	return newServer(t, config.AuthConfig{}, nil)
}

// newServer builds a server with the given auth settings. A nil broker disables
// live session streams.
func newServer(t *testing.T, auth config.AuthConfig, broker *changefeed.Broker) *testServer {
	t.Helper()
	var feed changefeed.Publisher = changefeed.NewBroker(16)
	if broker != nil {
		feed = broker
	}
	s, _ := storetest.New(t, feed)
	ts := &testServer{store: s, rec: &notification.Recorder{}, now: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)}

	engine := workflow.NewEngine(s, ts.rec, broker, zap.NewNop(), workflow.Options{
		MinConfirmationGap: time.Minute,
		PollInterval:       20 * time.Millisecond,
		Now:                func() time.Time { return ts.now },
	})
	h := NewHandler(engine, s, &webpush.Options{VAPIDPublicKey: "test-public-key"}, time.Second, zap.NewNop())
	ts.router = NewRouter(h, config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 60}, auth)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	} else {
		buf = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
		req.Header.Set("X-User-Role", string(model.RoleNurse))
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (ts *testServer) createPatient(t *testing.T) model.Patient {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/patients", "nurse-ana", map[string]any{"room_number": "12B"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p model.Patient
	decode(t, w, &p)
	return p
}

func TestHealthAndProtocols(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/protocols", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Protocols []struct {
			Algorithm string `json:"algorithm"`
			MaxDoses  int    `json:"max_doses"`
		} `json:"protocols"`
		RecheckMinutes int `json:"recheck_minutes"`
	}
	decode(t, w, &body)
	require.Len(t, body.Protocols, 3)
	assert.Equal(t, "labetalol", body.Protocols[0].Algorithm)
	assert.Equal(t, 15, body.RecheckMinutes)

	w = ts.do(t, http.MethodGet, "/api/protocols/hydralazine", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"max_doses":2`)

	w = ts.do(t, http.MethodGet, "/api/protocols/aspirin", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePatient_RequiresActor(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/patients", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"MISSING_ACTOR"`)
	assert.Contains(t, w.Body.String(), `"retryable":false`)
}

func TestEmergencyLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createPatient(t)
	base := "/api/patients/" + p.ID

	w := ts.do(t, http.MethodPost, base+"/readings", "nurse-ana", map[string]any{"bp": "170/100"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first workflow.Outcome
	decode(t, w, &first)
	assert.Equal(t, "first_high", string(first.Transition))
	require.NotNil(t, first.Timer)
	assert.Equal(t, model.TimerBPRecheck, first.Timer.Type)

	ts.now = ts.now.Add(5 * time.Minute)
	w = ts.do(t, http.MethodPost, base+"/readings", "nurse-ana", map[string]any{"systolic": 175, "diastolic": 105})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var second workflow.Outcome
	decode(t, w, &second)
	assert.Equal(t, "confirm", string(second.Transition))
	require.NotNil(t, second.Session)

	w = ts.do(t, http.MethodPost, base+"/session/algorithm", "dr-reyes", map[string]any{"algorithm": "Labetalol"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, base+"/session/doses", "dr-reyes", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ordered workflow.Outcome
	decode(t, w, &ordered)
	require.NotNil(t, ordered.Dose)
	assert.Equal(t, "20mg", ordered.Dose.Dose)

	w = ts.do(t, http.MethodPost, base+"/medications/"+ordered.Dose.ID+"/administer", "nurse-ana", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, base+"/timer", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"medication_wait"`)
	assert.Contains(t, w.Body.String(), `"remaining_seconds":600`)

	w = ts.do(t, http.MethodGet, base+"/case", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view workflow.View
	decode(t, w, &view)
	assert.Equal(t, "treating", string(view.Stage))
	assert.Len(t, view.Medications, 1)

	w = ts.do(t, http.MethodGet, "/api/patients?emergency=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var emergencies []model.Patient
	decode(t, w, &emergencies)
	assert.Len(t, emergencies, 1)

	ts.now = ts.now.Add(10 * time.Minute)
	w = ts.do(t, http.MethodPost, base+"/readings", "nurse-ana", map[string]any{"bp": "140/90"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"transition":"resolve"`)

	w = ts.do(t, http.MethodGet, base+"/readings?limit=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var readings []model.BloodPressureReading
	decode(t, w, &readings)
	require.Len(t, readings, 2)
	assert.Equal(t, 140, readings[0].Systolic)

	w = ts.do(t, http.MethodGet, base+"/audit", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.ActionAutoResolved)

	assert.Len(t, ts.rec.ByEvent(notification.EventResolved), 1)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createPatient(t)
	base := "/api/patients/" + p.ID

	w := ts.do(t, http.MethodPost, base+"/session/algorithm", "dr-reyes", map[string]any{"algorithm": "labetalol"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NO_ACTIVE_SESSION"`)

	w = ts.do(t, http.MethodPost, base+"/session/algorithm", "dr-reyes", map[string]any{"algorithm": "aspirin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, base+"/readings", "nurse-ana", map[string]any{"bp": "high"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INVALID_INPUT"`)

	w = ts.do(t, http.MethodPost, base+"/readings", "nurse-ana", map[string]any{"systolic": 170})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/patients/nobody/readings", "nurse-ana", map[string]any{"bp": "170/100"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"PATIENT_NOT_FOUND"`)

	w = ts.do(t, http.MethodGet, "/api/patients/nobody/case", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, base+"/session", "dr-reyes", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = ts.do(t, http.MethodPost, base+"/session", "dr-reyes", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"SESSION_ALREADY_OPEN"`)

	w = ts.do(t, http.MethodGet, "/api/patients?limit=0", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodGet, base+"/audit?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ctx := t.Context()
	patientID := "p-1"
	role := model.RoleResident
	n := &model.Notification{
		Type:          model.PriorityCritical,
		Event:         string(notification.EventAdministrationDeadlineStarted),
		Title:         "Deadline",
		Message:       "Treat within 45 minutes",
		RecipientRole: &role,
		PatientID:     &patientID,
		CreatedAt:     ts.now,
	}
	require.NoError(t, ts.store.InsertNotification(ctx, n))

	w := ts.do(t, http.MethodGet, "/api/notifications?role=resident", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var notes []model.Notification
	decode(t, w, &notes)
	require.Len(t, notes, 1)

	w = ts.do(t, http.MethodGet, "/api/notifications?role=nurse", "", nil)
	decode(t, w, &notes)
	assert.Empty(t, notes)

	w = ts.do(t, http.MethodGet, "/api/notifications?role=janitor", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/notifications/"+n.ID+"/acknowledge", "dr-reyes", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/notifications?role=resident&unacknowledged=true", "", nil)
	decode(t, w, &notes)
	assert.Empty(t, notes)

	w = ts.do(t, http.MethodPost, "/api/notifications/missing/acknowledge", "dr-reyes", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t)
	endpoint := "https://push.example.com/send/abc%3D"

	w := ts.do(t, http.MethodPut, "/api/subscriptions", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	sub := map[string]any{"endpoint": endpoint, "p256dh": "key", "auth": "secret"}
	w = ts.do(t, http.MethodPut, "/api/subscriptions", "", sub)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPut, "/api/subscriptions", "nurse-ana", sub)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"role":"nurse","user_id":"nurse-ana"}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+url.QueryEscape("https://nowhere"), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/subscriptions", "nurse-ana", map[string]any{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.JSONEq(t, `{"public_key":"test-public-key"}`, w.Body.String())
}
