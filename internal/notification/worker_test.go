package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/clinical"
	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/store"
	"postpartum-htn-backend/internal/store/storetest"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func response(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(""))}
}

func testPatient() *model.Patient {
	room := "12"
	return &model.Patient{ID: "p1", AnonymousIdentifier: "PT-ABCD", RoomNumber: &room}
}

func TestWorkerPool_NotifyPersistsPerRole(t *testing.T) {
	s, _ := storetest.New(t, nil)
	wp := NewWorkerPool(1, 4, s, nil, zap.NewNop())

	req := EmergencyConfirmed(testPatient(), 170, 112)
	require.NoError(t, wp.Notify(context.Background(), req))

	rows, err := s.ListNotifications(context.Background(), store.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	roles := map[model.Role]bool{}
	for _, n := range rows {
		require.NotNil(t, n.RecipientRole)
		roles[*n.RecipientRole] = true
		assert.Equal(t, model.PriorityCritical, n.Type)
		assert.Equal(t, "p1", *n.PatientID)
	}
	assert.Equal(t, map[model.Role]bool{model.RoleNurse: true, model.RoleResident: true, model.RoleChargeNurse: true}, roles)

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, EventEmergencyConfirmed, job.Event)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job to be queued")
	}
}

func TestWorkerPool_BroadcastIsOneRow(t *testing.T) {
	s, _ := storetest.New(t, nil)
	wp := NewWorkerPool(1, 4, s, nil, zap.NewNop())

	require.NoError(t, wp.Notify(context.Background(), Resolved(testPatient())))

	rows, err := s.ListNotifications(context.Background(), store.NotificationFilter{Role: model.RoleAttending})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].RecipientRole)
}

func TestWorkerPool_NotifyRespectsContext(t *testing.T) {
	s, _ := storetest.New(t, nil)
	wp := NewWorkerPool(1, 1, s, nil, zap.NewNop())

	require.NoError(t, wp.Notify(context.Background(), Resolved(testPatient())))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := wp.Notify(ctx, Resolved(testPatient()))
	assert.True(t, errors.Is(err, context.Canceled) || apperr.IsStore(err))
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	s, _ := storetest.New(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, sub := range []*model.PushSubscription{
		{Endpoint: "https://push.example/nurse", P256DH: "k1", Auth: "a1", Role: model.RoleNurse, UserID: "n1", CreatedAt: time.Now()},
		{Endpoint: "https://push.example/expired", P256DH: "k2", Auth: "a2", Role: model.RoleNurse, UserID: "n2", CreatedAt: time.Now()},
		{Endpoint: "https://push.example/attending", P256DH: "k3", Auth: "a3", Role: model.RoleAttending, UserID: "a1", CreatedAt: time.Now()},
	} {
		require.NoError(t, s.UpsertSubscription(ctx, sub))
	}

	wp := NewWorkerPool(1, 4, s, &webpush.Options{VAPIDPrivateKey: "private", VAPIDPublicKey: "public"}, zap.NewNop())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		endpoints []string
	)
	wg.Add(2)
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			defer wg.Done()
			var req Request
			assert.NoError(t, json.Unmarshal(payload, &req))
			assert.Equal(t, EventRecheckDue, req.Event)

			mu.Lock()
			endpoints = append(endpoints, sub.Endpoint)
			mu.Unlock()
			if sub.Endpoint == "https://push.example/expired" {
				return response(http.StatusGone), nil
			}
			return response(http.StatusCreated), nil
		},
	}
	wp.Start(ctx)

	require.NoError(t, wp.Notify(ctx, RecheckDue(testPatient())))
	wg.Wait()

	assert.ElementsMatch(t, []string{"https://push.example/nurse", "https://push.example/expired"}, endpoints)

	assert.Eventually(t, func() bool {
		_, err := s.GetSubscription(ctx, "https://push.example/expired")
		return errors.Is(err, apperr.ErrNotFound)
	}, time.Second, 10*time.Millisecond)

	_, err := s.GetSubscription(ctx, "https://push.example/nurse")
	assert.NoError(t, err)
}

func TestRoutingTable(t *testing.T) {
	p := testPatient()
	tests := []struct {
		req      Request
		roles    []model.Role
		priority model.Priority
	}{
		{RecheckStarted(p, time.Now()), []model.Role{model.RoleNurse}, model.PriorityWarning},
		{EmergencyConfirmed(p, 170, 100), []model.Role{model.RoleNurse, model.RoleResident, model.RoleChargeNurse}, model.PriorityCritical},
		{MedicationOrdered(p, dosePlaceholder()), []model.Role{model.RoleNurse}, model.PriorityCritical},
		{AdministrationDeadlineStarted(p, time.Now()), []model.Role{model.RoleResident}, model.PriorityCritical},
		{MedicationWaitComplete(p), []model.Role{model.RoleNurse}, model.PriorityCritical},
		{Escalation(p, "algorithm failed"), []model.Role{model.RoleAttending, model.RoleResident}, model.PriorityStat},
		{Resolved(p), nil, model.PriorityInfo},
	}
	for _, tt := range tests {
		t.Run(string(tt.req.Event), func(t *testing.T) {
			assert.Equal(t, tt.roles, tt.req.Roles)
			assert.Equal(t, tt.priority, tt.req.Priority)
			assert.Equal(t, "p1", tt.req.PatientID)
			assert.Contains(t, tt.req.Message, "Room 12")
		})
	}
}

func TestLabelFallsBackToAnonymousID(t *testing.T) {
	p := &model.Patient{ID: "p2", AnonymousIdentifier: "PT-9F00"}
	assert.Equal(t, "BP recheck timer expired for PT-9F00. Take confirmatory reading NOW.", RecheckDue(p).Message)
}

func dosePlaceholder() clinical.Dose {
	d, _ := clinical.NextDose(clinical.Labetalol, 0)
	return d
}
