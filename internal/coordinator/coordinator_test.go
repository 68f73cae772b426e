package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"examdesk-backend/internal/models"
	"examdesk-backend/internal/roster"
	"examdesk-backend/internal/ws"
)

type sentMessage struct {
	connID  uuid.UUID
	msgType string
	payload any
}

type fakeNotifier struct {
	sent       []sentMessage
	broadcasts []sentMessage
	errors     []sentMessage
}

func (n *fakeNotifier) SendTo(connID uuid.UUID, msgType string, payload any) {
	n.sent = append(n.sent, sentMessage{connID: connID, msgType: msgType, payload: payload})
}

func (n *fakeNotifier) BroadcastObservers(msgType string, payload any) {
	n.broadcasts = append(n.broadcasts, sentMessage{msgType: msgType, payload: payload})
}

func (n *fakeNotifier) SendError(connID uuid.UUID, message string) {
	n.errors = append(n.errors, sentMessage{connID: connID, payload: message})
}

func newTestCoordinator() (*Coordinator, *fakeNotifier, *roster.Roster) {
	notifier := &fakeNotifier{}
	r := roster.New()
	// Store-backed services are not exercised by these paths.
	co := New(notifier, r, nil, nil, nil, nil, nil)
	return co, notifier, r
}

func envelope(t *testing.T, evtType string, payload any) models.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return models.Envelope{Type: evtType, Payload: raw}
}

func TestOperatorEventsRejectedFromStations(t *testing.T) {
	co, notifier, _ := newTestCoordinator()
	station := &ws.Client{ID: uuid.New(), Role: ws.RoleStation}

	operatorEvents := []string{
		models.EvtAdminSetDesk,
		models.EvtAdminAssignEmploye,
		models.EvtAdminAssignStruct,
		models.EvtAdminResetDesk,
		models.EvtAdminConfirm,
	}
	for _, evt := range operatorEvents {
		co.HandleMessage(station, envelope(t, evt, map[string]any{}))
	}

	if len(notifier.errors) != len(operatorEvents) {
		t.Fatalf("Expected %d rejections, got %d", len(operatorEvents), len(notifier.errors))
	}
}

func TestStationEventsRejectedFromObservers(t *testing.T) {
	co, notifier, _ := newTestCoordinator()
	observer := &ws.Client{ID: uuid.New(), Role: ws.RoleObserver}

	stationEvents := []string{
		models.EvtStationJoin,
		models.EvtStartExam,
		models.EvtFinishSession,
		models.EvtGetResults,
	}
	for _, evt := range stationEvents {
		co.HandleMessage(observer, envelope(t, evt, map[string]any{}))
	}

	if len(notifier.errors) != len(stationEvents) {
		t.Fatalf("Expected %d rejections, got %d", len(stationEvents), len(notifier.errors))
	}
}

func TestConfirmSkipsOfflineMachines(t *testing.T) {
	co, notifier, r := newTestCoordinator()

	// One machine never joined, one joined and then dropped.
	conn := uuid.New()
	r.UpsertOnJoin(roster.Entry{MachineUUID: "m-offline", ConnID: conn, DeskNumber: 1})
	r.MarkDisconnected("m-offline", conn)

	observer := &ws.Client{ID: uuid.New(), Role: ws.RoleObserver}
	co.HandleMessage(observer, envelope(t, models.EvtAdminConfirm,
		models.ConfirmPayload{MachineUUIDs: []string{"m-ghost", "m-offline"}}))

	// Offline desks are skipped silently: no session attempt, no error, no
	// roster broadcast.
	if len(notifier.errors) != 0 {
		t.Errorf("Expected silent skip, got errors %+v", notifier.errors)
	}
	if len(notifier.broadcasts) != 0 {
		t.Errorf("Expected no broadcast for an all-offline batch, got %+v", notifier.broadcasts)
	}
}

func TestUnknownEventReportsError(t *testing.T) {
	co, notifier, _ := newTestCoordinator()
	station := &ws.Client{ID: uuid.New(), Role: ws.RoleStation}

	co.HandleMessage(station, envelope(t, "no-such-event", map[string]any{}))

	if len(notifier.errors) != 1 {
		t.Fatalf("Expected one error, got %d", len(notifier.errors))
	}
}

func TestStationEventsBeforeJoinAreStateConflicts(t *testing.T) {
	co, notifier, _ := newTestCoordinator()
	station := &ws.Client{ID: uuid.New(), Role: ws.RoleStation} // never joined

	co.HandleMessage(station, envelope(t, models.EvtStartExam, models.StartExamPayload{ExamTypeID: uuid.New()}))
	co.HandleMessage(station, envelope(t, models.EvtFinishSession, nil))

	if len(notifier.errors) != 2 {
		t.Fatalf("Expected two errors, got %d", len(notifier.errors))
	}
}

func TestAdminGetStudentsReturnsSnapshot(t *testing.T) {
	co, notifier, r := newTestCoordinator()
	r.UpsertOnJoin(roster.Entry{MachineUUID: "m", ConnID: uuid.New(), DeskNumber: 1})

	observer := &ws.Client{ID: uuid.New(), Role: ws.RoleObserver}
	co.HandleMessage(observer, envelope(t, models.EvtAdminGetStudents, nil))

	if len(notifier.sent) != 1 {
		t.Fatalf("Expected one direct reply, got %d", len(notifier.sent))
	}
	msg := notifier.sent[0]
	if msg.connID != observer.ID || msg.msgType != models.MsgStudentListUpdated {
		t.Errorf("Expected %s to the requesting observer, got %+v", models.MsgStudentListUpdated, msg)
	}
	entries, ok := msg.payload.([]roster.Entry)
	if !ok || len(entries) != 1 {
		t.Errorf("Expected a one-entry snapshot, got %+v", msg.payload)
	}
}

func TestDisconnectGraysOutAndBroadcasts(t *testing.T) {
	co, notifier, r := newTestCoordinator()
	connID := uuid.New()
	r.UpsertOnJoin(roster.Entry{MachineUUID: "m", ConnID: connID, DeskNumber: 1})

	station := &ws.Client{ID: connID, Role: ws.RoleStation, MachineUUID: "m"}
	co.HandleDisconnect(station)

	if e, _ := r.Get("m"); e.Connected {
		t.Error("Expected entry disconnected")
	}
	if len(notifier.broadcasts) != 1 || notifier.broadcasts[0].msgType != models.MsgStudentListUpdated {
		t.Fatalf("Expected one roster broadcast, got %+v", notifier.broadcasts)
	}
}

func TestStaleDisconnectDoesNotBroadcast(t *testing.T) {
	co, notifier, r := newTestCoordinator()
	liveConn := uuid.New()
	r.UpsertOnJoin(roster.Entry{MachineUUID: "m", ConnID: liveConn, DeskNumber: 1})

	stale := &ws.Client{ID: uuid.New(), Role: ws.RoleStation, MachineUUID: "m"}
	co.HandleDisconnect(stale)

	if e, _ := r.Get("m"); !e.Connected {
		t.Error("Stale disconnect must not gray out the live connection")
	}
	if len(notifier.broadcasts) != 0 {
		t.Errorf("Expected no broadcast for a stale disconnect, got %+v", notifier.broadcasts)
	}
}
