package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/audit"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/controller"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/notify"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/service"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/statuschannel"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/store/memory"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/types"
)

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakeController struct {
	mu        sync.Mutex
	setCalls  []bool
	statusN   int
	listN     int
	setErr    error
	status    types.DoorState
	statusErr error
	doors     []types.Door
	listErr   error
}

func (f *fakeController) SetEvacuationMode(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, enabled)
	return f.setErr
}

func (f *fakeController) GetStatus(context.Context) (types.DoorState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusN++
	return f.status, f.statusErr
}

func (f *fakeController) ListDoors(context.Context) ([]types.Door, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listN++
	return f.doors, f.listErr
}

func (f *fakeController) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.setCalls) + f.statusN
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n notify.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
}

type fakeRenamer struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeRenamer) RenameChannel(_ context.Context, _ string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	return nil
}

type harness struct {
	dispatcher *service.Dispatcher
	controller *fakeController
	notifier   *fakeNotifier
	renamer    *fakeRenamer
	audit      *memory.InvocationStore
}

// newHarness wires a dispatcher around fakes.  ctrl may be nil to get an
// always-succeeding controller.
func newHarness(t *testing.T, ctrl service.DoorController, policy service.Policy) *harness {
	t.Helper()
	h := &harness{
		notifier: &fakeNotifier{},
		renamer:  &fakeRenamer{},
		audit:    memory.NewInvocationStore(),
	}
	if ctrl == nil {
		h.controller = &fakeController{}
		ctrl = h.controller
	} else if fc, ok := ctrl.(*fakeController); ok {
		h.controller = fc
	}
	h.dispatcher = service.NewDispatcher(service.Dependencies{
		Controller: ctrl,
		Notifier:   h.notifier,
		Status:     statuschannel.NewUpdater(h.renamer, "status-chan", "door-status-", nil),
		Audit:      audit.NewLogger(nil, h.audit),
		Policy:     policy,
	})
	return h
}

func invocation(cmd types.Command) types.Invocation {
	return types.Invocation{
		Command:   cmd,
		UserID:    "1001",
		UserName:  "alice",
		ChannelID: "chan-ok",
	}
}

// ── Success paths ────────────────────────────────────────────────────────────

func TestLock_Success(t *testing.T) {
	h := newHarness(t, nil, service.Policy{})

	reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandLock))

	assert.Equal(t, service.ReplyLocked, reply.Content)
	assert.Equal(t, []bool{false}, h.controller.setCalls)
	assert.Equal(t, []string{"door-status-🔒"}, h.renamer.names)
	assert.Empty(t, h.notifier.notes)
}

func TestUnlock_Success(t *testing.T) {
	h := newHarness(t, nil, service.Policy{})

	reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandUnlock))

	assert.Equal(t, service.ReplyUnlocked, reply.Content)
	assert.Equal(t, []bool{true}, h.controller.setCalls)
	assert.Equal(t, []string{"door-status-🔓"}, h.renamer.names)
	assert.Empty(t, h.notifier.notes)
}

func TestStatus_Replies(t *testing.T) {
	cases := []struct {
		state types.DoorState
		reply string
		name  string
	}{
		{types.Unlocked, "Doors are unlocked (evacuation mode active)", "door-status-🔓"},
		{types.Locked, "Doors are locked", "door-status-🔒"},
	}
	for _, tc := range cases {
		h := newHarness(t, &fakeController{status: tc.state}, service.Policy{})

		reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandStatus))

		assert.Equal(t, tc.reply, reply.Content)
		assert.Empty(t, h.controller.setCalls, "/status must not change door state")
		assert.Equal(t, []string{tc.name}, h.renamer.names, "/status reconciles the channel name")
		assert.Empty(t, h.notifier.notes)
	}
}

func TestStatus_ListDoors(t *testing.T) {
	ctrl := &fakeController{
		status: types.Locked,
		doors: []types.Door{
			{Name: "Front", LockRelayStatus: "lock"},
			{Name: "", LockRelayStatus: "unlock"},
		},
	}
	h := newHarness(t, ctrl, service.Policy{ListDoors: true})

	reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandStatus))

	assert.Equal(t, "Doors are locked\n**Doors:**\n- Front: 🔒 Locked\n- Unknown: 🔓 Unlocked", reply.Content)
}

func TestStatus_ListDoorsFailureStillReplies(t *testing.T) {
	ctrl := &fakeController{status: types.Unlocked, listErr: errors.New("boom")}
	h := newHarness(t, ctrl, service.Policy{ListDoors: true})

	reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandStatus))

	assert.Equal(t, service.ReplyStatusUnlocked, reply.Content)
	assert.Empty(t, h.notifier.notes)
	assert.Equal(t, "success", h.audit.Records()[0].Outcome)
}

// ── Failure paths ────────────────────────────────────────────────────────────

func TestLock_ControllerFailure(t *testing.T) {
	ctrl := &fakeController{setErr: &controller.APIError{Op: "set evacuation mode", StatusCode: 503, Message: "Service Unavailable"}}
	h := newHarness(t, ctrl, service.Policy{})

	reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandLock))

	assert.Equal(t, "Failed to lock doors, please try again", reply.Content)
	assert.Empty(t, h.renamer.names, "no rename after a failed command")
	require.Len(t, h.notifier.notes, 1)
	assert.Contains(t, h.notifier.notes[0].Title, "API Error")
	assert.Equal(t, notify.SeverityCritical, h.notifier.notes[0].Severity)
	assert.Contains(t, h.notifier.notes[0].Message, "alice")
}

func TestUnlock_ClientErrorIsLowerSeverity(t *testing.T) {
	ctrl := &fakeController{setErr: &controller.APIError{Op: "set evacuation mode", StatusCode: 401, Message: "Unauthorized"}}
	h := newHarness(t, ctrl, service.Policy{})

	reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandUnlock))

	assert.Equal(t, service.ReplyUnlockFailed, reply.Content)
	require.Len(t, h.notifier.notes, 1)
	assert.Equal(t, notify.SeverityError, h.notifier.notes[0].Severity)
}

func TestStatus_ControllerFailure(t *testing.T) {
	ctrl := &fakeController{statusErr: &controller.APIError{Op: "get status", Message: "connection refused"}}
	h := newHarness(t, ctrl, service.Policy{})

	reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandStatus))

	assert.Equal(t, service.ReplyStatusFailed, reply.Content)
	assert.Empty(t, h.renamer.names)
	require.Len(t, h.notifier.notes, 1)
	assert.Equal(t, notify.SeverityCritical, h.notifier.notes[0].Severity)
}

func TestLock_LocalRequestErrorIsNotCritical(t *testing.T) {
	client := controller.New(controller.Options{BaseURL: "://no-scheme", Token: "t"})
	h := newHarness(t, client, service.Policy{})

	reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandLock))

	assert.Equal(t, service.ReplyLockFailed, reply.Content)
	require.Len(t, h.notifier.notes, 1)
	assert.Equal(t, notify.SeverityError, h.notifier.notes[0].Severity)
}

// The worked example: /lock against a controller answering HTTP 503.
func TestLock_RealClientHTTP503(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := controller.New(controller.Options{BaseURL: ts.URL + "/api/v1", Token: "t", Timeout: time.Second})
	h := newHarness(t, client, service.Policy{})

	reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandLock))

	assert.Equal(t, "Failed to lock doors, please try again", reply.Content)
	require.Len(t, h.notifier.notes, 1)
	assert.Contains(t, h.notifier.notes[0].Title, "API Error")
	assert.Empty(t, h.renamer.names)
}

func TestStatus_RealClientBodies(t *testing.T) {
	for body, want := range map[string]string{
		`{"evacuation_mode": true}`:  "Doors are unlocked (evacuation mode active)",
		`{"evacuation_mode": false}`: "Doors are locked",
	} {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		client := controller.New(controller.Options{BaseURL: ts.URL, Token: "t", Timeout: time.Second})
		h := newHarness(t, client, service.Policy{})

		reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandStatus))
		assert.Equal(t, want, reply.Content)
		ts.Close()
	}
}

// ── Allow-list ───────────────────────────────────────────────────────────────

func TestAllowList_RejectsOtherChannels(t *testing.T) {
	for _, cmd := range types.Commands {
		h := newHarness(t, nil, service.NewPolicy([]string{"chan-ok"}, false))

		inv := invocation(cmd)
		inv.ChannelID = "chan-elsewhere"
		reply := h.dispatcher.Handle(context.Background(), inv)

		assert.Equal(t, service.ReplyDenied, reply.Content, string(cmd))
		assert.Contains(t, reply.Content, "permission")
		assert.Zero(t, h.controller.calls(), "no controller call for denied %s", cmd)
		assert.Empty(t, h.renamer.names)
		assert.Empty(t, h.notifier.notes)

		recs := h.audit.Records()
		require.Len(t, recs, 1)
		assert.Equal(t, "denied", recs[0].Outcome)
	}
}

func TestAllowList_PermitsListedChannel(t *testing.T) {
	h := newHarness(t, nil, service.NewPolicy([]string{"chan-ok", " other "}, false))

	reply := h.dispatcher.Handle(context.Background(), invocation(types.CommandLock))
	assert.Equal(t, service.ReplyLocked, reply.Content)

	inv := invocation(types.CommandLock)
	inv.ChannelID = "other"
	reply = h.dispatcher.Handle(context.Background(), inv)
	assert.Equal(t, service.ReplyLocked, reply.Content)
}

func TestAllowList_EmptyPermitsAll(t *testing.T) {
	h := newHarness(t, nil, service.NewPolicy(nil, false))

	inv := invocation(types.CommandUnlock)
	inv.ChannelID = "anything"
	reply := h.dispatcher.Handle(context.Background(), inv)

	assert.Equal(t, service.ReplyUnlocked, reply.Content)
	assert.Equal(t, 1, h.controller.calls())
}

// ── Audit ────────────────────────────────────────────────────────────────────

func TestAudit_OneEntryPerInvocation(t *testing.T) {
	ctrl := &fakeController{}
	h := newHarness(t, ctrl, service.Policy{})
	ctx := context.Background()

	h.dispatcher.Handle(ctx, invocation(types.CommandLock))
	ctrl.setErr = errors.New("network down")
	h.dispatcher.Handle(ctx, invocation(types.CommandUnlock))
	h.dispatcher.Handle(ctx, invocation(types.CommandStatus))
	h.dispatcher.Handle(ctx, invocation("reboot"))

	recs := h.audit.Records()
	require.Len(t, recs, 4)
	assert.Equal(t, "success", recs[0].Outcome)
	assert.Equal(t, "failed", recs[1].Outcome)
	assert.Equal(t, "network down", recs[1].Detail)
	assert.Equal(t, "success", recs[2].Outcome)
	assert.Equal(t, "failed", recs[3].Outcome)

	ids := map[string]bool{}
	for _, r := range recs {
		assert.NotEmpty(t, r.ID)
		assert.False(t, r.InvokedAt.IsZero())
		ids[r.ID] = true
	}
	assert.Len(t, ids, 4, "invocation ids are unique")
}

func TestAudit_InvocationTimeFromClock(t *testing.T) {
	fixed := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	store := memory.NewInvocationStore()
	d := service.NewDispatcher(service.Dependencies{
		Controller: &fakeController{},
		Audit:      audit.NewLogger(nil, store),
		Now:        func() time.Time { return fixed },
	})

	d.Handle(context.Background(), invocation(types.CommandStatus))

	require.Len(t, store.Records(), 1)
	assert.True(t, store.Records()[0].InvokedAt.Equal(fixed))
}

func TestAudit_DisabledRecordsNothing(t *testing.T) {
	d := service.NewDispatcher(service.Dependencies{Controller: &fakeController{}})

	reply := d.Handle(context.Background(), invocation(types.CommandLock))
	assert.Equal(t, service.ReplyLocked, reply.Content)
}

// ── Notifier isolation ───────────────────────────────────────────────────────

func TestNotifierDown_DoesNotAffectReplies(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	ntfy := notify.NewNtfy(notify.NtfyOptions{URL: deadURL, Topic: "doors", Timeout: 200 * time.Millisecond})
	defer ntfy.Close()

	ctrl := &fakeController{}
	d := service.NewDispatcher(service.Dependencies{Controller: ctrl, Notifier: ntfy})

	reply := d.Handle(context.Background(), invocation(types.CommandLock))
	assert.Equal(t, service.ReplyLocked, reply.Content)

	ctrl.setErr = errors.New("boom")
	reply = d.Handle(context.Background(), invocation(types.CommandLock))
	assert.Equal(t, service.ReplyLockFailed, reply.Content)
}

// ── Concurrency ──────────────────────────────────────────────────────────────

// orderingController records the interleaving of set calls and renames.
type orderingController struct {
	fakeController
	events *[]string
	mu     *sync.Mutex
}

func (o *orderingController) SetEvacuationMode(ctx context.Context, enabled bool) error {
	o.mu.Lock()
	*o.events = append(*o.events, "set")
	o.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return nil
}

type orderingRenamer struct {
	events *[]string
	mu     *sync.Mutex
}

func (o *orderingRenamer) RenameChannel(context.Context, string, string) error {
	o.mu.Lock()
	*o.events = append(*o.events, "rename")
	o.mu.Unlock()
	return nil
}

func TestLockUnlock_Serialized(t *testing.T) {
	var (
		events []string
		mu     sync.Mutex
	)
	d := service.NewDispatcher(service.Dependencies{
		Controller: &orderingController{events: &events, mu: &mu},
		Status:     statuschannel.NewUpdater(&orderingRenamer{events: &events, mu: &mu}, "c", "p-", nil),
	})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		cmd := types.CommandLock
		if i%2 == 1 {
			cmd = types.CommandUnlock
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Handle(context.Background(), invocation(cmd))
		}()
	}
	wg.Wait()

	require.Len(t, events, 12)
	for i := 0; i < len(events); i += 2 {
		assert.Equal(t, "set", events[i])
		assert.Equal(t, "rename", events[i+1], "each set is followed by its own rename")
	}
}
