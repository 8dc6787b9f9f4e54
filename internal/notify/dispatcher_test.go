package notify

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-chat/internal/feed"
	"market-chat/internal/models"
)

type recorderAlerter struct {
	mu         sync.Mutex
	toasts     []models.Toast
	dismissals int
	desktops   []string
	sounds     int
	flags      int
	clears     int
}

func (r *recorderAlerter) ShowToast(toast models.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, toast)
}

func (r *recorderAlerter) DismissToast() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissals++
}

func (r *recorderAlerter) DesktopNotify(title, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.desktops = append(r.desktops, title+": "+body)
}

func (r *recorderAlerter) PlaySound() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sounds++
}

func (r *recorderAlerter) SetTitleFlag() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags++
}

func (r *recorderAlerter) ClearTitleFlag() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

func (r *recorderAlerter) snapshot() recorderAlerter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorderAlerter{
		toasts:     append([]models.Toast(nil), r.toasts...),
		dismissals: r.dismissals,
		desktops:   append([]string(nil), r.desktops...),
		sounds:     r.sounds,
		flags:      r.flags,
		clears:     r.clears,
	}
}

type dispatcherState struct {
	mu               sync.Mutex
	muted            bool
	openCounterparty int
}

func (s *dispatcherState) isMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *dispatcherState) open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCounterparty
}

func newDispatcherFixture(caps Capabilities) (*Dispatcher, *recorderAlerter, *dispatcherState) {
	alerter := &recorderAlerter{}
	state := &dispatcherState{}
	d := NewDispatcher(1, alerter, caps, &Viewport{}, state.isMuted, state.open, DefaultPreviewLimit, time.Hour)
	return d, alerter, state
}

func event(messageID, senderID int, body string) feed.MessageEvent {
	return feed.MessageEvent{MessageID: messageID, ConversationID: 5, SenderID: senderID, Body: body}
}

func TestDispatchSelfEchoIsSilent(t *testing.T) {
	d, alerter, _ := newDispatcherFixture(Capabilities{})

	d.Dispatch(event(10, 1, "from myself"), models.Profile{ID: 1})

	got := alerter.snapshot()
	assert.Empty(t, got.toasts)
	assert.Zero(t, got.sounds)
}

func TestDispatchMutedIsSilent(t *testing.T) {
	d, alerter, state := newDispatcherFixture(Capabilities{})
	state.mu.Lock()
	state.muted = true
	state.mu.Unlock()

	d.Dispatch(event(10, 2, "hello"), models.Profile{ID: 2, Username: "bob"})

	got := alerter.snapshot()
	assert.Empty(t, got.toasts)
	assert.Zero(t, got.sounds)
	assert.Zero(t, got.flags)
}

func TestDispatchOpenThreadSuppressesAlerts(t *testing.T) {
	d, alerter, state := newDispatcherFixture(Capabilities{})
	state.mu.Lock()
	state.openCounterparty = 2
	state.mu.Unlock()

	d.Dispatch(event(10, 2, "hello"), models.Profile{ID: 2, Username: "bob"})

	got := alerter.snapshot()
	assert.Empty(t, got.toasts)
	assert.Zero(t, got.sounds)
}

func TestDispatchEmitsToastAndSound(t *testing.T) {
	d, alerter, _ := newDispatcherFixture(Capabilities{})

	d.Dispatch(event(10, 2, "hello"), models.Profile{ID: 2, Username: "bob"})

	got := alerter.snapshot()
	require.Len(t, got.toasts, 1)
	assert.Equal(t, 10, got.toasts[0].MessageID)
	assert.Equal(t, "bob", got.toasts[0].Sender)
	assert.Equal(t, "hello", got.toasts[0].Preview)
	assert.Equal(t, 1, got.sounds)
	assert.Empty(t, got.desktops)
	assert.Zero(t, got.flags)
}

func TestDispatchRedeliveredMessageAlertsOnce(t *testing.T) {
	d, alerter, _ := newDispatcherFixture(Capabilities{})

	ev := event(10, 2, "hello")
	d.Dispatch(ev, models.Profile{ID: 2, Username: "bob"})
	d.Dispatch(ev, models.Profile{ID: 2, Username: "bob"})

	got := alerter.snapshot()
	assert.Len(t, got.toasts, 1)
	assert.Equal(t, 1, got.sounds)
}

func TestDispatchTruncatesPreview(t *testing.T) {
	d, alerter, _ := newDispatcherFixture(Capabilities{})

	long := strings.Repeat("x", DefaultPreviewLimit+20)
	d.Dispatch(event(10, 2, long), models.Profile{ID: 2, Username: "bob"})

	got := alerter.snapshot()
	require.Len(t, got.toasts, 1)
	preview := []rune(got.toasts[0].Preview)
	assert.Len(t, preview, DefaultPreviewLimit+1)
	assert.Equal(t, '…', preview[len(preview)-1])
}

func TestDispatchDesktopOnlyWhenHiddenAndGranted(t *testing.T) {
	cases := []struct {
		name       string
		caps       Capabilities
		hidden     bool
		wantNotify bool
	}{
		{"hidden and granted", Capabilities{DesktopSupported: true, Permission: PermissionGranted}, true, true},
		{"visible", Capabilities{DesktopSupported: true, Permission: PermissionGranted}, false, false},
		{"permission denied", Capabilities{DesktopSupported: true, Permission: PermissionDenied}, true, false},
		{"unsupported", Capabilities{DesktopSupported: false, Permission: PermissionGranted}, true, false},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, alerter, _ := newDispatcherFixture(tc.caps)
			d.SetViewportHidden(tc.hidden)

			d.Dispatch(event(100+i, 2, "hello"), models.Profile{ID: 2, Username: "bob"})

			got := alerter.snapshot()
			if tc.wantNotify {
				assert.Len(t, got.desktops, 1)
			} else {
				assert.Empty(t, got.desktops)
			}
		})
	}
}

func TestDispatchTitleFlagSetWhenHiddenClearedOnVisible(t *testing.T) {
	d, alerter, _ := newDispatcherFixture(Capabilities{})
	d.SetViewportHidden(true)

	d.Dispatch(event(10, 2, "one"), models.Profile{ID: 2})
	d.Dispatch(event(11, 2, "two"), models.Profile{ID: 2})

	got := alerter.snapshot()
	assert.Equal(t, 1, got.flags)
	assert.Zero(t, got.clears)

	d.SetViewportHidden(false)
	got = alerter.snapshot()
	assert.Equal(t, 1, got.clears)

	// No flag pending: becoming visible again is a no-op.
	d.SetViewportHidden(false)
	got = alerter.snapshot()
	assert.Equal(t, 1, got.clears)
}

func TestToastAutoDismissReplacedByNewerToast(t *testing.T) {
	alerter := &recorderAlerter{}
	state := &dispatcherState{}
	d := NewDispatcher(1, alerter, Capabilities{}, &Viewport{}, state.isMuted, state.open, DefaultPreviewLimit, 40*time.Millisecond)

	d.Dispatch(event(10, 2, "one"), models.Profile{ID: 2})
	time.Sleep(20 * time.Millisecond)
	d.Dispatch(event(11, 2, "two"), models.Profile{ID: 2})

	// The first timer was replaced; only the second toast's dismissal fires.
	require.Eventually(t, func() bool { return alerter.snapshot().dismissals == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, alerter.snapshot().dismissals)
}
