package notify

import (
	"sync"
	"time"

	"market-chat/internal/feed"
	"market-chat/internal/models"
	"market-chat/internal/observability"
)

// Alerter renders notification outputs. The websocket hub implements it by
// pushing shell events; tests swap in a recorder.
type Alerter interface {
	ShowToast(toast models.Toast)
	DismissToast()
	DesktopNotify(title, body string)
	PlaySound()
	SetTitleFlag()
	ClearTitleFlag()
}

// DefaultToastTTL is how long a toast stays up before auto-dismissal.
const DefaultToastTTL = 5 * time.Second

// DefaultPreviewLimit caps the toast message preview, in runes.
const DefaultPreviewLimit = 50

// Dispatcher decides, per realtime message event, which of toast, desktop
// notification, sound and title flag to emit. Mute state and the open
// thread's counterparty are read through handles at dispatch time.
type Dispatcher struct {
	userID           int
	alerter          Alerter
	caps             Capabilities
	viewport         *Viewport
	muted            func() bool
	openCounterparty func() int
	previewLimit     int
	toastTTL         time.Duration

	mu          sync.Mutex
	seen        map[int]struct{}
	toastTimer  *time.Timer
	titleFlagged bool
}

// NewDispatcher constructs a Dispatcher. muted and openCounterparty are read
// on every event so the long-lived subscription never sees stale state.
func NewDispatcher(
	userID int,
	alerter Alerter,
	caps Capabilities,
	viewport *Viewport,
	muted func() bool,
	openCounterparty func() int,
	previewLimit int,
	toastTTL time.Duration,
) *Dispatcher {
	if previewLimit < 1 {
		previewLimit = DefaultPreviewLimit
	}
	if toastTTL <= 0 {
		toastTTL = DefaultToastTTL
	}
	return &Dispatcher{
		userID:           userID,
		alerter:          alerter,
		caps:             caps,
		viewport:         viewport,
		muted:            muted,
		openCounterparty: openCounterparty,
		previewLimit:     previewLimit,
		toastTTL:         toastTTL,
		seen:             make(map[int]struct{}),
	}
}

// Dispatch applies the decision rules in order: self-echo, mute, open thread,
// then the alert battery. A redelivered message id never alerts twice.
func (d *Dispatcher) Dispatch(ev feed.MessageEvent, sender models.Profile) {
	if ev.SenderID == d.userID {
		return
	}

	d.mu.Lock()
	if _, dup := d.seen[ev.MessageID]; dup {
		d.mu.Unlock()
		return
	}
	d.seen[ev.MessageID] = struct{}{}
	d.mu.Unlock()

	if d.muted() {
		return
	}
	if d.openCounterparty() == ev.SenderID {
		// The message lands in the visible transcript instead.
		return
	}

	d.showToast(models.Toast{
		MessageID: ev.MessageID,
		Sender:    sender.Username,
		Preview:   truncate(ev.Body, d.previewLimit),
	})

	hidden := d.viewport.Hidden()
	if hidden && d.caps.DesktopSupported && d.caps.Permission == PermissionGranted {
		d.alerter.DesktopNotify(sender.Username, truncate(ev.Body, d.previewLimit))
		observability.IncAlert("desktop")
	}

	d.alerter.PlaySound()
	observability.IncAlert("sound")

	if hidden {
		d.flagTitle()
	}
}

// SetViewportHidden records a visibility change; restoring visibility clears
// any pending title flag.
func (d *Dispatcher) SetViewportHidden(hidden bool) {
	d.viewport.SetHidden(hidden)
	if hidden {
		return
	}
	d.mu.Lock()
	flagged := d.titleFlagged
	d.titleFlagged = false
	d.mu.Unlock()
	if flagged {
		d.alerter.ClearTitleFlag()
	}
}

func (d *Dispatcher) showToast(toast models.Toast) {
	d.mu.Lock()
	// A new toast replaces any pending dismissal instead of stacking.
	if d.toastTimer != nil {
		d.toastTimer.Stop()
	}
	d.toastTimer = time.AfterFunc(d.toastTTL, d.alerter.DismissToast)
	d.mu.Unlock()

	d.alerter.ShowToast(toast)
	observability.IncAlert("toast")
}

func (d *Dispatcher) flagTitle() {
	d.mu.Lock()
	already := d.titleFlagged
	d.titleFlagged = true
	d.mu.Unlock()
	if already {
		return
	}
	d.alerter.SetTitleFlag()
	observability.IncAlert("title")
}

func truncate(body string, limit int) string {
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "…"
}
