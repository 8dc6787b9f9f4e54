package models

// Toast is the in-app notification rendered by the presentation shell.
type Toast struct {
	MessageID int    `json:"message_id"`
	Sender    string `json:"sender"`
	Preview   string `json:"preview"`
}

// ShellEvent is pushed over websocket connections to the presentation shell.
type ShellEvent struct {
	Type    string           `json:"type"`
	Threads []Thread         `json:"threads,omitempty"`
	Entry   *TranscriptEntry `json:"entry,omitempty"`
	Toast   *Toast           `json:"toast,omitempty"`
	Title   string           `json:"title,omitempty"`
	Body    string           `json:"body,omitempty"`
}

// ShellEvent types.
const (
	EventThreads        = "threads"
	EventMessage        = "message"
	EventToast          = "toast"
	EventToastDismissed = "toast_dismissed"
	EventDesktop        = "desktop"
	EventSound          = "sound"
	EventTitleFlag      = "title_flag"
	EventTitleClear     = "title_clear"
)
