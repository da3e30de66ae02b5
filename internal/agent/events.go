package agent

// EventType is the "type" field of an outbound client message.
type EventType string

const (
	EventPartial       EventType = "partial"
	EventFinal         EventType = "final"
	EventLLMStream     EventType = "llm_stream"
	EventLLMSentence   EventType = "llm_sentence"
	EventLLMDone       EventType = "llm_done"
	EventLLMBusy       EventType = "llm_busy"
	EventSentenceStart EventType = "sentence_start"
	EventVoiceDone     EventType = "voice_done"
	EventStopAll       EventType = "stop_all"

	EventWizardNotice   EventType = "wizard_notice"
	EventWizardQuestion EventType = "wizard_question"
	EventWizardAnswer   EventType = "wizard_answer"
	EventWizardError    EventType = "wizard_error"

	EventGDDSessionID   EventType = "gdd_session_id"
	EventGDDExportReady EventType = "gdd_export_ready"
	EventGDDComplete    EventType = "gdd_complete"
	EventGDDDone        EventType = "gdd_done"
	EventGDDError       EventType = "gdd_error"

	EventPong EventType = "pong"
)

// Source tags where a spoken sentence came from.
type Source string

const (
	SourceWizard Source = "wizard"
	SourceChat   Source = "chat"
)

// Event is one JSON message to the client. Index is a pointer so question
// zero is still sent.
type Event struct {
	Type      EventType `json:"type"`
	Text      string    `json:"text,omitempty"`
	Token     string    `json:"token,omitempty"`
	Question  string    `json:"question,omitempty"`
	Index     *int      `json:"index,omitempty"`
	Total     int       `json:"total,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Markdown  string    `json:"markdown,omitempty"`
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
	Source    Source    `json:"source,omitempty"`
}

func intPtr(i int) *int { return &i }
