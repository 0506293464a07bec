package backend

import "encoding/json"

// MessageType is the top-level discriminator on every JSON message the
// backend sends.
type MessageType string

const (
	// MessageAuthOK acknowledges a successful token exchange.
	MessageAuthOK MessageType = "auth_ok"

	// MessageAuthInvalid rejects the token; the connection is unusable.
	MessageAuthInvalid MessageType = "auth_invalid"

	// MessageEvent wraps a run-lifecycle event in the nested Event field.
	MessageEvent MessageType = "event"

	// MessageResult wraps a terminal result payload; treated like an event.
	MessageResult MessageType = "result"
)

// EventType discriminates the run-lifecycle events nested inside an
// envelope of type "event".
type EventType string

const (
	EventRunStart    EventType = "run-start"
	EventSTTStart    EventType = "stt-start"
	EventSTTEnd      EventType = "stt-end"
	EventIntentStart EventType = "intent-start"
	EventIntentEnd   EventType = "intent-end"
	EventTTSStart    EventType = "tts-start"
	EventTTSEnd      EventType = "tts-end"
	EventRunEnd      EventType = "run-end"
	EventError       EventType = "error"
)

// Envelope is the outer JSON message frame.
type Envelope struct {
	Type  MessageType `json:"type"`
	Event *Event      `json:"event,omitempty"`
}

// Event is a decoded run-lifecycle message. Which fields are populated
// depends on Type. Events are ephemeral: they are consumed synchronously by
// the reader callback that decoded them and never queued.
type Event struct {
	Type EventType `json:"type"`

	// HandlerID accompanies run-start; valid range 0–255.
	HandlerID *int `json:"handler_id,omitempty"`

	// Text carries the transcript (stt-end) or spoken response text
	// (tts-end).
	Text string `json:"text,omitempty"`

	// Name is the resolved intent name (intent-end).
	Name string `json:"name,omitempty"`

	// Slots is the raw intent slot payload (intent-end).
	Slots json.RawMessage `json:"slots,omitempty"`

	// ResponseSpeech is the backend's suggested confirmation speech
	// (intent-end).
	ResponseSpeech string `json:"response_speech,omitempty"`

	// AudioURL points at the synthesized speech audio (tts-end).
	AudioURL string `json:"audio_url,omitempty"`

	// Code and Message describe an error event.
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Intent is the structured NLU result delivered to the subscriber.
type Intent struct {
	Name           string
	Slots          json.RawMessage
	ResponseSpeech string
}

// Subscribers holds the single-callback slots through which the client
// notifies its owner. The set is fixed at construction — exactly one active
// controller, matching the at-most-one-active-session invariant. Nil
// callbacks are skipped.
//
// All callbacks are invoked from the client's reader goroutine and must not
// block; long work belongs on the owner's own queue.
type Subscribers struct {
	// OnRunStart fires when the backend assigns a handler id for a new run.
	OnRunStart func(handlerID int)

	// OnTranscript fires on stt-end with the recognised text.
	OnTranscript func(text string)

	// OnIntent fires on intent-end.
	OnIntent func(intent Intent)

	// OnTTS fires on tts-end. audioURL may be empty when the response is
	// text-only.
	OnTTS func(text, audioURL string)

	// OnTTSAudio receives streamed chunks of fetched speech audio. A nil or
	// zero-length chunk is the end-of-audio marker.
	OnTTSAudio func(chunk []byte)

	// OnRunEnd fires when the backend closes the run.
	OnRunEnd func()

	// OnError fires on a backend error event. The session is already
	// abandoned and the handler id invalidated when this is called.
	OnError func(code int, message string)

	// OnDisconnect fires when the transport drops. The handler id is
	// already invalidated when this is called.
	OnDisconnect func()
}
