package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/avelling/shelfsync/internal/models"
)

// PipelineCSVImport tags frames belonging to the CSV import pipeline.
// The progress channel may carry frames for other pipelines; those
// decode to KindIgnored.
const PipelineCSVImport = "csv_import"

// legacyAck is the bare, unstructured acknowledgement older servers send
// instead of a ready_ack frame. Matched by string as a documented
// backward-compatibility shim.
const legacyAck = "connected"

// Wire frame types.
const (
	frameProgress    = "progress"
	frameReconnected = "reconnected"
	frameComplete    = "complete"
	frameError       = "error"
	frameReadyAck    = "ready_ack"
	frameJobStarted  = "job_started"
	framePing        = "ping"
	framePong        = "pong"
)

// MessageKind discriminates decoded progress-channel messages.
type MessageKind int

const (
	// KindIgnored marks frames for other pipelines and unknown variants.
	KindIgnored MessageKind = iota
	// KindAck is the ready acknowledgement (structured or legacy). No UI effect.
	KindAck
	// KindJobStarted is informational. No UI effect.
	KindJobStarted
	// KindHeartbeat is a ping/pong keep-alive. No-op.
	KindHeartbeat
	// KindProgress carries a ProgressUpdate.
	KindProgress
	// KindCompletion carries a CompletionSummary.
	KindCompletion
	// KindError carries a server-reported pipeline failure.
	KindError
)

// ProgressUpdate is an ephemeral progress snapshot. Each update
// supersedes the previous one; updates are never queued.
type ProgressUpdate struct {
	Fraction float64
	Message  string
}

// CompletionSummary describes a finished import. ResultID points at a
// server-cached full-result payload; Books/Errors are only populated on
// the lightweight inline completion shape the polling path can return.
type CompletionSummary struct {
	SuccessCount int
	FailureCount int
	ResultID     string
	Books        []models.ParsedRecord
	Errors       []models.ImportError
}

// Inline reports whether the summary already carries full results,
// making a result fetch unnecessary.
func (s CompletionSummary) Inline() bool {
	return len(s.Books) > 0 || len(s.Errors) > 0
}

// Message is one decoded progress-channel frame.
type Message struct {
	Kind       MessageKind
	Progress   *ProgressUpdate
	Completion *CompletionSummary
	Err        string
}

type wireFrame struct {
	Type     string          `json:"type"`
	Pipeline string          `json:"pipeline"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type progressPayload struct {
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

type reconnectedPayload struct {
	Progress      float64 `json:"progress"`
	Message       string  `json:"message"`
	MissedUpdates int     `json:"missed_updates"`
}

type completePayload struct {
	SuccessCount int                   `json:"success_count"`
	FailureCount int                   `json:"failure_count"`
	ResultID     string                `json:"result_id,omitempty"`
	Books        []models.ParsedRecord `json:"books,omitempty"`
	Errors       []models.ImportError  `json:"errors,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// DecodeMessage decodes a raw text frame from the progress channel.
// Frames tagged with a pipeline other than csv_import, and structured
// frames of unknown type, decode to KindIgnored. A returned error means
// the frame is malformed; callers log and drop it, it must never
// terminate the receive loop or change job state.
func DecodeMessage(raw []byte) (Message, error) {
	if strings.TrimSpace(string(raw)) == legacyAck {
		return Message{Kind: KindAck}, nil
	}

	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Type == "" {
		return Message{}, fmt.Errorf("decode frame: missing type")
	}

	// Heartbeats are channel-scoped, not pipeline-scoped.
	if frame.Type == framePing || frame.Type == framePong {
		return Message{Kind: KindHeartbeat}, nil
	}

	if frame.Pipeline != PipelineCSVImport {
		return Message{Kind: KindIgnored}, nil
	}

	switch frame.Type {
	case frameProgress:
		var p progressPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("decode progress payload: %w", err)
		}
		return Message{Kind: KindProgress, Progress: &ProgressUpdate{Fraction: p.Progress, Message: p.Message}}, nil

	case frameReconnected:
		// Recovery summary after a server-side reconnect; surfaced as a
		// synthetic progress update.
		var p reconnectedPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("decode reconnected payload: %w", err)
		}
		msg := p.Message
		if msg == "" {
			msg = "Reconnected"
		}
		return Message{Kind: KindProgress, Progress: &ProgressUpdate{Fraction: p.Progress, Message: msg}}, nil

	case frameComplete:
		var p completePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("decode complete payload: %w", err)
		}
		return Message{Kind: KindCompletion, Completion: &CompletionSummary{
			SuccessCount: p.SuccessCount,
			FailureCount: p.FailureCount,
			ResultID:     p.ResultID,
			Books:        p.Books,
			Errors:       p.Errors,
		}}, nil

	case frameError:
		var p errorPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("decode error payload: %w", err)
		}
		return Message{Kind: KindError, Err: p.Message}, nil

	case frameReadyAck:
		return Message{Kind: KindAck}, nil

	case frameJobStarted:
		return Message{Kind: KindJobStarted}, nil

	default:
		return Message{Kind: KindIgnored}, nil
	}
}
