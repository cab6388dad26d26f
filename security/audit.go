package security

import (
	"bytes"
	"strconv"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"
)

// EventKind classifies an audit event, spec §8's "audit log entries".
type EventKind int

const (
	EventTokenGenerated EventKind = iota
	EventTokenValidated
	EventValidationFailed
	EventHardwareMismatch
	EventReplaySuspected
	EventSecurityViolation
)

func (k EventKind) String() string {
	switch k {
	case EventTokenGenerated:
		return "token_generated"
	case EventTokenValidated:
		return "token_validated"
	case EventValidationFailed:
		return "validation_failed"
	case EventHardwareMismatch:
		return "hardware_mismatch"
	case EventReplaySuspected:
		return "replay_suspected"
	case EventSecurityViolation:
		return "security_violation"
	default:
		return "unknown"
	}
}

// Event is one audit record, emitted whenever a Context issues, validates,
// or rejects a capability (spec §8).
type Event struct {
	Kind      EventKind
	SlotID    uint32
	Level     Level
	Time      time.Time
	Detail    string
}

// AuditSink receives Events as they occur. Implementations must not block
// the caller for long; Context calls sinks synchronously on the validation
// path.
type AuditSink interface {
	Record(Event)
}

// NopAuditSink discards all events. It is the default sink for a Context
// that was not given one explicitly, mirroring the teacher's pattern of a
// disabled-by-default logger (SPEC_FULL.md's Logging section).
type NopAuditSink struct{}

func (NopAuditSink) Record(Event) {}

// LogSink writes audit events as structured zerolog records. This is the
// default non-trivial sink, grounded in SPEC_FULL.md's ambient logging
// section.
type LogSink struct {
	Logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) Record(e Event) {
	s.Logger.Info().
		Str("event", e.Kind.String()).
		Uint32("slot_id", e.SlotID).
		Str("level", e.Level.String()).
		Time("time", e.Time).
		Str("detail", e.Detail).
		Msg("security audit event")
}

// FileSink appends audit events to a file using atomic whole-file
// replacement writes, grounded in the corpus's github.com/natefinch/atomic
// usage for crash-safe persistence. Each Record call rewrites the file with
// the new event appended; callers that need high-volume audit logging
// should wrap FileSink with batching, which Context does not attempt here.
type FileSink struct {
	Path   string
	buf    []byte
	format func(Event) string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{
		Path: path,
		format: func(e Event) string {
			return e.Time.Format(time.RFC3339Nano) + " " + e.Kind.String() + " slot=" +
				strconv.FormatUint(uint64(e.SlotID), 10) + " level=" + e.Level.String() + " " + e.Detail + "\n"
		},
	}
}

func (s *FileSink) Record(e Event) {
	s.buf = append(s.buf, s.format(e)...)
	_ = atomic.WriteFile(s.Path, bytes.NewReader(s.buf))
}
