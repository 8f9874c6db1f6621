package logging

import "time"

// Field is a key-value pair attached to a log line
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Error attaches err under the "error" key; a nil error is logged as null
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Domain fields

func Component(name string) Field { return String("component", name) }

func NodeID(id string) Field { return String("node_id", id) }

func Seq(seq uint64) Field { return Uint64("seq", seq) }

func Term(term uint64) Field { return Uint64("term", term) }

func SessionID(id string) Field { return String("session_id", id) }

func Key(key string) Field { return String("key", key) }

// Concern records a write or read concern by name
func Concern(c interface{ String() string }) Field { return String("concern", c.String()) }

func Latency(d time.Duration) Field { return Duration("latency", d) }

func Phase(p interface{ String() string }) Field { return String("phase", p.String()) }

func Role(r interface{ String() string }) Field { return String("role", r.String()) }
