// Package id provides the identifiers of jobcore records: TypeIDs with a
// per-entity prefix ("job_...", "jhist_...", "wkr_...").
package id

import (
	"errors"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the entity tag of an ID.
type Prefix string

const (
	PrefixJob     Prefix = "job"
	PrefixHistory Prefix = "jhist"
	PrefixWorker  Prefix = "wkr"
)

var errEmpty = errors.New("empty id")

// ID is a TypeID. The zero value is Nil and renders as "".
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	tid typeid.TypeID
	ok  bool
}

// Nil is the zero ID.
var Nil ID

type (
	// JobID identifies a job record.
	JobID = ID
	// HistoryID identifies a history row.
	HistoryID = ID
	// WorkerID identifies a dispatcher process.
	WorkerID = ID
)

// New returns a fresh ID. Prefixes are package constants, so a generation
// failure is a programming error and panics.
func New(p Prefix) ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", p, err))
	}
	return ID{tid: tid, ok: true}
}

func NewJobID() JobID         { return New(PrefixJob) }
func NewHistoryID() HistoryID { return New(PrefixHistory) }
func NewWorkerID() WorkerID   { return New(PrefixWorker) }

// Parse accepts any well-formed TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: %w", errEmpty)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, ok: true}, nil
}

// ParseAs parses s and rejects IDs of another entity.
func ParseAs(s string, want Prefix) (ID, error) {
	i, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := i.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q is a %s id, want %s", s, got, want)
	}
	return i, nil
}

func ParseJobID(s string) (JobID, error)         { return ParseAs(s, PrefixJob) }
func ParseHistoryID(s string) (HistoryID, error) { return ParseAs(s, PrefixHistory) }
func ParseWorkerID(s string) (WorkerID, error)   { return ParseAs(s, PrefixWorker) }

func (i ID) String() string {
	if !i.ok {
		return ""
	}
	return i.tid.String()
}

func (i ID) Prefix() Prefix {
	if !i.ok {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return !i.ok }

// MarshalText renders Nil as an empty string so optional IDs stay valid
// JSON strings.
func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
