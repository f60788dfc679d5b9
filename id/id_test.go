package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopforge/jobcore/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"JobID", id.NewJobID, "job_"},
		{"HistoryID", id.NewHistoryID, "jhist_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"JobID", id.NewJobID, id.ParseJobID},
		{"HistoryID", id.NewHistoryID, id.ParseHistoryID},
		{"WorkerID", id.NewWorkerID, id.ParseWorkerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	history := id.NewHistoryID().String()
	if _, err := id.ParseJobID(history); err == nil {
		t.Errorf("expected ParseJobID to reject %q", history)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil String() = %q, want empty", i.String())
	}
	text, err := i.MarshalText()
	if err != nil || len(text) != 0 {
		t.Errorf("nil MarshalText() = %q, %v; want empty", text, err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}
	want := id.NewJobID()

	data, err := json.Marshal(wrapper{ID: want})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got wrapper
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID.String() != want.String() {
		t.Errorf("got %q, want %q", got.ID.String(), want.String())
	}
}

func TestParseAs(t *testing.T) {
	job := id.NewJobID()
	got, err := id.ParseAs(job.String(), id.PrefixJob)
	if err != nil || got.Prefix() != id.PrefixJob {
		t.Fatalf("ParseAs(job) = %v, %v", got, err)
	}
	if _, err := id.ParseAs(job.String(), id.PrefixWorker); err == nil {
		t.Fatal("expected a job id to be rejected as a worker id")
	}
	if _, err := id.ParseAs("job_not-a-typeid", id.PrefixJob); err == nil {
		t.Fatal("expected malformed suffix to be rejected")
	}
}

func TestUnmarshalEmptyIsNil(t *testing.T) {
	i := id.NewJobID()
	if err := i.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil): %v", err)
	}
	if !i.IsNil() {
		t.Fatal("empty text should yield Nil")
	}
}
