package scope_test

import (
	"context"
	"testing"

	"github.com/shopforge/jobcore/scope"
)

func TestCapture_Empty(t *testing.T) {
	tenant, requester := scope.Capture(context.Background())
	if tenant != "" || requester != "" {
		t.Errorf("expected empty scope, got %q/%q", tenant, requester)
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	ctx := scope.Restore(context.Background(), "store_42", "user_7")
	tenant, requester := scope.Capture(ctx)
	if tenant != "store_42" || requester != "user_7" {
		t.Errorf("got %q/%q, want store_42/user_7", tenant, requester)
	}
}

func TestRestore_NoopWhenEmpty(t *testing.T) {
	parent := context.Background()
	if ctx := scope.Restore(parent, "", ""); ctx != parent {
		t.Error("Restore with empty ids should return the parent context")
	}
}
