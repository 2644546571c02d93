package credential

import (
	"context"
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fallback string
		session  string
		want     string
		wantErr  error
	}{
		{name: "session wins over fallback", fallback: "env-key", session: "session-key", want: "session-key"},
		{name: "fallback when no session", fallback: "env-key", want: "env-key"},
		{name: "session only", session: "session-key", want: "session-key"},
		{name: "neither", wantErr: ErrMissing},
		{name: "whitespace session ignored", fallback: "env-key", session: "   ", want: "env-key"},
		{name: "whitespace fallback ignored", fallback: "  ", wantErr: ErrMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewResolver(tt.fallback)
			ctx := WithSession(context.Background(), tt.session)

			got, err := r.Resolve(ctx)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromContext_Absent(t *testing.T) {
	t.Parallel()
	if key, ok := FromContext(context.Background()); ok || key != "" {
		t.Errorf("FromContext(empty) = (%q, %v), want (\"\", false)", key, ok)
	}
}

func TestWithSession_EmptyKeepsContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if got := WithSession(ctx, ""); got != ctx {
		t.Error("WithSession with empty key should return the original context")
	}
}

func TestNilResolver(t *testing.T) {
	t.Parallel()
	var r *Resolver
	if r.HasFallback() {
		t.Error("nil resolver should report no fallback")
	}
	if _, err := r.Resolve(context.Background()); !errors.Is(err, ErrMissing) {
		t.Errorf("nil resolver Resolve() error = %v, want ErrMissing", err)
	}
	got, err := r.Resolve(WithSession(context.Background(), "k"))
	if err != nil || got != "k" {
		t.Errorf("nil resolver with session = (%q, %v), want (\"k\", nil)", got, err)
	}
}
