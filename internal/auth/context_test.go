// ABOUTME: Tests for auth context propagation
// ABOUTME: Covers WithAuth/FromContext round trips and the nil cases

package auth

import (
	"context"
	"testing"

	"github.com/2389/tower-gateway/internal/session"
	"github.com/2389/tower-gateway/internal/store"
)

func TestFromContext_Empty(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}

func TestWithAuth_RoundTrip(t *testing.T) {
	authCtx := &AuthContext{
		PrincipalID: "account-1",
		Scope:       &session.Scope{Client: &store.Client{ID: "client-1"}},
	}
	ctx := WithAuth(context.Background(), authCtx)

	got := FromContext(ctx)
	if got != authCtx {
		t.Fatalf("FromContext() = %v, want %v", got, authCtx)
	}
	if got.ClientID() != "client-1" {
		t.Errorf("ClientID() = %q, want %q", got.ClientID(), "client-1")
	}
}

func TestClientID_Nil(t *testing.T) {
	var a *AuthContext
	if a.ClientID() != "" {
		t.Error("nil AuthContext should have empty ClientID")
	}
	if (&AuthContext{}).ClientID() != "" {
		t.Error("AuthContext without scope should have empty ClientID")
	}
}

func TestMustFromContext_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustFromContext() should panic without auth")
		}
	}()
	MustFromContext(context.Background())
}
