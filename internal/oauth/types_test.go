package oauth

import (
	"encoding/json"
	"testing"
	"time"
)

func TestScopeList_ArrayForm(t *testing.T) {
	var tok tokenResponse
	body := `{"access_token":"a","expires_in":3600,"scope":["chat:read","chat:edit"],"token_type":"bearer"}`
	if err := json.Unmarshal([]byte(body), &tok); err != nil {
		t.Fatal(err)
	}
	if len(tok.Scope) != 2 || tok.Scope[0] != "chat:read" || tok.Scope[1] != "chat:edit" {
		t.Errorf("Expected two scopes from the array form, got %v", tok.Scope)
	}
}

func TestScopeList_StringForm(t *testing.T) {
	var tok tokenResponse
	body := `{"access_token":"a","expires_in":3600,"scope":"chat:read chat:edit","token_type":"bearer"}`
	if err := json.Unmarshal([]byte(body), &tok); err != nil {
		t.Fatal(err)
	}
	if len(tok.Scope) != 2 || tok.Scope[0] != "chat:read" || tok.Scope[1] != "chat:edit" {
		t.Errorf("Expected two scopes from the space-separated form, got %v", tok.Scope)
	}
}

func TestTokenRecord_IsExpired(t *testing.T) {
	now := time.Now()
	rec := &TokenRecord{ExpiresAt: now.Add(5 * time.Minute)}

	if rec.IsExpired(0) {
		t.Error("Token 5m from expiry is not expired with no margin")
	}
	if !rec.IsExpired(10 * time.Minute) {
		t.Error("Token 5m from expiry is expired under a 10m margin")
	}

	past := &TokenRecord{ExpiresAt: now.Add(-time.Minute)}
	if !past.IsExpired(0) {
		t.Error("Token past expiry must report expired")
	}
}

func TestProviderErrorBody_CodePreference(t *testing.T) {
	var b providerErrorBody
	if err := json.Unmarshal([]byte(`{"error":"slow_down","message":"ignored"}`), &b); err != nil {
		t.Fatal(err)
	}
	if b.code() != "slow_down" {
		t.Errorf("RFC error field must win over message, got %q", b.code())
	}

	b = providerErrorBody{}
	if err := json.Unmarshal([]byte(`{"status":400,"message":"authorization_pending"}`), &b); err != nil {
		t.Fatal(err)
	}
	if b.code() != "authorization_pending" {
		t.Errorf("Message must be used when error is absent, got %q", b.code())
	}
}
