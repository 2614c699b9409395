package correlation

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/philiph/saml2-core/internal/core/domain"
	"github.com/philiph/saml2-core/internal/core/ports"
)

func testCodec(t *testing.T) *CookieCodec {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewCookieCodec(key, time.Minute)
}

func TestCookieCodecRoundTrip(t *testing.T) {
	codec := testCodec(t)
	pending := &domain.PendingCorrelation{
		RequestID: domain.NewMessageID(),
		ReturnURL: "/app/dashboard",
		IssuedAt:  time.Now(),
	}

	token, err := codec.Encode(pending)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.RequestID != pending.RequestID {
		t.Errorf("RequestID = %q, want %q", decoded.RequestID, pending.RequestID)
	}
	if decoded.ReturnURL != pending.ReturnURL {
		t.Errorf("ReturnURL = %q, want %q", decoded.ReturnURL, pending.ReturnURL)
	}
}

func TestCookieCodecRejectsTamperedToken(t *testing.T) {
	codec := testCodec(t)
	token, err := codec.Encode(&domain.PendingCorrelation{RequestID: domain.NewMessageID()})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := codec.Decode(tampered); err != ports.ErrNoCorrelation {
		t.Errorf("Decode tampered = %v, want ErrNoCorrelation", err)
	}
}

func TestCookieCodecRejectsForeignKey(t *testing.T) {
	token, err := testCodec(t).Encode(&domain.PendingCorrelation{RequestID: domain.NewMessageID()})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := testCodec(t).Decode(token); err != ports.ErrNoCorrelation {
		t.Errorf("Decode with foreign key = %v, want ErrNoCorrelation", err)
	}
}

func TestCookieStoreRoundTrip(t *testing.T) {
	codec := testCodec(t)
	pending := &domain.PendingCorrelation{RequestID: domain.NewMessageID(), ReturnURL: "/home"}

	// Save on the outbound leg.
	w := httptest.NewRecorder()
	saveStore := NewCookieStore(codec, "", w, httptest.NewRequest("GET", "/login", nil), true)
	if err := saveStore.Save(pending); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != DefaultCookieName {
		t.Errorf("cookie name = %q, want %q", cookie.Name, DefaultCookieName)
	}
	if !cookie.HttpOnly || !cookie.Secure {
		t.Error("cookie is not HttpOnly+Secure")
	}

	// Load on the inbound leg.
	r := httptest.NewRequest("GET", "/acs", nil)
	r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	loadStore := NewCookieStore(codec, "", httptest.NewRecorder(), r, true)

	loaded, err := loadStore.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RequestID != pending.RequestID {
		t.Errorf("RequestID = %q, want %q", loaded.RequestID, pending.RequestID)
	}
}

func TestCookieStoreLoadWithoutCookie(t *testing.T) {
	store := NewCookieStore(testCodec(t), "", httptest.NewRecorder(), httptest.NewRequest("GET", "/acs", nil), false)
	if _, err := store.Load(); err != ports.ErrNoCorrelation {
		t.Errorf("Load = %v, want ErrNoCorrelation", err)
	}
}

func TestCookieStoreRemoveExpiresCookie(t *testing.T) {
	w := httptest.NewRecorder()
	store := NewCookieStore(testCodec(t), "", w, httptest.NewRequest("GET", "/acs", nil), false)
	if err := store.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Error("Remove did not expire the cookie")
	}
}

func TestMemoryStoreSingleUse(t *testing.T) {
	store := NewMemoryStore(0)
	pending := &domain.PendingCorrelation{RequestID: domain.NewMessageID()}

	if _, err := store.Load(); err != ports.ErrNoCorrelation {
		t.Fatalf("Load on empty store = %v, want ErrNoCorrelation", err)
	}

	if err := store.Save(pending); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RequestID != pending.RequestID {
		t.Errorf("RequestID = %q, want %q", loaded.RequestID, pending.RequestID)
	}

	if err := store.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Load(); err != ports.ErrNoCorrelation {
		t.Errorf("Load after Remove = %v, want ErrNoCorrelation", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Nanosecond)
	if err := store.Save(&domain.PendingCorrelation{RequestID: domain.NewMessageID()}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := store.Load(); err != ports.ErrNoCorrelation {
		t.Errorf("Load after expiry = %v, want ErrNoCorrelation", err)
	}

	if err := store.Refresh(); err != ports.ErrNoCorrelation {
		t.Errorf("Refresh after expiry = %v, want ErrNoCorrelation", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(0)
	pending := &domain.PendingCorrelation{RequestID: domain.NewMessageID()}
	if err := store.Save(pending); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _ := store.Load()
	loaded.RequestID = "mutated"

	again, _ := store.Load()
	if again.RequestID != pending.RequestID {
		t.Error("mutation of a loaded correlation leaked into the store")
	}
}
