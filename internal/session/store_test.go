package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-hunt/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(StoreConfig{Secret: testSecret})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// roundTrip loads the named session from a request carrying cookies, lets fn
// mutate it, saves it and returns the cookies set on the response.
func roundTrip(t *testing.T, s *MemoryStore, cookies []*http.Cookie, fn func(r *http.Request, w http.ResponseWriter)) []*http.Cookie {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	fn(r, w)
	return w.Result().Cookies()
}

func TestNewMemoryStore_RejectsShortSecret(t *testing.T) {
	_, err := NewMemoryStore(StoreConfig{Secret: "short"})
	assert.Error(t, err)
}

func TestMemoryStore_FreshSessionIsUnauthenticated(t *testing.T) {
	s := newTestStore(t)
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	sess, err := s.Get(r, DefaultCookieName)
	require.NoError(t, err)
	assert.True(t, sess.IsNew)
	assert.False(t, IsAuthenticated(sess))
	assert.Equal(t, 0, s.Count())
}

func TestMemoryStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	user := domain.User{ID: 1, Name: "Ann", PhoneNumber: "+1555", ReferralCode: "AbC123"}

	cookies := roundTrip(t, s, nil, func(r *http.Request, w http.ResponseWriter) {
		sess, err := s.Get(r, DefaultCookieName)
		require.NoError(t, err)
		SetPendingPhone(sess, "+1555")
		Authenticate(sess, user)
		require.NoError(t, sess.Save(r, w))
	})
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, int(DefaultTTL/time.Second), cookies[0].MaxAge)
	assert.Equal(t, 1, s.Count())

	roundTrip(t, s, cookies, func(r *http.Request, w http.ResponseWriter) {
		sess, err := s.Get(r, DefaultCookieName)
		require.NoError(t, err)
		assert.False(t, sess.IsNew)
		assert.True(t, IsAuthenticated(sess))
		assert.Equal(t, "+1555", PendingPhone(sess))
		got, ok := CurrentUser(sess)
		require.True(t, ok)
		assert.Equal(t, user, got)
	})
}

func TestMemoryStore_TamperedTokenStartsFresh(t *testing.T) {
	s := newTestStore(t)

	cookies := roundTrip(t, s, nil, func(r *http.Request, w http.ResponseWriter) {
		sess, _ := s.Get(r, DefaultCookieName)
		Authenticate(sess, domain.User{Name: "Ann"})
		require.NoError(t, sess.Save(r, w))
	})
	require.Len(t, cookies, 1)
	cookies[0].Value += "x"

	roundTrip(t, s, cookies, func(r *http.Request, w http.ResponseWriter) {
		sess, err := s.Get(r, DefaultCookieName)
		require.NoError(t, err)
		assert.True(t, sess.IsNew)
		assert.False(t, IsAuthenticated(sess))
	})
}

func TestMemoryStore_TokenFromOtherSecretRejected(t *testing.T) {
	s := newTestStore(t)
	other, err := NewMemoryStore(StoreConfig{Secret: "another-secret-of-enough-length"})
	require.NoError(t, err)
	defer other.Close()

	cookies := roundTrip(t, other, nil, func(r *http.Request, w http.ResponseWriter) {
		sess, _ := other.Get(r, DefaultCookieName)
		Authenticate(sess, domain.User{Name: "Ann"})
		require.NoError(t, sess.Save(r, w))
	})

	roundTrip(t, s, cookies, func(r *http.Request, w http.ResponseWriter) {
		sess, _ := s.Get(r, DefaultCookieName)
		assert.True(t, sess.IsNew)
	})
}

func TestMemoryStore_InvalidateDestroys(t *testing.T) {
	s := newTestStore(t)

	cookies := roundTrip(t, s, nil, func(r *http.Request, w http.ResponseWriter) {
		sess, _ := s.Get(r, DefaultCookieName)
		Authenticate(sess, domain.User{Name: "Ann"})
		require.NoError(t, sess.Save(r, w))
	})
	require.Equal(t, 1, s.Count())

	cleared := roundTrip(t, s, cookies, func(r *http.Request, w http.ResponseWriter) {
		sess, _ := s.Get(r, DefaultCookieName)
		Invalidate(sess)
		require.NoError(t, sess.Save(r, w))
	})
	require.Len(t, cleared, 1)
	assert.Less(t, cleared[0].MaxAge, 0)
	assert.Equal(t, 0, s.Count())

	// the old token no longer resolves to a session
	roundTrip(t, s, cookies, func(r *http.Request, w http.ResponseWriter) {
		sess, _ := s.Get(r, DefaultCookieName)
		assert.True(t, sess.IsNew)
		assert.False(t, IsAuthenticated(sess))
	})
}

func TestMemoryStore_ExpiresAfterInactivity(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	cookies := roundTrip(t, s, nil, func(r *http.Request, w http.ResponseWriter) {
		sess, _ := s.Get(r, DefaultCookieName)
		Authenticate(sess, domain.User{Name: "Ann"})
		require.NoError(t, sess.Save(r, w))
	})

	// activity one day later slides the expiry
	now = now.Add(24 * time.Hour)
	cookies = roundTrip(t, s, cookies, func(r *http.Request, w http.ResponseWriter) {
		sess, _ := s.Get(r, DefaultCookieName)
		require.False(t, sess.IsNew)
		require.NoError(t, sess.Save(r, w))
	})

	now = now.Add(DefaultTTL - time.Minute)
	roundTrip(t, s, cookies, func(r *http.Request, w http.ResponseWriter) {
		sess, _ := s.Get(r, DefaultCookieName)
		assert.True(t, IsAuthenticated(sess))
	})

	now = now.Add(2 * time.Minute)
	roundTrip(t, s, cookies, func(r *http.Request, w http.ResponseWriter) {
		sess, _ := s.Get(r, DefaultCookieName)
		assert.True(t, sess.IsNew)
	})

	s.CleanExpired()
	assert.Equal(t, 0, s.Count())
}

func TestMemoryStore_RegenerateRotatesID(t *testing.T) {
	s := newTestStore(t)

	preLogin := roundTrip(t, s, nil, func(r *http.Request, w http.ResponseWriter) {
		sess, err := s.Get(r, DefaultCookieName)
		require.NoError(t, err)
		SetPendingPhone(sess, "+1555")
		require.NoError(t, sess.Save(r, w))
	})
	require.Len(t, preLogin, 1)

	var oldID string
	postLogin := roundTrip(t, s, preLogin, func(r *http.Request, w http.ResponseWriter) {
		sess, err := s.Get(r, DefaultCookieName)
		require.NoError(t, err)
		oldID = sess.ID
		s.Regenerate(sess)
		Authenticate(sess, domain.User{ID: 1, PhoneNumber: "+1555"})
		require.NoError(t, sess.Save(r, w))
		assert.NotEqual(t, oldID, sess.ID)
	})
	require.Len(t, postLogin, 1)
	assert.NotEqual(t, preLogin[0].Value, postLogin[0].Value)
	assert.Equal(t, 1, s.Count())

	// the cookie issued before login stays unauthenticated
	roundTrip(t, s, preLogin, func(r *http.Request, w http.ResponseWriter) {
		sess, err := s.Get(r, DefaultCookieName)
		require.NoError(t, err)
		assert.True(t, sess.IsNew)
		assert.False(t, IsAuthenticated(sess))
	})

	roundTrip(t, s, postLogin, func(r *http.Request, w http.ResponseWriter) {
		sess, err := s.Get(r, DefaultCookieName)
		require.NoError(t, err)
		assert.True(t, IsAuthenticated(sess))
		assert.Equal(t, "+1555", PendingPhone(sess), "values carry over to the new id")
	})
}
