package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap parameters keep the hashing tests fast.
var testParams = HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestJWTRoundTrip(t *testing.T) {
	require.NoError(t, Init(time.Hour))

	userID := uuid.New()
	token, err := CreateJWT(userID)
	require.NoError(t, err)

	got, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestJWTRejectsForeignKey(t *testing.T) {
	require.NoError(t, Init(0))
	token, err := CreateJWT(uuid.New())
	require.NoError(t, err)

	// new keys invalidate every token signed with the old ones
	require.NoError(t, Init(0))
	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	require.NoError(t, Init(-time.Minute))
	token, err := CreateJWT(uuid.New())
	require.NoError(t, err)

	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestUserIDFromRequest(t *testing.T) {
	require.NoError(t, Init(time.Hour))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := UserIDFromRequest(r)
	assert.ErrorIs(t, err, ErrNoSession)

	userID := uuid.New()
	token, err := CreateJWT(userID)
	require.NoError(t, err)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	got, err := UserIDFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestSessionCookie(t *testing.T) {
	require.NoError(t, Init(time.Hour))

	w := httptest.NewRecorder()
	SetSessionCookie(w, "tok")
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	w = httptest.NewRecorder()
	ClearSessionCookie(w)
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2", testParams)
	require.NoError(t, err)

	ok, err := CheckPassword("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword("hunter3", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHashMalformed(t *testing.T) {
	_, err := CheckPassword("x", "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = CheckPassword("x", "$argon2id$v=1$m=1,t=1,p=1$AAAA$AAAA")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}
