package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	salt    = []byte("leads-aladdin.core.user.token_gen")
	nowFunc = time.Now // mockable

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(usr.ID, 10)))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (int64, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(idBytes), 10, 64)
}

// makeToken generates a password reset token for a given User.
func makeToken(usr User, secret string) string {
	return _makeTokenWithTimestamp(usr, _numDaysSince2001(nowFunc()), secret)
}

// verifyToken checks that a password reset token for a given User is valid.
// The token is invalidated as soon as the password changes or the user logs in.
func verifyToken(usr User, token, secret string, timeout time.Duration) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}
	tsB32 := parts[0]

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(tsB32)
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	newToken := _makeTokenWithTimestamp(usr, ts, secret)
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if (_numDaysSince2001(nowFunc()) - ts) > int(timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func _makeTokenWithTimestamp(usr User, ts int, secret string) string {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	return fmt.Sprintf("%s-%s", tsB32, _sign(_hashValue(usr, ts), secret))
}

func _numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func _sign(val []byte, secret string) string {
	key := sha256.Sum256(append(append([]byte{}, salt...), secret...))
	h := hmac.New(sha256.New, key[:])
	_, _ = h.Write(val) // hash.Hash never returns an error
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func _hashValue(usr User, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(strconv.FormatInt(usr.ID, 10))
	val.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		val.WriteString(usr.LastLogin.UTC().Format(time.RFC3339Nano))
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
