package envelope

import (
	"crypto/ecdsa"
	"net/http"
	"time"

	"github.com/legit-games/eveauth/errors"
)

// DefaultSkew is the accepted distance between the Date header and the local clock.
const DefaultSkew = 15 * time.Second

// futureTolerance absorbs sub-second drift before a Date counts as future.
const futureTolerance = time.Second

// Verifier checks the time window and signature of signed messages. Every
// failure wraps errors.ErrBadRequest; the message is for logs only.
type Verifier struct {
	Skew time.Duration
	Now  func() time.Time
}

func NewVerifier(skew time.Duration) *Verifier {
	if skew <= 0 {
		skew = DefaultSkew
	}
	return &Verifier{Skew: skew, Now: time.Now}
}

// VerifyRequest checks a request signed with RequestCanonical.
func (v *Verifier) VerifyRequest(pub *ecdsa.PublicKey, date, url string, body []byte, signature string) error {
	return v.verify(pub, date, signature, func(d string) []byte {
		return RequestCanonical(d, url, body)
	})
}

// VerifyResponse checks a response signed with ResponseCanonical.
func (v *Verifier) VerifyResponse(pub *ecdsa.PublicKey, appID, date, url string, body []byte, signature string) error {
	return v.verify(pub, date, signature, func(d string) []byte {
		return ResponseCanonical(appID, d, url, body)
	})
}

func (v *Verifier) verify(pub *ecdsa.PublicKey, date, signature string, canonical func(string) []byte) error {
	if date == "" || signature == "" {
		return errors.WithMessage(errors.ErrBadRequest, "missing signature headers")
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return errors.WithMessage(errors.ErrBadRequest, "malformed date")
	}
	now := v.now()
	if t.Sub(now) > futureTolerance {
		return errors.WithMessage(errors.ErrBadRequest, "date in the future")
	}
	if now.Sub(t) > v.skew() {
		return errors.WithMessage(errors.ErrBadRequest, "date outside window")
	}
	if Verify(pub, canonical(date), signature) {
		return nil
	}
	if Verify(pub, canonical(t.Add(-time.Second).UTC().Format(http.TimeFormat)), signature) {
		return nil
	}
	return errors.WithMessage(errors.ErrBadRequest, "signature mismatch")
}

func (v *Verifier) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

func (v *Verifier) skew() time.Duration {
	if v.Skew <= 0 {
		return DefaultSkew
	}
	return v.Skew
}

// FormatDate renders t as an HTTP Date header value.
func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
