package server

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/legit-games/eveauth/envelope"
	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/metrics"
	"github.com/legit-games/eveauth/models"
)

const ctxApplication = "application"

// maxSignedBody bounds the body read for signature verification.
const maxSignedBody = 1 << 20

// SignatureMiddleware verifies the X-Service/Date/X-Signature envelope of a
// relying-party call and signs 2xx answers with the application's server key.
// Every verification failure is answered with the same bare bad-request.
func (s *Server) SignatureMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		app, body, err := s.verifyRequest(c)
		if err != nil {
			metrics.SignatureFailures.Inc()
			logging.Ctx(ctx).Warn().Err(err).Str("service", c.GetHeader(envelope.HeaderService)).Msg("signature rejected")
			c.AbortWithStatusJSON(http.StatusBadRequest, errors.Response{Reason: errors.ErrBadRequest.Error()})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(ctxApplication, app)

		orig := c.Writer
		w := &bufferedWriter{ResponseWriter: orig, status: http.StatusOK}
		c.Writer = w
		c.Next()
		c.Writer = orig

		if w.status >= 200 && w.status < 300 {
			if err := s.signResponse(orig.Header(), app, envelope.RequestURL(c.Request), w.buf.Bytes()); err != nil {
				logging.Ctx(ctx).Error().Err(err).Str("application", app.ID).Msg("signing response")
				orig.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		orig.WriteHeader(w.status)
		if _, err := orig.Write(w.buf.Bytes()); err != nil {
			logging.Ctx(ctx).Debug().Err(err).Msg("writing signed response")
		}
	}
}

func (s *Server) verifyRequest(c *gin.Context) (*models.Application, []byte, error) {
	appID := c.GetHeader(envelope.HeaderService)
	if appID == "" {
		return nil, nil, errors.WithMessage(errors.ErrBadRequest, "missing "+envelope.HeaderService)
	}
	app, err := s.Stores.Applications.Get(c.Request.Context(), appID)
	if err != nil {
		return nil, nil, errors.WithMessage(errors.ErrBadRequest, err.Error())
	}
	pub, err := envelope.DecodePublicKey(app.PublicKey)
	if err != nil {
		return nil, nil, errors.WithMessage(errors.ErrBadRequest, "application public key: "+err.Error())
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSignedBody))
	if err != nil {
		return nil, nil, errors.WithMessage(errors.ErrBadRequest, err.Error())
	}
	err = s.Verifier.VerifyRequest(pub, c.GetHeader(envelope.HeaderDate), envelope.RequestURL(c.Request), body, c.GetHeader(envelope.HeaderSignature))
	if err != nil {
		return nil, nil, err
	}
	return app, body, nil
}

func (s *Server) signResponse(h http.Header, app *models.Application, url string, body []byte) error {
	key, err := envelope.DecodePrivateKey(app.PrivateKey)
	if err != nil {
		return err
	}
	date := envelope.FormatDate(s.now())
	sig, err := envelope.Sign(key, envelope.ResponseCanonical(app.ID, date, url, body))
	if err != nil {
		return err
	}
	h.Set(envelope.HeaderDate, date)
	h.Set(envelope.HeaderSignature, sig)
	return nil
}

// application returns the verified caller of a signed route.
func application(c *gin.Context) *models.Application {
	return c.MustGet(ctxApplication).(*models.Application)
}

// bufferedWriter holds the handler's answer until it has been signed.
type bufferedWriter struct {
	gin.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *bufferedWriter) WriteString(s string) (int, error) { return w.buf.WriteString(s) }

func (w *bufferedWriter) Status() int { return w.status }

func (w *bufferedWriter) Size() int { return w.buf.Len() }

func (w *bufferedWriter) Written() bool { return w.buf.Len() > 0 }
