package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"webhelp-server/src/license"
)

const (
	// licenseKeyParam is the query parameter carrying a candidate key.
	licenseKeyParam = "licenseKey"

	// licenseSessionKey holds the fingerprint of the key that verified the
	// session.
	licenseSessionKey = "license"
)

// licenseGate lets a request through when its session is already verified or
// when it carries a valid licenseKey, in which case the session is marked
// verified. Anything else gets a 401 and never reaches next.
//
// Sessions are only saved on a grant, so rejected clients leave no state
// behind.
func licenseGate(ctx appContext) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := hlog.FromRequest(r)

			sess, err := ctx.sessions.Get(r, ctx.config.CookieName)
			if err != nil {
				// Tampered, expired or unreadable cookies count as no session.
				logger.Debug().Err(err).Msg("ignoring unusable session")
			}
			if sess == nil {
				logger.Error().Msg("session store returned no session")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if fp, ok := sess.Values[licenseSessionKey].(string); ok && fp != "" {
				ctx.metrics.observe(decisionSession)
				logger.Debug().Str("event", "session").Msg("session is established")
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug().Str("event", "checking").Msg("verifying license key")

			// A missing parameter reads as "", which never verifies.
			key := r.URL.Query().Get(licenseKeyParam)
			if !ctx.licenses.Verify(key) {
				ctx.metrics.observe(decisionDenied)
				logger.Info().Str("event", "denied").Str("path", r.URL.Path).Msg("license check failed")
				writeUnauthorized(w)
				return
			}

			sess.Values[licenseSessionKey] = license.Fingerprint(key)
			if err := sess.Save(r, w); err != nil {
				logger.Error().Err(err).Msg("failed to save session")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			ctx.metrics.observe(decisionGranted)
			logger.Info().Str("event", "granted").Str("path", r.URL.Path).Msg("license accepted")
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte("Unauthorized"))
}

// accessLog logs the path without its query so license keys stay out of the
// logs.
func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request completed")
}
