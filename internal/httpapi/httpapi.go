// Package httpapi exposes the accounting read models over HTTP. Every route
// except login and the health probe requires a bearer token.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gympro/backend/internal/accounting"
	"gympro/backend/internal/cache"
	"gympro/backend/internal/domain"
	"gympro/backend/internal/period"
	"gympro/backend/internal/xid"
)

type API struct {
	service       *accounting.Service
	auth          *AuthManager
	reports       cache.ReportCache
	reportTTL     time.Duration
	allowedOrigin string
	loginLimiter  *attemptLimiter
	log           *logrus.Logger
}

func New(svc *accounting.Service, auth *AuthManager, reports cache.ReportCache, reportTTL time.Duration, allowedOrigin string, log *logrus.Logger) *API {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &API{
		service:       svc,
		auth:          auth,
		reports:       reports,
		reportTTL:     reportTTL,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		log:           log,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/invoices", a.requireAuth(a.handleInvoices, "staff", "admin"))
	mux.HandleFunc("/api/v1/reports/z", a.requireAuth(a.handleZReport, "staff", "admin"))
	mux.HandleFunc("/api/v1/reports/z/export", a.requireAuth(a.handleZReportExport, "admin"))

	return a.withMiddleware(mux)
}

type actorContextKey struct{}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleInvoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	limit := parsePositiveLimit(q.Get("limit"), domain.DefaultSearchLimit, 500)
	invoices, err := a.service.SearchInvoices(r.Context(), q.Get("q"), q.Get("status"), q.Get("method"), limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

// reportCacheKey ties a cache entry to the resolved window, not the raw query
// input, so "weekly" anchored anywhere in a week hits the same entry.
func reportCacheKey(periodRaw, anchorRaw string, now time.Time) string {
	kind := period.ParseKind(periodRaw)
	win := period.Resolve(kind, period.ParseAnchor(anchorRaw, now))
	return fmt.Sprintf("z:%s:%s", win.Kind, win.Start.Format("2006-01-02"))
}

func (a *API) handleZReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	key := reportCacheKey(q.Get("period"), q.Get("anchor"), time.Now().UTC())
	if cached, ok, err := a.reports.Get(r.Context(), key); err == nil && ok {
		writeJSON(w, http.StatusOK, map[string]any{"report": cached})
		return
	} else if err != nil {
		a.log.WithError(err).Warn("report cache read failed")
	}

	report, err := a.service.ZReportFor(r.Context(), q.Get("period"), q.Get("anchor"))
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := a.reports.Set(r.Context(), key, &report, a.reportTTL); err != nil {
		a.log.WithError(err).Warn("report cache write failed")
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleZReportExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	if format == "" {
		format = "csv"
	}

	// Render into a buffer first so export failures still produce a clean
	// JSON error instead of a truncated download.
	var buf bytes.Buffer
	var contentType string
	var ext string
	switch format {
	case "csv":
		contentType = "text/csv"
		ext = "csv"
		if err := a.service.ExportZCSV(r.Context(), q.Get("period"), q.Get("anchor"), &buf); err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		ext = "xlsx"
		if err := a.service.ExportZXLSX(r.Context(), q.Get("period"), q.Get("anchor"), &buf); err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
	default:
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported export format %q", format))
		return
	}

	kind := period.ParseKind(q.Get("period"))
	anchor := period.ParseAnchor(q.Get("anchor"), time.Now().UTC())
	filename := fmt.Sprintf("z_report_%s_%s.%s", strings.ToLower(string(kind)), anchor.Format("2006-01-02"), ext)

	if actor, ok := actorFromContext(r.Context()); ok {
		a.log.WithFields(logrus.Fields{
			"actor":  actor.Username,
			"file":   filename,
			"format": format,
		}).Info("z-report exported")
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.log.WithFields(logrus.Fields{
			"request_id": xid.New("req"),
			"method":     r.Method,
			"path":       r.URL.Path,
			"elapsed":    time.Since(startedAt).String(),
		}).Info("request handled")
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses return a generic message so database and internal errors
	// never reach the client; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		a.log.WithError(err).Errorf("internal error (status %d)", status)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
