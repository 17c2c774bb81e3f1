package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:; img-src 'self' data:")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Role    Role   `json:"role,omitempty"`
	Message string `json:"message"`
}

type authStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	Role          Role   `json:"role,omitempty"`
}

func handleLogin(cfg *Config, users *userStore, sessions *sessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		var req loginRequest

		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, loginResponse{Message: "Malformed request body"})
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				writeJSON(w, http.StatusBadRequest, loginResponse{Message: "Malformed request body"})
				return
			}
			req.Username = r.PostFormValue("username")
			req.Password = r.PostFormValue("password")
		}

		if req.Username == "" || req.Password == "" {
			writeJSON(w, http.StatusBadRequest, loginResponse{Message: "Username and password are required"})
			return
		}

		role, ok := users.lookup(req.Username, req.Password)
		if !ok {
			logf(cfg, "AUTH: Rejected login for %q from %s", req.Username, realIP(r))
			writeJSON(w, http.StatusUnauthorized, loginResponse{Message: "Invalid username or password"})
			return
		}

		token := sessions.create(strings.ToLower(req.Username), role)
		sessions.setCookie(cfg, w, token)

		logf(cfg, "AUTH: Login for %q (%s) from %s", req.Username, role, realIP(r))
		writeJSON(w, http.StatusOK, loginResponse{Success: true, Role: role, Message: "Login successful"})
	}
}

func handleLogout(cfg *Config, sessions *sessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			sessions.destroy(cookie.Value)
		}
		clearCookie(w)

		writeJSON(w, http.StatusOK, loginResponse{Success: true, Message: "Logged out successfully"})
	}
}

func handleAuthStatus(cfg *Config, sessions *sessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		session, ok := sessions.fromRequest(r)
		if !ok {
			writeJSON(w, http.StatusOK, authStatusResponse{})
			return
		}

		writeJSON(w, http.StatusOK, authStatusResponse{
			Authenticated: true,
			Username:      session.username,
			Role:          session.role,
		})
	}
}

// serveRoot routes an authenticated browser to the page for its role
// and everyone else to the login page.
func serveRoot(cfg *Config, sessions *sessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		session, ok := sessions.fromRequest(r)
		if !ok {
			http.Redirect(w, r, cfg.prefix+"/login", http.StatusFound)
			return
		}

		if session.role.hostPrivileged() {
			http.Redirect(w, r, cfg.prefix+"/host", http.StatusFound)
			return
		}
		http.Redirect(w, r, cfg.prefix+"/player", http.StatusFound)
	}
}

// requireRole gates a page behind a logged-in session holding one of
// the allowed roles. Missing session redirects to login; wrong role is
// a 403.
func requireRole(cfg *Config, sessions *sessionStore, next httprouter.Handle, allowed ...Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		session, ok := sessions.fromRequest(r)
		if !ok {
			http.Redirect(w, r, cfg.prefix+"/login", http.StatusFound)
			return
		}

		for _, role := range allowed {
			if session.role == role {
				next(w, r, p)
				return
			}
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		http.Error(w, "Access denied: Insufficient permissions", http.StatusForbidden)
	}
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("family100 v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}

// newRouter wires every route; split out from ServePage so tests can
// drive the full HTTP surface through httptest.
func newRouter(cfg *Config, users *userStore, sessions *sessionStore, hub *Hub, errs chan error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveRoot(cfg, sessions))

	mux.GET(cfg.prefix+"/login", servePageFile(cfg, "login.html", errs))
	mux.POST(cfg.prefix+"/login", handleLogin(cfg, users, sessions))
	mux.POST(cfg.prefix+"/logout", handleLogout(cfg, sessions))
	mux.GET(cfg.prefix+"/auth-status", handleAuthStatus(cfg, sessions))

	mux.GET(cfg.prefix+"/host", requireRole(cfg, sessions, servePageFile(cfg, "host.html", errs), RoleAdmin, RoleHost))
	mux.GET(cfg.prefix+"/family", requireRole(cfg, sessions, servePageFile(cfg, "family.html", errs), RoleAdmin, RoleHost))
	mux.GET(cfg.prefix+"/player", requireRole(cfg, sessions, servePageFile(cfg, "player.html", errs), RoleAdmin, RoleHost, RolePlayer))

	mux.GET(cfg.prefix+"/assets/*asset", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerFamilyGame(cfg, hub, mux)

	return mux
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	initLogger(cfg)

	logf(cfg, "START: family100 v%s", releaseVersion)

	catalog, err := loadCatalog(cfg.questions)
	if err != nil {
		return err
	}

	users := newUserStore(cfg)
	sessions := newSessionStore(cfg.sessionTimeout)
	hub := newHub(cfg, users, catalog)

	errs := make(chan error, 64)
	go func() {
		for err := range errs {
			logger.Error().Err(err).Msg("handler write failed")
		}
	}()

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux := newRouter(cfg, users, sessions, hub, errs)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	go func() {
		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("%s | ERROR: %v\n", time.Now().Format(logDate), err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
