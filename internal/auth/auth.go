package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"github.com/tahcohcat/neon-voice/internal/logger"
	"github.com/tahcohcat/neon-voice/internal/web"
)

const sessionName = "neonvoice-session"

var (
	Store        *sessions.CookieStore
	passwordHash string
)

// Init sets up the cookie store. A non-empty bcrypt hash turns on the
// login gate.
func Init(secret, hash string) {
	Store = sessions.NewCookieStore([]byte(secret))
	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	passwordHash = hash
}

func LoginRequired() bool {
	return passwordHash != ""
}

// ViewID returns the view id stored in the session, minting one on the
// first request.
func ViewID(w http.ResponseWriter, r *http.Request) string {
	session, _ := Store.Get(r, sessionName)
	if id, ok := session.Values["view_id"].(string); ok && id != "" {
		return id
	}

	id := uuid.NewString()
	session.Values["view_id"] = id
	if err := session.Save(r, w); err != nil {
		logger.New().WithError(err).Warn("failed to save session")
	}
	return id
}

func LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if err := web.Render(w, "login.html", web.LoginPage{}); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	if r.Method == http.MethodPost {
		r.ParseForm()
		password := r.FormValue("password")

		if CheckPassword(password) {
			session, _ := Store.Get(r, sessionName)
			session.Values["authenticated"] = true
			session.Save(r, w)
			http.Redirect(w, r, "/", http.StatusFound)
		} else {
			w.WriteHeader(http.StatusUnauthorized)
			web.Render(w, "login.html", web.LoginPage{Error: "Invalid password"})
		}
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// CheckPassword compares password against the configured hash.
func CheckPassword(password string) bool {
	if passwordHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) == nil
}

// LogoutHandler ends the session and drops its view id. onLogout receives
// the dropped id so the caller can release the view's panel.
func LogoutHandler(onLogout func(viewID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := Store.Get(r, sessionName)
		viewID, _ := session.Values["view_id"].(string)

		session.Values["authenticated"] = false
		delete(session.Values, "view_id")
		session.Save(r, w)

		if viewID != "" && onLogout != nil {
			onLogout(viewID)
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !LoginRequired() {
			next.ServeHTTP(w, r)
			return
		}

		session, _ := Store.Get(r, sessionName)
		if ok, _ := session.Values["authenticated"].(bool); !ok {
			if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}
