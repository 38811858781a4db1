package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/cap-cognito/oidc"
	"github.com/hashicorp/go-hclog"
)

// Keys of the values the Authenticator keeps in a session.
const (
	SessionCodeVerifier  = "code_verifier"
	SessionCodeChallenge = "code_challenge"
	SessionNonce         = "nonce"

	// SessionState holds the state of a pending login and, once the login
	// completes, only its custom part.
	SessionState = "state"

	// SessionClaims holds the JSON encoded claims of the access token.
	SessionClaims = "claims"

	// SessionUserInfo holds the JSON encoded claims of the id token.
	SessionUserInfo = "user_info"
)

const (
	DefaultSessionCookieName = "cognito_session"
	DefaultSessionMaxAge     = 24 * time.Hour

	// maxCookieSize is the largest cookie most browsers will keep.
	maxCookieSize = 4096

	sessionSweepInterval = time.Minute
)

// SessionStore is the key/value store of the current user's session.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// SessionManager loads the session of a request and saves it with the
// response. Save must be called before the response's header is written.
type SessionManager interface {
	Load(req *http.Request) (*Session, error)
	Save(w http.ResponseWriter, req *http.Request, s *Session) error
}

// Session is a SessionStore loaded by a SessionManager. It's safe for
// concurrent use.
type Session struct {
	mu     sync.Mutex
	id     string
	values map[string]string
	dirty  bool
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{values: map[string]string{}}
}

// ID returns the session's id, which is empty until a MemorySessions has
// saved it.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Get implements SessionStore.
func (s *Session) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set implements SessionStore.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

// Delete implements SessionStore.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Clear removes every value.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) > 0 {
		s.values = map[string]string{}
		s.dirty = true
	}
}

func (s *Session) snapshot() (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, s.dirty
}

// StoredClaims returns the claims stored under key (SessionClaims or
// SessionUserInfo) by a callback or refresh.
func StoredClaims(s SessionStore, key string) (oidc.Claims, bool, error) {
	const op = "auth.StoredClaims"
	raw, ok := s.Get(key)
	if !ok {
		return nil, false, nil
	}
	var c oidc.Claims
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, true, fmt.Errorf("%s: unable to decode %s: %w", op, key, err)
	}
	return c, true, nil
}

// MemorySessions keeps sessions in memory, keyed by a random id sent in a
// cookie. Sessions expire MaxAge after they were last saved and are lost
// when the process exits. Expired sessions are swept by Save at most once
// per minute, so it holds the sessions saved within the last MaxAge plus a
// minute. It's safe for concurrent use.
type MemorySessions struct {
	mu        sync.RWMutex
	sessions  map[string]memorySession
	nextSweep time.Time

	cookieName string
	attrs      CookieAttrs
	maxAge     time.Duration
	now        func() time.Time
	logger     hclog.Logger
}

type memorySession struct {
	values  map[string]string
	expires time.Time
}

// NewMemorySessions creates a new MemorySessions. Its cookie has the domain
// and SameSite policy of c.
//
// Supported options: WithSessionCookieName, WithSessionMaxAge, WithNow,
// WithLogger
func NewMemorySessions(c *oidc.Config, opt ...Option) (*MemorySessions, error) {
	const op = "auth.NewMemorySessions"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getSessionOpts(opt...)
	if opts.withMaxAge <= 0 {
		return nil, fmt.Errorf("%s: session max age must be positive: %w", op, oidc.ErrInvalidParameter)
	}
	return &MemorySessions{
		sessions:   map[string]memorySession{},
		cookieName: opts.withCookieName,
		attrs:      sessionCookieAttrs(c, opts.withMaxAge),
		maxAge:     opts.withMaxAge,
		now:        opts.withNow,
		logger:     opts.withLogger,
	}, nil
}

// Load implements SessionManager. A request without a live session gets a
// new empty one.
func (m *MemorySessions) Load(req *http.Request) (*Session, error) {
	s := NewSession()
	ck, err := req.Cookie(m.cookieName)
	if err != nil {
		return s, nil
	}
	m.mu.RLock()
	ms, ok := m.sessions[ck.Value]
	m.mu.RUnlock()
	if !ok {
		return s, nil
	}
	if m.now().After(ms.expires) {
		m.mu.Lock()
		delete(m.sessions, ck.Value)
		m.mu.Unlock()
		return s, nil
	}
	s.id = ck.Value
	for k, v := range ms.values {
		s.values[k] = v
	}
	return s, nil
}

// Save implements SessionManager. Unchanged sessions aren't saved and empty
// ones are removed along with their cookie.
func (m *MemorySessions) Save(w http.ResponseWriter, _ *http.Request, s *Session) error {
	const op = "MemorySessions.Save"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	}
	values, dirty := s.snapshot()
	if !dirty {
		return nil
	}
	cookies := NewHTTPCookies(w, nil)
	id := s.ID()
	if len(values) == 0 {
		if id != "" {
			m.mu.Lock()
			delete(m.sessions, id)
			m.mu.Unlock()
			cookies.DeleteCookie(m.cookieName, m.attrs)
		}
		return nil
	}
	if id == "" {
		var err error
		if id, err = oidc.NewId("s"); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		s.mu.Lock()
		s.id = id
		s.mu.Unlock()
		m.logger.Trace("new session", "session_id", id)
	}
	now := m.now()
	m.mu.Lock()
	if !now.Before(m.nextSweep) {
		m.sweep(now)
		m.nextSweep = now.Add(sessionSweepInterval)
	}
	m.sessions[id] = memorySession{values: values, expires: now.Add(m.maxAge)}
	m.mu.Unlock()
	cookies.SetCookie(m.cookieName, id, m.attrs)
	return nil
}

// sweep removes the sessions expired at now. m.mu must be held.
func (m *MemorySessions) sweep(now time.Time) {
	var n int
	for id, ms := range m.sessions {
		if now.After(ms.expires) {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		m.logger.Trace("expired sessions removed", "count", n)
	}
}

// CookieSessions keeps the whole session in a cookie, CBOR encoded and
// encrypted with a TokenCipher keyed by the config's secret key. Sessions
// which don't decrypt are replaced by new empty ones.
type CookieSessions struct {
	cipher     *oidc.TokenCipher
	cookieName string
	attrs      CookieAttrs
	maxAge     time.Duration
	now        func() time.Time
	logger     hclog.Logger
}

// cookieSession is the CBOR layout of a cookie session.
type cookieSession struct {
	Values  map[string]string `cbor:"1,keysasint,omitempty"`
	Expires int64             `cbor:"2,keysasint"`
}

// NewCookieSessions creates a new CookieSessions. The config's secret key is
// required.
//
// Supported options: WithSessionCookieName, WithSessionMaxAge, WithNow,
// WithLogger
func NewCookieSessions(c *oidc.Config, opt ...Option) (*CookieSessions, error) {
	const op = "auth.NewCookieSessions"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getSessionOpts(opt...)
	if opts.withMaxAge <= 0 {
		return nil, fmt.Errorf("%s: session max age must be positive: %w", op, oidc.ErrInvalidParameter)
	}
	cipher, err := oidc.NewTokenCipher(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &CookieSessions{
		cipher:     cipher,
		cookieName: opts.withCookieName,
		attrs:      sessionCookieAttrs(c, opts.withMaxAge),
		maxAge:     opts.withMaxAge,
		now:        opts.withNow,
		logger:     opts.withLogger,
	}, nil
}

// Load implements SessionManager.
func (m *CookieSessions) Load(req *http.Request) (*Session, error) {
	s := NewSession()
	ck, err := req.Cookie(m.cookieName)
	if err != nil || ck.Value == "" {
		return s, nil
	}
	plaintext, err := m.cipher.Decrypt(ck.Value, oidc.WithAssociatedData([]byte(m.cookieName)))
	if err != nil {
		m.logger.Debug("discarding session cookie", "error", err)
		return s, nil
	}
	var cs cookieSession
	if err := cbor.Unmarshal([]byte(plaintext), &cs); err != nil {
		m.logger.Debug("discarding undecodable session cookie", "error", err)
		return s, nil
	}
	if m.now().Unix() > cs.Expires {
		return s, nil
	}
	for k, v := range cs.Values {
		s.values[k] = v
	}
	return s, nil
}

// Save implements SessionManager.
func (m *CookieSessions) Save(w http.ResponseWriter, _ *http.Request, s *Session) error {
	const op = "CookieSessions.Save"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	}
	values, dirty := s.snapshot()
	if !dirty {
		return nil
	}
	cookies := NewHTTPCookies(w, nil)
	if len(values) == 0 {
		cookies.DeleteCookie(m.cookieName, m.attrs)
		return nil
	}
	raw, err := cbor.Marshal(cookieSession{
		Values:  values,
		Expires: m.now().Add(m.maxAge).Unix(),
	})
	if err != nil {
		return fmt.Errorf("%s: unable to encode session: %w", op, err)
	}
	sealed, err := m.cipher.Encrypt(string(raw), oidc.WithAssociatedData([]byte(m.cookieName)))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(m.cookieName)+len(sealed) > maxCookieSize {
		return fmt.Errorf("%s: %d bytes: %w", op, len(sealed), ErrSessionTooLarge)
	}
	cookies.SetCookie(m.cookieName, sealed, m.attrs)
	return nil
}

func sessionCookieAttrs(c *oidc.Config, maxAge time.Duration) CookieAttrs {
	return CookieAttrs{
		MaxAge:   maxAge,
		Domain:   c.CookieDomain,
		SameSite: c.CookieSameSite,
		HttpOnly: true,
		Secure:   true,
	}
}
