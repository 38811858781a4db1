package auth

import (
	"net/http"
	"time"
)

// CookieAttrs are the attributes of a cookie set or deleted.
type CookieAttrs struct {
	MaxAge   time.Duration
	Domain   string
	Path     string
	SameSite http.SameSite
	HttpOnly bool
	Secure   bool
}

// CookieReader reads the cookies of the current request.
type CookieReader interface {
	// Cookie returns the value of the named cookie.
	Cookie(name string) (string, bool)
}

// CookieWriter sets and deletes the cookies of the current response.
type CookieWriter interface {
	SetCookie(name, value string, attrs CookieAttrs)

	// DeleteCookie sets the named cookie to an empty value which expires
	// immediately.
	DeleteCookie(name string, attrs CookieAttrs)
}

// CookieJar reads the cookies of a request and writes those of its
// response.
type CookieJar interface {
	CookieReader
	CookieWriter
}

// HTTPCookies is the CookieJar of a net/http request and its response.
// Cookies must be written before the response's header is.
type HTTPCookies struct {
	w   http.ResponseWriter
	req *http.Request
}

// NewHTTPCookies returns the CookieJar of req and w.
func NewHTTPCookies(w http.ResponseWriter, req *http.Request) *HTTPCookies {
	return &HTTPCookies{w: w, req: req}
}

// Cookie implements CookieReader.
func (c *HTTPCookies) Cookie(name string) (string, bool) {
	if c.req == nil {
		return "", false
	}
	ck, err := c.req.Cookie(name)
	if err != nil {
		return "", false
	}
	return ck.Value, true
}

// SetCookie implements CookieWriter.
func (c *HTTPCookies) SetCookie(name, value string, attrs CookieAttrs) {
	ck := newCookie(name, value, attrs)
	ck.MaxAge = int(attrs.MaxAge / time.Second)
	if ck.MaxAge > 0 {
		ck.Expires = time.Now().Add(attrs.MaxAge)
	}
	http.SetCookie(c.w, ck)
}

// DeleteCookie implements CookieWriter.
func (c *HTTPCookies) DeleteCookie(name string, attrs CookieAttrs) {
	ck := newCookie(name, "", attrs)
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	http.SetCookie(c.w, ck)
}

func newCookie(name, value string, attrs CookieAttrs) *http.Cookie {
	path := attrs.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   attrs.Domain,
		SameSite: attrs.SameSite,
		HttpOnly: attrs.HttpOnly,
		Secure:   attrs.Secure,
	}
}
