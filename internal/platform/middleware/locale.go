package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"
)

type localeCtxKey struct{}

// LocaleKey is the echo context key holding the negotiated language.
const LocaleKey = "lang"

// Locale negotiates the response language from the lang query parameter or
// the Accept-Language header against supported, falling back to def. The
// result is stored in both the echo context and the request context.
func Locale(supported []string, def string) echo.MiddlewareFunc {
	n := NewLocaleNegotiator(supported, def)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lang := n.Determine(c.QueryParam("lang"), c.Request().Header.Get("Accept-Language"))
			c.Set(LocaleKey, lang)
			c.SetRequest(c.Request().WithContext(context.WithValue(c.Request().Context(), localeCtxKey{}, lang)))
			c.Response().Header().Set("Content-Language", lang)
			return next(c)
		}
	}
}

// LocaleNegotiator picks one of a fixed set of languages.
type LocaleNegotiator struct {
	supported []string
	matcher   language.Matcher
	def       string
}

func NewLocaleNegotiator(supported []string, def string) *LocaleNegotiator {
	var names []string
	var tags []language.Tag
	for _, s := range supported {
		tag, err := language.Parse(s)
		if err != nil {
			continue
		}
		names = append(names, strings.ToLower(s))
		tags = append(tags, tag)
	}
	n := &LocaleNegotiator{supported: names, def: def}
	if len(tags) > 0 {
		n.matcher = language.NewMatcher(tags)
	}
	return n
}

// Determine prefers an explicit query language over Accept-Language. Input
// that matches nothing supported yields the default.
func (n *LocaleNegotiator) Determine(queryLang, acceptLang string) string {
	if n.matcher == nil {
		return n.def
	}
	if queryLang != "" {
		if tag, err := language.Parse(queryLang); err == nil {
			if lang, ok := n.match(tag); ok {
				return lang
			}
		}
	}
	if acceptLang != "" {
		if tags, _, err := language.ParseAcceptLanguage(acceptLang); err == nil && len(tags) > 0 {
			if lang, ok := n.match(tags...); ok {
				return lang
			}
		}
	}
	return n.def
}

func (n *LocaleNegotiator) match(tags ...language.Tag) (string, bool) {
	_, idx, conf := n.matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return n.supported[idx], true
}

// LocaleFromContext returns the language stored by Locale, or "en".
func LocaleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(localeCtxKey{}).(string); ok && s != "" {
		return s
	}
	return "en"
}
