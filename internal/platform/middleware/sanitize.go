package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	maxHeaderValueSize = 8192 // 8KB

	// Longest prompt accepted by the field-key helper.
	maxPromptRunes = 500

	// Longest single string value accepted in a JSON body. Free-text
	// answers ("describe your symptoms") are the largest legitimate values.
	maxTextValueRunes = 4000
)

var (
	// Logged, never blocked.
	sqlPatterns = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)

	// Blocked in query strings.
	scriptPatterns = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)

	// Blocked in JSON string values. Narrower than scriptPatterns since
	// answers are prose and "x=y" is ordinary text there.
	markupPatterns = regexp.MustCompile(`(?i)(<\s*/?\s*(script|iframe|object|embed)\b|javascript\s*:)`)

	langQuery = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)
)

// Query parameters that must be non-negative integers when present.
var numericParams = []string{"limit", "offset", "days"}

// Sanitize rejects malformed intake traffic with 400: path traversal, null
// bytes, header injection, script in query values, a malformed lang or
// paging parameter, an oversized field-key prompt, and markup in the string
// values of JSON request bodies (questionnaire answers, registrations,
// question text). SQL-looking query values are only logged.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			rawPath := req.URL.RawPath
			if rawPath == "" {
				rawPath = path
			}

			if containsPathTraversal(path) || containsPathTraversal(rawPath) {
				return rejectRequest(c, "Path traversal detected")
			}

			if containsNullByte(path) || containsNullByte(rawPath) {
				return rejectRequest(c, "Null byte injection detected")
			}

			for name, values := range req.Header {
				for _, v := range values {
					if len(v) > maxHeaderValueSize {
						return rejectRequest(c, "Header value exceeds maximum size: "+name)
					}
					if strings.ContainsAny(v, "\r\n") {
						return rejectRequest(c, "Header injection detected: "+name)
					}
				}
			}

			query := req.URL.Query()
			for key, values := range query {
				for _, v := range values {
					if containsNullByte(v) || containsNullByte(key) {
						return rejectRequest(c, "Null byte injection detected in query parameter")
					}

					if sqlPatterns.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", path).
							Str("remote_ip", c.RealIP()).
							Msg("potential SQL injection pattern detected in query parameter")
					}

					if scriptPatterns.MatchString(v) || scriptPatterns.MatchString(key) {
						return rejectRequest(c, "Script injection detected in query parameter")
					}
				}
			}

			if msg := checkIntakeQuery(query); msg != "" {
				return rejectRequest(c, msg)
			}

			if hasJSONBody(req) {
				msg, err := checkJSONBody(req)
				if err != nil {
					return err
				}
				if msg != "" {
					logger.Warn().
						Str("path", path).
						Str("remote_ip", c.RealIP()).
						Msg(msg)
					return rejectRequest(c, msg)
				}
			}

			return next(c)
		}
	}
}

func checkIntakeQuery(q map[string][]string) string {
	if lang, ok := q["lang"]; ok && lang[0] != "" && !langQuery.MatchString(lang[0]) {
		return "Invalid lang parameter"
	}
	if prompt, ok := q["prompt"]; ok && utf8.RuneCountInString(prompt[0]) > maxPromptRunes {
		return fmt.Sprintf("prompt exceeds %d characters", maxPromptRunes)
	}
	for _, name := range numericParams {
		v, ok := q[name]
		if !ok || v[0] == "" {
			continue
		}
		if n, err := strconv.Atoi(v[0]); err != nil || n < 0 {
			return "Invalid " + name + " parameter"
		}
	}
	return ""
}

func hasJSONBody(req *http.Request) bool {
	switch req.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	if req.Body == nil || req.Body == http.NoBody {
		return false
	}
	return strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}

// checkJSONBody reads the body, restores it for the handler and returns a
// rejection message for the first offending string value. Bodies that are
// not valid JSON pass through; binding reports those.
func checkJSONBody(req *http.Request) (string, error) {
	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return "", err
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return "", nil
	}
	return walkJSON(doc), nil
}

func walkJSON(v interface{}) string {
	switch t := v.(type) {
	case string:
		return checkTextValue(t)
	case map[string]interface{}:
		for k, child := range t {
			if msg := checkTextValue(k); msg != "" {
				return msg
			}
			if msg := walkJSON(child); msg != "" {
				return msg
			}
		}
	case []interface{}:
		for _, child := range t {
			if msg := walkJSON(child); msg != "" {
				return msg
			}
		}
	}
	return ""
}

func checkTextValue(s string) string {
	if markupPatterns.MatchString(s) {
		return "Script injection detected in request body"
	}
	if utf8.RuneCountInString(s) > maxTextValueRunes {
		return fmt.Sprintf("text value exceeds %d characters", maxTextValueRunes)
	}
	return ""
}

// containsPathTraversal checks for path traversal sequences in raw and
// percent-encoded forms.
func containsPathTraversal(s string) bool {
	if strings.Contains(s, "..") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

// containsNullByte checks for null bytes in raw and percent-encoded forms.
func containsNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

func rejectRequest(c echo.Context, reason string) error {
	return jsonError(c, http.StatusBadRequest, reason)
}

// SanitizeString strips null bytes and control characters other than \n, \r
// and \t, then trims surrounding whitespace. Used on free-text answers.
func SanitizeString(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r == '\x00' {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(b.String())
}
