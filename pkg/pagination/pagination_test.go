package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/patients"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	cases := map[string]Params{
		"":                      {Limit: DefaultLimit},
		"?limit=50&offset=10":   {Limit: 50, Offset: 10},
		"?limit=500":            {Limit: MaxLimit},
		"?offset=-5":            {Limit: DefaultLimit},
		"?limit=abc&offset=xyz": {Limit: DefaultLimit},
		"?limit=0":              {Limit: DefaultLimit},
	}
	for q, want := range cases {
		assert.Equal(t, want, paramsFor(q), "query %q", q)
	}
}

func TestNewResponse_SubmissionPage(t *testing.T) {
	subs := []string{"s1", "s2", "s3"}

	r := NewResponse(subs, 7, Params{Limit: 3, Offset: 3})
	assert.Equal(t, 7, r.Total)
	assert.Equal(t, 3, r.Offset)
	assert.True(t, r.HasMore)

	last := NewResponse(subs[:1], 7, Params{Limit: 3, Offset: 6})
	assert.False(t, last.HasMore)
}

func TestParams_HasNext(t *testing.T) {
	p := Params{Limit: 10}
	assert.True(t, p.HasNext(11))
	assert.False(t, p.HasNext(10))
	assert.False(t, p.HasNext(0))
	assert.False(t, Params{Limit: 10, Offset: 30}.HasNext(25))
}
