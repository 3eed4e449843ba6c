package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/somesha/core"
)

func Test_parseOrdering(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []core.DBOrdering
	}{
		{name: "none", query: ""},
		{name: "empty", query: "?ordering="},
		{name: "single", query: "?ordering=name", want: []core.DBOrdering{{Field: "name", Ascending: true}}},
		{
			name:  "mixed directions",
			query: "?ordering=-createdAt,%2Bname,%20email%20",
			want: []core.DBOrdering{
				{Field: "createdAt", Ascending: false},
				{Field: "name", Ascending: true},
				{Field: "email", Ascending: true},
			},
		},
		{
			name:  "repeated params and duplicates",
			query: "?ordering=-name&ordering=name,,-&ordering=city",
			want: []core.DBOrdering{
				{Field: "name", Ascending: false},
				{Field: "city", Ascending: true},
			},
		},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/students"+tt.query, nil), httptest.NewRecorder())
			assert.Equal(t, tt.want, parseOrdering(ctx))
		})
	}
}
