package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/cheti/core"
)

func TestOrdering_Bind(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []core.DBOrdering
	}{
		{name: "no param", query: ""},
		{name: "empty param", query: "?ordering="},
		{name: "single field", query: "?ordering=issued_number", want: []core.DBOrdering{{Field: "issued_number", Ascending: true}}},
		{
			name:  "descending and spaces",
			query: "?ordering=%20-Issued_Number%20,%20Participant_ID%20",
			want: []core.DBOrdering{
				{Field: "issued_number", Ascending: false},
				{Field: "participant_id", Ascending: true},
			},
		},
		{name: "blank entries", query: "?ordering=,-,%20,title", want: []core.DBOrdering{{Field: "title", Ascending: true}}},
		{name: "space after dash", query: "?ordering=-%20title", want: []core.DBOrdering{{Field: "title", Ascending: false}}},
		{name: "duplicate keeps first", query: "?ordering=-title,TITLE", want: []core.DBOrdering{{Field: "title", Ascending: false}}},
		{
			name:  "repeated params",
			query: "?ordering=title&ordering=-issue_date",
			want: []core.DBOrdering{
				{Field: "title", Ascending: true},
				{Field: "issue_date", Ascending: false},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/certificates"+tt.query, nil)
			ctx := echo.New().NewContext(req, httptest.NewRecorder())

			ord := new(Ordering)
			ord.Bind(ctx)
			assert.Equal(t, tt.want, ord.Orderings)
		})
	}
}

func TestOrdering_BindFiltersToAllowedColumns(t *testing.T) {
	allowed := map[string]string{"issued_number": "issued_number", "title": "title"}
	req := httptest.NewRequest(http.MethodGet, "/certificates?ordering=-ISSUED_NUMBER,password,Title", nil)
	ctx := echo.New().NewContext(req, httptest.NewRecorder())

	ord := new(Ordering)
	ord.Bind(ctx)
	assert.Equal(t, []core.DBOrdering{
		{Field: "issued_number", Ascending: false},
		{Field: "title", Ascending: true},
	}, core.FilterOrderings(ord.Orderings, allowed))
}
