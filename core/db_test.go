package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderByClause(t *testing.T) {
	allowed := map[string]string{"issued_number": "issued_number", "name": "participant_name"}

	tests := []struct {
		name      string
		orderings []DBOrdering
		want      string
	}{
		{name: "default", want: "issued_number ASC"},
		{name: "unknown only", orderings: []DBOrdering{{Field: "password"}}, want: "issued_number ASC"},
		{
			name:      "mapped",
			orderings: []DBOrdering{{Field: "Name", Ascending: true}, {Field: "issued_number"}, {Field: "x"}},
			want:      "participant_name ASC, issued_number DESC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OrderByClause(FilterOrderings(tt.orderings, allowed), "issued_number ASC"))
		})
	}
}
