package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParseClampsQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", DefaultPage, DefaultLimit},
		{"?page=3&limit=10", 3, 10},
		{"?page=0&limit=0", DefaultPage, DefaultLimit},
		{"?page=abc&limit=-5", DefaultPage, DefaultLimit},
		{"?limit=500", DefaultPage, MaxLimit},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/api/invoices"+tc.query, nil)

			p := Parse(c)
			assert.Equal(t, tc.wantPage, p.Page)
			assert.Equal(t, tc.wantLimit, p.Limit)
		})
	}
}

func TestOffsetAndPageCount(t *testing.T) {
	p := New(3, 20)
	assert.Equal(t, 40, p.Offset())

	page := p.Of([]string{"a"}, 41)
	assert.Equal(t, int64(3), page.TotalPages)
	assert.Equal(t, int64(41), page.Total)
	assert.Equal(t, 3, page.Page)

	assert.Equal(t, int64(0), New(1, 20).Of(nil, 0).TotalPages)
}
