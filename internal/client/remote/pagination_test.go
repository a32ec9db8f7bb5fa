package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextPage(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantPage int
		wantOK   bool
	}{
		{
			name:     "next and last",
			header:   `<https://api.github.com/repos/a/b/issues?state=open&page=3>; rel="next", <https://api.github.com/repos/a/b/issues?page=5>; rel="last"`,
			wantPage: 3,
			wantOK:   true,
		},
		{
			name:   "prev only",
			header: `<https://api.github.com/repos/a/b/issues?page=1>; rel="prev"`,
		},
		{
			name: "empty",
		},
		{
			name:   "next without page param",
			header: `<https://api.github.com/repos/a/b/issues?cursor=abc>; rel="next"`,
		},
		{
			name:   "malformed target",
			header: `https://api.github.com/x?page=2; rel="next"`,
		},
		{
			name:     "next listed after prev",
			header:   `<https://x/?page=1>; rel="prev", <https://x/?page=3>; rel="next"`,
			wantPage: 3,
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, ok := NextPage(tt.header)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPage, page)
		})
	}
}
