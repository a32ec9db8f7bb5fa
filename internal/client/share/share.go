// Package share turns shared links and text into new items.
package share

import (
	"errors"
	"strings"

	"github.com/atinyakov/ato/internal/models"
)

// Label is attached to every shared item.
const Label = "read-later"

const titlePrefix = "Read: "

// ErrNothingShared is returned when url, title and text are all empty.
var ErrNothingShared = errors.New("nothing to share: url, title and text are empty")

// BuildInput builds the create input for a shared page. The title is the
// first non-empty of title, url and text; the memo joins url and text with
// a blank line.
func BuildInput(url, title, text string) (models.CreateInput, error) {
	url, title, text = stripControl(url), stripControl(title), stripControl(text)
	if url == "" && title == "" && text == "" {
		return models.CreateInput{}, ErrNothingShared
	}

	subject := title
	if subject == "" {
		subject = url
	}
	if subject == "" {
		subject = text
	}

	var memo []string
	for _, s := range []string{url, text} {
		if s != "" {
			memo = append(memo, s)
		}
	}

	return models.CreateInput{
		Title:  truncate(titlePrefix+subject, models.MaxTitleLength),
		Memo:   strings.Join(memo, "\n\n"),
		Labels: []string{Label},
	}, nil
}

// stripControl drops C0 control characters except tab, newline and carriage return.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
