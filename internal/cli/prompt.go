package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atinyakov/ato/internal/models"
	"github.com/atinyakov/ato/internal/tui"
)

var errNoInput = errors.New("no input: pass a title or answer the prompts")

// promptCreateInput asks for the fields of a new item line by line.
func promptCreateInput(r io.Reader, w io.Writer) (models.CreateInput, error) {
	scanner := bufio.NewScanner(r)
	ask := func(prompt string) (string, bool) {
		fmt.Fprint(w, prompt)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	title, ok := ask("Title: ")
	if !ok {
		if err := scanner.Err(); err != nil {
			return models.CreateInput{}, fmt.Errorf("read title: %w", err)
		}
		return models.CreateInput{}, errNoInput
	}
	memo, _ := ask("Memo (optional): ")
	labels, _ := ask("Labels (comma-separated, optional): ")

	return models.CreateInput{
		Title:  title,
		Memo:   memo,
		Labels: tui.ParseLabels(labels),
	}, nil
}
