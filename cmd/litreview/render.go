package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"

	"github.com/pdiddy/litreview/internal/review"
	"github.com/pdiddy/litreview/pkg/types"
)

// printMarkdown writes md to w, rendered for the terminal when render is
// set. Rendering failures fall back to the raw text.
func printMarkdown(w io.Writer, md string, render bool) error {
	if render {
		out, err := renderMarkdown(md)
		if err == nil {
			_, err = io.WriteString(w, out)
			return err
		}
		logger.Debug().Err(err).Msg("markdown rendering unavailable")
	}
	_, err := fmt.Fprintln(w, md)
	return err
}

func renderMarkdown(md string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

func writeBibTeX(path string, records []types.LiteratureRecord) error {
	refs := review.References(records)
	if err := os.WriteFile(path, []byte(review.BibTeX(refs)), 0o644); err != nil {
		return fmt.Errorf("writing BibTeX: %w", err)
	}
	return nil
}

func writeCSL(path string, records []types.LiteratureRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := review.WriteCSL(review.References(records), f); err != nil {
		f.Close()
		return fmt.Errorf("writing CSL: %w", err)
	}
	return f.Close()
}
