package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litreview/internal/browser"
	"github.com/pdiddy/litreview/internal/pipeline"
	"github.com/pdiddy/litreview/internal/scholar"
	"github.com/pdiddy/litreview/internal/verify"
)

var loginCmd = &cobra.Command{
	Use:   "login <project>",
	Short: "Open the search site so you can log in or pass its checks",
	Long: `Login opens Google Scholar (or, with --mirror, the configured mirror) in
a visible browser window with a confirmation button. Log in or solve the
site's challenge, then click the button. The project records the site as
verified; a verified mirror becomes the project's search source.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	store := projectStore()
	p, err := store.Load(args[0])
	if err != nil {
		return err
	}

	useMirror, _ := cmd.Flags().GetBool("mirror")
	src, url := scholar.SourceScholar, cfg.Search.ScholarURL
	opts := browser.OpenOptions{UserAgent: cfg.Browser.UserAgent}
	if useMirror {
		if cfg.Search.MirrorURL == "" {
			return errors.New("no mirror configured: set search.mirror_url or pass --mirror-url")
		}
		src, url = scholar.SourceMirror, cfg.Search.MirrorURL
		opts.Headers = scholar.MirrorHeaders(cfg.Search)
	}

	b := browser.NewRodBrowser(cfg.Browser, false, logger)
	defer b.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Opening %s; click the confirmation button when done.\n", url)
	err = verify.Login(cmd.Context(), b, url, opts, verify.Options{Timeout: cfg.Search.VerificationTimeout})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	pipeline.MarkVerified(p, src)
	if err := store.Save(p); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Verified %s for project %q\n", src, p.Name)
	return nil
}

func init() {
	loginCmd.Flags().Bool("mirror", false, "log in to the mirror site instead of Google Scholar")
	loginCmd.Flags().String("mirror-url", "", "search endpoint of the Scholar mirror")
	rootCmd.AddCommand(loginCmd)
}
