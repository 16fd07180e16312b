package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/proxyharvest/internal/keywords"
)

// newKeywordsCmd creates the 'keywords' subcommand, which prints the search
// terms a run would use. It needs configuration only.
func newKeywordsCmd() *cobra.Command {
	var (
		source string
		limit  int
	)

	cmd := &cobra.Command{
		Use:         "keywords",
		Short:       "Print the search keywords for a source",
		Annotations: map[string]string{annotationNoServices: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}

			var (
				vocab    keywords.Vocabulary
				maxTerms int
			)
			switch source {
			case "github":
				vocab, maxTerms = keywords.DefaultGitHubVocabulary(), rt.cfg.GitHub.MaxKeywords
			case "platforms":
				vocab, maxTerms = keywords.DefaultPlatformVocabulary(), rt.cfg.Platforms.MaxKeywords
			default:
				return fmt.Errorf("unknown source %q (want github or platforms)", source)
			}
			if cmd.Flags().Changed("limit") {
				maxTerms = limit
			}

			for _, kw := range keywords.Generate(vocab, maxTerms) {
				fmt.Fprintln(cmd.OutOrStdout(), kw)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "platforms", "keyword set to print: github or platforms")
	cmd.Flags().IntVar(&limit, "limit", 0, "override the configured keyword cap")
	return cmd
}
