/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	textFlag    string
	mediaFlags  []string
	linkFlag    string
	targetsFlag []string
	configFlag  string
	dryRun      bool
	verbose     bool
)

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syndicate [text]",
		Short: "Publish to many social networks at once",
		Long: "syndicate fans one post out to every configured platform (twitter, mastodon, " +
			"bluesky, instagram, facebook, threads, linkedin, tiktok, youtube, pinterest, " +
			"reddit, discord, slack, telegram) and reports one result per target.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
		Example: `  syndicate --text "hello world" --media ./shot.png
  syndicate "Ship it!" --target twitter --target mastodon
  syndicate --text "new release" --media https://example.com/demo.mp4 --target instagram
  echo "Release shipped" | syndicate`,
	}

	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable verbose logging")
	cmd.Flags().StringVarP(&textFlag, "text", "m", "", "Text to post")
	cmd.Flags().StringSliceVar(&mediaFlags, "media", nil, "Media to attach (URL or local file, repeatable)")
	cmd.Flags().StringVar(&linkFlag, "link", "", "Link to include with the post")
	cmd.Flags().StringSliceVarP(&targetsFlag, "target", "t", nil, "Targets to post to (default: all configured)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print actions without posting")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(newStatsCommand())
	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logutil.SetVerbose(verbose)

	text, err := resolveText(cmd, args)
	if err != nil {
		return err
	}

	req := syndicate.Request{
		Text: text,
		Link: strings.TrimSpace(linkFlag),
	}
	for _, media := range mediaFlags {
		if media = strings.TrimSpace(media); media != "" {
			req.Media = append(req.Media, syndicate.MediaRef(media))
		}
	}
	if req.Text == "" && req.Link == "" && len(req.Media) == 0 {
		return errors.New("nothing to post: provide text, media, or a link")
	}

	dispatcher, err := buildDispatcher(configFlag)
	if err != nil {
		return err
	}
	if len(dispatcher.Names()) == 0 {
		return errors.New("no platforms configured")
	}

	targets := normalizeTargets(targetsFlag)

	if dryRun {
		return printDryRun(cmd.OutOrStdout(), dispatcher, req, targets)
	}

	results := dispatcher.Dispatch(ctx, req, targets...)
	if len(results) == 0 {
		return errors.New("no targets matched the configured platforms")
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, result := range results {
		if result.Success {
			fmt.Fprintf(out, "posted to %s (id %s)\n", result.Platform, result.PostID)
			continue
		}
		failed++
		fmt.Fprintf(out, "failed on %s: %v\n", result.Platform, result.Err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(results))
	}
	return nil
}

func resolveText(cmd *cobra.Command, args []string) (string, error) {
	var text string

	if textFlag != "" {
		text = textFlag
	}

	if len(args) > 0 {
		if text != "" {
			return "", errors.New("provide the text either as an argument or with --text, not both")
		}
		text = strings.Join(args, " ")
	}

	if text != "" {
		return strings.TrimSpace(text), nil
	}

	stdin := cmd.InOrStdin()
	if file, ok := stdin.(*os.File); ok {
		if !term.IsTerminal(int(file.Fd())) {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return "", fmt.Errorf("read stdin: %w", err)
			}
			text = strings.TrimSpace(string(data))
		}
	}

	return text, nil
}

func normalizeTargets(values []string) []string {
	result := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" || raw == "all" {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		result = append(result, raw)
	}
	return result
}

func printDryRun(out io.Writer, dispatcher *syndicate.Dispatcher, req syndicate.Request, targets []string) error {
	if len(targets) == 0 {
		targets = dispatcher.Names()
	}
	for _, target := range targets {
		if _, ok := dispatcher.Adapter(target); !ok {
			continue
		}
		fmt.Fprintf(out, "[dry-run] would post to %s: %q\n", target, req.Text)
	}
	for _, media := range req.Media {
		fmt.Fprintf(out, "[dry-run] media: %s (%s)\n", media, media.Kind())
	}
	if req.Link != "" {
		fmt.Fprintf(out, "[dry-run] link: %s\n", req.Link)
	}
	return nil
}

func init() {
	// A .env beside the binary keeps local setups out of the shell profile.
	_ = godotenv.Load()
}
