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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blacktop/newpost/internal/api"
	"github.com/blacktop/newpost/internal/config"
	"github.com/blacktop/newpost/internal/logutil"
	"github.com/blacktop/newpost/internal/postform"
	"github.com/blacktop/newpost/internal/session"
	"github.com/blacktop/newpost/internal/share"
	"github.com/blacktop/newpost/internal/share/bluesky"
	"github.com/blacktop/newpost/internal/share/mastodon"
	"github.com/blacktop/newpost/internal/share/twitter"
	"github.com/blacktop/newpost/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// ErrLoginRequired is returned when no session user is available.
var ErrLoginRequired = errors.New("login required")

var (
	titleFlag   string
	contentFlag string
	imagePath   string
	imageAlt    string
	sessionPath string
	baseURLFlag string
	shareFlag   []string
	interactive bool
	dryRun      bool
	verbose     bool
)

var announcers = map[string]share.Constructor{
	"bluesky":  bluesky.New,
	"mastodon": mastodon.New,
	"twitter":  twitter.New,
}

const defaultAltText = "Image attached via newpost"

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newpost",
		Short: "Create a post with a title, content and image",
		Long: "newpost submits a new post to the backend as the logged-in user. " +
			"Fill the form interactively or pass --title, --content and --image.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
		Example: `  newpost
  newpost --title "Hello" --content "First post" --image ./shot.png
  echo "Release notes" | newpost --title "v1.2" --image ./logo.png --share all`,
	}

	cmd.Flags().StringVarP(&titleFlag, "title", "t", "", "Post title")
	cmd.Flags().StringVarP(&contentFlag, "content", "c", "", "Post content (read from stdin when omitted)")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Path to the image to upload")
	cmd.Flags().StringVar(&imageAlt, "alt-text", "", "Alternative text used when sharing the image")
	cmd.Flags().StringVar(&sessionPath, "session", "", "Session file written by the login flow (default $NEWPOST_SESSION_FILE)")
	cmd.Flags().StringVar(&baseURLFlag, "base-url", "", "Backend base URL (default $NEWPOST_BASE_URL)")
	cmd.Flags().StringSliceVar(&shareFlag, "share", nil, "Announce the new post on twitter, mastodon, bluesky, or all")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Fill the form in the terminal (default when a field is missing and stdin is a terminal)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the request instead of sending it")
	cmd.Flags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logutil.SetVerbose(verbose)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	targets, err := share.NormalizeTargets(shareFlag)
	if err != nil {
		return err
	}

	client, err := api.New(api.Options{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Cookie:  cfg.SessionCookie,
		Tracing: cfg.Tracing,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	user, err := session.Load(cfg.SessionFile)
	if err != nil {
		return err
	}

	var sharers []share.Announcer
	switch {
	case len(targets) == 0:
	case dryRun:
		sharers = share.Previews(targets)
	default:
		sharers, err = share.Build(ctx, targets, announcers)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	nav := &navigator{ctx: ctx, client: client, out: out, simulate: dryRun}
	var submitter postform.Submitter = client
	if dryRun {
		submitter = dryRunSubmitter{out: out}
	}

	opts := postform.Options{
		Store:     session.NewStore(),
		Navigator: nav,
		Alerter:   alerter{out: cmd.ErrOrStderr()},
		Submitter: submitter,
		OnCreated: func(ctx context.Context, c postform.Created) {
			announce(ctx, out, sharers, c, client.URL(postform.HomePath))
		},
	}

	content, err := resolveContent(cmd)
	if err != nil {
		return err
	}

	if useInteractive(cmd, content) {
		return runInteractive(ctx, cmd, opts, nav, user, content)
	}

	form := postform.New(opts)
	if !form.Mount(user) {
		return alertedError{fmt.Errorf("%w: sign in at %s", ErrLoginRequired, client.URL(postform.LoginPath))}
	}

	if strings.TrimSpace(imagePath) != "" {
		img, err := postform.LoadImage(imagePath)
		if err != nil {
			return err
		}
		form.SelectImage(img)
	}
	form.SetFields(postform.Values{TitleText: titleFlag, ContentText: content})

	if err := form.Submit(ctx); err != nil {
		return alertedError{err}
	}
	fmt.Fprintln(out, tui.SuccessStyle.Render("post created"))
	return nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if baseURLFlag != "" {
		cfg.BaseURL = baseURLFlag
	}
	if sessionPath != "" {
		cfg.SessionFile = sessionPath
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// resolveContent prefers --content and falls back to piped stdin.
func resolveContent(cmd *cobra.Command) (string, error) {
	if contentFlag != "" {
		return contentFlag, nil
	}

	stdin := cmd.InOrStdin()
	if file, ok := stdin.(*os.File); ok {
		info, err := file.Stat()
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if (info.Mode() & os.ModeCharDevice) != 0 {
			return "", nil
		}
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func useInteractive(cmd *cobra.Command, content string) bool {
	if cmd.Flags().Changed("interactive") {
		return interactive
	}
	if titleFlag != "" && content != "" && imagePath != "" {
		return false
	}
	file, ok := cmd.InOrStdin().(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func runInteractive(ctx context.Context, cmd *cobra.Command, opts postform.Options, nav *navigator, user *session.User, content string) error {
	bridge := &tui.Bridge{Next: nav}
	opts.Navigator = bridge
	opts.Alerter = bridge

	// sharing writes to out, so it waits until the form has left the screen
	var created *postform.Created
	onCreated := opts.OnCreated
	opts.OnCreated = func(_ context.Context, c postform.Created) { created = &c }

	form := postform.New(opts)
	if !form.Mount(user) {
		return alertedError{fmt.Errorf("%w: sign in at %s", ErrLoginRequired, nav.client.URL(postform.LoginPath))}
	}

	out := cmd.OutOrStdout()
	nav.setOutput(io.Discard)
	logutil.SetOutput(io.Discard)
	defer logutil.SetOutput(os.Stderr)

	model := tui.New(ctx, form, bridge, tui.Options{
		Title:     titleFlag,
		Content:   content,
		ImagePath: imagePath,
	})
	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(out),
	)
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("run form: %w", err)
	}

	nav.setOutput(out)
	if m, ok := final.(tui.Model); !ok || !m.Created() {
		fmt.Fprintln(out, "no post created")
		return nil
	}
	fmt.Fprintf(out, "-> %s\n", nav.client.URL(nav.destination()))
	fmt.Fprintln(out, tui.SuccessStyle.Render("post created"))
	if created != nil && onCreated != nil {
		onCreated(ctx, *created)
	}
	return nil
}

func announce(ctx context.Context, out io.Writer, sharers []share.Announcer, c postform.Created, link string) {
	if len(sharers) == 0 {
		return
	}

	a := share.Announcement{
		Title: c.Payload.Title,
		Body:  c.Payload.Content,
		Link:  link,
		Image: &share.Media{
			Name:        c.Payload.Image.Name,
			ContentType: c.Payload.Image.ContentType,
			Data:        c.Payload.Image.Data,
		},
		Alt: strings.TrimSpace(imageAlt),
	}
	if a.Alt == "" {
		a.Alt = defaultAltText
	}

	if err := share.Dispatch(ctx, sharers, a, out, dryRun); err != nil {
		logutil.Warnf("post created but sharing failed: %v", err)
	}
}
