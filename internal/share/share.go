// Package share announces freshly created posts on social networks.
package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Media is an image attached to an announcement.
type Media struct {
	Name        string
	ContentType string
	Data        []byte
}

// Announcement is the provider-neutral message about a new post.
type Announcement struct {
	Title string
	Body  string
	Link  string
	Image *Media
	Alt   string
}

// Text renders the announcement within limit runes. The link is always kept
// whole; the body is trimmed first, then the title. A limit <= 0 means no limit.
func (a Announcement) Text(limit int) string {
	var suffix string
	if a.Link != "" {
		suffix = "\n\n" + a.Link
	}

	head := strings.TrimSpace(a.Title)
	if body := strings.TrimSpace(a.Body); body != "" {
		if head != "" {
			head += "\n\n"
		}
		head += body
	}

	if limit <= 0 {
		return head + suffix
	}
	room := limit - len([]rune(suffix))
	if room <= 0 {
		return Truncate(strings.TrimSpace(suffix), limit)
	}
	return Truncate(head, room) + suffix
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 0 {
		return ""
	}
	if len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return strings.TrimRight(string(runes[:n-1]), " \n") + "…"
}

// Announcer abstracts a social network that can publish announcements.
type Announcer interface {
	Name() string
	Announce(ctx context.Context, a Announcement) error
}

// Constructor builds an Announcer from the environment.
type Constructor func(ctx context.Context) (Announcer, error)

var allTargets = []string{"bluesky", "mastodon", "twitter"}

// NormalizeTargets lowercases, dedupes and sorts the requested targets.
// "all" selects every supported network.
func NormalizeTargets(values []string) ([]string, error) {
	result := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(strings.ToLower(part))
			if part == "" {
				continue
			}
			if part == "all" {
				return append([]string(nil), allTargets...), nil
			}
			if !supported(part) {
				return nil, fmt.Errorf("unsupported target %q", part)
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			result = append(result, part)
		}
	}

	sort.Strings(result)
	return result, nil
}

func supported(target string) bool {
	for _, t := range allTargets {
		if t == target {
			return true
		}
	}
	return false
}

// Build runs the constructor for each target and collects every failure.
func Build(ctx context.Context, targets []string, constructors map[string]Constructor) ([]Announcer, error) {
	announcers := make([]Announcer, 0, len(targets))
	var errs []error
	for _, target := range targets {
		constructor, ok := constructors[target]
		if !ok {
			errs = append(errs, fmt.Errorf("target %q is not implemented", target))
			continue
		}
		announcer, err := constructor(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		announcers = append(announcers, announcer)
	}

	if len(errs) > 0 {
		return announcers, errors.Join(errs...)
	}
	return announcers, nil
}

// Previews returns announcers that only carry the target names. They need no
// credentials and are meant for dry runs; Announce on them always fails.
func Previews(targets []string) []Announcer {
	out := make([]Announcer, 0, len(targets))
	for _, target := range targets {
		out = append(out, preview(target))
	}
	return out
}

type preview string

func (p preview) Name() string { return string(p) }

func (p preview) Announce(context.Context, Announcement) error {
	return fmt.Errorf("%s: preview cannot announce", string(p))
}

// Dispatch sends a to every announcer, continuing past failures.
func Dispatch(ctx context.Context, announcers []Announcer, a Announcement, out io.Writer, simulate bool) error {
	if simulate {
		for _, announcer := range announcers {
			fmt.Fprintf(out, "[dry-run] would announce on %s: %q\n", announcer.Name(), a.Title)
		}
		if a.Image != nil {
			fmt.Fprintf(out, "[dry-run] image: %s (alt: %q)\n", a.Image.Name, a.Alt)
		}
		return nil
	}

	var errs []error
	for _, announcer := range announcers {
		fmt.Fprintf(out, "announcing on %s...\n", announcer.Name())
		if err := announcer.Announce(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", announcer.Name(), err))
			continue
		}
		fmt.Fprintf(out, "announced on %s\n", announcer.Name())
	}

	return errors.Join(errs...)
}
