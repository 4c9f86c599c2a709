// Package admin holds the operator commands run with MODE=admin.
package admin

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"example.com/postfeed/internal/cache"
	"example.com/postfeed/internal/logger"
	"example.com/postfeed/internal/models"
	"example.com/postfeed/internal/store"
)

var logg = logger.New()

var (
	ErrUsage       = errors.New("usage error")
	ErrInvalidFlag = errors.New("invalid flag value")
)

const (
	maxTitleLength = 200
	maxSlugLength  = 30
)

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

const usage = `usage: admin <command> [flags]

commands:
  group-create -title T -slug S [-description D]
  group-delete -slug S
  post-delete  -id N
  user-delete  -username U
  cache-clear`

// Run executes one admin command. Output goes to out.
func Run(ctx context.Context, st store.StoreInterface, pages *cache.PageCache, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)

	switch cmd {
	case "group-create":
		title := fs.String("title", "", "group title")
		slug := fs.String("slug", "", "group slug")
		description := fs.String("description", "", "group description")
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		g := models.Group{
			Title:       strings.TrimSpace(*title),
			Slug:        strings.TrimSpace(*slug),
			Description: strings.TrimSpace(*description),
		}
		if err := validateGroup(g); err != nil {
			return err
		}
		if err := st.CreateGroup(ctx, &g); err != nil {
			return fmt.Errorf("create group %q: %w", g.Slug, err)
		}
		logg.Info("admin", "Group created", "group_id", g.ID, "slug", g.Slug)
		fmt.Fprintf(out, "created group %d /group/%s/\n", g.ID, g.Slug)

	case "group-delete":
		slug := fs.String("slug", "", "group slug")
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		if *slug == "" {
			return fmt.Errorf("%w: -slug is required", ErrInvalidFlag)
		}
		if err := st.DeleteGroup(ctx, *slug); err != nil {
			return fmt.Errorf("delete group %q: %w", *slug, err)
		}
		logg.Info("admin", "Group deleted", "slug", *slug)
		fmt.Fprintf(out, "deleted group %s\n", *slug)

	case "post-delete":
		id := fs.Int64("id", 0, "post id")
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		if *id < 1 {
			return fmt.Errorf("%w: -id must be positive", ErrInvalidFlag)
		}
		if err := st.DeletePost(ctx, *id); err != nil {
			return fmt.Errorf("delete post %d: %w", *id, err)
		}
		logg.Info("admin", "Post deleted", "post_id", *id)
		fmt.Fprintf(out, "deleted post %d\n", *id)

	case "user-delete":
		username := fs.String("username", "", "username")
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		if *username == "" {
			return fmt.Errorf("%w: -username is required", ErrInvalidFlag)
		}
		u, err := st.GetUserByUsername(ctx, *username)
		if err != nil {
			return fmt.Errorf("find user %q: %w", *username, err)
		}
		if err := st.DeleteUser(ctx, u.ID); err != nil {
			return fmt.Errorf("delete user %q: %w", *username, err)
		}
		logg.Info("admin", "User deleted", "user_id", u.ID)
		fmt.Fprintf(out, "deleted user %s\n", u.Username)

	case "cache-clear":
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		if err := pages.Clear(ctx, cache.IndexPageKey); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		logg.Info("admin", "Page cache cleared", "key", cache.IndexPageKey)
		fmt.Fprintln(out, "cleared page cache")

	default:
		fmt.Fprintln(out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
	return nil
}

func validateGroup(g models.Group) error {
	switch {
	case g.Title == "":
		return fmt.Errorf("%w: -title is required", ErrInvalidFlag)
	case utf8.RuneCountInString(g.Title) > maxTitleLength:
		return fmt.Errorf("%w: -title longer than %d characters", ErrInvalidFlag, maxTitleLength)
	case !slugPattern.MatchString(g.Slug):
		return fmt.Errorf("%w: -slug may contain only letters, numbers, hyphens and underscores", ErrInvalidFlag)
	case len(g.Slug) > maxSlugLength:
		return fmt.Errorf("%w: -slug longer than %d characters", ErrInvalidFlag, maxSlugLength)
	}
	return nil
}
