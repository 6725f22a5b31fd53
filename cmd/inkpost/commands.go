package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alphabot-ai/inkpost/internal/client"
)

func newRegisterCmd() *cobra.Command {
	var name, email, url, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Example: `  inkpost register --name Ada --email ada@example.com
  inkpost register --name Ada --email ada@example.com --url https://blog.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = promptPassword(os.Stdin, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			c := newClient(cfg, url)
			ident, err := c.Register(name, email, password)
			if errors.Is(err, client.ErrAlreadyRegistered) {
				return fmt.Errorf("%s is already registered - run 'inkpost login --email %s'", email, email)
			}
			if err != nil {
				return err
			}
			cfg.rememberSession(c, ident)
			if err := saveCLIConfig(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Registered '%s' (account %d)\n", ident.Name, ident.ID)
			if ident.IsAdmin {
				fmt.Fprintln(out, "  You are the administrator of this blog.")
			}
			fmt.Fprintf(out, "✓ Logged in (expires %s)\n", cfg.TokenExp)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&email, "email", "", "e-mail address (required)")
	cmd.Flags().StringVar(&url, "url", "", "server URL (default from config, then "+defaultServerURL+")")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var email, url, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			if email == "" {
				email = cfg.Email
			}
			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				if password, err = promptPassword(os.Stdin, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			c := newClient(cfg, url)
			c.Token = ""
			ident, err := c.Login(email, password)
			if err != nil {
				if client.StatusOf(err) == 401 {
					return errors.New("invalid e-mail or password")
				}
				return err
			}
			cfg.rememberSession(c, ident)
			if err := saveCLIConfig(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as '%s' (expires %s)\n", ident.Name, cfg.TokenExp)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "e-mail address (default: last used)")
	cmd.Flags().StringVar(&url, "url", "", "server URL")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			if cfg.Token != "" {
				c := client.New(cfg.BaseURL)
				c.Token = cfg.Token
				if err := c.Logout(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: server logout failed: %v\n", err)
				}
			}
			cfg.forgetSession()
			if err := saveCLIConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
}

func newReadCmd() *cobra.Command {
	var postID int64
	var url string
	cmd := &cobra.Command{
		Use:     "read",
		Aliases: []string{"list"},
		Short:   "List posts, or show one post with its comments",
		Example: `  inkpost read
  inkpost read --post 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			c := newClient(cfg, url)
			out := cmd.OutOrStdout()

			if postID != 0 {
				post, comments, err := c.GetPost(postID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%s\n", post.Title)
				fmt.Fprintf(out, "  %s\n", post.Subtitle)
				fmt.Fprintf(out, "  Posted by %s on %s | #%d\n", post.AuthorName, post.Date, post.ID)
				fmt.Fprintf(out, "  Image: %s\n\n", post.ImgURL)
				fmt.Fprintf(out, "%s\n", post.Body)
				if len(comments) > 0 {
					fmt.Fprintf(out, "\n  --- Comments (%d) ---\n", len(comments))
					for _, cm := range comments {
						fmt.Fprintf(out, "  [%d] %s, %s: %s\n", cm.ID, cm.AuthorName, humanize.Time(cm.CreatedAt), cm.Text)
					}
				}
				return nil
			}

			posts, err := c.ListPosts()
			if err != nil {
				return err
			}
			if len(posts) == 0 {
				fmt.Fprintln(out, "No posts yet.")
				return nil
			}
			fmt.Fprintf(out, "\nInkpost (%s)\n\n", c.BaseURL)
			for _, p := range posts {
				fmt.Fprintf(out, "#%d %s\n", p.ID, p.Title)
				fmt.Fprintf(out, "   %s | by %s on %s\n\n", p.Subtitle, p.AuthorName, p.Date)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&postID, "post", 0, "show a single post with comments")
	cmd.Flags().StringVar(&url, "url", "", "server URL")
	return cmd
}

type postFlags struct {
	title, subtitle, imgURL, body, bodyFile string
}

func (f *postFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "post title")
	cmd.Flags().StringVar(&f.subtitle, "subtitle", "", "post subtitle")
	cmd.Flags().StringVar(&f.imgURL, "img-url", "", "cover image URL")
	cmd.Flags().StringVar(&f.body, "body", "", "post body (HTML)")
	cmd.Flags().StringVar(&f.bodyFile, "body-file", "", "read the post body from a file ('-' for stdin)")
}

func (f *postFlags) input() (client.PostInput, error) {
	body := f.body
	if f.bodyFile != "" {
		var data []byte
		var err error
		if f.bodyFile == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(f.bodyFile)
		}
		if err != nil {
			return client.PostInput{}, fmt.Errorf("read body: %w", err)
		}
		body = string(data)
	}
	return client.PostInput{Title: f.title, Subtitle: f.subtitle, ImgURL: f.imgURL, Body: body}, nil
}

func newPostCmd() *cobra.Command {
	var f postFlags
	cmd := &cobra.Command{
		Use:     "post",
		Short:   "Publish a new post (administrator only)",
		Example: `  inkpost post --title "Hello" --subtitle "First post" --img-url https://example.com/a.jpg --body "<p>Hi</p>"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := loadAuthenticatedClient()
			if err != nil {
				return err
			}
			in, err := f.input()
			if err != nil {
				return err
			}
			post, err := c.CreatePost(in)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Published #%d: %s\n", post.ID, post.Title)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newEditCmd() *cobra.Command {
	var f postFlags
	var id int64
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit a post (administrator only)",
		Long:  "Edit a post. Fields that are not given keep their current value.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := loadAuthenticatedClient()
			if err != nil {
				return err
			}
			current, _, err := c.GetPost(id)
			if err != nil {
				return explain(err)
			}
			in, err := f.input()
			if err != nil {
				return err
			}
			in = mergePostInput(*current, in)
			post, err := c.EditPost(id, in)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated #%d: %s\n", post.ID, post.Title)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "post ID (required)")
	_ = cmd.MarkFlagRequired("id")
	f.register(cmd)
	return cmd
}

func mergePostInput(current client.Post, in client.PostInput) client.PostInput {
	if in.Title == "" {
		in.Title = current.Title
	}
	if in.Subtitle == "" {
		in.Subtitle = current.Subtitle
	}
	if in.ImgURL == "" {
		in.ImgURL = current.ImgURL
	}
	if in.Body == "" {
		in.Body = current.Body
	}
	return in
}

func newDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:     "delete",
		Aliases: []string{"rm"},
		Short:   "Delete a post and its comments (administrator only)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := loadAuthenticatedClient()
			if err != nil {
				return err
			}
			if err := c.DeletePost(id); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted #%d\n", id)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "post ID (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newCommentCmd() *cobra.Command {
	var postID int64
	var text string
	cmd := &cobra.Command{
		Use:     "comment",
		Short:   "Comment on a post",
		Example: `  inkpost comment --post 3 --text "Great read!"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := loadAuthenticatedClient()
			if err != nil {
				return err
			}
			comment, err := c.CreateComment(postID, text)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Comment %d added to post #%d\n", comment.ID, postID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&postID, "post", 0, "post ID (required)")
	cmd.Flags().StringVar(&text, "text", "", "comment text (required)")
	_ = cmd.MarkFlagRequired("post")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"whoami"},
		Short:   "Show the stored server and session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server:  %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "Config:  %s\n", cliConfigPath())
			if cfg.Email != "" {
				role := "reader"
				if cfg.IsAdmin {
					role = "administrator"
				}
				fmt.Fprintf(out, "Account: %s <%s> (%s)\n", cfg.Name, cfg.Email, role)
			}
			switch exp, ok := cfg.tokenExpiry(); {
			case cfg.Token == "":
				fmt.Fprintln(out, "Session: not logged in")
			case !ok:
				fmt.Fprintln(out, "Session: expired - run 'inkpost login'")
			default:
				fmt.Fprintf(out, "Session: valid, expires %s\n", humanize.Time(exp))
			}
			return nil
		},
	}
}

// explain turns common API failures into actionable messages.
func explain(err error) error {
	switch client.StatusOf(err) {
	case 401:
		return fmt.Errorf("%w - run 'inkpost login'", err)
	case 403:
		return fmt.Errorf("%w - only the blog administrator can do that", err)
	default:
		return err
	}
}
