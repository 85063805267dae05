package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"notemesh/application/services"
	"notemesh/domain/notebook"
	"notemesh/infrastructure/di"
	pkgerrors "notemesh/pkg/errors"
)

func notebookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notebook",
		Aliases: []string{"nb"},
		Short:   "Manage notebooks",
	}
	cmd.AddCommand(notebookListCmd(a), notebookNewCmd(a), notebookDeleteCmd(a))
	return cmd
}

func notebookListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List notebooks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				list, err := c.NoteService.ListNotebooks(ctx, a.flags.User)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, list, func() {
					banner(w, "notebooks")
					if len(list) == 0 {
						fmt.Fprintln(w, "  No notebooks yet. Create one with `notemesh notebook new <title>`.")
						return
					}
					for _, nb := range list {
						fmt.Fprintf(w, "  %s  %s %s\n", subtle.Sprint(shortID(nb.ID)), nb.Icon, nb.Title)
					}
				})
			})
		},
	}
}

func notebookNewCmd(a *app) *cobra.Command {
	var in services.CreateNotebookInput
	cmd := &cobra.Command{
		Use:   "new <title...>",
		Short: "Create a notebook",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Title = strings.Join(args, " ")
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				nb, err := c.NoteService.CreateNotebook(ctx, a.flags.User, in)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, nb, func() {
					good.Fprintf(w, "  Created notebook %q %s\n", nb.Title, subtle.Sprint(nb.ID))
				})
			})
		},
	}
	cmd.Flags().StringVar(&in.Color, "color", "", "Notebook color")
	cmd.Flags().StringVar(&in.Icon, "icon", "", "Notebook icon")
	return cmd
}

func notebookDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <notebook>",
		Aliases: []string{"rm"},
		Short:   "Delete a notebook and all its notes",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				nb, err := resolveNotebook(ctx, c, a.flags.User, args[0])
				if err != nil {
					return err
				}
				if err := c.NoteService.DeleteNotebook(ctx, a.flags.User, nb.ID); err != nil {
					return err
				}
				good.Fprintf(cmd.OutOrStdout(), "  Deleted notebook %q\n", nb.Title)
				return nil
			})
		},
	}
}

func noteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "note",
		Aliases: []string{"n"},
		Short:   "Write, read and improve notes",
	}
	cmd.AddCommand(noteListCmd(a), noteAddCmd(a), noteShowCmd(a), noteImproveCmd(a))
	return cmd
}

func noteListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list <notebook>",
		Aliases: []string{"ls"},
		Short:   "List the notes of a notebook",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				nb, err := resolveNotebook(ctx, c, a.flags.User, args[0])
				if err != nil {
					return err
				}
				notes, err := c.NoteService.ListNotes(ctx, a.flags.User, nb.ID)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, notes, func() {
					banner(w, nb.Title)
					if len(notes) == 0 {
						fmt.Fprintln(w, "  No notes yet.")
						return
					}
					for _, n := range notes {
						fmt.Fprintf(w, "  %s  %s\n", subtle.Sprint(n.ID), firstLine(n.Content))
					}
				})
			})
		},
	}
}

func noteAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <notebook> <content...>",
		Short: "Add a note to a notebook",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				nb, err := resolveNotebook(ctx, c, a.flags.User, args[0])
				if err != nil {
					return err
				}
				note, err := c.NoteService.CreateNote(ctx, a.flags.User, nb.ID, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, note, func() {
					good.Fprintf(w, "  Added note %s\n", subtle.Sprint(note.ID))
				})
			})
		},
	}
}

func noteShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <note>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				note, err := c.NoteService.OpenNote(ctx, a.flags.User, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, note, func() { printNote(w, note) })
			})
		},
	}
}

func noteImproveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "improve <note>",
		Short: "Rewrite a note for clarity with AI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				note, err := c.NoteService.ImproveNote(ctx, a.flags.User, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, note, func() { printNote(w, note) })
			})
		},
	}
}

func printNote(w io.Writer, note *notebook.Note) {
	fmt.Fprintf(w, "\n%s\n", note.Content)
	if note.FormattedContent != "" && note.FormattedContent != note.Content {
		brand.Fprintln(w, "\n  Improved")
		fmt.Fprintf(w, "%s\n", note.FormattedContent)
	}
	subtle.Fprintf(w, "\n  updated %s\n", note.UpdatedAt.Format("2006-01-02 15:04"))
}

// resolveNotebook matches an id, a unique id prefix or an exact title
func resolveNotebook(ctx context.Context, c *di.Container, userID, ref string) (*notebook.Notebook, error) {
	list, err := c.NoteService.ListNotebooks(ctx, userID)
	if err != nil {
		return nil, err
	}
	var matches []notebook.Notebook
	for _, nb := range list {
		if nb.ID == ref || strings.EqualFold(nb.Title, ref) {
			return &nb, nil
		}
		if strings.HasPrefix(nb.ID, ref) {
			matches = append(matches, nb)
		}
	}
	switch len(matches) {
	case 0:
		return nil, pkgerrors.NewNotFoundError("notebook").WithDetail("id", ref)
	case 1:
		return &matches[0], nil
	default:
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("notebook prefix %q is ambiguous", ref))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if len(line) > 72 {
		return line[:69] + "..."
	}
	return line
}
