package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"notemesh/domain/canvas"
	"notemesh/infrastructure/di"
	pkgerrors "notemesh/pkg/errors"
)

func canvasCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "canvas",
		Aliases: []string{"c"},
		Short:   "List, show, create and delete canvases",
	}
	cmd.AddCommand(canvasListCmd(a), canvasShowCmd(a), canvasNewCmd(a), canvasDeleteCmd(a))
	return cmd
}

func canvasListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List canvases",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				list, err := c.CanvasService.ListCanvases(ctx, a.flags.User)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, list, func() {
					banner(w, "canvases")
					if len(list) == 0 {
						fmt.Fprintln(w, "  No canvases yet. `notemesh chat` creates the default one.")
						return
					}
					for _, cv := range list {
						fmt.Fprintf(w, "  %s  %-30s %s\n", subtle.Sprint(shortID(cv.ID)), cv.Title,
							subtle.Sprint(cv.UpdatedAt.Format("2006-01-02 15:04")))
					}
				})
			})
		},
	}
}

func canvasShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [canvas]",
		Short: "Show a canvas grouped by cluster (default canvas if omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				id, err := resolveCanvas(ctx, c, a.flags.User, firstArg(args))
				if err != nil {
					return err
				}
				view, err := c.CanvasService.Open(ctx, a.flags.User, id)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, view, func() { printView(w, view) })
			})
		},
	}
}

func canvasNewCmd(a *app) *cobra.Command {
	var notebookID string
	cmd := &cobra.Command{
		Use:   "new [title]",
		Short: "Create a canvas",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				created, err := c.CanvasService.CreateCanvas(ctx, a.flags.User, firstArg(args), notebookID)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, created, func() {
					good.Fprintf(w, "  Created %q %s\n", created.Title, subtle.Sprint(created.ID))
				})
			})
		},
	}
	cmd.Flags().StringVar(&notebookID, "notebook", "", "Notebook the canvas belongs to")
	return cmd
}

func canvasDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <canvas>",
		Aliases: []string{"rm"},
		Short:   "Delete a canvas",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				id, err := resolveCanvas(ctx, c, a.flags.User, args[0])
				if err != nil {
					return err
				}
				if err := c.CanvasService.DeleteCanvas(ctx, a.flags.User, id); err != nil {
					return err
				}
				good.Fprintf(cmd.OutOrStdout(), "  Deleted %s\n", shortID(id))
				return nil
			})
		},
	}
}

func chatCmd(a *app) *cobra.Command {
	var canvasRef string
	cmd := &cobra.Command{
		Use:   "chat <message...>",
		Short: "Add a thought; #words become tags",
		Example: `  notemesh chat "buy milk #home #errands"
  notemesh chat --canvas 3f2a ship the release #work`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				id, err := openCanvas(ctx, c, a.flags.User, canvasRef)
				if err != nil {
					return err
				}
				node, err := c.CanvasService.SubmitChat(ctx, a.flags.User, id, strings.Join(args, " "))
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, node, func() {
					good.Fprint(w, "  Added")
					printNode(w, *node)
				})
			})
		},
	}
	cmd.Flags().StringVar(&canvasRef, "canvas", "", "Canvas id or prefix (default canvas if omitted)")
	return cmd
}

func clusterCmd(a *app) *cobra.Command {
	var canvasRef string
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Group the canvas nodes with AI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				id, err := openCanvas(ctx, c, a.flags.User, canvasRef)
				if err != nil {
					return err
				}
				out, err := c.CanvasService.AutoCluster(ctx, a.flags.User, id)
				if err != nil {
					return describe(err)
				}
				w := cmd.OutOrStdout()
				return a.emit(w, out, func() {
					printView(w, out.View)
					good.Fprintf(w, "  Applied %d clusters, %d new edges\n", len(out.Clusters), out.GeneratedEdges)
					if out.DroppedNodeIDs > 0 {
						warn.Fprintf(w, "  Ignored %d unknown node ids in the proposal\n", out.DroppedNodeIDs)
					}
					if out.Usage != nil {
						subtle.Fprintf(w, "  %d of %d clustering runs used today\n", out.Usage.Count, out.Usage.Limit)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&canvasRef, "canvas", "", "Canvas id or prefix (default canvas if omitted)")
	return cmd
}

func clearCmd(a *app) *cobra.Command {
	var canvasRef string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every node, edge and cluster from a canvas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *di.Container) error {
				id, err := openCanvas(ctx, c, a.flags.User, canvasRef)
				if err != nil {
					return err
				}
				view, err := c.CanvasService.Clear(ctx, a.flags.User, id)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return a.emit(w, view, func() { good.Fprintln(w, "  Canvas cleared") })
			})
		},
	}
	cmd.Flags().StringVar(&canvasRef, "canvas", "", "Canvas id or prefix (default canvas if omitted)")
	return cmd
}

func parseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <message...>",
		Short: "Show how a chat message splits into text and tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, tags, ok := canvas.ParseChatMessage(strings.Join(args, " "))
			w := cmd.OutOrStdout()
			result := struct {
				Text  string   `json:"text"`
				Tags  []string `json:"tags"`
				Valid bool     `json:"valid"`
			}{text, tags, ok}
			return a.emit(w, result, func() {
				fmt.Fprintf(w, "  text:  %q\n", text)
				fmt.Fprintf(w, "  tags:  %s\n", formatTags(tags))
				if !ok {
					warn.Fprintln(w, "  A message needs text besides tags.")
				}
			})
		},
	}
}

// openCanvas resolves ref, falling back to the default canvas
func openCanvas(ctx context.Context, c *di.Container, userID, ref string) (string, error) {
	id, err := resolveCanvas(ctx, c, userID, ref)
	if err != nil {
		return "", err
	}
	view, err := c.CanvasService.Open(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return view.Canvas.ID, nil
}

// resolveCanvas accepts a full id or a unique prefix. An empty ref stays
// empty, which the service reads as the default canvas.
func resolveCanvas(ctx context.Context, c *di.Container, userID, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	list, err := c.CanvasService.ListCanvases(ctx, userID)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, cv := range list {
		if cv.ID == ref {
			return cv.ID, nil
		}
		if strings.HasPrefix(cv.ID, ref) {
			matches = append(matches, cv.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", pkgerrors.NewNotFoundError("canvas").WithDetail("id", ref)
	case 1:
		return matches[0], nil
	default:
		return "", pkgerrors.NewValidationError(fmt.Sprintf("canvas prefix %q is ambiguous", ref))
	}
}

// describe turns well-known service errors into user-facing messages
func describe(err error) error {
	appErr := pkgerrors.GetAppError(err)
	if appErr == nil {
		return err
	}
	switch appErr.Code {
	case pkgerrors.CodeNotEnoughNodes:
		return fmt.Errorf("add at least two thoughts before clustering")
	case pkgerrors.CodeDailyClusterCap:
		return fmt.Errorf("daily clustering limit reached, try again tomorrow")
	case pkgerrors.CodeStaleResponse:
		return fmt.Errorf("another clustering run finished first")
	}
	return err
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
