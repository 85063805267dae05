package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"notemesh/application/services"
	"notemesh/domain/canvas"
)

var (
	brand  = color.New(color.FgHiMagenta, color.Bold)
	subtle = color.New(color.FgHiBlack)
	good   = color.New(color.FgGreen)
	warn   = color.New(color.FgYellow)
	tagged = color.New(color.FgCyan)
)

func banner(w io.Writer, title string) {
	brand.Fprintf(w, "\n  %s\n\n", title)
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = "#" + t
	}
	return tagged.Sprint(strings.Join(out, " "))
}

func printNode(w io.Writer, n canvas.Node) {
	fmt.Fprintf(w, "  %s  %s", subtle.Sprint(shortID(n.ID)), n.Data.Text)
	if tags := formatTags(n.Data.Tags); tags != "" {
		fmt.Fprintf(w, "  %s", tags)
	}
	fmt.Fprintln(w)
}

func printView(w io.Writer, view *services.CanvasView) {
	banner(w, view.Canvas.Title)
	g := view.Graph
	if len(g.Nodes) == 0 {
		fmt.Fprintln(w, "  Nothing here yet. Add a thought with `notemesh chat`.")
		return
	}

	grouped := make(map[string][]canvas.Node)
	var loose []canvas.Node
	for _, n := range g.Nodes {
		if n.Data.ClusterID == "" {
			loose = append(loose, n)
			continue
		}
		grouped[n.Data.ClusterID] = append(grouped[n.Data.ClusterID], n)
	}

	for _, c := range g.Clusters {
		members := grouped[c.ID]
		if len(members) == 0 {
			continue
		}
		brand.Fprintf(w, "  %s", c.Name)
		subtle.Fprintf(w, " (%d)\n", len(members))
		for _, n := range members {
			printNode(w, n)
		}
		fmt.Fprintln(w)
	}
	if len(loose) > 0 {
		if len(g.Clusters) > 0 {
			warn.Fprintln(w, "  Unclustered")
		}
		for _, n := range loose {
			printNode(w, n)
		}
		fmt.Fprintln(w)
	}

	manual := 0
	for _, e := range g.Edges {
		if e.IsManual() {
			manual++
		}
	}
	subtle.Fprintf(w, "  %d nodes, %d edges (%d manual), %d clusters\n",
		len(g.Nodes), len(g.Edges), manual, len(g.Clusters))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
