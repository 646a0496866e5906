package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/trellis/am"
	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
	"github.com/teranos/trellis/progress"
	"github.com/teranos/trellis/storage"
)

// GraphCmd inspects stored graphs
var GraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect or reset a stored graph",
	Long: `Read a user's graph straight from the configured storage backend.

These commands bypass the sync server. A graph that is open on a running
server is overwritten by that server's next operation.

Examples:
  trellis graph show --user u1 --graph g1
  trellis graph show --user u1 --graph g1 --format yaml
  trellis graph reset --user u1 --graph g1`,
}

var graphShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a stored graph",
	RunE:  runGraphShow,
}

var graphResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear task progress now, regardless of the reset schedule",
	RunE:  runGraphReset,
}

var (
	graphUserID string
	graphID     string
	graphFormat string
)

func init() {
	for _, c := range []*cobra.Command{graphShowCmd, graphResetCmd} {
		c.Flags().StringVar(&graphUserID, "user", "", "User id")
		c.Flags().StringVar(&graphID, "graph", "", "Graph id")
		c.MarkFlagRequired("user")
		c.MarkFlagRequired("graph")
	}
	graphShowCmd.Flags().StringVar(&graphFormat, "format", "tree", "Output format: tree, json, yaml")

	GraphCmd.AddCommand(graphShowCmd)
	GraphCmd.AddCommand(graphResetCmd)
}

func runGraphShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	store, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	g, err := storage.LoadGraph(cmd.Context(), store, storage.Key(graphUserID, graphID))
	if err != nil {
		return err
	}
	return writeGraph(cmd.OutOrStdout(), g, graphFormat)
}

// writeGraph renders g in one of the supported formats.
func writeGraph(w io.Writer, g *graph.Graph, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(g)

	case "yaml":
		data, err := yaml.Marshal(g)
		if err != nil {
			return errors.Wrap(err, "failed to marshal graph to YAML")
		}
		_, err = w.Write(data)
		return err

	case "tree":
		if len(g.Nodes) == 0 {
			fmt.Fprintln(w, "(empty graph)")
			return nil
		}
		root := putils.TreeFromLeveledList(treeItems(g))
		root.Text = fmt.Sprintf("version %d · %d edges", g.Version, len(g.Edges))
		out, err := pterm.DefaultTree.WithRoot(root).Srender()
		if err != nil {
			return err
		}
		fmt.Fprint(w, out)
		return nil

	default:
		return errors.Newf("unsupported format: %s (supported: tree, json, yaml)", format)
	}
}

// treeItems flattens g into pterm's leveled list, one item per node.
func treeItems(g *graph.Graph) pterm.LeveledList {
	var items pterm.LeveledList
	graph.Walk(g.Nodes, func(n, _ *graph.Node, depth int) bool {
		items = append(items, pterm.LeveledListItem{Level: depth, Text: nodeLabel(n)})
		return true
	})
	return items
}

func nodeLabel(n *graph.Node) string {
	label := fmt.Sprintf("%s [%s/%s] %3.0f%%", n.Title, n.NodeType, n.NodeSubtype, n.CalculatedProgress*100)
	if n.IsTask() && n.RequiredCompletions > 1 {
		label += fmt.Sprintf(" (%d/%d)", n.CurrentCompletions, n.RequiredCompletions)
	}
	if n.IsDone {
		label += " ✓"
	}
	return label
}

func runGraphReset(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	store, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	key := storage.Key(graphUserID, graphID)
	g, err := storage.LoadGraph(cmd.Context(), store, key)
	if err != nil {
		return err
	}

	cleared := progress.NewResetPolicy(cfg.Location()).Apply(g, time.Now())
	g.Version++
	if err := storage.SaveGraph(cmd.Context(), store, key, g); err != nil {
		return err
	}
	pterm.Success.Printfln("Cleared progress on %d tasks (version %d)", cleared, g.Version)
	return nil
}
