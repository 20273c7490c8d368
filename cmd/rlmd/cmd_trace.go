package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rlm-systems/rlm-runtime/internal/trace"
)

var (
	traceInput  string
	traceFormat string
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Render a reasoning-trace graph",
	Long: `Reads a reasoning-trace graph previously exported as NetworkX JSON
(--input) and re-renders it in the requested format: dot, mermaid,
networkx_json, or html.`,
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().StringVar(&traceInput, "input", "", "Path to a NetworkX-JSON trace export (required)")
	traceCmd.Flags().StringVar(&traceFormat, "format", "dot", "Output format: dot, mermaid, networkx_json, html")
	traceCmd.MarkFlagRequired("input")
}

func runTrace(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(traceInput)
	if err != nil {
		return fmt.Errorf("reading trace input: %w", err)
	}

	g, err := trace.Import(data)
	if err != nil {
		return fmt.Errorf("importing trace: %w", err)
	}

	switch traceFormat {
	case "dot":
		fmt.Println(g.ExportDOT())
	case "mermaid":
		fmt.Println(g.ExportMermaid())
	case "html":
		fmt.Println(g.ExportHTML(trace.DefaultHTMLPreset()))
	case "networkx_json":
		out, err := g.ExportNetworkXJSON()
		if err != nil {
			return fmt.Errorf("exporting networkx json: %w", err)
		}
		fmt.Println(string(out))
	default:
		return fmt.Errorf("unknown format %q: want dot, mermaid, networkx_json, or html", traceFormat)
	}
	return nil
}
