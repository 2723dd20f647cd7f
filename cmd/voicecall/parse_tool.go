package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chadiek/voicecall/internal/tools"
)

var parseToolCmd = &cobra.Command{
	Use:   "parse-tool [text]",
	Short: "Show how a model output would be resolved: speech or tool invocation",
	Long: `Reads model output from the argument or stdin and reports whether it is a
tool invocation for a registered tool.

Examples:
  voicecall parse-tool '{"tool":"notes","data":{"text":"call Bob"}}' --tools tools.json
  echo 'Hello there' | voicecall parse-tool`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParseTool,
}

var parseToolsFile string

func init() {
	rootCmd.AddCommand(parseToolCmd)
	parseToolCmd.Flags().StringVar(&parseToolsFile, "tools", "", "Tools file (TOOLS_FILE)")
}

func runParseTool(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		text = string(b)
	}
	path := cfg.ToolsFile
	if cmd.Flags().Changed("tools") {
		path = parseToolsFile
	}
	var reg *tools.Registry
	if path != "" {
		r, err := tools.LoadRegistry(path)
		if err != nil {
			return err
		}
		reg = r
	}
	return describeResolution(cmd.OutOrStdout(), reg, text)
}

func describeResolution(w io.Writer, reg *tools.Registry, text string) error {
	inv, ok := tools.ParseInvocation(text)
	if !ok {
		_, err := fmt.Fprintf(w, "speech: %s\n", strings.TrimSpace(text))
		return err
	}
	data, _ := json.Marshal(inv.Data)
	if reg == nil {
		_, err := fmt.Fprintf(w, "invocation: tool=%s data=%s (no registry loaded)\n", inv.Tool, data)
		return err
	}
	tool, found := reg.Lookup(inv.Tool)
	if !found {
		_, err := fmt.Fprintf(w, "speech: unknown tool %q\n", inv.Tool)
		return err
	}
	if err := reg.Validate(inv); err != nil {
		_, werr := fmt.Fprintf(w, "speech: %v\n", err)
		return werr
	}
	_, err := fmt.Fprintf(w, "tool: %s (%s) data=%s\n", tool.Name, tool.DisplayName(), data)
	return err
}
