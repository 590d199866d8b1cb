package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"timerfix/internal/timerfix/styles"
)

// reportMarkdown describes a dry run as markdown.
func reportMarkdown(res *patchResult) string {
	var sb strings.Builder
	sb.WriteString("# timerfix report\n\n")
	fmt.Fprintf(&sb, "- **Input:** `%s`\n", res.Input)
	if res.Config != "" {
		fmt.Fprintf(&sb, "- **Config:** `%s`\n", res.Config)
	} else {
		sb.WriteString("- **Config:** built-in defaults\n")
	}
	sb.WriteString("\n")

	for _, rep := range res.Reports {
		fmt.Fprintf(&sb, "## %s %s\n\n", rep.Category, rep.Class)
		fmt.Fprintf(&sb, "- **Method:** `%s`\n", rep.Method)
		fmt.Fprintf(&sb, "- **Locals:** `%s`\n", rep.Vars)
		fmt.Fprintf(&sb, "- **Hook:** constant pool entry #%d\n\n", rep.Hook)

		sb.WriteString("| check | region | bytes | endif |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, r := range rep.Regions {
			check := "later ticks"
			if r.First {
				check = "first tick"
			}
			fmt.Fprintf(&sb, "| %s | %s | %d | %04x |\n", check, r.Region, r.Region.Len(), int(r.Target))
		}
		sb.WriteString("\n")
	}

	if len(res.Unsupported) > 0 {
		sb.WriteString("## Skipped\n\n")
		for _, cat := range res.Unsupported {
			fmt.Fprintf(&sb, "- `%s` needs a growing rewrite and is not applied\n", cat)
		}
	}
	return sb.String()
}

var reportCmd = &cobra.Command{
	Use:   "report <file.class|file.jar>",
	Short: "Show what patch would change without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := ResolveCwd(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd, cwd)
		if err != nil {
			return err
		}
		lg := newEngineLogger(cmd)
		defer lg.Close()

		res, err := runPatch(cfg, lg.Logger, patchOptions{In: resolvePath(cwd, args[0]), DryRun: true})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			bts, err := json.MarshalIndent(res.Reports, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal report: %w", err)
			}
			fmt.Fprintln(out, string(bts))
			return nil
		}

		md := reportMarkdown(res)
		if !isTerminal() {
			fmt.Fprint(out, md)
			return nil
		}
		r, err := styles.GetMarkdownRenderer(100)
		if err != nil {
			return err
		}
		rendered, err := r.Render(md)
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolP("json", "j", false, "Print the reports as JSON")
}
