package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"timerfix/internal/classfile"
	"timerfix/internal/config"
	"timerfix/internal/jar"
	"timerfix/internal/patch"
	"timerfix/internal/timerfix/styles"
)

var errNoTargets = errors.New("no patch targets in input")

// patchOptions are the inputs of one patch run.
type patchOptions struct {
	In     string
	Out    string // defaults to In
	Backup bool
	DryRun bool
}

// patchResult is what a patch run did.
type patchResult struct {
	Input       string
	Output      string
	Config      string
	Reports     []patch.Report
	Unsupported []config.Category
	Written     bool
	Backup      string
}

// runPatch patches a .class or .jar. Nothing is written unless every
// targeted class was patched.
func runPatch(cfg config.Config, logger *log.Logger, opts patchOptions) (*patchResult, error) {
	reg := patch.NewRegistry(cfg, logger)
	res := &patchResult{
		Input:       opts.In,
		Output:      opts.Out,
		Config:      cfg.Path,
		Unsupported: reg.Unsupported(),
	}
	if res.Output == "" {
		res.Output = opts.In
	}

	var out []byte
	var err error
	switch ext := strings.ToLower(filepath.Ext(opts.In)); ext {
	case ".class":
		out, res.Reports, err = patchClassFile(reg, opts.In)
	case ".jar":
		out, res.Reports, err = patchJar(reg, opts.In)
	default:
		return nil, fmt.Errorf("unsupported input %s: want a .class or .jar file", opts.In)
	}
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return res, nil
	}
	if opts.Backup {
		res.Backup = opts.In + ".bak"
		if err := copyFile(opts.In, res.Backup); err != nil {
			return nil, fmt.Errorf("backup failed: %w", err)
		}
	}
	if err := publish(res.Output, out, opts.In); err != nil {
		return nil, err
	}
	res.Written = true
	slog.Debug("Patched output written", "path", res.Output, "bytes", len(out))
	return res, nil
}

func patchClassFile(reg *patch.Registry, path string) ([]byte, []patch.Report, error) {
	cf, err := classfile.Open(path)
	if err != nil {
		return nil, nil, err
	}
	reports, err := reg.PatchClass(cf)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return cf.Bytes(), reports, nil
}

func patchJar(reg *patch.Registry, path string) ([]byte, []patch.Report, error) {
	r, err := jar.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	var reports []patch.Report
	replace := make(map[string][]byte)
	for _, target := range reg.Targets() {
		if !r.Has(target) {
			slog.Warn("Target class not in jar", "class", classfile.DottedName(target), "jar", path)
			continue
		}
		data, err := r.Class(target)
		if err != nil {
			return nil, nil, err
		}
		cf, err := classfile.Parse(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", jar.EntryName(target), err)
		}
		reps, err := reg.PatchClass(cf)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", classfile.DottedName(target), err)
		}
		reports = append(reports, reps...)
		replace[jar.EntryName(target)] = cf.Bytes()
	}
	if len(replace) == 0 {
		return nil, nil, fmt.Errorf("%w: %s holds none of %s", errNoTargets, path, strings.Join(reg.Targets(), ", "))
	}

	var buf bytes.Buffer
	if err := r.Rewrite(&buf, replace); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), reports, nil
}

// publish writes data to a temporary file next to path and renames it into
// place. The file mode is taken from modeFrom when it exists.
func publish(path string, data []byte, modeFrom string) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(modeFrom); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".timerfix-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// printPatchSummary writes one styled line per patched method.
func printPatchSummary(w io.Writer, res *patchResult) {
	for _, rep := range res.Reports {
		method := rep.Method
		if i := strings.IndexByte(method, '('); i >= 0 {
			method = method[:i]
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			styles.OK.Render("patched"),
			styles.Label.Render(string(rep.Category)),
			styles.Path.Render(rep.Class+"."+method),
			styles.Dim.Render(fmt.Sprintf("%d regions, %s", len(rep.Regions), rep.Vars)))
	}
	for _, cat := range res.Unsupported {
		fmt.Fprintf(w, "%s %s %s\n",
			styles.Skipped.Render("skipped"),
			styles.Label.Render(string(cat)),
			styles.Dim.Render("needs a growing rewrite"))
	}
	switch {
	case res.Written && res.Backup != "":
		fmt.Fprintf(w, "%s %s %s\n", styles.OK.Render("wrote"), styles.Path.Render(res.Output), styles.Dim.Render("backup "+res.Backup))
	case res.Written:
		fmt.Fprintf(w, "%s %s\n", styles.OK.Render("wrote"), styles.Path.Render(res.Output))
	default:
		fmt.Fprintf(w, "%s %s\n", styles.Skipped.Render("dry run"), styles.Dim.Render("nothing written"))
	}
}

var patchCmd = &cobra.Command{
	Use:   "patch <file.class|file.jar>",
	Short: "Patch a class file or jar",
	Long: `Patch applies every enabled patch to the classes it targets. Output is
written to a temporary file and renamed over the destination only after every
targeted class was patched, so a failure leaves the destination untouched.`,
	Example: `
# Patch in place, keeping a backup
timerfix patch --backup server.jar

# Write the result elsewhere
timerfix patch server.jar -o server-patched.jar
  `,
	Args: cobra.ExactArgs(1),
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

		out, _ := cmd.Flags().GetString("output")
		if out != "" {
			out = resolvePath(cwd, out)
		}
		backup, _ := cmd.Flags().GetBool("backup")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		res, err := runPatch(cfg, lg.Logger, patchOptions{
			In:     resolvePath(cwd, args[0]),
			Out:    out,
			Backup: backup,
			DryRun: dryRun,
		})
		if err != nil {
			return err
		}
		printPatchSummary(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	patchCmd.Flags().StringP("output", "o", "", "Write the result here instead of over the input")
	patchCmd.Flags().BoolP("backup", "b", false, "Keep a copy of the input as <input>.bak")
	patchCmd.Flags().BoolP("dry-run", "n", false, "Patch in memory only")
}
