package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"timerfix/internal/bytecode"
	"timerfix/internal/classfile"
	"timerfix/internal/jar"
	"timerfix/internal/ui/colorize"
)

// loadClass reads a class from a .class file, or the named class from a jar.
func loadClass(path, class string) (*classfile.ClassFile, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".jar") {
		return classfile.Open(path)
	}
	if class == "" {
		return nil, fmt.Errorf("%s is a jar: --class is required", path)
	}
	r, err := jar.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := r.Class(class)
	if err != nil {
		return nil, err
	}
	return classfile.Parse(data)
}

// runDisasm lists every method of cf whose name is method (all methods when
// empty) and whose descriptor is desc (any when empty).
func runDisasm(w io.Writer, cf *classfile.ClassFile, method, desc string, color bool) error {
	className, err := cf.Name()
	if err != nil {
		return err
	}
	found := false
	for _, m := range cf.Methods {
		name, d, err := cf.MemberName(m)
		if err != nil {
			return err
		}
		if (method != "" && name != method) || (desc != "" && d != desc) {
			continue
		}
		found = true

		code, err := cf.Code(m)
		if errors.Is(err, classfile.ErrNoCode) {
			fmt.Fprintf(w, "%s.%s%s: no code\n\n", className, name, d)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s%s: %w", name, d, err)
		}
		fmt.Fprintf(w, "%s.%s%s  max_stack=%d max_locals=%d length=%d\n",
			className, name, d, code.MaxStack, code.MaxLocals, len(code.Code))

		listing, err := bytecode.Disassemble(code.Code, cf.Pool)
		if err != nil {
			return fmt.Errorf("%s%s: %w", name, d, err)
		}
		if color {
			if colored, err := colorize.ColorizeListing(listing); err == nil {
				listing = colored
			}
		}
		fmt.Fprint(w, listing)
		for _, h := range code.ExceptionTable {
			fmt.Fprintf(w, "       handler %04x-%04x -> %04x  %s\n", h.StartPC, h.EndPC, h.HandlerPC, catchName(cf, h.CatchType))
		}
		fmt.Fprintln(w)
	}
	if !found {
		if desc != "" {
			return fmt.Errorf("%w: %s%s", classfile.ErrMethodNotFound, method, desc)
		}
		return fmt.Errorf("%w: %s", classfile.ErrMethodNotFound, method)
	}
	return nil
}

func catchName(cf *classfile.ClassFile, index uint16) string {
	if index == 0 {
		return "any"
	}
	name, err := cf.Pool.ClassName(index)
	if err != nil {
		return fmt.Sprintf("#%d", index)
	}
	return classfile.DottedName(name)
}

var disasmCmd = &cobra.Command{
	Use:   "disasm <file.class|file.jar>",
	Short: "List the bytecode of a class",
	Example: `
# One method of a loose class file
timerfix disasm Flattening.class --method flatten

# A class inside the server jar
timerfix disasm server.jar --class com.wurmonline.server.behaviours.Flattening
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := ResolveCwd(cmd)
		if err != nil {
			return err
		}
		class, _ := cmd.Flags().GetString("class")
		method, _ := cmd.Flags().GetString("method")
		desc, _ := cmd.Flags().GetString("desc")

		cf, err := loadClass(resolvePath(cwd, args[0]), class)
		if err != nil {
			return err
		}
		return runDisasm(cmd.OutOrStdout(), cf, method, desc, isTerminal() && !colorize.Disabled())
	},
}

func init() {
	disasmCmd.Flags().String("class", "", "Class to list when the input is a jar")
	disasmCmd.Flags().StringP("method", "m", "", "Only list methods with this name")
	disasmCmd.Flags().String("desc", "", "Only list methods with this descriptor")
}
