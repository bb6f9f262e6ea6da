// Command gzstream compresses, decompresses and inspects gzip files
// using the streaming library.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/absfs/gzstream"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gzstream:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gzstream",
		Short:         "Stream-oriented gzip tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newCompressCmd(),
		newDecompressCmd(),
		newCatCmd(),
		newHeaderCmd(),
	)
	return root
}

func newCompressCmd() *cobra.Command {
	var (
		level int
		name  string
	)
	cmd := &cobra.Command{
		Use:   "compress <file> [output]",
		Short: "Compress a file into a gzip member",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			dst := src + ".gz"
			if len(args) == 2 {
				dst = args[1]
			}
			in, err := os.Open(src)
			if err != nil {
				return err
			}
			defer in.Close()

			out, err := gzstream.OpenBinary(dst, "wb", &gzstream.Options{
				Level:            level,
				OriginalFilename: name,
			})
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, in); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		},
	}
	cmd.Flags().IntVarP(&level, "level", "l", 6, "compression level (1-9)")
	cmd.Flags().StringVar(&name, "name", "", "original filename to record in the header")
	return cmd
}

func newDecompressCmd() *cobra.Command {
	var toStdout bool
	cmd := &cobra.Command{
		Use:   "decompress <file.gz> [output]",
		Short: "Decompress a gzip file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			in, err := gzstream.OpenBinary(src, "rb", nil)
			if err != nil {
				return err
			}
			defer in.Close()

			if toStdout {
				_, err := io.Copy(cmd.OutOrStdout(), in)
				return err
			}

			dst := strings.TrimSuffix(src, ".gz")
			if len(args) == 2 {
				dst = args[1]
			} else if dst == src {
				return fmt.Errorf("cannot derive output name from %q, pass one explicitly", src)
			}
			out, err := os.Create(dst)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, in); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		},
	}
	cmd.Flags().BoolVarP(&toStdout, "stdout", "c", false, "write to standard output")
	return cmd
}

func newCatCmd() *cobra.Command {
	var (
		encName string
		policy  string
	)
	cmd := &cobra.Command{
		Use:   "cat <file.gz>...",
		Short: "Print gzip files as text with universal newlines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if err := catFile(cmd.OutOrStdout(), arg, encName, policy); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&encName, "encoding", "", "character encoding (default UTF-8)")
	cmd.Flags().StringVar(&policy, "errors", "strict", "decode error policy: strict, replace or ignore")
	return cmd
}

func catFile(w io.Writer, path, encName, policy string) error {
	f, err := gzstream.OpenText(path, "rt", &gzstream.Options{
		Encoding: encName,
		Errors:   policy,
	})
	if err != nil {
		return err
	}
	defer f.Close()

	for line, err := range f.Lines() {
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

func newHeaderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "header <file.gz>...",
		Short: "Show gzip header fields and sizes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if err := describeFile(cmd.OutOrStdout(), arg); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

func describeFile(w io.Writer, path string) error {
	f, err := gzstream.OpenBinary(path, "rb", nil)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(w, "%s:\n", path)
	if name, ok := f.OriginalName(); ok {
		fmt.Fprintf(w, "  name:  %s\n", name)
	}
	if mt, ok := f.Mtime(); ok && mt.Unix() != 0 {
		fmt.Fprintf(w, "  mtime: %s\n", mt.UTC().Format(time.RFC3339))
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  size:  %d\n", size)
	if fi, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  compressed: %d\n", fi.Size())
	}
	return nil
}
