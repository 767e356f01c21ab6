package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	var offset int64
	var length int
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Hex dump a byte range of a file",
		Long:  `Dump prints raw bytes of a file, for looking at HDF5 headers and signatures.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpFile(cmd.OutOrStdout(), args[0], offset, length)
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "offset in the file to start from")
	cmd.Flags().IntVar(&length, "length", 128, "number of bytes to dump")
	return cmd
}

func dumpFile(w io.Writer, name string, offset int64, length int) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if offset < 0 || offset >= size {
		return fmt.Errorf("offset %d outside file of %d bytes", offset, size)
	}
	if length < 1 {
		return fmt.Errorf("length must be positive, got %d", length)
	}

	n := int64(length)
	if remaining := size - offset; n > remaining {
		n = remaining
	}
	buf := make([]byte, n)
	read, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading %s: %w", name, err)
	}

	fmt.Fprintf(w, "%d bytes at offset 0x%x (%d) of %s (%d bytes):\n", read, offset, offset, name, size)
	hexDump(w, buf[:read], offset)
	return nil
}

// hexDump writes 16 bytes per line: address, hex with a gap after eight
// bytes, then printable ASCII.
func hexDump(w io.Writer, buf []byte, base int64) {
	for i := 0; i < len(buf); i += 16 {
		chunk := buf[i:min(i+16, len(buf))]

		fmt.Fprintf(w, "%08x: ", base+int64(i))
		for j := 0; j < 16; j++ {
			if j < len(chunk) {
				fmt.Fprintf(w, "%02x ", chunk[j])
			} else {
				fmt.Fprint(w, "   ")
			}
			if j == 7 {
				fmt.Fprint(w, " ")
			}
		}
		fmt.Fprint(w, " |")
		for _, b := range chunk {
			if b >= 32 && b <= 126 {
				fmt.Fprintf(w, "%c", b)
			} else {
				fmt.Fprint(w, ".")
			}
		}
		fmt.Fprintln(w, "|")
	}
}
