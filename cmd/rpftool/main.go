// Command rpftool mounts, lists, extracts, and builds RPF7 archives from
// the command line.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/rpfgo/pkg/archive"
)

func main() {
	archivePath := flag.String("archive", "", "Path to the RPF7 archive (required)")
	action := flag.String("action", "list", "Action to perform: list, tree, extract, extract-all, create, roundtrip")
	itemPath := flag.String("path", "", "Archive path of the item to extract (for action=extract)")
	outPath := flag.String("out", ".", "Output directory for extracted files (for action=extract/extract-all/roundtrip)")
	srcDir := flag.String("src", ".", "Source directory to pack into the -archive path (for action=create)")
	nameShift := flag.Int("name-shift", -1, "Force a starting name-heap shift (0-3); -1 lets the writer pick")

	flag.Parse()

	if *archivePath == "" {
		fmt.Fprintln(os.Stderr, "Error: -archive flag is required")
		flag.Usage()
		os.Exit(1)
	}

	switch *action {
	case "list", "tree", "extract", "extract-all":
		runReadAction(*archivePath, *action, *itemPath, *outPath)
	case "create":
		runCreate(*archivePath, *srcDir, *nameShift)
	case "roundtrip":
		runRoundtrip(*archivePath, *outPath, *nameShift)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown action %q\n", *action)
		flag.Usage()
		os.Exit(1)
	}
}

func runReadAction(archivePath, action, itemPath, outPath string) {
	a, err := archive.OpenArchive(archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening archive %s: %v\n", archivePath, err)
		os.Exit(1)
	}
	defer a.Close()

	switch action {
	case "list":
		for _, p := range a.GetEntryList() {
			fmt.Println(p)
		}
	case "tree":
		a.Tree().Dump(os.Stdout)
	case "extract":
		if itemPath == "" {
			fmt.Fprintln(os.Stderr, "Error: -path flag is required for action=extract")
			os.Exit(1)
		}
		outFile := filepath.Join(outPath, filepath.Base(itemPath))
		if err := a.SaveEntryToPath(itemPath, outFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error extracting %s: %v\n", itemPath, err)
			os.Exit(1)
		}
		fmt.Printf("Extracted %s -> %s\n", itemPath, outFile)
	case "extract-all":
		for _, p := range a.GetEntryList() {
			dest := filepath.Join(outPath, filepath.FromSlash(strings.TrimPrefix(p, "/")))
			if err := a.SaveEntryToPath(p, dest); err != nil {
				fmt.Fprintf(os.Stderr, "Error extracting %s: %v. Skipping.\n", p, err)
				continue
			}
			fmt.Printf("Extracted %s -> %s\n", p, dest)
		}
	}
}

func runCreate(archivePath, srcDir string, forcedShift int) {
	a, err := archive.CreateArchive(archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating archive %s: %v\n", archivePath, err)
		os.Exit(1)
	}
	a.Diagnostics = func(ev archive.DiagEvent) {
		fmt.Fprintf(os.Stderr, "diag: %s\n", ev.Message)
	}
	if forcedShift >= 0 {
		a.ForcedNameShift = forcedShift
	}

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		entryPath := normalizeCLIPath(archive.NormalizeEntryPath(filepath.ToSlash(rel)))
		return a.AddEntry(entryPath, path)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error walking %s: %v\n", srcDir, err)
		os.Exit(1)
	}

	if err := a.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing archive %s: %v\n", archivePath, err)
		os.Remove(archivePath)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s from %s\n", archivePath, srcDir)
}

func runRoundtrip(archivePath, outDir string, forcedShift int) {
	a, err := archive.OpenArchive(archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening archive %s: %v\n", archivePath, err)
		os.Exit(1)
	}
	for _, p := range a.GetEntryList() {
		dest := filepath.Join(outDir, filepath.FromSlash(strings.TrimPrefix(p, "/")))
		if err := a.SaveEntryToPath(p, dest); err != nil {
			fmt.Fprintf(os.Stderr, "Error extracting %s: %v\n", p, err)
		}
	}
	a.Close()

	rebuiltPath := archivePath + ".rebuilt"
	rebuilt, err := archive.CreateArchive(rebuiltPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", rebuiltPath, err)
		os.Exit(1)
	}
	if forcedShift >= 0 {
		rebuilt.ForcedNameShift = forcedShift
	}

	err = filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(outDir, path)
		if err != nil {
			return err
		}
		return rebuilt.AddEntry(archive.NormalizeEntryPath(filepath.ToSlash(rel)), path)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rebuilding from %s: %v\n", outDir, err)
		os.Exit(1)
	}
	if err := rebuilt.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", rebuiltPath, err)
		os.Remove(rebuiltPath)
		os.Exit(1)
	}
	fmt.Printf("Round-tripped %s -> %s -> %s\n", archivePath, outDir, rebuiltPath)
}
