// heapviz loads a soupheap snapshot and reports what's in it.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	csvPath := flag.String("csv", "", "write a CSV edge dump (from,to) to this path")
	reportPath := flag.String("report", "", "write a machine-readable CBOR census to this path")
	traceFrom := flag.String("trace-from", "", "class name to start a shortest-path trace from")
	traceTo := flag.String("trace-to", "", "class name to find a retaining path to")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: heapviz [options] snapshot-file\n\n")
		fmt.Fprintf(os.Stderr, "Loads a soupheap snapshot and prints a per-class census:\n")
		fmt.Fprintf(os.Stderr, "className, instance count, total bytes, sorted by bytes descending.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  heapviz snap.bin\n")
		fmt.Fprintf(os.Stderr, "  heapviz --csv edges.csv snap.bin\n")
		fmt.Fprintf(os.Stderr, "  heapviz --trace-from Account --trace-to Logger snap.bin\n")
		fmt.Fprintf(os.Stderr, "  heapviz --report census.cbor snap.bin\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heapviz: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	result, err := analyze(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heapviz: %v\n", err)
		os.Exit(1)
	}

	printTable(os.Stdout, result.census)

	if *csvPath != "" {
		if err := writeEdgeCSV(*csvPath, result.edges); err != nil {
			fmt.Fprintf(os.Stderr, "heapviz: %v\n", err)
			os.Exit(2)
		}
	}

	if *traceFrom != "" && *traceTo != "" {
		path, ok := result.shortestPath(*traceFrom, *traceTo)
		if !ok {
			fmt.Printf("\nno retaining path found from %s to %s\n", *traceFrom, *traceTo)
		} else {
			fmt.Printf("\nretaining path from %s to %s:\n", *traceFrom, *traceTo)
			for _, step := range path {
				fmt.Printf("  %s\n", step)
			}
		}
	}

	if *reportPath != "" {
		if err := writeCBORReport(*reportPath, result.census); err != nil {
			fmt.Fprintf(os.Stderr, "heapviz: %v\n", err)
			os.Exit(2)
		}
	}
}
