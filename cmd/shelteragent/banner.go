package main

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
)

const (
	colorReset = "\x1b[0m"
	colorCyan  = "\x1b[1;36m"
)

// printBanner writes the ASCII-art startup banner.
func printBanner(w io.Writer, text string) {
	fig := figure.NewFigure(text, "", true)
	for _, line := range fig.Slicify() {
		fmt.Fprintln(w, colorCyan+line+colorReset)
	}
}
