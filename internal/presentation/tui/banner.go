package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`   __           _   _                                  `, "#fb923c"},
	{`  / _| __ _ ___| |_| |_   _       _ __ ___   ___ _ __  `, "#f97316"},
	{` | |_ / _' / __| __| | | | |_____| '_ ' _ \ / __| '_ \ `, "#ea580c"},
	{` |  _| (_| \__ \ |_| | |_| |_____| | | | | | (__| |_) |`, "#dc2626"},
	{` |_|  \__,_|___/\__|_|\__, |     |_| |_| |_|\___| .__/ `, "#e11d48"},
	{`                      |___/                      |_|    `, "#be123c"},
}

// PrintBanner writes the ASCII banner and version to w, coloured when w is a terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)

	fmt.Fprintln(w)
	for _, line := range bannerLines {
		fmt.Fprintln(w, out.String(line.text).Foreground(out.Color(line.color)))
	}
	fmt.Fprintln(w, out.String("  "+version).Faint())
	fmt.Fprintln(w)
}
