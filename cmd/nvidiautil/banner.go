package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"
)

var bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)

func printBanner(w io.Writer, text string) {
	fig := figure.NewFigure(text, "", true)
	for _, line := range fig.Slicify() {
		fmt.Fprintln(w, bannerStyle.Render(line))
	}
}
