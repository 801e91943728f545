package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	colorRed    = color.New(color.FgRed)
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
	colorBlue   = color.New(color.FgBlue)
	colorGray   = color.New(color.FgHiBlack)
)

const indent = "  "

// printer writes prefixed, colored lines to a command's output.
type printer struct {
	w io.Writer
}

func (p printer) info(msg string, v ...interface{}) {
	fmt.Fprintf(p.w, "%s%s %s\n", indent, colorBlue.Sprint("•"), fmt.Sprintf(msg, v...))
}

func (p printer) success(msg string, v ...interface{}) {
	fmt.Fprintf(p.w, "%s%s %s\n", indent, colorGreen.Sprint("✔"), fmt.Sprintf(msg, v...))
}

func (p printer) warn(msg string, v ...interface{}) {
	fmt.Fprintf(p.w, "%s%s %s\n", indent, colorYellow.Sprint("!"), fmt.Sprintf(msg, v...))
}

func (p printer) errorf(msg string, v ...interface{}) {
	fmt.Fprintf(p.w, "%s%s %s\n", indent, colorRed.Sprint("⨯"), fmt.Sprintf(msg, v...))
}

func (p printer) plain(msg string, v ...interface{}) {
	fmt.Fprintf(p.w, "%s%s %s\n", indent, colorGray.Sprint("•"), fmt.Sprintf(msg, v...))
}

// field prints an aligned key/value line.
func (p printer) field(key string, value interface{}) {
	fmt.Fprintf(p.w, "%s%-16s %v\n", indent, colorGray.Sprint(key), value)
}
