package ui

import (
	"fmt"
	"io"
	"os"
)

// ASCII logo for the application
const ASCIILogo = `
 ╦╔═╗  ╦ ╦╔═╗╦═╗╦  ╦╔═╗╔═╗╔╦╗
 ║║ ╦  ╠═╣╠═╣╠╦╝╚╗╔╝║╣ ╚═╗ ║
 ╩╚═╝  ╩ ╩╩ ╩╩╚═ ╚╝ ╚═╝╚═╝ ╩
   batch post harvesting engine
`

// Output is where the Print helpers write
var Output io.Writer = os.Stdout

// PrintLogo prints the ASCII logo
func PrintLogo() {
	fmt.Fprintln(Output, logoStyle.Render(ASCIILogo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(Output, errorStyle.Render(msg))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(Output, successStyle.Render(msg))
}

// PrintInfo prints a label and value pair
func PrintInfo(label string, value string) {
	fmt.Fprintf(Output, "%s: %s\n", logoStyle.Render(label), valueStyle.Render(value))
}

// PrintWarning prints a warning message in orange
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(Output, warningStyle.Render(msg))
}
