package output

import "fmt"

// SgrModifier is a Select Graphic Rendition parameter of ANSI terminals.
type SgrModifier int

const (
	Dim               SgrModifier = 2
	Red               SgrModifier = 31
	Green             SgrModifier = 32
	Yellow            SgrModifier = 33
	Magenta           SgrModifier = 35
	Cyan              SgrModifier = 36
	DefaultForeground SgrModifier = 39
)

func TerminalFormat(text string, modifier SgrModifier) string {
	return fmt.Sprintf("\x1B[%dm%s\x1B[0m", modifier, text)
}

func TerminalFormatAsDim(text string) string {
	return TerminalFormat(text, Dim)
}

func TerminalFormatAsError(text string) string {
	return TerminalFormat(text, Red)
}
