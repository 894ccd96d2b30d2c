package library

import (
	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/output"
)

func ColorForSelection(selection document.Selection) output.SgrModifier {
	switch selection {
	case document.AllSelected:
		return output.DefaultForeground
	case document.SomeSelected:
		return output.Yellow //color of attention, restack candidate
	case document.NoneSelected:
		return output.Magenta //color of waste, incineration candidate
	default:
		return output.Red
	}
}

func ColorForMicrograph(mic *document.Micrograph) output.SgrModifier {
	if mic.Selected {
		return output.DefaultForeground
	}
	return output.Dim
}
