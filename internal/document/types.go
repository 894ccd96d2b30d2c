package document

// Header holds the acquisition values of one tilt series plus paths of series-wide artifacts.
type Header struct {
	General      map[string]string //whitelisted acquisition values as found in the metadata file
	MdocName     string            //path as given at ingestion
	MdocLocation string            //absolute path with symlinks resolved
	NumTilts     string
	CtfSummary   string
	CentralSlice string
	CtfBytsPlot  string
	DosefitPlot  string
	Selected     Selection
	TextNote     string
}

// Micrograph is one acquired image of a tilt series.
// Artifact paths are empty if the artifact was not found at ingestion.
type Micrograph struct {
	ZValue       int
	TiltAngle    string
	DoseRate     string
	SubFramePath string
	DateTime     string

	MoviePath    string
	McorrMic     string
	TiffFile     string
	MicThumbnail string
	CtfThumbnail string
	DenoiseMic   string

	CtfFind4 *float64 //mean defocus, nil if no CTF summary covers the micrograph
	MaxRes   *float64 //resolution of the CTF fit

	CumExposure float64 //-1 if unknown
	CumDose     float64 //-1 if unknown

	Selected bool
}

// Record is the complete state of one tilt series keyed by its tilt keys (tilt_no_<N>).
type Record struct {
	Header Header
	Tilts  map[string]*Micrograph
}

// Unknown marks cumulative values that could not be determined.
const Unknown = -1
