package flags

const Verbose = `verbose`
const Quiet = `quiet`
const Plain = `plain`
const Config = `config`
const Document = `json`
const InDir = `in-dir`
const ImodBin = `imod-bin`
const IngestTargets = `targets`
const IngestMdocs = `mdocs`
const IngestFromScratch = `new`
const TreeOnlyDeselected = `deselected`
const SelectDiscard = `discard`
const RestackPreview = `preview`
const WithoutConfirmation = `no-confirm`
const WatchSettle = `settle`
