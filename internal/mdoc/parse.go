package mdoc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/n2code/heatwave/internal/fault"
)

// BlockOpener starts every per-image block ("[ZValue = N]").
const BlockOpener = "[Z"

// Block holds the trimmed lines of one per-image record, the opener line included.
type Block []string

// File is the raw structure of a metadata file: everything before the first block and the blocks in file order.
type File struct {
	Header []string
	Blocks []Block
}

// ReadFile parses the metadata file at the given path.
func ReadFile(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fault.New(fault.Parse, path, "metadata file not readable", err)
	}
	defer f.Close()
	parsed, err := Parse(f)
	if err != nil {
		return File{}, fault.New(fault.Parse, path, "metadata file not parsable", err)
	}
	return parsed, nil
}

// Parse splits a metadata file into header lines and blocks.
// A block is closed by a blank line or by the end of input. Further blank lines are ignored.
// Non-blank lines after a closed block which do not open a new block are kept with the previous block.
func Parse(r io.Reader) (File, error) {
	var parsed File
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, BlockOpener):
			parsed.Blocks = append(parsed.Blocks, Block{line})
		case len(parsed.Blocks) == 0:
			parsed.Header = append(parsed.Header, line)
		case line == "":
			//closes the block, repeated blank lines are dropped
		default:
			last := len(parsed.Blocks) - 1
			parsed.Blocks[last] = append(parsed.Blocks[last], line)
		}
	}
	if err := scanner.Err(); err != nil {
		return File{}, err
	}
	return parsed, nil
}

// Lines renders the file back to text lines with each block followed by one blank line.
func (f File) Lines() []string {
	lines := make([]string, 0, len(f.Header)+len(f.Blocks)*16)
	lines = append(lines, f.Header...)
	for _, block := range f.Blocks {
		lines = append(lines, block...)
		lines = append(lines, "")
	}
	return lines
}

// Value yields the trimmed value of the first "key = value" line with the given key.
func (b Block) Value(key string) (value string, found bool) {
	for _, line := range b {
		k, v, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// SubFramePath yields the raw-frame path of the block, which must be given exactly once.
func (b Block) SubFramePath() (string, error) {
	var matches []string
	for _, line := range b {
		if strings.HasPrefix(line, "SubFramePath") {
			matches = append(matches, line)
		}
	}
	if len(matches) != 1 {
		return "", fmt.Errorf("expected exactly one SubFramePath line in block %q, found %d", b.opener(), len(matches))
	}
	fields := strings.Split(matches[0], "=")
	if len(fields) < 2 {
		return "", fmt.Errorf("SubFramePath line without value in block %q", b.opener())
	}
	return strings.TrimSpace(fields[1]), nil
}

// Index yields the number of the block-open token.
func (b Block) Index() (int, error) {
	var index int
	_, rest, ok := strings.Cut(b.opener(), "=")
	if !ok {
		return 0, fmt.Errorf("block opener without index: %q", b.opener())
	}
	number, _, _ := strings.Cut(rest, "]")
	if _, err := fmt.Sscanf(strings.TrimSpace(number), "%d", &index); err != nil {
		return 0, fmt.Errorf("bad block index in %q: %w", b.opener(), err)
	}
	return index, nil
}

// WithIndex returns a copy of the block whose opener carries the given index.
func (b Block) WithIndex(index int) Block {
	renumbered := make(Block, len(b))
	copy(renumbered, b)
	name, _, _ := strings.Cut(strings.TrimPrefix(b.opener(), "["), "=")
	renumbered[0] = fmt.Sprintf("[%s= %d]", name, index)
	return renumbered
}

func (b Block) opener() string {
	if len(b) == 0 {
		return ""
	}
	return b[0]
}

// FrameBase yields the file name of a raw-frame path regardless of whether it was recorded with slashes or backslashes.
func FrameBase(framePath string) string {
	cut := strings.LastIndexAny(framePath, `/\`)
	return framePath[cut+1:]
}
