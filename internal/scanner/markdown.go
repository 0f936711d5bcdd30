package scanner

import (
	"fmt"
	"regexp"
	"strings"
)

// region is the part of an R Markdown document a line belongs to.
type region uint8

const (
	regionCode        region = iota // R code: a whole R file or the body of an R chunk
	regionText                      // markdown prose
	regionFrontMatter               // YAML header
	regionFence                     // plain fenced block or a chunk in another engine
)

// lineState is the scanning state at the beginning of a line.
type lineState struct {
	markdown  bool
	region    region
	chunk     bool // inside an executable chunk
	codeStart int  // first row the function header look-back may reach
	chunks    int  // executable chunks opened so far
}

func initialState(mode Mode) lineState {
	if mode == ModeMarkdown {
		return lineState{markdown: true, region: regionText}
	}
	return lineState{region: regionCode}
}

var (
	chunkHeaderPattern  = regexp.MustCompile("^\\s{0,3}```+\\s*\\{\\s*([A-Za-z][\\w.]*)(.*)\\}\\s*$")
	fencePattern        = regexp.MustCompile("^\\s{0,3}```")
	headingPattern      = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	sectionPattern      = regexp.MustCompile(`^\s*(#+)'?\s*(.*?)\s*(?:-{4,}|={4,}|#{4,})\s*$`)
	chunkOptionSplitter = regexp.MustCompile(`\s*,\s*`)
)

// chunkHeader describes an executable chunk fence.
type chunkHeader struct {
	engine string
	label  string
}

// parseChunkHeader parses a fence line such as "```{r setup, echo=FALSE}".
func parseChunkHeader(line string) (chunkHeader, bool) {
	m := chunkHeaderPattern.FindStringSubmatch(line)
	if m == nil {
		return chunkHeader{}, false
	}
	h := chunkHeader{engine: strings.ToLower(m[1])}
	opts := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(m[2]), ","))
	for i, opt := range chunkOptionSplitter.Split(opts, -1) {
		if opt == "" {
			continue
		}
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			if i == 0 {
				h.label = opt
			}
			continue
		}
		if strings.TrimSpace(key) == "label" {
			h.label = strings.Trim(strings.TrimSpace(value), `"'`)
		}
	}
	return h, true
}

// displayLabel returns the outline label of the n-th chunk.
func (h chunkHeader) displayLabel(n int) string {
	if h.label == "" {
		return fmt.Sprintf("Chunk %d", n)
	}
	return fmt.Sprintf("Chunk %d: %s", n, h.label)
}

func isFenceLine(line string) bool {
	return fencePattern.MatchString(line)
}

func isClosingFence(line string) bool {
	return isFenceLine(line) && strings.Trim(strings.TrimSpace(line), "`") == ""
}

func isFrontMatterFence(line string) bool {
	trimmed := strings.TrimRight(line, " \t\r")
	return trimmed == "---" || trimmed == "..."
}

// parseHeading matches an ATX markdown heading and returns its text and depth.
func parseHeading(line string) (string, int, bool) {
	m := headingPattern.FindStringSubmatch(line)
	if m == nil {
		return "", 0, false
	}
	return m[2], len(m[1]), true
}

// parseSection matches an R comment section marker such as "# Load ----".
func parseSection(line string) (string, int, bool) {
	m := sectionPattern.FindStringSubmatch(line)
	if m == nil || m[2] == "" {
		return "", 0, false
	}
	return m[2], len(m[1]), true
}

// advance returns the state after line, which is row in the document.
func (st lineState) advance(row int, line string) lineState {
	if !st.markdown {
		return st
	}
	switch st.region {
	case regionFrontMatter:
		if row > 0 && isFrontMatterFence(line) {
			st.region = regionText
		}
	case regionText:
		if row == 0 && strings.TrimRight(line, " \t\r") == "---" {
			st.region = regionFrontMatter
			break
		}
		if h, ok := parseChunkHeader(line); ok {
			st.chunks++
			st.chunk = true
			st.region = regionFence
			if h.engine == "r" {
				st.region = regionCode
				st.codeStart = row + 1
			}
			break
		}
		if isFenceLine(line) {
			st.region = regionFence
		}
	case regionCode, regionFence:
		if isClosingFence(line) {
			st.region = regionText
			st.chunk = false
		}
	}
	return st
}
