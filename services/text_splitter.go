package services

import (
	"fmt"
	"strconv"
	"strings"

	"compliance-rag-assistant/models"

	"github.com/google/uuid"
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word.
// When none fits the window the splitter cuts on a character boundary.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// TextSplitter cuts documents into chunks of at most chunkSize characters.
// Consecutive chunks of one document share exactly overlap characters.
type TextSplitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Span is a half-open rune range [Start, End) of a document.
type Span struct {
	Start int
	End   int
}

// NewTextSplitter creates a splitter. overlap must be smaller than chunkSize.
func NewTextSplitter(chunkSize, overlap int) (*TextSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", chunkSize, overlap)
	}
	return &TextSplitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: DefaultSeparators,
	}, nil
}

// Split chunks every document in order. Empty documents yield nothing.
func (ts *TextSplitter) Split(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		chunks = append(chunks, ts.SplitDocument(doc)...)
	}
	return chunks
}

// SplitDocument chunks a single document. A missing document id is
// derived from the source.
func (ts *TextSplitter) SplitDocument(doc models.Document) []models.Chunk {
	if doc.ID == "" {
		doc.ID = DocumentID(doc.Source)
	}
	runes := []rune(doc.Content)
	spans := ts.spans(runes)
	chunks := make([]models.Chunk, 0, len(spans))

	for i, sp := range spans {
		text := string(runes[sp.Start:sp.End])
		meta := map[string]string{
			models.MetaSource:     doc.Source,
			models.MetaDocumentID: doc.ID,
			models.MetaStart:      strconv.Itoa(sp.Start),
			models.MetaEnd:        strconv.Itoa(sp.End),
		}
		if doc.Title != "" {
			meta[models.MetaTitle] = doc.Title
		}
		chunks = append(chunks, models.Chunk{
			ID:         ChunkID(doc.Source, sp, text),
			DocumentID: doc.ID,
			Source:     doc.Source,
			Order:      i,
			Text:       text,
			Start:      sp.Start,
			End:        sp.End,
			Metadata:   meta,
		})
	}
	return chunks
}

// SplitText returns the chunk spans for text, in rune offsets.
func (ts *TextSplitter) SplitText(text string) []Span {
	return ts.spans([]rune(text))
}

func (ts *TextSplitter) spans(runes []rune) []Span {
	if strings.TrimSpace(string(runes)) == "" {
		return nil
	}

	var spans []Span
	start := 0
	for {
		if len(runes)-start <= ts.chunkSize {
			spans = append(spans, Span{Start: start, End: len(runes)})
			return spans
		}
		// The cut must land past start+overlap so the next chunk advances.
		minEnd := start + ts.overlap + 1
		maxEnd := start + ts.chunkSize
		end := ts.breakPoint(runes, minEnd, maxEnd, ts.separators)
		spans = append(spans, Span{Start: start, End: end})
		start = end - ts.overlap
	}
}

// breakPoint finds the last position in [minEnd, maxEnd] that directly
// follows the highest-priority separator present, falling through the
// separator list and finally to a hard cut at maxEnd.
func (ts *TextSplitter) breakPoint(runes []rune, minEnd, maxEnd int, separators []string) int {
	if len(separators) == 0 {
		return maxEnd
	}
	sep := []rune(separators[0])
	for end := maxEnd; end >= minEnd; end-- {
		if hasSuffixAt(runes, end, sep) {
			return end
		}
	}
	return ts.breakPoint(runes, minEnd, maxEnd, separators[1:])
}

func hasSuffixAt(runes []rune, end int, sep []rune) bool {
	if end < len(sep) {
		return false
	}
	for i := range sep {
		if runes[end-len(sep)+i] != sep[i] {
			return false
		}
	}
	return true
}

// ChunkID is stable for a given source, span and text, so re-ingesting the
// same page produces the same ids.
func ChunkID(source string, sp Span, text string) string {
	key := fmt.Sprintf("%s#%d-%d\x00%s", source, sp.Start, sp.End, text)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// DocumentID derives a stable document id from its source locator.
func DocumentID(source string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source)).String()
}
