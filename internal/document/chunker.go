package document

import (
	"errors"
	"fmt"
)

// ErrInvalidChunking indicates a chunking configuration that cannot
// run: non-positive window size, negative overlap, or overlap >= size
// (which would never advance).
var ErrInvalidChunking = errors.New("invalid chunking configuration")

// ChunkingConfig fixes how one document version was split. It is
// recorded on the version so re-ingestion reproduces the same windows.
type ChunkingConfig struct {
	// Strategy names the splitting approach. Only "fixed" is
	// implemented; the field is recorded for forward compatibility.
	Strategy string `json:"strategy"`

	// ChunkSize is the window length in characters.
	ChunkSize int `json:"chunkSize"`

	// Overlap is how many trailing characters of one window reappear
	// at the start of the next.
	Overlap int `json:"overlap"`
}

// DefaultChunkingConfig matches the reference ingestion settings.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{Strategy: "fixed", ChunkSize: 4096, Overlap: 200}
}

// Validate rejects configurations before any chunking starts.
// overlap >= chunkSize would make the window never advance.
func (c ChunkingConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidChunking, c.Overlap)
	}
	if c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidChunking, c.Overlap, c.ChunkSize)
	}
	return nil
}

// Split cuts text into fixed-size windows of ChunkSize characters,
// each window starting ChunkSize-Overlap after the previous one. The
// final partial window is kept as-is. Returns nil for empty text.
//
// Windows are measured in runes, never bytes, so multibyte text is
// never cut mid-character and every chunk stays valid UTF-8.
func (c ChunkingConfig) Split(text string) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	runes := []rune(text)
	step := c.ChunkSize - c.Overlap
	var chunks []string
	for pos := 0; pos < len(runes); pos += step {
		end := pos + c.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[pos:end]))
	}
	return chunks, nil
}

// Offsets returns the start offset, in runes, of each window Split
// would produce for a text of textLen runes, without materializing the
// chunks.
func (c ChunkingConfig) Offsets(textLen int) ([]int, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	step := c.ChunkSize - c.Overlap
	var offsets []int
	for pos := 0; pos < textLen; pos += step {
		offsets = append(offsets, pos)
	}
	return offsets, nil
}
