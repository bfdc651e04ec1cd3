package useragent

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/advens/darwin-go/internal/darwinjson"
)

// TableScorer is the in-process Scorer used when no external inference
// engine is plugged in: a per-token score table loaded from
// model_path, averaged over the non-padding tokens of the input. The
// table file maps token ids to one score per entry of Classes.
type TableScorer struct {
	table map[uint32][]float64
}

// tableModel is the model_path file shape.
type tableModel struct {
	Tokens map[string][]float64 `json:"tokens"`
}

// LoadTableScorer reads a score-table model file.
func LoadTableScorer(path string) (*TableScorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("useragent: cannot open model file: %w", err)
	}
	var model tableModel
	if err := darwinjson.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("useragent: model file is not a JSON object: %w", err)
	}
	if len(model.Tokens) == 0 {
		return nil, fmt.Errorf("useragent: model file declares no token scores")
	}

	table := make(map[uint32][]float64, len(model.Tokens))
	for idStr, scores := range model.Tokens {
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("useragent: malformed token id %q in model file: %w", idStr, err)
		}
		if len(scores) != len(Classes) {
			return nil, fmt.Errorf("useragent: token %s has %d scores, want %d", idStr, len(scores), len(Classes))
		}
		table[uint32(id)] = scores
	}
	return &TableScorer{table: table}, nil
}

// Score implements Scorer: the mean of the known tokens' class scores.
// Padding (token id 0) and tokens absent from the table are skipped; an
// input with no scored token yields all zeros.
func (s *TableScorer) Score(_ context.Context, tokens []uint32) ([]float64, error) {
	out := make([]float64, len(Classes))
	var n int
	for _, tok := range tokens {
		if tok == 0 {
			continue
		}
		scores, ok := s.table[tok]
		if !ok {
			continue
		}
		for i, v := range scores {
			out[i] += v
		}
		n++
	}
	if n > 0 {
		for i := range out {
			out[i] /= float64(n)
		}
	}
	return out, nil
}
