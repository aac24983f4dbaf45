package session

import (
	"math"

	"github.com/tomferreira/voise-asterisk-module/pkg/asr"
	"github.com/tomferreira/voise-asterisk-module/pkg/types"
)

// maxNBest is how many hypotheses N-best mode produces. The server returns a
// single hypothesis, so N-best replicates it; the chain exists so hosts that
// request N-best always see the list shape they asked for.
const maxNBest = 1

// assembleHypotheses maps one terminal recognition response into an ordered
// hypothesis list of length n (at least 1). Text and intent are copied
// verbatim; an empty utterance is a valid result, not an error.
func assembleHypotheses(resp *asr.Response, n int) []types.Hypothesis {
	if n < 1 {
		n = 1
	}
	h := types.Hypothesis{
		Score:   score(resp.Confidence, resp.Probability),
		Text:    resp.Utterance,
		Grammar: resp.Intent,
	}
	out := make([]types.Hypothesis, n)
	for i := range out {
		out[i] = h
	}
	return out
}

// score folds confidence and intent probability into a single 0-100 integer.
func score(confidence, probability float64) int {
	s := int(math.Round(confidence * probability * 100))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
