// Package grading scores exam answers. Every function here is pure.
package grading

import (
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ScoreQuestion scores one answer. Subjective types always return nil (ungraded).
func ScoreQuestion(q model.Question, raw any) *float64 {
	if !q.Type.AutoGraded() {
		return nil
	}

	score := 0.0
	switch a := DecodeAnswer(q.Type, raw).(type) {
	case SingleChoiceAnswer:
		if correct, ok := scalarKey(q.CorrectAnswers); ok && correct == a.Key {
			score = float64(q.MaxScore)
		}
	case MultiChoiceAnswer:
		if correct, ok := scalarSet(q.CorrectAnswers); ok && sameSet(correct, a.Keys) {
			score = float64(q.MaxScore)
		}
	}
	return &score
}

// Grade scores answers against questions. Every question gets an entry:
// 0 when unanswered for objective types, nil for subjective types.
func Grade(answers map[string]any, questions []model.Question) (map[string]*float64, float64) {
	scores := make(map[string]*float64, len(questions))
	for _, q := range questions {
		id := q.ID.String()
		scores[id] = ScoreQuestion(q, answers[id])
	}
	return scores, Total(scores)
}

// Regrade applies a manual override and recomputes the whole score map from stored answers.
//
// Objective questions are always re-scored from their answers, so an override on them has no effect.
// Subjective questions keep whatever manual value the working map holds, or nil.
// Ids missing from the catalog are dropped.
func Regrade(
	answers map[string]any,
	scores map[string]*float64,
	questionID string,
	newScore float64,
	catalog map[string]model.Question,
) (map[string]*float64, float64) {
	working := make(map[string]*float64, len(scores)+1)
	for id, v := range scores {
		working[id] = v
	}
	override := newScore
	working[questionID] = &override

	ids := make(map[string]struct{}, len(answers)+len(working))
	for id := range answers {
		ids[id] = struct{}{}
	}
	for id := range working {
		ids[id] = struct{}{}
	}

	out := make(map[string]*float64, len(ids))
	for id := range ids {
		q, ok := catalog[id]
		if !ok {
			continue
		}
		if q.Type.AutoGraded() {
			out[id] = ScoreQuestion(q, answers[id])
			continue
		}
		if v := working[id]; v != nil {
			manual := *v
			out[id] = &manual
		} else {
			out[id] = nil
		}
	}
	return out, Total(out)
}

// Total sums the non-nil scores.
func Total(scores map[string]*float64) float64 {
	total := 0.0
	for _, v := range scores {
		if v != nil {
			total += *v
		}
	}
	return total
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
