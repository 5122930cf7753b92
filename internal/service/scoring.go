package service

import (
	"sort"
	"strings"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// ScoreMCQ marks the submitted answers against the question bank. An exact option-set match earns
// the question's marks, any other non-empty selection costs its negative marks and an empty
// selection scores zero. Answers for questions outside the bank are ignored.
func ScoreMCQ(answers []models.MCQAnswer, questions []models.Question) (float64, []models.MCQAnswerResult) {
	bank := make(map[uint]models.Question, len(questions))
	for _, question := range questions {
		bank[question.ID] = question
	}

	seen := make(map[uint]struct{}, len(answers))
	marked := make([]models.MCQAnswerResult, 0, len(answers))
	var total float64

	for _, answer := range answers {
		question, ok := bank[answer.QuestionID]
		if !ok {
			continue
		}
		if _, dup := seen[answer.QuestionID]; dup {
			continue
		}
		seen[answer.QuestionID] = struct{}{}

		selected := optionSet(answer.SelectedOptions)
		result := models.MCQAnswerResult{
			QuestionID:      answer.QuestionID,
			SelectedOptions: sortedKeys(selected),
		}

		switch {
		case len(selected) == 0:
		case sameSet(selected, optionSet(question.CorrectOptionIDs())):
			result.Correct = true
			result.Marks = question.Marks
		default:
			result.Marks = -question.NegativeMarks
		}

		total += result.Marks
		marked = append(marked, result)
	}

	return total, marked
}

// RankResults orders results by total score descending then time taken ascending and assigns
// competition ranks: a row equal on both keys to its predecessor shares its rank, every other
// row takes its 1-based position. User id only stabilises display order among ties.
func RankResults(results []models.ContestResult) []models.ContestResult {
	ranked := make([]models.ContestResult, len(results))
	copy(ranked, results)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.TimeTaken != b.TimeTaken {
			return a.TimeTaken < b.TimeTaken
		}
		return a.UserID < b.UserID
	})

	for i := range ranked {
		rank := i + 1
		if i > 0 {
			prev := ranked[i-1]
			if prev.TotalScore == ranked[i].TotalScore && prev.TimeTaken == ranked[i].TimeTaken && prev.Rank != nil {
				rank = *prev.Rank
			}
		}
		value := rank
		ranked[i].Rank = &value
	}

	return ranked
}

func optionSet(options []string) map[string]struct{} {
	set := make(map[string]struct{}, len(options))
	for _, option := range options {
		trimmed := strings.TrimSpace(option)
		if trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return set
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
