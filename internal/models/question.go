package models

// QuestionOption is one selectable answer of a multiple choice question.
type QuestionOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is a multiple choice question that may have several correct options.
type Question struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	ContestID     uint             `gorm:"not null;index" json:"contest_id"`
	Prompt        string           `gorm:"type:text" json:"prompt"`
	Options       []QuestionOption `gorm:"type:text;serializer:json" json:"options"`
	Marks         float64          `gorm:"default:1" json:"marks"`
	NegativeMarks float64          `gorm:"default:0" json:"negative_marks"`
}

// CorrectOptionIDs returns the identifiers of every correct option.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, len(q.Options))
	for _, option := range q.Options {
		if option.IsCorrect {
			ids = append(ids, option.ID)
		}
	}
	return ids
}
