package normalize

import (
	"errors"
	"fmt"
	"strings"
)

// QuizSize is the number of questions every quiz carries
const QuizSize = 10

// TopicExploration is the explore-topic payload
type TopicExploration struct {
	Overview      string         `json:"overview"`
	Tips          []string       `json:"tips"`
	LearningSteps []LearningStep `json:"learningSteps"`
}

// LearningStep is one step of a learning path
type LearningStep struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Resources   []string `json:"resources,omitempty"`
}

func (t TopicExploration) Canonical() TopicExploration {
	out := TopicExploration{Overview: strings.TrimSpace(t.Overview)}
	out.Tips = trimAll(t.Tips)
	for _, step := range t.LearningSteps {
		out.LearningSteps = append(out.LearningSteps, LearningStep{
			Title:       strings.TrimSpace(step.Title),
			Description: strings.TrimSpace(step.Description),
			Resources:   trimAll(step.Resources),
		})
	}
	return out
}

func (t TopicExploration) Validate() error {
	if t.Overview == "" {
		return errors.New("overview is required")
	}
	if len(t.Tips) == 0 {
		return errors.New("tips are required")
	}
	if len(t.LearningSteps) == 0 {
		return errors.New("learningSteps are required")
	}
	for i, step := range t.LearningSteps {
		if step.Title == "" {
			return fmt.Errorf("learningSteps[%d].title is required", i)
		}
	}
	return nil
}

// Quiz is the generate-quiz payload
type Quiz struct {
	Questions []QuizQuestion `json:"questions"`
}

// QuizQuestion is a four-option multiple-choice question
type QuizQuestion struct {
	QuestionText  string `json:"question_text"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
}

func (q Quiz) Canonical() Quiz {
	out := Quiz{Questions: make([]QuizQuestion, len(q.Questions))}
	for i, qq := range q.Questions {
		out.Questions[i] = QuizQuestion{
			QuestionText:  strings.TrimSpace(qq.QuestionText),
			OptionA:       strings.TrimSpace(qq.OptionA),
			OptionB:       strings.TrimSpace(qq.OptionB),
			OptionC:       strings.TrimSpace(qq.OptionC),
			OptionD:       strings.TrimSpace(qq.OptionD),
			CorrectAnswer: strings.ToUpper(strings.TrimSpace(qq.CorrectAnswer)),
			Explanation:   strings.TrimSpace(qq.Explanation),
		}
	}
	return out
}

func (q Quiz) Validate() error {
	if len(q.Questions) != QuizSize {
		return fmt.Errorf("expected %d questions, got %d", QuizSize, len(q.Questions))
	}
	for i, qq := range q.Questions {
		if qq.QuestionText == "" {
			return fmt.Errorf("questions[%d].question_text is required", i)
		}
		if qq.OptionA == "" || qq.OptionB == "" || qq.OptionC == "" || qq.OptionD == "" {
			return fmt.Errorf("questions[%d] needs four non-empty options", i)
		}
		switch qq.CorrectAnswer {
		case "A", "B", "C", "D":
		default:
			return fmt.Errorf("questions[%d].correct_answer %q is not one of A-D", i, qq.CorrectAnswer)
		}
	}
	return nil
}

// ProcessedNote is the process-note payload
type ProcessedNote struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Content   string   `json:"content"`
}

func (n ProcessedNote) Canonical() ProcessedNote {
	return ProcessedNote{
		Title:     strings.TrimSpace(n.Title),
		Summary:   strings.TrimSpace(n.Summary),
		KeyPoints: trimAll(n.KeyPoints),
		Content:   strings.TrimSpace(n.Content),
	}
}

func (n ProcessedNote) Validate() error {
	if n.Summary == "" {
		return errors.New("summary is required")
	}
	if n.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// trimAll trims every entry and drops empty ones
func trimAll(items []string) []string {
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
