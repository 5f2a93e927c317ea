package handlers

import (
	"fmt"
	"strings"
)

const tutorSystemPrompt = "You are a patient study assistant helping students learn. Be accurate and concise."

func processNotePrompt(title, content string, images int) string {
	var b strings.Builder
	b.WriteString("Turn the following study note into clean, well-organized study material.\n")
	if images > 0 {
		fmt.Fprintf(&b, "The note includes %d attached image(s); read any handwritten or printed text in them and merge it into the note.\n", images)
	}
	b.WriteString(`Respond with a JSON object only, in this exact shape:
{"title": "short title", "summary": "2-3 sentence summary", "key_points": ["point", "..."], "content": "the full cleaned-up note in markdown"}
`)
	if title != "" {
		fmt.Fprintf(&b, "\nTitle: %s\n", title)
	}
	if content != "" {
		fmt.Fprintf(&b, "\nNote:\n%s\n", content)
	}
	return b.String()
}

func generateQuizPrompt(topic, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a multiple-choice quiz with exactly 10 questions about %q.\n", topic)
	if content != "" {
		fmt.Fprintf(&b, "Base the questions on this material:\n%s\n", content)
	}
	b.WriteString(`Each question has four options and exactly one correct answer given as the letter A, B, C or D.
Respond with a JSON object only, in this exact shape:
{"questions": [{"question_text": "...", "option_a": "...", "option_b": "...", "option_c": "...", "option_d": "...", "correct_answer": "A", "explanation": "..."}]}`)
	return b.String()
}

func exploreTopicPrompt(topic string) string {
	return fmt.Sprintf(`Create a learning guide for someone who wants to learn %q.
Respond with a JSON object only, in this exact shape:
{"overview": "one paragraph", "tips": ["tip", "..."], "learningSteps": [{"title": "...", "description": "...", "resources": ["..."]}]}
Give 3-5 tips and 4-6 learning steps.`, topic)
}

func summarizeNotePrompt(title, content string) string {
	if title == "" {
		return fmt.Sprintf("Summarize the following note in 3 lines of plain text:\n\n%s", content)
	}
	return fmt.Sprintf("Summarize the note %q in 3 lines of plain text:\n\n%s", title, content)
}

const transcribePrompt = "Transcribe this audio recording word for word. Respond with the transcript text only."
