package normalize

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxSummaryBytes = 400

// Topic categories used for offline content
const (
	CategoryProgramming = "programming"
	CategoryDesign      = "design"
	CategoryLanguage    = "language"
	CategoryScience     = "science"
	CategoryGeneric     = "generic"
)

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryProgramming, []string{"programming", "code", "coding", "python", "javascript", "typescript", "java", "golang", "rust", "react", "sql", "algorithm", "software", "web development", "api", "database"}},
	{CategoryDesign, []string{"design", "ui", "ux", "figma", "typography", "color theory", "illustration", "graphic", "layout", "branding"}},
	{CategoryLanguage, []string{"language", "spanish", "french", "german", "english", "japanese", "chinese", "italian", "grammar", "vocabulary", "pronunciation"}},
	{CategoryScience, []string{"science", "physics", "chemistry", "biology", "math", "mathematics", "calculus", "algebra", "astronomy", "geology", "statistics"}},
}

// Categorize matches a topic against the fixed taxonomy
func Categorize(topic string) string {
	words := strings.FieldsFunc(strings.ToLower(topic), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	padded := " " + strings.Join(words, " ") + " "

	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				return entry.category
			}
		}
	}
	return CategoryGeneric
}

type stepTemplate struct {
	title       string
	description string
}

var topicSteps = map[string][]stepTemplate{
	CategoryProgramming: {
		{"Set up your environment", "Install the tools needed for %s and run a minimal example end to end."},
		{"Learn the core syntax", "Work through the basic constructs of %s: values, control flow and functions."},
		{"Build small exercises", "Solve short practice problems that use %s every day."},
		{"Create a project", "Build a small but complete project with %s and publish it."},
		{"Read and review code", "Study well-written %s code and compare it with your own."},
	},
	CategoryDesign: {
		{"Study the fundamentals", "Learn the principles behind %s: hierarchy, contrast, spacing and alignment."},
		{"Collect references", "Gather examples of strong %s work and note what makes them effective."},
		{"Recreate and remix", "Reproduce a few reference pieces to build %s technique."},
		{"Design your own piece", "Apply %s to an original brief from start to finish."},
		{"Get critique", "Share your %s work and iterate on feedback."},
	},
	CategoryLanguage: {
		{"Learn essential vocabulary", "Memorize the most frequent words and phrases in %s with spaced repetition."},
		{"Understand basic grammar", "Cover sentence structure and the most common verb forms in %s."},
		{"Listen daily", "Listen to beginner-friendly %s audio for a few minutes each day."},
		{"Practice speaking", "Speak %s aloud, shadow native speakers and record yourself."},
		{"Read and write", "Read short texts and write simple journal entries in %s."},
	},
	CategoryScience: {
		{"Review prerequisites", "Refresh the background knowledge %s builds on."},
		{"Master key concepts", "Study the central definitions, laws and models of %s."},
		{"Work through problems", "Solve worked examples and practice problems in %s."},
		{"Connect to the real world", "Find experiments or observations that demonstrate %s."},
		{"Explain it back", "Teach the main ideas of %s in your own words to check understanding."},
	},
	CategoryGeneric: {
		{"Get an overview", "Read an introductory resource to map out what %s covers."},
		{"Identify key concepts", "List the most important ideas and terms in %s."},
		{"Study in depth", "Pick one key concept of %s at a time and study it thoroughly."},
		{"Practice actively", "Use flashcards, summaries and quizzes to recall %s."},
		{"Apply and reflect", "Apply %s to a real problem and reflect on what you learned."},
	},
}

var topicTips = map[string][]string{
	CategoryProgramming: {"Write code every day, even if only for a few minutes.", "Read error messages carefully; they usually point at the problem.", "Use version control from the very first project."},
	CategoryDesign:      {"Keep a swipe file of designs you admire.", "Limit your palette and type choices while learning.", "Ask for feedback early and often."},
	CategoryLanguage:    {"Consistency beats intensity: practice a little every day.", "Learn phrases, not just single words.", "Don't be afraid of making mistakes when speaking."},
	CategoryScience:     {"Draw diagrams to visualize processes.", "Always check units and orders of magnitude.", "Explain concepts aloud to test your understanding."},
	CategoryGeneric:     {"Break the topic into small, manageable chunks.", "Use active recall instead of re-reading.", "Review material at spaced intervals."},
}

// FallbackTopic builds a schema-valid exploration from templates
func FallbackTopic(topic string) TopicExploration {
	topic = displayTopic(topic)
	category := Categorize(topic)

	out := TopicExploration{
		Overview: fmt.Sprintf("%s is a %s topic. This learning path walks through the fundamentals first and then builds toward hands-on practice.", topic, categoryLabel(category)),
		Tips:     append([]string(nil), topicTips[category]...),
	}
	for _, step := range topicSteps[category] {
		out.LearningSteps = append(out.LearningSteps, LearningStep{
			Title:       step.title,
			Description: fmt.Sprintf(step.description, topic),
		})
	}
	return out
}

func categoryLabel(category string) string {
	if category == CategoryGeneric {
		return "broad"
	}
	return category
}

var quizTemplates = []struct {
	question string
	options  [4]string
}{
	{"What is the best first step when starting to learn %s?", [4]string{"Get an overview of the main ideas", "Memorize advanced details", "Skip the basics entirely", "Avoid any practice"}},
	{"Which study technique helps you retain %s the longest?", [4]string{"Cramming the night before", "Spaced repetition", "Reading once quickly", "Highlighting everything"}},
	{"How can you check that you really understand %s?", [4]string{"Re-read your notes", "Copy the textbook", "Explain it in your own words", "Skim the headings"}},
	{"What should you do when a concept in %s is confusing?", [4]string{"Ignore it", "Move on permanently", "Guess and hope", "Break it into smaller parts"}},
	{"Why is practice important when learning %s?", [4]string{"It turns knowledge into skill", "It replaces understanding", "It is only for experts", "It has no benefit"}},
	{"Which habit makes progress in %s more consistent?", [4]string{"Studying only when motivated", "Short daily sessions", "One long session per month", "Studying without goals"}},
	{"What is a good way to review %s?", [4]string{"Never review", "Review only once", "Use active recall with questions", "Read passively"}},
	{"How should mistakes be treated when studying %s?", [4]string{"Hidden and forgotten", "Avoided at all costs", "Blamed on the material", "Used as feedback to improve"}},
	{"What helps connect new %s knowledge to what you already know?", [4]string{"Relating it to familiar examples", "Studying in isolation", "Memorizing without context", "Avoiding questions"}},
	{"What is a sign of mastery in %s?", [4]string{"Recognizing the terms", "Having read about it", "Owning many books on it", "Applying it to new problems"}},
}

// FallbackQuiz builds exactly QuizSize generic study questions about topic
func FallbackQuiz(topic string) Quiz {
	topic = displayTopic(topic)
	answers := []string{"A", "B", "C", "D", "A", "B", "C", "D", "A", "D"}

	quiz := Quiz{Questions: make([]QuizQuestion, QuizSize)}
	for i := 0; i < QuizSize; i++ {
		tmpl := quizTemplates[i%len(quizTemplates)]
		quiz.Questions[i] = QuizQuestion{
			QuestionText:  fmt.Sprintf(tmpl.question, topic),
			OptionA:       tmpl.options[0],
			OptionB:       tmpl.options[1],
			OptionC:       tmpl.options[2],
			OptionD:       tmpl.options[3],
			CorrectAnswer: answers[i],
			Explanation:   "This question was generated offline as a general study-skills check.",
		}
	}
	return quiz
}

// FallbackNote derives a processed note from the note's own text
func FallbackNote(title, content string) ProcessedNote {
	content = strings.TrimSpace(content)
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled note"
	}
	if content == "" {
		return ProcessedNote{
			Title:   title,
			Summary: "This note has no text content yet.",
			Content: "This note has no text content yet.",
		}
	}

	sentences := splitSentences(content)
	summary := strings.Join(sentences[:min(2, len(sentences))], " ")
	summary = truncate(summary, maxSummaryBytes)

	var keyPoints []string
	for _, s := range sentences {
		if len(keyPoints) == 5 {
			break
		}
		if len(s) > 10 {
			keyPoints = append(keyPoints, s)
		}
	}

	return ProcessedNote{
		Title:     title,
		Summary:   summary,
		KeyPoints: keyPoints,
		Content:   content,
	}
}

// truncate shortens s to at most n bytes on a rune boundary
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.TrimSpace(s[:n]) + "..."
}

// FallbackSummary is the plain-text counterpart of FallbackNote
func FallbackSummary(content string) string {
	return FallbackNote("", content).Summary
}

// splitSentences breaks text on sentence punctuation and newlines
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()

	return sentences
}

func displayTopic(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "this topic"
	}
	return topic
}
