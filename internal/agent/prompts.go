package agent

import (
	"fmt"
	"strings"

	"github.com/chadiek/gdd-voice/internal/transcript"
)

const (
	noticeWizardStarted = "GDD wizard activated. Answer each question, say next to move on, and say finish G D D when you are done."
	noticeWizardFailed  = "Sorry, I could not start the G D D wizard."
	noticeAllAnswered   = "All questions are completed. Say Finish G D D to generate the document."
	noticeGenerating    = "Generating your document. This can take a moment."
	noticeReady         = "Your Game Design Document is ready."
	noticeFinishFailed  = "Sorry, something went wrong while generating your document."
	noticeBusy          = "Still working on the previous reply."
)

var nudges = []string{
	"Go on.",
	"Tell me a bit more.",
	"Keep going, I'm listening.",
}

func critiquePrompt(question, answer string) string {
	return fmt.Sprintf(`You are a top lead game designer specialized in hybrid-casual free-to-play games.
You are mentoring a user through a game design document questionnaire.

Evaluate their answer to the question below and give:
- clear, constructive feedback
- suggestions to make it more market-ready
- hybrid-casual best practices that apply
- red flags or missing details

Do not rewrite their answer. Do not ask the next question. Only give expert critique,
in at most four short spoken sentences and without markdown.

QUESTION:
%s

USER ANSWER:
%s`, question, answer)
}

// looksIncomplete reports whether text reads like the speaker stopped
// mid-thought: very short, trailing off, or ending on a continuation word.
func looksIncomplete(text string) bool {
	t := strings.TrimSpace(text)
	if wordCount(t) < 3 {
		return true
	}
	if strings.HasSuffix(t, "...") || strings.HasSuffix(t, "…") || strings.HasSuffix(t, ",") {
		return true
	}
	return transcript.ContinuationLikely(t)
}

// answerLooksComplete decides between a critique and a nudge.
func answerLooksComplete(answer string, minWords int) bool {
	return wordCount(answer) >= minWords && !looksIncomplete(answer)
}
