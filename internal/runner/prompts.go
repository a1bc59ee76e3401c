package runner

import (
	"fmt"
	"strings"
)

const (
	stepByStepInstruction = "Let's think step by step."
	conclusionInstruction = "Please write your final conclusion immediately after the '" + ConclusionMarker + "' section header."
	numeralsInstruction   = "Please use Arabic numerals (e.g., 1, 2, 3) when writing numbers, rather than spelling them out with alphabetic characters."
	yesNoInstruction      = "Please answer with either 'Yes' or 'No' when the question can clearly be answered using one of those options."
)

// cotPrompt builds the single chain-of-thought prompt.
func cotPrompt(question string, contextSentences []string) string {
	var b strings.Builder
	b.WriteString(question)
	writeContext(&b, contextSentences)
	for _, line := range []string{stepByStepInstruction, conclusionInstruction, numeralsInstruction, yesNoInstruction} {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

func knowledgePrompt(question string, contextSentences []string) string {
	var b strings.Builder
	b.WriteString(`You are a capable assistant. First, collect knowledge relevant to the user's question.
Use the MECE (Mutually Exclusive and Collectively Exhaustive) principle to categorize the information,
and list the main points.

[Question]
`)
	b.WriteString(question)
	writeContext(&b, contextSentences)
	b.WriteString(`

Instructions:
- Gather and list important facts or data related to the question.
- This is the information-gathering phase: do not give a conclusion or in-depth reasoning yet.
- Include numbers or specific proper nouns as necessary.
- Provide a reference or source for each piece of information.
`)
	return b.String()
}

func reasoningPrompt(question, knowledge string) string {
	return fmt.Sprintf(`You are a capable assistant. Use the information below to reason about the question.

[Question]
%s

[Knowledge from Step 1]
%s

Instructions:
1. Structure the knowledge from Step 1 hierarchically into Main Points and Sub Points.
2. Reason step by step (Chain of Thought) up to the point just before a final conclusion.
3. Do not give the final conclusion yet. Make clear which evidence supports the reasoning,
   how the data is compared or evaluated, and which Sub Points or Supporting Data sit under each Main Point (Pyramid Principle).
`, question, knowledge)
}

func finalAnswerPrompt(question, knowledge, reasoning, answerType string) string {
	p := fmt.Sprintf(`You are a capable assistant. Use the following information to arrive at the final answer.

[Question]
%s

[Knowledge from Step 1]
%s

[Reasoning from Step 2]
%s

Instructions:
- Summarize the knowledge and reasoning following the Pyramid Principle (Main Point, Sub Points, Supporting Data) and give the final conclusion.
- Present the final answer concisely, along with the key reasons that lead to it.
- %s
- %s
`, question, knowledge, reasoning, numeralsInstruction, conclusionInstruction)
	if answerType == "boolean" {
		p += "\n" + yesNoInstruction
	}
	return p
}

func extractionPrompt(question, fullAnswer string) string {
	return fmt.Sprintf(`You are given a complete answer that includes detailed reasoning and a final answer.
Extract and output only the final answer without any additional commentary or explanation.
The question is: %s

Instructions:
- Analyze the complete answer below.
- Identify the '%s' section and output only the content immediately following it.
- Do not include any extra text, commentary, or explanation in your response.

[Complete Answer]
%s
`, question, ConclusionMarker, fullAnswer)
}

func writeContext(b *strings.Builder, sentences []string) {
	if len(sentences) == 0 {
		return
	}
	b.WriteString("\n\n[Context]\n")
	for _, s := range sentences {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}
}
