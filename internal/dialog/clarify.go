package dialog

import "strings"

// MaxClarificationAttempts bounds how many times the assistant may
// answer a turn with a question. Past the cap the pending message and
// the partial answers go to the finance resolver as-is, which either
// processes them with reasonable assumptions or explains why it cannot.
const MaxClarificationAttempts = 3

// clarificationQuestion renders the question sent back to the user for
// a pending clarification.
func clarificationQuestion(c ClarificationContext) string {
	if s := strings.TrimSpace(c.Suggestion); s != "" {
		return s
	}
	if m := strings.TrimSpace(c.MissingInfo); m != "" {
		return "Só preciso de mais um detalhe: " + m + ". Pode me dizer?"
	}
	return "Não entendi direito. Pode explicar de outra forma?"
}

// mergeClarification folds the user's answer into the message that
// originally triggered the clarification round.
func mergeClarification(c ClarificationContext, answer string) string {
	pending := strings.TrimSpace(c.PendingMessage)
	answer = strings.TrimSpace(answer)
	if pending == "" {
		return answer
	}
	if answer == "" {
		return pending
	}
	return pending + " " + answer
}
