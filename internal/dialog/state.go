// Package dialog orchestrates a conversation turn: it routes the
// message, drives clarification rounds and hands off to the finance
// and setup controllers.
package dialog

// Route names the controller that owns the current turn.
type Route string

const (
	RouteFinance Route = "finance"
	RouteSetup   Route = "setup"
)

// Intent taxonomy shared by the router and the finance resolver.
const (
	IntentRegistration         = "registration"
	IntentQueryTotal           = "query_total"
	IntentQueryCategory        = "query_category"
	IntentQueryLastTransaction = "query_last_transaction"
	IntentQueryLimits          = "query_limits"
	IntentListCategories       = "list_categories"
	IntentAddCategory          = "add_category"
	IntentRemoveCategory       = "remove_category"
	IntentRemoveTransaction    = "remove_transaction"
	IntentRemoveLimit          = "remove_limit"
	IntentHelp                 = "help"
	IntentSetup                = "setup"
	IntentOutOfScope           = "out_of_scope"
	IntentNeedsClarification   = "needs_clarification"
)

// ClarificationContext carries what is still missing when the turn
// ends in a question back to the user.
type ClarificationContext struct {
	MissingInfo    string `json:"missing_info"`
	AmbiguousField string `json:"ambiguous_field"`
	Suggestion     string `json:"suggestion"`
	// PendingMessage is the original user message the clarification
	// round is trying to complete.
	PendingMessage string `json:"pending_message"`
}

// State is the dialog memory the caller carries between turns. The
// zero value is a fresh conversation.
type State struct {
	Route                 Route                `json:"route"`
	Intent                string               `json:"intent"`
	Confidence            float64              `json:"confidence"`
	NeedsClarification    bool                 `json:"needs_clarification"`
	Clarification         ClarificationContext `json:"clarification"`
	ClarificationAttempts int                  `json:"clarification_attempts"`
}

// Reset clears everything but keeps the struct reusable by value.
func (s *State) Reset() {
	*s = State{}
}
