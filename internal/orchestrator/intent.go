package orchestrator

import "regexp"

// Intent is a best-effort guess at what the user wants from free text.
type Intent struct {
	// WantsAction says the utterance looks like a document-editing request,
	// used to force tool_choice required on one retry when the model
	// unexpectedly answered without tool calls.
	WantsAction bool

	// NeedsSelection says the request only makes sense against a non-empty
	// selection.
	NeedsSelection bool
}

// IntentClassifier guesses user intent from the raw utterance. It is a
// tunable policy, not a contract; swap implementations freely.
type IntentClassifier interface {
	Classify(input string) Intent
}

// Verb lists in both supported UI languages. False positives only cost an
// extra retry or an early "select text first" hint, so these stay loose.
var (
	actionVerbs = regexp.MustCompile(`(?i)polish|improve|rewrite|revise|translate|delete|remove|insert|add|append|comment|annotate|draft|continue|润色|改写|修改|优化|翻译|删除|移除|插入|添加|续写|批注|注释|替换`)

	selectionVerbs = regexp.MustCompile(`(?i)polish|improve|rewrite|revise|translate|delete|remove|comment|annotate|this|润色|改写|修改|优化|翻译|删除|移除|批注|注释|替换|这段|选中`)
)

// RegexClassifier is the default classifier: verb lists in English and
// Chinese.
type RegexClassifier struct{}

func (RegexClassifier) Classify(input string) Intent {
	return Intent{
		WantsAction:    actionVerbs.MatchString(input),
		NeedsSelection: actionVerbs.MatchString(input) && selectionVerbs.MatchString(input),
	}
}

// NopClassifier disables the heuristics entirely.
type NopClassifier struct{}

func (NopClassifier) Classify(string) Intent { return Intent{} }
