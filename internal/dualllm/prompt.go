package dualllm

import (
	"fmt"
	"strconv"
	"strings"
)

// substitute replaces literal `{{placeholder}}` tokens in template with
// their values. Per §9 prompts are untrusted strings: no templating
// language is used, only literal find/replace, and oversized templates
// are rejected outright rather than forwarded to an upstream LLM.
func substitute(template string, values map[string]string) (string, error) {
	if len(template) > maxPromptBytes {
		return "", fmt.Errorf("substitute: prompt exceeds %d bytes", maxPromptBytes)
	}
	out := template
	for k, v := range values {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out, nil
}

// parsedQuestion is the privileged LLM's structured multiple-choice reply.
type parsedQuestion struct {
	Question string
	Options  []string
}

// doneSentinel terminates the quarantine loop early (§4.F step 1).
const doneSentinel = "DONE"

// parsePrivilegedReply parses the privileged LLM's reply into either a
// termination signal or a QUESTION/OPTIONS block. ok is false when the
// reply is neither — callers must terminate gracefully and proceed to
// summarise whatever Q&A has accumulated (§4.F failure semantics).
func parsePrivilegedReply(reply string) (q parsedQuestion, done bool, ok bool) {
	if strings.Contains(reply, doneSentinel) {
		return parsedQuestion{}, true, true
	}

	lines := strings.Split(strings.TrimSpace(reply), "\n")
	var question string
	var options []string
	inOptions := false

	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "QUESTION:"):
			question = strings.TrimSpace(strings.TrimPrefix(line, "QUESTION:"))
		case strings.HasPrefix(line, "OPTIONS:"):
			inOptions = true
		case inOptions && line != "":
			idx := strings.IndexByte(line, ':')
			if idx < 0 {
				continue
			}
			if _, err := strconv.Atoi(strings.TrimSpace(line[:idx])); err != nil {
				continue
			}
			options = append(options, strings.TrimSpace(line[idx+1:]))
		}
	}

	if question == "" || len(options) == 0 {
		return parsedQuestion{}, false, false
	}
	return parsedQuestion{Question: question, Options: options}, false, true
}

// formatOptions renders the numbered OPTIONS block for the quarantined
// prompt's {{options}} placeholder.
func formatOptions(options []string) string {
	var b strings.Builder
	for i, opt := range options {
		fmt.Fprintf(&b, "%d: %s\n", i, opt)
	}
	return strings.TrimRight(b.String(), "\n")
}

// clampAnswer enforces §4.F step 2's bounds rule: an absent/non-integral
// answer, or one outside [0, n), picks the last option.
func clampAnswer(answer int, present bool, numOptions int) int {
	if !present || answer < 0 || answer >= numOptions {
		return numOptions - 1
	}
	return answer
}
