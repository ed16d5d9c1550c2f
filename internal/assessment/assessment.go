// Package assessment checks knowledge-check answers and coding challenge submissions.
//
// Checkers only report outcomes. Recording a pass against a topic is the
// caller's job.
package assessment

import (
	"regexp"
	"strings"

	"github.com/p-n-ai/pai-academy/internal/catalog"
)

// Outcome is the verdict of a single check.
type Outcome string

const (
	Pass Outcome = "pass"
	Fail Outcome = "fail"
)

// Result is shared by the quiz and code checkers.
type Result struct {
	Outcome     Outcome `json:"outcome"`
	Explanation string  `json:"explanation,omitempty"`
}

// Passed reports whether the result is a pass.
func (r Result) Passed() bool {
	return r.Outcome == Pass
}

// CheckQuiz passes iff selection is the correct option. Callers reject an
// empty selection before calling.
func CheckQuiz(selection int, quiz catalog.MiniQuiz) Result {
	if selection == quiz.CorrectIndex {
		return Result{Outcome: Pass, Explanation: quiz.Explanation}
	}
	return Result{Outcome: Fail, Explanation: quiz.Explanation}
}

// CheckCode passes iff the trimmed submission contains a case-insensitive match
// of the challenge's solution pattern. The code is never executed, so this
// checks the shape of an answer and not its behaviour.
func CheckCode(code string, challenge catalog.CodingChallenge) Result {
	re, err := compilePattern(challenge.SolutionPattern)
	if err != nil {
		return Result{Outcome: Fail, Explanation: "challenge pattern is invalid"}
	}
	if re.MatchString(strings.TrimSpace(code)) {
		return Result{Outcome: Pass, Explanation: challenge.Explanation}
	}
	return Result{Outcome: Fail, Explanation: "Your code does not satisfy the challenge requirements."}
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
