package scenarios

import (
	"fmt"
	"regexp"
	"strings"
)

// Check validates an outcome against its expectation and returns one
// message per unmet predicate. An empty result means the run passed.
func Check(expect Expect, out Outcome) []string {
	if out.TimedOut {
		return []string{"timed out"}
	}

	var failures []string
	if expect.ExitCode != nil {
		switch {
		case out.ExitCode == nil:
			failures = append(failures, fmt.Sprintf("expected exit_code %d, observed none", *expect.ExitCode))
		case *out.ExitCode != *expect.ExitCode:
			failures = append(failures, fmt.Sprintf("expected exit_code %d, observed %d", *expect.ExitCode, *out.ExitCode))
		}
	}
	if expect.ExitSignal != 0 && out.Signal != expect.ExitSignal {
		failures = append(failures, fmt.Sprintf("expected exit_signal %d, observed %d", expect.ExitSignal, out.Signal))
	}

	stdout := string(out.Stdout)
	stderr := string(out.Stderr)
	failures = append(failures, checkStream("stdout", stdout, expect.StdoutContainsAll, expect.StdoutContainsAny, expect.StdoutRegexAll, expect.StdoutRegexAny)...)
	failures = append(failures, checkStream("stderr", stderr, expect.StderrContainsAll, expect.StderrContainsAny, expect.StderrRegexAll, expect.StderrRegexAny)...)
	return failures
}

func checkStream(name, text string, containsAll, containsAny, regexAll, regexAny []string) []string {
	var failures []string
	for _, s := range containsAll {
		if !strings.Contains(text, s) {
			failures = append(failures, fmt.Sprintf("%s missing substring %q", name, s))
		}
	}
	if len(containsAny) > 0 {
		found := false
		for _, s := range containsAny {
			if strings.Contains(text, s) {
				found = true
				break
			}
		}
		if !found {
			failures = append(failures, fmt.Sprintf("%s missing any of %q", name, containsAny))
		}
	}
	for _, pattern := range regexAll {
		re, err := regexp.Compile(pattern)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s regex %q is invalid: %v", name, pattern, err))
			continue
		}
		if !re.MatchString(text) {
			failures = append(failures, fmt.Sprintf("%s regex %q did not match", name, pattern))
		}
	}
	if len(regexAny) > 0 {
		matched := false
		for _, pattern := range regexAny {
			re, err := regexp.Compile(pattern)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s regex %q is invalid: %v", name, pattern, err))
				continue
			}
			if re.MatchString(text) {
				matched = true
				break
			}
		}
		if !matched {
			failures = append(failures, fmt.Sprintf("%s regex any of %q did not match", name, regexAny))
		}
	}
	return failures
}
