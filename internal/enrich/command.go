package enrich

import "strings"

// Command lines suggested in next actions. root is the pack path as the
// user typed it.

func InitCommand(binary, root string) string {
	return "bman init " + ShellArg(binary) + " " + ShellArg(root)
}

func ValidateCommand(root string) string {
	return "bman validate " + ShellArg(root)
}

func PlanCommand(root string) string {
	return "bman plan " + ShellArg(root)
}

func ApplyCommand(root string) string {
	return "bman apply " + ShellArg(root)
}

func StatusCommand(root string) string {
	return "bman status " + ShellArg(root)
}

// RerunCommand forces a rerun of the given scenarios on the next apply.
func RerunCommand(root string, scenarioIDs []string) string {
	var b strings.Builder
	b.WriteString(ApplyCommand(root))
	for _, id := range scenarioIDs {
		b.WriteString(" --rerun-scenario-id ")
		b.WriteString(ShellArg(id))
	}
	return b.String()
}

// ShellArg quotes s for a POSIX shell when needed. An empty root is ".".
func ShellArg(s string) string {
	if s == "" {
		return "."
	}
	if strings.ContainsAny(s, " \t\n'\"$`\\*?;&|<>()") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}
