package agent

import (
	"strings"

	"dmcontrol/internal/domain"
)

// ParseCommands extracts every command line from a message body. Text is
// split into lines; only lines starting with prefix are commands.
func ParseCommands(text, prefix string) []domain.Command {
	var cmds []domain.Command
	for _, line := range strings.Split(text, "\n") {
		if cmd, ok := ParseLine(line, prefix); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// ParseLine tokenizes a single line of the form
//
//	<prefix><free text> <name>[:<args>]
//
// and reports whether it was a command line at all.
//
//   - An empty line, or one whose first character is not prefix, is not a command.
//   - The part before the first colon is the head; its last whitespace-separated
//     word is the command name, lower-cased ("!please add show: x" is "show").
//   - Everything after the first colon is the argument, trimmed. Further colons
//     are kept ("!movie: a:b" has args "a:b"). No colon means no arguments.
//   - A head with no words ("!: x", "!") yields an empty name, which the
//     dispatcher treats as unknown.
func ParseLine(line, prefix string) (domain.Command, bool) {
	line = strings.TrimSuffix(line, "\r")
	if prefix == "" || line == "" || !strings.HasPrefix(line, prefix) {
		return domain.Command{}, false
	}

	head, tail, _ := strings.Cut(line[len(prefix):], ":")

	var name string
	if words := strings.Fields(head); len(words) > 0 {
		name = strings.ToLower(words[len(words)-1])
	}

	return domain.Command{
		Name: name,
		Args: strings.TrimSpace(tail),
		Raw:  line,
	}, true
}
