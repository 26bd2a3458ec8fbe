package main

import "strings"

// CommandKind classifies a line typed at the prompt.
type CommandKind int

const (
	CommandEmpty CommandKind = iota
	CommandQuit
	CommandSearch
	CommandTerminal
	CommandQuery
)

// Command is a parsed input line.
type Command struct {
	Kind CommandKind
	Arg  string
}

const (
	searchPrefix   = "search:"
	terminalPrefix = "ter:"
)

// ParseInput applies the caller loop conventions: "bye" and "exit" quit,
// "search: <q>" queries memory directly, "ter: <cmd>" runs a raw shell
// command, anything else goes to the graph.
func ParseInput(line string) Command {
	s := strings.TrimSpace(line)
	lower := strings.ToLower(s)

	switch {
	case s == "":
		return Command{Kind: CommandEmpty}
	case lower == "bye" || lower == "exit":
		return Command{Kind: CommandQuit}
	case strings.HasPrefix(lower, searchPrefix):
		return prefixed(CommandSearch, s[len(searchPrefix):])
	case strings.HasPrefix(lower, terminalPrefix):
		return prefixed(CommandTerminal, s[len(terminalPrefix):])
	}
	return Command{Kind: CommandQuery, Arg: s}
}

func prefixed(kind CommandKind, rest string) Command {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return Command{Kind: CommandEmpty}
	}
	return Command{Kind: kind, Arg: rest}
}
