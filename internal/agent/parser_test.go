package agent

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		wantOK   bool
		wantName string
		wantArgs string
	}{
		{"!show: Breaking Bad", true, "show", "Breaking Bad"},
		{"!SHOW:  Breaking Bad ", true, "show", "Breaking Bad"},
		{"!please add show: Breaking Bad", true, "show", "Breaking Bad"},
		{"!x: a:b", true, "x", "a:b"},
		{"!movie: tt0111161", true, "movie", "tt0111161"},
		{"!stats", true, "stats", ""},
		{"!Status\r", true, "status", ""},
		{"!: nothing", true, "", "nothing"},
		{"!", true, "", ""},
		{"show: Breaking Bad", false, "", ""},
		{" !show: Breaking Bad", false, "", ""},
		{"", false, "", ""},
		{"#show: Breaking Bad", false, "", ""},
	}
	for _, tt := range tests {
		cmd, ok := ParseLine(tt.line, "!")
		if ok != tt.wantOK {
			t.Errorf("ParseLine(%q): expected ok=%v, got %v", tt.line, tt.wantOK, ok)
			continue
		}
		if !ok {
			continue
		}
		if cmd.Name != tt.wantName || cmd.Args != tt.wantArgs {
			t.Errorf("ParseLine(%q): expected {%q %q}, got {%q %q}",
				tt.line, tt.wantName, tt.wantArgs, cmd.Name, cmd.Args)
		}
	}
}

func TestParseLine_OtherPrefix(t *testing.T) {
	cmd, ok := ParseLine("#film: tt0068646", "#")
	if !ok || cmd.Name != "film" || cmd.Args != "tt0068646" {
		t.Fatalf("expected {film tt0068646}, got %+v ok=%v", cmd, ok)
	}
	if _, ok := ParseLine("!film: tt0068646", "#"); ok {
		t.Error("line with a different prefix should not parse")
	}
}

func TestParseCommands_MultiLine(t *testing.T) {
	text := "hello there\n!show: Dark\r\n\n!stats\nnot a command: x\n!movie: tt1375666"
	cmds := ParseCommands(text, "!")
	if len(cmds) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(cmds))
	}
	want := []string{"show", "stats", "movie"}
	for i, name := range want {
		if cmds[i].Name != name {
			t.Errorf("command %d: expected %s, got %s", i, name, cmds[i].Name)
		}
	}
	if cmds[0].Args != "Dark" {
		t.Errorf("expected args Dark, got %q", cmds[0].Args)
	}
	if cmds[0].Raw != "!show: Dark" {
		t.Errorf("expected raw line without CR, got %q", cmds[0].Raw)
	}
}

func TestParseCommands_NoCommands(t *testing.T) {
	if cmds := ParseCommands("just chatting\nnothing here", "!"); len(cmds) != 0 {
		t.Errorf("expected no commands, got %d", len(cmds))
	}
}

func TestParseLine_CaseAndWhitespaceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "name")
		args := rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9 :]{0,20}[A-Za-z0-9]`).Draw(t, "args")
		pad := rapid.StringMatching(` {0,3}`).Draw(t, "pad")
		upper := rapid.Bool().Draw(t, "upper")

		written := name
		if upper {
			written = strings.ToUpper(name)
		}
		cmd, ok := ParseLine("!"+written+":"+pad+args+pad, "!")
		if !ok {
			t.Fatalf("expected a command")
		}
		if cmd.Name != name {
			t.Fatalf("expected name %q, got %q", name, cmd.Name)
		}
		if cmd.Args != args {
			t.Fatalf("expected args %q, got %q", args, cmd.Args)
		}
	})
}

func TestParseCommands_OnlyPrefixedLinesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lines := rapid.SliceOf(rapid.StringMatching(`[!a-z][a-z :]{0,12}`)).Draw(t, "lines")
		want := 0
		for _, l := range lines {
			if strings.HasPrefix(l, "!") {
				want++
			}
		}
		if got := len(ParseCommands(strings.Join(lines, "\n"), "!")); got != want {
			t.Fatalf("expected %d commands, got %d", want, got)
		}
	})
}
