package menu

import (
	"strings"
	"testing"
)

func twoStepMenu(sent *[]string) []*Node {
	return []*Node{
		{
			Key:    "first",
			Prompt: func(m *Menu) string { return "first?" },
			Handle: func(m *Menu, input string) string {
				if input == "again" {
					return "first"
				}
				m.Values["got"] = input
				return "second"
			},
		},
		{
			Key:    "second",
			Prompt: func(m *Menu) string { return "second?" },
			Handle: func(m *Menu, input string) string {
				return End
			},
		},
	}
}

func collect(sent *[]string) func(string) {
	return func(msg string) { *sent = append(*sent, msg) }
}

func TestMenu_WalksNodes(t *testing.T) {
	var sent []string
	m := New(twoStepMenu(&sent), collect(&sent))

	m.Start("first")
	if m.Current() != "first" {
		t.Fatalf("current = %q", m.Current())
	}
	if len(sent) != 1 || sent[0] != "first?" {
		t.Fatalf("start prompt: %v", sent)
	}

	m.Input("hello")
	if m.Current() != "second" {
		t.Fatalf("current = %q after input", m.Current())
	}
	if m.Values["got"] != "hello" {
		t.Errorf("values not carried: %v", m.Values)
	}

	m.Input("done")
	if !m.Done() {
		t.Error("menu not done after End")
	}
}

func TestMenu_RepeatShowsPromptAgain(t *testing.T) {
	var sent []string
	m := New(twoStepMenu(&sent), collect(&sent))
	m.Start("first")

	m.Input("again")
	if m.Current() != "first" {
		t.Fatalf("current = %q, want first", m.Current())
	}
	prompts := 0
	for _, s := range sent {
		if strings.Contains(s, "first?") {
			prompts++
		}
	}
	if prompts != 2 {
		t.Errorf("first prompt shown %d times, want 2", prompts)
	}
}

func TestMenu_TransitionHookOrder(t *testing.T) {
	var sent []string
	var transitions []string
	m := New(twoStepMenu(&sent), collect(&sent))
	m.OnTransition = func(from, to string) {
		transitions = append(transitions, from+">"+to)
	}
	finished := false
	m.OnFinish = func() {
		finished = true
		if len(transitions) == 0 || transitions[len(transitions)-1] != "second>"+End {
			t.Errorf("OnFinish ran before the End transition: %v", transitions)
		}
	}

	m.Start("first")
	m.Input("x")
	m.Input("y")

	if !finished {
		t.Fatal("OnFinish not called")
	}
	want := []string{"first>second", "second>" + End}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestMenu_UnknownStartFinishes(t *testing.T) {
	var sent []string
	m := New(twoStepMenu(&sent), collect(&sent))
	m.Start("nope")
	if !m.Done() {
		t.Error("menu should finish on unknown start node")
	}
}

func TestMenu_InputAfterDoneIgnored(t *testing.T) {
	var sent []string
	m := New(twoStepMenu(&sent), collect(&sent))
	m.Start("first")
	m.Input("x")
	m.Input("y")
	before := len(sent)
	m.Input("z")
	if len(sent) != before {
		t.Error("finished menu still produced output")
	}
}
