package runner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Call records one tool invocation observed by a Fake.
type Call struct {
	// Name is the executed tool.
	Name string
	// Args are the tool arguments.
	Args []string
	// Stdin is true when the invocation received a stdin stream.
	Stdin bool
}

// String renders the call as a single command line for sequence assertions.
func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}

	return c.Name + " " + strings.Join(c.Args, " ")
}

// Response scripts the outcome of a matching invocation.
type Response struct {
	// Output is returned as trimmed stdout.
	Output string
	// Err fails the invocation.
	Err error
}

// Fake is a scripted Runner for tests. Responses are keyed by the rendered
// command line; unscripted invocations succeed with empty output.
type Fake struct {
	mu sync.Mutex

	// Responses maps rendered command lines to scripted outcomes.
	Responses map[string]Response
	// Calls lists every observed invocation in order.
	Calls []Call
	// OnCall, when set, observes every invocation. Tests use it to mimic
	// side effects such as files created by the real tool.
	OnCall func(Call)
}

// NewFake returns an empty scripted runner.
func NewFake() *Fake {
	return &Fake{Responses: make(map[string]Response)}
}

// Script sets the outcome for the given command line.
func (f *Fake) Script(commandLine string, response Response) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Responses[commandLine] = response
}

// CommandLines returns every observed invocation rendered as command lines.
func (f *Fake) CommandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines := make([]string, 0, len(f.Calls))
	for _, call := range f.Calls {
		lines = append(lines, call.String())
	}

	return lines
}

// Called reports whether any observed invocation starts with the given prefix.
func (f *Fake) Called(prefix string) bool {
	for _, line := range f.CommandLines() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}

	return false
}

// Run implements Runner.
func (f *Fake) Run(_ context.Context, name string, args ...string) error {
	_, err := f.record(name, args, false)
	return err
}

// Output implements Runner.
func (f *Fake) Output(_ context.Context, name string, args ...string) (string, error) {
	return f.record(name, args, false)
}

// RunWithStdin implements Runner. The stream is drained to mimic a consumer.
func (f *Fake) RunWithStdin(_ context.Context, stdin io.Reader, name string, args ...string) error {
	if stdin != nil {
		_, _ = io.Copy(io.Discard, stdin)
	}

	_, err := f.record(name, args, stdin != nil)

	return err
}

// record logs the call and resolves its scripted outcome.
func (f *Fake) record(name string, args []string, stdin bool) (string, error) {
	call := Call{Name: name, Args: args, Stdin: stdin}

	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	response, scripted := f.Responses[call.String()]
	onCall := f.OnCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(call)
	}

	if !scripted {
		return "", nil
	}

	if response.Err != nil {
		return "", fmt.Errorf("%s: %w", call.String(), response.Err)
	}

	return response.Output, nil
}
