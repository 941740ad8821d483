package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/agentrt/browseragent/chatmodel"
)

// manualModel drives the agent loop by hand: it prints the rendered
// step messages to out and reads the operator's decision (the same
// {"thinking":...,"actions":[...]} envelope agentloop.ParseDecision
// accepts) as one line from in. It satisfies chatmodel.Model without
// pulling in any concrete provider SDK — those are out of scope here
// (spec §1) and are wired by the embedding application, not this CLI.
type manualModel struct {
	in  *bufio.Reader
	out io.Writer
}

func newManualModel(in io.Reader, out io.Writer) *manualModel {
	return &manualModel{in: bufio.NewReader(in), out: out}
}

func (m *manualModel) Invoke(ctx context.Context, msgs []chatmodel.Message, opts chatmodel.InvokeOptions) (*chatmodel.Completion, error) {
	fmt.Fprintln(m.out, "---- step messages ----")
	for _, msg := range msgs {
		fmt.Fprintf(m.out, "[%s]\n", msg.Role)
		for _, part := range msg.Content {
			switch part.Type {
			case chatmodel.PartText:
				fmt.Fprintln(m.out, part.Text)
			case chatmodel.PartImage:
				fmt.Fprintf(m.out, "<image %d bytes, %s>\n", len(part.ImageData), part.MimeType)
			}
		}
	}
	fmt.Fprint(m.out, "decision (JSON action envelope)> ")

	line, err := m.in.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("manualmodel: read decision: %w", err)
	}
	return &chatmodel.Completion{Text: line, StopReason: chatmodel.StopEndTurn}, nil
}
