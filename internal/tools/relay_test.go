package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/localbrain/voicecore/pkg/provider/channel"
)

func TestRelay_RegisterAndExecute(t *testing.T) {
	r := NewRelay()
	err := r.Register(channel.ToolDefinition{Name: "echo"}, func(_ context.Context, args string) (string, error) {
		return args, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	out, err := r.Execute(context.Background(), "echo", `{"v":1}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != `{"v":1}` {
		t.Errorf("out = %q", out)
	}
}

func TestRelay_UnknownTool(t *testing.T) {
	r := NewRelay()
	if _, err := r.Execute(context.Background(), "missing", "{}"); err == nil {
		t.Fatal("expected an error for an unknown tool")
	}
}

func TestRelay_HandlerErrorWrapped(t *testing.T) {
	r := NewRelay()
	sentinel := errors.New("backend down")
	_ = r.Register(channel.ToolDefinition{Name: "flaky"}, func(context.Context, string) (string, error) {
		return "", sentinel
	})

	_, err := r.Execute(context.Background(), "flaky", "{}")
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
}

func TestRelay_RegisterValidation(t *testing.T) {
	r := NewRelay()
	if err := r.Register(channel.ToolDefinition{}, func(context.Context, string) (string, error) { return "", nil }); err == nil {
		t.Error("expected an error for empty name")
	}
	if err := r.Register(channel.ToolDefinition{Name: "x"}, nil); err == nil {
		t.Error("expected an error for nil handler")
	}
}

func TestRelay_DefinitionsSorted(t *testing.T) {
	r := NewRelay()
	noop := func(context.Context, string) (string, error) { return "", nil }
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_ = r.Register(channel.ToolDefinition{Name: name}, noop)
	}

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("got %d definitions, want 3", len(defs))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Errorf("defs[%d] = %q, want %q", i, d.Name, want[i])
		}
	}
}

func TestTransport_IsValid(t *testing.T) {
	if !TransportStdio.IsValid() || !TransportStreamableHTTP.IsValid() {
		t.Error("expected built-in transports to be valid")
	}
	if Transport("websocket").IsValid() {
		t.Error("unexpected transport accepted")
	}
}
