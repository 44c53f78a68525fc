package dap

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-dap"
)

// TestClientCapabilities verifies that the capabilities recorded from the
// initialize response are what configurationDone gating reads.
func TestClientCapabilities(t *testing.T) {
	c := &Client{capabilities: dap.Capabilities{SupportsConfigurationDoneRequest: true}}
	if !c.Capabilities().SupportsConfigurationDoneRequest {
		t.Error("expected configurationDone support to be reported")
	}

	empty := &Client{}
	if empty.Capabilities().SupportsConfigurationDoneRequest {
		t.Error("expected no configurationDone support before initialize")
	}
}

// TestWaitForLaunchResponse verifies collection of the deferred launch
// response: success, adapter-reported failure, and timeout.
func TestWaitForLaunchResponse(t *testing.T) {
	c := &Client{ctx: context.Background()}

	ch := make(chan dap.Message, 1)
	ch <- &dap.LaunchResponse{Response: dap.Response{Success: true}}
	if _, err := c.WaitForLaunchResponse(ch, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ch = make(chan dap.Message, 1)
	ch <- &dap.ErrorResponse{Response: dap.Response{Message: "launch rejected"}}
	if _, err := c.WaitForLaunchResponse(ch, time.Second); err == nil {
		t.Error("expected error for adapter-reported failure")
	}

	ch = make(chan dap.Message, 1)
	if _, err := c.WaitForLaunchResponse(ch, 10*time.Millisecond); err == nil {
		t.Error("expected timeout error for missing response")
	}
}

// TestWaitForAttachResponse verifies collection of the deferred attach
// response.
func TestWaitForAttachResponse(t *testing.T) {
	c := &Client{ctx: context.Background()}

	ch := make(chan dap.Message, 1)
	ch <- &dap.AttachResponse{Response: dap.Response{Success: true}}
	if _, err := c.WaitForAttachResponse(ch, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ch = make(chan dap.Message, 1)
	ch <- &dap.AttachResponse{Response: dap.Response{Success: false, Message: "no such process"}}
	if _, err := c.WaitForAttachResponse(ch, time.Second); err == nil {
		t.Error("expected error for unsuccessful attach")
	}
}
