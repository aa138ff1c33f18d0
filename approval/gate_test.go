package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_ProposeAndResolveSingleCall(t *testing.T) {
	g := NewGate()

	verdictCh := g.Propose("req-1", "claude", "call-1")
	assert.Equal(t, 1, g.PendingCount("req-1"))

	n := g.Resolve(Decision{RequestID: "req-1", TargetID: "claude", ToolCallID: "call-1", Verdict: Approve})
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, g.PendingCount("req-1"))
	assert.Equal(t, Approve, <-verdictCh)
}

func TestGate_ProposeSameCallTwiceSharesFuture(t *testing.T) {
	g := NewGate()

	first := g.Propose("req-1", "claude", "call-1")
	second := g.Propose("req-1", "claude", "call-1")
	assert.Equal(t, 1, g.PendingCount("req-1"))

	g.Resolve(Decision{RequestID: "req-1", TargetID: "claude", ToolCallID: "call-1", Verdict: Deny})
	assert.Equal(t, Deny, <-first)
	select {
	case <-second:
		t.Fatal("shared future must deliver one verdict, not two")
	default:
	}
}

func TestGate_TargetScoping(t *testing.T) {
	g := NewGate()

	claudeCh := g.Propose("req-1", "claude", "call-a")
	gptCh := g.Propose("req-1", "gpt", "call-b")

	n := g.Resolve(Decision{RequestID: "req-1", TargetID: "claude", ToolCallID: AllPendingCalls, Verdict: Approve})
	assert.Equal(t, 1, n)
	assert.Equal(t, Approve, <-claudeCh)

	// The other target's call is untouched.
	assert.Equal(t, 1, g.PendingCount("req-1"))
	select {
	case <-gptCh:
		t.Fatal("decision scoped to claude must not settle gpt's call")
	default:
	}
}

func TestGate_AllTargetsResolvesEverythingPending(t *testing.T) {
	g := NewGate()

	chans := []<-chan Verdict{
		g.Propose("req-1", "claude", "call-a"),
		g.Propose("req-1", "gpt", "call-b"),
		g.Propose("req-1", "local", "call-c"),
	}
	otherCh := g.Propose("req-2", "claude", "call-z")

	n := g.Resolve(Decision{RequestID: "req-1", TargetID: AllTargets, ToolCallID: AllPendingCalls, Verdict: Approve})
	assert.Equal(t, 3, n)
	for _, ch := range chans {
		assert.Equal(t, Approve, <-ch)
	}

	// Other requests stay pending.
	assert.Equal(t, 1, g.PendingCount("req-2"))
	select {
	case <-otherCh:
		t.Fatal("decision for req-1 leaked into req-2")
	default:
	}
}

// Providers assign call ids without knowledge of each other, so two
// concurrent requests may propose the same id. Each request keeps its own
// future and its own decisions.
func TestGate_SameCallIDAcrossRequestsStaysSeparate(t *testing.T) {
	g := NewGate()

	firstCh := g.Propose("req-1", "claude", "call-1")
	secondCh := g.Propose("req-2", "gpt", "call-1")

	require.Equal(t, 1, g.PendingCount("req-1"))
	require.Equal(t, 1, g.PendingCount("req-2"))

	n := g.Resolve(Decision{RequestID: "req-2", TargetID: "gpt", ToolCallID: "call-1", Verdict: Approve})
	assert.Equal(t, 1, n)
	assert.Equal(t, Approve, <-secondCh)

	// req-1's identically named call is untouched.
	assert.Equal(t, 1, g.PendingCount("req-1"))
	select {
	case <-firstCh:
		t.Fatal("req-2's decision leaked into req-1's call of the same id")
	default:
	}

	n = g.Resolve(Decision{RequestID: "req-1", TargetID: "claude", ToolCallID: "call-1", Verdict: Deny})
	assert.Equal(t, 1, n)
	assert.Equal(t, Deny, <-firstCh)
}

func TestGate_WithdrawRemovesProposal(t *testing.T) {
	g := NewGate()
	g.Propose("req-1", "claude", "call-1")

	assert.True(t, g.Withdraw("req-1", "call-1"))
	assert.Equal(t, 0, g.PendingCount("req-1"))
	assert.Equal(t, 0, g.Resolve(Decision{RequestID: "req-1", TargetID: "claude", ToolCallID: "call-1", Verdict: Approve}))

	// Settled or never proposed calls withdraw as a no-op.
	assert.False(t, g.Withdraw("req-1", "call-1"))
	assert.False(t, g.Withdraw("req-9", "ghost"))
}

func TestGate_DuplicateDecisionIsNoOp(t *testing.T) {
	g := NewGate()
	g.Propose("req-1", "claude", "call-1")

	d := Decision{RequestID: "req-1", TargetID: "claude", ToolCallID: "call-1", Verdict: Approve}
	assert.Equal(t, 1, g.Resolve(d))
	assert.Equal(t, 0, g.Resolve(d))
	assert.Equal(t, 0, g.Resolve(Decision{RequestID: "req-1", TargetID: "claude", ToolCallID: "call-1", Verdict: Deny}))
}

func TestGate_DecisionForUnknownCallResolvesNothing(t *testing.T) {
	g := NewGate()
	assert.Equal(t, 0, g.Resolve(Decision{RequestID: "req-1", TargetID: "claude", ToolCallID: "ghost", Verdict: Approve}))
}

// An "all" decision settles only calls proposed at decision time; later
// proposals suspend again and need a fresh decision.
func TestGate_ProposalsAfterAllDecisionStayPending(t *testing.T) {
	g := NewGate()
	g.Propose("req-1", "claude", "call-1")

	require.Equal(t, 1, g.Resolve(Decision{RequestID: "req-1", TargetID: AllTargets, ToolCallID: AllPendingCalls, Verdict: Approve}))

	lateCh := g.Propose("req-1", "claude", "call-2")
	assert.Equal(t, 1, g.PendingCount("req-1"))
	select {
	case <-lateCh:
		t.Fatal("a spent decision must not pre-approve later proposals")
	default:
	}
}

func TestGate_CancelRequestDeniesOutstanding(t *testing.T) {
	g := NewGate()
	a := g.Propose("req-1", "claude", "call-a")
	b := g.Propose("req-1", "gpt", "call-b")

	n := g.CancelRequest("req-1")
	assert.Equal(t, 2, n)
	assert.Equal(t, Deny, <-a)
	assert.Equal(t, Deny, <-b)
	assert.Equal(t, 0, g.PendingCount("req-1"))
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "approve", Approve.String())
	assert.Equal(t, "deny", Deny.String())
}
