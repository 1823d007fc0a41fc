package sentinel

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/resilience"
)

// Tier3Verdict is the external bounded model checker's verdict. The
// core records it and a counterexample reference; it never implements
// the solver itself.
type Tier3Verdict struct {
	Verified         bool
	CounterexampleRef string
	Depth            int
}

// Tier3Backend invokes an external bounded model checker. A Command of
// "none" or "" (the zero value) disables Tier 3 entirely, surfacing
// TIER3_UNAVAILABLE for every L3 artifact.
type Tier3Backend struct {
	Command string // external prover executable, or "" for disabled
	Depth   int    // 5-10 steps
	Timeout time.Duration
	breaker *resilience.CircuitBreaker
}

// NewTier3Backend constructs a backend bounded to the configured depth
// and watchdog timeout, guarded by a circuit breaker so a string of
// prover failures stops dispatching new calls for a cooldown window.
func NewTier3Backend(command string, depth int, timeout time.Duration) *Tier3Backend {
	if depth < 5 {
		depth = 5
	}
	if depth > 10 {
		depth = 10
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Tier3Backend{Command: command, Depth: depth, Timeout: timeout, breaker: resilience.NewCircuitBreaker(resilience.DefaultTier3Config())}
}

// Dispatch invokes the external checker on content, subject to the
// watchdog timeout and the circuit breaker. Returns TIER3_UNAVAILABLE
// if the backend is disabled or the breaker is open, TIER3_TIMEOUT if
// the watchdog expires.
func (b *Tier3Backend) Dispatch(ctx context.Context, content string) (*Tier3Verdict, error) {
	if b.Command == "" || b.Command == "none" {
		return nil, errs.Tier3Unavailable(fmt.Errorf("no tier3 backend configured"))
	}

	watchdogCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	var verdict *Tier3Verdict
	err := b.breaker.Execute(watchdogCtx, func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, b.Command, fmt.Sprintf("--depth=%d", b.Depth))
		cmd.Stdin = bytes.NewBufferString(content)
		out, runErr := cmd.Output()
		if runErr != nil {
			return runErr
		}
		verdict = parseVerdict(out)
		return nil
	})

	if err != nil {
		if watchdogCtx.Err() == context.DeadlineExceeded {
			return nil, errs.Tier3Timeout("bounded_model_check")
		}
		if err == resilience.ErrCircuitOpen {
			return nil, errs.Tier3Unavailable(err)
		}
		return nil, errs.Tier3Unavailable(err)
	}
	return verdict, nil
}

// parseVerdict interprets the external tool's stdout. A real prover's
// wire format is out of scope for the core; this treats a leading "OK"
// byte as verified and anything else as a counterexample reference.
func parseVerdict(out []byte) *Tier3Verdict {
	if bytes.HasPrefix(out, []byte("OK")) {
		return &Tier3Verdict{Verified: true}
	}
	return &Tier3Verdict{Verified: false, CounterexampleRef: string(bytes.TrimSpace(out))}
}
