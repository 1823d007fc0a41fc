// Command governctl is a thin CLI that exercises the dispatcher
// directly, in-process, without going through governord's HTTP surface.
// It is the operator's and the CI pipeline's entrypoint for one-shot
// governance operations: auditing a code artifact, auditing a claim,
// registering an agent, and checking ledger integrity. Exit codes follow
// spec.md §6: 0 pass, 1 policy fail, 2 config error, 3 store unavailable.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/calibration"
	"github.com/MythologIQ/QoreLogic-sub000/internal/config"
	"github.com/MythologIQ/QoreLogic-sub000/internal/deferral"
	"github.com/MythologIQ/QoreLogic-sub000/internal/dispatch"
	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/identity"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ledger"
	"github.com/MythologIQ/QoreLogic-sub000/internal/mode"
	"github.com/MythologIQ/QoreLogic-sub000/internal/quarantine"
	"github.com/MythologIQ/QoreLogic-sub000/internal/sentinel"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/memory"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/postgres"
	"github.com/MythologIQ/QoreLogic-sub000/internal/trust"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ttl"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: governctl <audit-code|audit-claim|register-agent|verify-ledger> [flags]")
		return int(errs.ExitConfigError)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return int(errs.ExitConfigError)
	}
	log := logger.New("governctl", cfg.Logging.Level, cfg.Logging.Format)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store error: %v\n", err)
		return int(errs.ExitStoreUnavailable)
	}
	defer closeStore()

	idm := identity.NewManager(st, log)
	lg := ledger.New(st, idm, log)
	ctx := context.Background()
	if err := lg.WriteGenesis(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "genesis error: %v\n", err)
		return int(errs.ExitStoreUnavailable)
	}
	trustE := trust.New(st, log)
	thresholds := mode.Thresholds{
		CPUHighWatermark: cfg.Mode.CPUHighWatermark, CPULowWatermark: cfg.Mode.CPULowWatermark,
		QueueSoft: cfg.Mode.QueueSoft, QueueHard: cfg.Mode.QueueHard, QueueCapacity: cfg.Mode.QueueCapacity,
	}
	modeC, err := mode.New(ctx, st, log, thresholds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mode controller error: %v\n", err)
		return int(errs.ExitConfigError)
	}
	queue := mode.NewQueue(thresholds)

	var tier3 *sentinel.Tier3Backend
	if cfg.Sentinel.Tier3Backend != "" {
		tier3 = sentinel.NewTier3Backend(cfg.Sentinel.Tier3Backend, cfg.Sentinel.Tier3Depth, 5*time.Second)
	}

	d := dispatch.New(st, idm, lg, trustE, modeC, queue,
		quarantine.New(st), deferral.New(st), ttl.New(st), calibration.New(st), log, tier3)

	switch args[0] {
	case "audit-code":
		return cmdAuditCode(ctx, d, args[1:])
	case "audit-claim":
		return cmdAuditClaim(ctx, d, cfg, args[1:])
	case "register-agent":
		return cmdRegisterAgent(ctx, idm, cfg, args[1:])
	case "verify-ledger":
		return cmdVerifyLedger(ctx, d, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return int(errs.ExitConfigError)
	}
}

func cmdAuditCode(ctx context.Context, d *dispatch.Dispatcher, args []string) int {
	fs := flag.NewFlagSet("audit-code", flag.ContinueOnError)
	agentID := fs.String("agent", "", "agent id")
	path := fs.String("path", "", "artifact path")
	contentFile := fs.String("file", "", "path to artifact content on disk")
	passphrase := fs.String("passphrase", "", "agent signing passphrase (falls back to GOVERNANCE_AGENT_PASSPHRASE)")
	if err := fs.Parse(args); err != nil {
		return int(errs.ExitConfigError)
	}
	if *agentID == "" || *path == "" || *contentFile == "" {
		fmt.Fprintln(os.Stderr, "audit-code requires -agent, -path, and -file")
		return int(errs.ExitConfigError)
	}
	content, err := os.ReadFile(*contentFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read artifact: %v\n", err)
		return int(errs.ExitConfigError)
	}
	pass := resolvePassphrase(*passphrase)

	result, err := d.AuditCode(ctx, dispatch.AuditCodeRequest{
		AgentID: *agentID, Passphrase: pass, Path: *path, Content: string(content),
	})
	return reportResult(result, err)
}

func cmdAuditClaim(ctx context.Context, d *dispatch.Dispatcher, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("audit-claim", flag.ContinueOnError)
	agentID := fs.String("agent", "", "agent id")
	hash := fs.String("hash", "", "content hash of the claim")
	source := fs.String("source", "", "cited source URL")
	class := fs.String("class", string(domain.VolatilityGeneral), "volatility class")
	passphrase := fs.String("passphrase", "", "agent signing passphrase")
	if err := fs.Parse(args); err != nil {
		return int(errs.ExitConfigError)
	}
	if *agentID == "" || *hash == "" || *source == "" {
		fmt.Fprintln(os.Stderr, "audit-claim requires -agent, -hash, and -source")
		return int(errs.ExitConfigError)
	}
	_ = cfg
	result, err := d.AuditClaim(ctx, dispatch.AuditClaimRequest{
		AgentID: *agentID, Passphrase: resolvePassphrase(*passphrase),
		ContentHash: *hash, SourceURL: *source, Class: domain.VolatilityClass(*class),
	})
	return reportResult(result, err)
}

func cmdRegisterAgent(ctx context.Context, idm *identity.Manager, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("register-agent", flag.ContinueOnError)
	agentID := fs.String("agent", "", "agent id")
	role := fs.String("role", string(domain.RoleGenerator), "agent role")
	passphrase := fs.String("passphrase", "", "new signing passphrase")
	if err := fs.Parse(args); err != nil {
		return int(errs.ExitConfigError)
	}
	if *agentID == "" {
		fmt.Fprintln(os.Stderr, "register-agent requires -agent")
		return int(errs.ExitConfigError)
	}
	pass := resolvePassphrase(*passphrase)
	if pass == "" {
		fmt.Fprintln(os.Stderr, "register-agent requires a non-empty passphrase")
		return int(errs.ExitConfigError)
	}
	agent, err := idm.CreateAgent(ctx, *agentID, domain.Role(*role), pass)
	_ = cfg
	if err != nil {
		fmt.Fprintf(os.Stderr, "create agent: %v\n", err)
		return int(errs.ToExitCode(err))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(agent)
	return int(errs.ExitPass)
}

func cmdVerifyLedger(ctx context.Context, d *dispatch.Dispatcher, args []string) int {
	fs := flag.NewFlagSet("verify-ledger", flag.ContinueOnError)
	from := fs.Int64("from", 0, "sequence to replay from")
	if err := fs.Parse(args); err != nil {
		return int(errs.ExitConfigError)
	}
	result, err := d.VerifyLedgerIntegrity(ctx, *from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify ledger: %v\n", err)
		return int(errs.ExitStoreUnavailable)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	if !result.OK {
		return int(errs.ExitPolicyFail)
	}
	return int(errs.ExitPass)
}

// reportResult prints any JSON-encodable dispatch result and maps the
// returned error, if any, to its spec §6 exit code class.
func reportResult(result any, err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return int(errs.ToExitCode(err))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return int(errs.ExitPass)
}

func resolvePassphrase(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("GOVERNANCE_AGENT_PASSPHRASE")
}

func openStore(cfg *config.Config) (store.Store, func(), error) {
	path := cfg.Store.Path
	if path == "" || path == "memory" {
		return memory.New(), func() {}, nil
	}
	st, err := postgres.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}
