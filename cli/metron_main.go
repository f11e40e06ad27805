// Copyright 2017 Fortio Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli wires Metron's four subcommands (test, agent, controller,
// echo) onto flag.FlagSet: flags registered at package var-block scope,
// fortio.org/cli handling usage/argument parsing and subcommand dispatch
// by name, fortio.org/scli completing setup via its ServerMain entry
// point for any command that might end up listening on a port.
package cli // import "metron.dev/metron/cli"

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fortio.org/cli"
	"fortio.org/log"
	"fortio.org/scli"

	"metron.dev/metron/echosrv"
	"metron.dev/metron/fnet"
	"metron.dev/metron/metronconfig"
	"metron.dev/metron/plan"
	"metron.dev/metron/rpc"
	"metron.dev/metron/runner"
	"metron.dev/metron/service"
	"metron.dev/metron/signaller"
	"metron.dev/metron/version"
)

// Exit codes from spec.md §7's error handling table.
const (
	exitSuccess      = 0
	exitRuntimeError = 1
	exitInvalidInput = 2
)

func helpArgsString() string {
	return fmt.Sprintf("command\n%s\n%s\n%s\n%s",
		"where command is one of: test (run a plan locally and print a report),",
		" agent (start a Run-serving RPC agent wrapping a local runner),",
		" controller (fan a plan out to --agent addresses, itself servable as an RPC agent),",
		" or echo (start the echo/target test server).")
}

var (
	// Plan-building flags, read by "test" (buildPlan). "agent" and
	// "controller" run the plans submitted to them over RPC; of these
	// flags they only use -connections, through runnerOptionsFromFlags.
	targetsFlag = flag.String("targets", "", "Comma-separated list of target `URL`s")
	methodFlag  = flag.String("method", plan.DefaultMethod, "HTTP method to use")
	rateFlag    = flag.String("rate", "100", "Comma-separated list of `R` or `R1:R2` (linear ramp) rates, one per plan segment")
	rateEndFlag = flag.Uint("rate-end", 0,
		"If set and -rate/-t each name a single segment, ramps -rate to this value linearly over -t instead of building a Fixed segment")
	durationFlag = flag.String("t", "10s",
		"Comma-separated list of `duration`s, one per -rate segment; \"forever\" marks the last segment as unbounded")
	connectionsFlag = flag.Int("connections", plan.DefaultConnections, "Max connections per target authority")
	headerFlag      = flag.String("H", "", "Additional `name:value` http header (use -config-file for more than one)")
	payloadFlag     = flag.String("payload", "", "Request body to send along")
	payloadFileFlag = flag.String("payload-file", "", "Read the request body from this `file` instead of -payload (\"-\" for stdin)")
	payloadSizeFlag = flag.Int("payload-size", 0, "Generate a random request body of this many `bytes` instead of -payload")

	latencyCorrectionFlag = flag.Bool("latency-correction", true,
		"Headline latency is coordinated-omission-corrected (due-to-done) instead of raw (sent-to-done)")
	signallerKindFlag  = flag.String("signaller", "blocking", "Signaller concurrency model: blocking or cooperative")
	stopOnErrorFlag    = flag.Bool("stop-on-error", false, "Abort the run on the first transport-level error")
	stopOnNon2xxFlag   = flag.Bool("stop-on-non-2xx", false, "Abort the run on the first non-2xx response")
	requestTimeoutFlag = flag.Duration("timeout", 0, "Per-request timeout, 0 for none")

	configFileFlag  = flag.String("config-file", "", "Load the plan from this YAML `file` instead of -targets/-rate/-t (\"-\" for stdin)")
	printConfigFlag = flag.Bool("print-config", false, "Print the effective, normalized plan configuration as YAML and exit")

	// agent/controller server flags.
	portFlag   = flag.Int("port", 0, "Port to listen on (defaults: agent 9090, controller 9191)")
	agentsFlag = flag.String("agent", "", "Comma-separated list of agent addresses for controller mode")

	// echo flags.
	firstRequestDelayFlag = flag.Duration("first-request-delay", 0,
		"Delay the first response to each distinct caller by this much, then respond normally")
	echoRateLimitFlag = flag.Float64("echo-rate-limit", 0,
		"Cap the echo server at this many responses per second across all callers, 0 for unthrottled")
)

const (
	defaultAgentPort      = 9090
	defaultControllerPort = 9191
)

// Main is Metron's process entrypoint, called from cmd/metron/main.go:
// set up cli package globals, call scli.ServerMain() to parse flags/args
// and print usage/version banners, then switch on cli.Command.
func Main() {
	cli.ProgramName = "Metron"
	cli.ArgsHelp = helpArgsString()
	cli.CommandBeforeFlags = true
	cli.MinArgs = 0
	cli.MaxArgs = 0
	scli.ServerMain() // parses flags/command, exits on usage errors.

	switch cli.Command {
	case "test":
		os.Exit(runTest())
	case "agent":
		os.Exit(runAgent())
	case "controller":
		os.Exit(runController())
	case "echo":
		os.Exit(runEcho())
	default:
		cli.ErrUsage("Error: unknown command %q", cli.Command)
	}
}

// buildPlan constructs a *plan.Plan from -config-file if given, else from
// the -targets/-rate/-rate-end/-t/-method/... flags, loading the file
// first and then layering flag overrides on top.
func buildPlan() (*plan.Plan, error) {
	var p *plan.Plan
	if *configFileFlag != "" {
		f, err := metronconfig.Load(*configFileFlag)
		if err != nil {
			return nil, err
		}
		p, err = f.ToPlan()
		if err != nil {
			return nil, err
		}
	} else {
		p = &plan.Plan{}
	}

	// With a config file, flags that carry a non-empty default only
	// override the file when given explicitly on the command line.
	fromFile := *configFileFlag != ""
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if *targetsFlag != "" {
		p.Targets = splitNonEmpty(*targetsFlag, ",")
	}
	if *methodFlag != "" && (!fromFile || explicit["method"]) {
		p.Method = *methodFlag
	}
	if *payloadFlag != "" || *payloadFileFlag != "" || *payloadSizeFlag > 0 {
		p.Payload = fnet.GeneratePayload(*payloadFileFlag, *payloadSizeFlag, *payloadFlag)
	}
	if *connectionsFlag > 0 && (!fromFile || explicit["connections"]) {
		p.Connections = *connectionsFlag
	}
	if !fromFile || explicit["latency-correction"] {
		p.LatencyCorrection = *latencyCorrectionFlag
	}
	if *headerFlag != "" {
		name, value, ok := strings.Cut(*headerFlag, ":")
		if !ok {
			return nil, fmt.Errorf("invalid -H %q, expected name:value", *headerFlag)
		}
		p.Headers = append(p.Headers, plan.Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}

	if len(p.Segments) == 0 {
		segs, err := buildSegments(*rateFlag, *durationFlag, *rateEndFlag)
		if err != nil {
			return nil, err
		}
		p.Segments = segs
	}

	p.Normalize()
	return p, nil
}

// buildSegments turns -rate/-t's comma-separated lists into an ordered
// sequence of plan.Segments: the Nth rate item pairs with the Nth duration
// item. A rate item of "R1:R2" is a Linear ramp, anything else a Fixed
// rate; a duration item of "forever" marks a Fixed segment as unbounded
// and is only allowed on the last pair. -rate-end is a shorthand that
// only applies when both lists hold a single, unpaired item, turning that
// one segment into a ramp from -rate to -rate-end without the R1:R2 syntax.
func buildSegments(rateList, durationList string, rateEnd uint) ([]plan.Segment, error) {
	rates := splitNonEmpty(rateList, ",")
	durations := splitNonEmpty(durationList, ",")
	if len(rates) == 0 || len(durations) == 0 {
		return nil, fmt.Errorf("-rate and -t must each name at least one segment")
	}
	if len(rates) != len(durations) {
		return nil, fmt.Errorf("-rate names %d segment(s) but -t names %d, they must match", len(rates), len(durations))
	}
	if len(rates) == 1 && rateEnd > 0 {
		d, err := time.ParseDuration(durations[0])
		if err != nil {
			return nil, fmt.Errorf("invalid -t %q: %w", durations[0], err)
		}
		start, err := parseRate(rates[0])
		if err != nil {
			return nil, err
		}
		return []plan.Segment{plan.LinearSegment(start, plan.Rate(rateEnd), d)}, nil
	}

	segs := make([]plan.Segment, 0, len(rates))
	for i, rateItem := range rates {
		last := i == len(rates)-1
		durationItem := durations[i]
		if strings.EqualFold(durationItem, "forever") {
			if !last {
				return nil, fmt.Errorf("-t segment %d is \"forever\" but isn't the last segment", i)
			}
			if strings.Contains(rateItem, ":") {
				return nil, fmt.Errorf("-rate segment %d (%q) is a ramp, which cannot be \"forever\"", i, rateItem)
			}
			rate, err := parseRate(rateItem)
			if err != nil {
				return nil, err
			}
			segs = append(segs, plan.FixedForever(rate))
			continue
		}
		d, err := time.ParseDuration(durationItem)
		if err != nil {
			return nil, fmt.Errorf("invalid -t segment %d %q: %w", i, durationItem, err)
		}
		if start, end, ok := strings.Cut(rateItem, ":"); ok {
			startRate, err := parseRate(start)
			if err != nil {
				return nil, err
			}
			endRate, err := parseRate(end)
			if err != nil {
				return nil, err
			}
			segs = append(segs, plan.LinearSegment(startRate, endRate, d))
			continue
		}
		rate, err := parseRate(rateItem)
		if err != nil {
			return nil, err
		}
		segs = append(segs, plan.FixedSegment(rate, d))
	}
	return segs, nil
}

func parseRate(s string) (plan.Rate, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	return plan.Rate(v), nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSignallerKind(s string) (signaller.Kind, error) {
	switch strings.ToLower(s) {
	case "", "blocking":
		return signaller.KindBlocking, nil
	case "cooperative":
		return signaller.KindCooperative, nil
	default:
		return signaller.KindBlocking, fmt.Errorf("unknown -signaller %q, want blocking or cooperative", s)
	}
}

func runnerOptionsFromFlags() runner.Options {
	return runner.Options{
		Connections:    *connectionsFlag,
		RequestTimeout: *requestTimeoutFlag,
		StopOnError:    *stopOnErrorFlag,
		StopOnNon2xx:   *stopOnNon2xxFlag,
	}
}

// runTest implements `metron test`: builds a Plan, runs it locally via a
// LocalRunnerService, prints the Report, and returns spec.md §7's exit code.
func runTest() int {
	p, err := buildPlan()
	if err != nil {
		log.Errf("building plan: %v", err)
		return exitInvalidInput
	}
	if err := p.Validate(); err != nil {
		log.Errf("invalid plan: %v", err)
		return exitInvalidInput
	}

	if *printConfigFlag {
		kind, _ := parseSignallerKind(*signallerKindFlag)
		f := metronconfig.FromPlan(p, kind.String(), *stopOnErrorFlag, *stopOnNon2xxFlag)
		if err := metronconfig.Print(os.Stdout, f); err != nil {
			log.Errf("printing config: %v", err)
			return exitRuntimeError
		}
		return exitSuccess
	}

	kind, err := parseSignallerKind(*signallerKindFlag)
	if err != nil {
		log.Errf("%v", err)
		return exitInvalidInput
	}

	svc := service.NewLocalRunnerService("local", kind, runnerOptionsFromFlags())

	log.Infof("Metron %s running plan %s against %v with %d segment(s)",
		version.Short(), p.ID, p.Targets, len(p.Segments))

	rep, runErr := svc.Run(context.Background(), p)
	rep.Print(os.Stdout)
	if runErr != nil {
		log.Errf("run did not complete cleanly: %v", runErr)
		return exitRuntimeError
	}
	return exitSuccess
}

// runAgent implements `metron agent`: serves a Run RPC endpoint backed by
// a local runner.
func runAgent() int {
	port := *portFlag
	if port == 0 {
		port = defaultAgentPort
	}
	kind, err := parseSignallerKind(*signallerKindFlag)
	if err != nil {
		log.Errf("%v", err)
		return exitInvalidInput
	}
	svc := service.NewLocalRunnerService(fmt.Sprintf("agent:%d", port), kind, runnerOptionsFromFlags())
	return serveRPC(port, svc)
}

// runController implements `metron controller`: dials one rpc.Client per
// -agent address, wraps them in a service.Controller, and serves that
// Controller over RPC in turn so controllers can compose recursively.
func runController() int {
	port := *portFlag
	if port == 0 {
		port = defaultControllerPort
	}
	addrs := splitNonEmpty(*agentsFlag, ",")
	if len(addrs) == 0 {
		log.Errf("controller mode needs at least one -agent address")
		return exitInvalidInput
	}

	clients := make([]service.RunnerService, 0, len(addrs))
	for _, addr := range addrs {
		c, err := rpc.Dial(addr, addr)
		if err != nil {
			log.Errf("dialing agent %s: %v", addr, err)
			return exitRuntimeError
		}
		clients = append(clients, c)
	}

	ctrl := service.NewController(fmt.Sprintf("controller:%d", port), clients...)
	return serveRPC(port, ctrl)
}

func serveRPC(port int, svc service.RunnerService) int {
	srv, err := rpc.Listen(svc.Name(), fmt.Sprintf("[::1]:%d", port), svc)
	if err != nil {
		log.Errf("starting rpc server on port %d: %v", port, err)
		return exitRuntimeError
	}
	log.Infof("Metron %s %q listening on %s", version.Short(), svc.Name(), srv.Addr)
	if err := srv.Serve(); err != nil {
		log.Errf("rpc server on %s exited: %v", srv.Addr, err)
		return exitRuntimeError
	}
	return exitSuccess
}

// runEcho implements `metron echo`, the supplemental target test server.
func runEcho() int {
	port := *portFlag
	if port == 0 {
		port = 8080
	}
	if err := echosrv.Serve(strconv.Itoa(port), *firstRequestDelayFlag, *echoRateLimitFlag); err != nil {
		log.Errf("echo server on port %d exited: %v", port, err)
		return exitRuntimeError
	}
	return exitSuccess
}

