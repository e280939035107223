// Command rulecheck validates a rules file and, given a JSON fishing
// outcome, shows what the engine would do with it.
//
//	rulecheck -config configs/rules.yaml
//	rulecheck -config configs/rules.yaml -outcome catch.json -query title -query last_big_fish
//	rulecheck -config configs/rules.yaml -vars
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/gyaneshwarpardhi/fishrules/internal/config"
	"github.com/gyaneshwarpardhi/fishrules/internal/diag"
	"github.com/gyaneshwarpardhi/fishrules/internal/engine"
	"github.com/gyaneshwarpardhi/fishrules/internal/event"
	"github.com/gyaneshwarpardhi/fishrules/internal/markup"
	"github.com/gyaneshwarpardhi/fishrules/internal/rules"
)

type keyList []string

func (k *keyList) String() string { return strings.Join(*k, ",") }

func (k *keyList) Set(s string) error {
	*k = append(*k, s)
	return nil
}

type options struct {
	config  string
	outcome string
	render  string
	queries keyList
	vars    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.config, "config", "configs/rules.yaml", "Path to rules YAML config")
	flag.StringVar(&opts.outcome, "outcome", "", "JSON fishing outcome to evaluate")
	flag.StringVar(&opts.render, "render", "", "Message renderer: plain or ansi (default settings.render.mode)")
	flag.Var(&opts.queries, "query", "Placeholder key to query for the outcome's player (repeatable)")
	flag.BoolVar(&opts.vars, "vars", false, "List the variables rules can read")
	flag.Parse()

	if err := run(os.Stdout, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(w io.Writer, opts options) error {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	var compiler rules.Compiler
	loader, err := config.NewLoader(opts.config, config.WithCheck(compiler.Check), config.WithLogger(quiet))
	if err != nil {
		return err
	}
	cfg := loader.Config()
	set, err := compiler.For(cfg)
	if err != nil {
		return err
	}

	var sink diag.Collector
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mode := cfg.Settings.Render.Mode
	if opts.render != "" {
		mode = opts.render
	}
	eng := engine.New(ctx, set, engine.Options{
		Logger:    quiet,
		Sink:      &sink,
		Renderer:  markup.ForMode(mode, w),
		Namespace: cfg.Settings.Placeholders.Namespace,
	})
	defer eng.Shutdown()

	printRules(w, opts.config, set)
	printUnknownVars(w, eng, set)
	if opts.vars {
		printVars(w, eng)
	}

	if opts.outcome == "" {
		return nil
	}
	data, err := os.ReadFile(opts.outcome)
	if err != nil {
		return fmt.Errorf("read outcome: %w", err)
	}
	var o event.FishingOutcome
	if err := json.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("decode outcome %s: %w", opts.outcome, err)
	}
	if o.Kind == "" {
		o.Kind = event.KindSuccess
	}

	res := eng.OnFishingOutcome(ctx, &o)
	printResult(w, res)
	if len(opts.queries) > 0 {
		fmt.Fprintln(w, "queries:")
		for _, key := range opts.queries {
			fmt.Fprintf(w, "  %s = %q\n", key, eng.OnPlaceholderQuery(ctx, o.Player, key))
		}
	}
	if all := sink.All(); len(all) > 0 {
		fmt.Fprintln(w, "diagnostics:")
		for _, d := range all {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	return nil
}

func printRules(w io.Writer, path string, set *rules.Set) {
	fmt.Fprintf(w, "%s: OK (%d rules", path, set.Len())
	if v := set.Version(); v != "" {
		fmt.Fprintf(w, ", version %s", v)
	}
	fmt.Fprintln(w, ")")
	for i, r := range set.Rules() {
		stop := ""
		if r.Stops() {
			stop = "  stops"
		}
		fmt.Fprintf(w, "%3d. %s  priority=%d%s\n", i+1, r.ID, r.Priority, stop)
		if r.Condition != nil {
			fmt.Fprintf(w, "     if %s\n", r.Condition)
		}
		for _, a := range r.Actions {
			fmt.Fprintf(w, "     - %s\n", a)
		}
	}
}

// printUnknownVars warns about variables no resolver serves. Such rules
// load fine but their leaves never pass.
func printUnknownVars(w io.Writer, eng *engine.Engine, set *rules.Set) {
	for _, name := range set.Vars() {
		if !eng.KnownVar(name) {
			fmt.Fprintf(w, "warning: unknown variable %q\n", name)
		}
	}
}

func printVars(w io.Writer, eng *engine.Engine) {
	names := append(eng.Registry().Names(), "counter.*", "global.*")
	sort.Strings(names)
	fmt.Fprintln(w, "variables:")
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", n)
	}
}

func printResult(w io.Writer, res *engine.OutcomeResult) {
	fmt.Fprintf(w, "outcome %s: %d rules matched in %dµs\n", res.EventID, len(res.RulesMatched), res.DurationUs)
	if len(res.RulesMatched) > 0 {
		fmt.Fprintf(w, "matched: %s\n", strings.Join(res.RulesMatched, ", "))
	}
	if len(res.Messages) > 0 {
		fmt.Fprintln(w, "messages:")
		for _, m := range res.Messages {
			fmt.Fprintf(w, "  [%s] %s\n", m.RuleID, m.Text)
		}
	}
	if len(res.Placeholders) > 0 {
		fmt.Fprintln(w, "placeholders:")
		keys := make([]string, 0, len(res.Placeholders))
		for k := range res.Placeholders {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %q\n", k, res.Placeholders[k])
		}
	}
	var counters []string
	for _, a := range res.Actions {
		if a.Counter != nil {
			counters = append(counters, fmt.Sprintf("  %s = %d", a.Key, *a.Counter))
		}
	}
	if len(counters) > 0 {
		fmt.Fprintln(w, "counters:")
		fmt.Fprintln(w, strings.Join(counters, "\n"))
	}
	for _, a := range res.Actions {
		if !a.Success {
			fmt.Fprintf(w, "failed: %s #%d %s: %s\n", a.RuleID, a.Index, a.Kind, a.Message)
		}
	}
}
