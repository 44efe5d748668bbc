// Command busyflow runs a BusyFlow process definition from the command
// line and persists its audit trail to the configured store.
//
// Usage:
//
//	busyflow run [--config config.yaml]   # run the demo process
//	busyflow audit --process <id>         # print a persisted audit trail
//	busyflow version                      # show version information
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/busylang/busyflow"
	"github.com/busylang/busyflow/config"
	"github.com/busylang/busyflow/process"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCommand(os.Args[2:])
	case "audit":
		auditCommand(os.Args[2:])
	case "version":
		fmt.Printf("busyflow %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`busyflow - business-process execution runtime

Commands:
  run      run the demo onboarding process
  audit    print a persisted audit trail
  version  show version information

Options:
  --config   path to the YAML configuration file
  --process  process ID (audit command)`)
}

func loadEnv(configPath string) *busyflow.Env {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	env, err := busyflow.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up environment: %v\n", err)
		os.Exit(1)
	}
	return env
}

func runCommand(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	user := fs.String("user", "operator", "acting user recorded in the audit trail")
	fs.Parse(args)

	env := loadEnv(*configPath)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer env.Close(context.Background())

	p := env.NewProcess("onboarding",
		busyflow.WithUser(*user),
		busyflow.WithSteps(demoSteps()...),
	)

	result, err := p.ExecuteSteps(ctx)
	if err != nil {
		env.Logger.Error("process execution failed", zap.Error(err))
		os.Exit(1)
	}

	if err := env.AuditStore.SaveTrail(context.Background(), p.AuditTrail()); err != nil {
		env.Logger.Error("failed to persist audit trail", zap.Error(err))
		os.Exit(1)
	}

	env.Logger.Info("process finished",
		zap.String("process_id", p.ID()),
		zap.Bool("success", result.Success),
		zap.Int("completed_steps", result.CompletedSteps),
	)
	fmt.Printf("process %s: success=%v completed=%d\n", p.ID(), result.Success, result.CompletedSteps)
}

func auditCommand(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	processID := fs.String("process", "", "process ID to inspect")
	limit := fs.Int("limit", 0, "maximum entries to print (0 = all)")
	fs.Parse(args)

	if *processID == "" {
		fmt.Fprintln(os.Stderr, "audit requires --process")
		os.Exit(1)
	}

	env := loadEnv(*configPath)
	defer env.Close(context.Background())

	entries, err := env.AuditStore.ListByProcess(context.Background(), *processID, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list audit entries: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode audit entry: %v\n", err)
			os.Exit(1)
		}
	}
}

// demoSteps builds a small three-step pipeline: collect an order, price it,
// and assemble it with a fallback path routed through manual input.
func demoSteps() []process.Step {
	collect := process.NewAlgorithmStep("collect", "Collect order",
		process.Implementation{Type: "demo-source", Version: "1.0.0"},
		func(ctx context.Context, input, params map[string]any) (map[string]any, error) {
			return map[string]any{"item": "widget", "quantity": 3.0, "unit_price": 19.99}, nil
		},
	)

	price := process.NewAlgorithmStep("price", "Price order",
		process.Implementation{Type: "demo-pricer", Version: "1.0.0"},
		func(ctx context.Context, input, params map[string]any) (map[string]any, error) {
			qty, _ := input["quantity"].(float64)
			unit, _ := input["unit_price"].(float64)
			return map[string]any{"total": qty * unit}, nil
		},
	)

	confirm := process.NewHumanStep("confirm", "Confirm order", process.FormModel{
		ID:    "confirm_order",
		Title: "Confirm the order",
		Fields: []process.FormField{
			{ID: "approved_by", Type: process.FieldTypeText, Label: "Approved by", Required: true},
		},
	}, process.WithCollector(stdinCollector{}))

	return []process.Step{collect, price, confirm}
}

// stdinCollector prompts on the terminal for each form field.
type stdinCollector struct{}

func (stdinCollector) Collect(ctx context.Context, component *process.ComponentDefinition, form *process.FormModel) (map[string]any, error) {
	data := make(map[string]any, len(form.Fields))
	for _, field := range form.Fields {
		fmt.Printf("%s: ", field.Label)
		var value string
		if _, err := fmt.Scanln(&value); err != nil {
			return nil, fmt.Errorf("failed to read field %q: %w", field.ID, err)
		}
		data[field.ID] = value
	}
	return data, nil
}
