// Package agentcrew provides a high-level facade over the execution engine:
// step-program interpreters, the tool call sequencer, best-of-N fan-out and
// team coordination. Most applications interact with this package by:
//  1. Creating a Crew via New() (optionally overriding config, model, store)
//  2. Building agents from step programs (program.SingleTurn, BestOfN, ...)
//  3. Running them with Run (single agent) or RunAll (a parallel crew)
//
// The facade delegates execution to host.Host while keeping setup ergonomics
// concise. All defaults are safe for local development and testing;
// production deployments typically supply a durable team store and a
// structured logger.
package agentcrew

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentcrew/config"
	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/host"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/model/anthropic"
	"github.com/hupe1980/agentcrew/model/openai"
	"github.com/hupe1980/agentcrew/program"
	"github.com/hupe1980/agentcrew/team"
	"github.com/hupe1980/agentcrew/team/fsstore"
	"github.com/hupe1980/agentcrew/team/sqlitestore"
	"github.com/hupe1980/agentcrew/tool"
)

// Options configures the Crew instance. Any unset collaborator is built from
// the config: the model from config.Model, the team store from config.Team.
type Options struct {
	// Config supplies file/env-driven settings. Defaults to config.Load().
	Config *config.Config

	// Model overrides the configured model provider.
	Model model.Model

	// Store overrides the configured team store backend.
	Store team.Store

	// Tools are registered alongside the built-in team coordination tools.
	Tools []tool.Tool

	// Logger defaults to a structured logger built from config.Log.
	Logger logging.Logger
}

// Agent aliases host.Agent so callers of the facade rarely need to import
// the host package directly.
type Agent = host.Agent

// Crew is the high-level facade aggregating the host, the team manager and
// the tool registry.
type Crew struct {
	cfg      *config.Config
	logger   logging.Logger
	manager  *team.Manager
	registry *tool.Registry
	host     *host.Host
}

// New creates a Crew. Unset options are resolved from configuration; see
// Options for the override points.
func New(optFns ...func(o *Options)) (*Crew, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logger := opts.Logger
	if logger == nil {
		logger = newLogger(cfg.Log)
	}

	store := opts.Store
	if store == nil {
		built, err := newStore(cfg.Team)
		if err != nil {
			return nil, err
		}
		store = built
	}

	manager := team.NewManager(store, func(o *team.ManagerOptions) {
		o.Logger = logger
		if cfg.Team.MaxMembers > 0 {
			o.MaxMembers = cfg.Team.MaxMembers
		}
	})

	m := opts.Model
	if m == nil {
		built, err := newModel(cfg.Model)
		if err != nil {
			return nil, err
		}
		m = built
	}

	registry := tool.NewRegistry(tool.TeamTools(manager)...)
	for _, t := range opts.Tools {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	h := host.New(m, registry, func(o *host.Options) {
		o.Logger = logger
		o.Manager = manager
		o.TokenBudget = cfg.Host.TokenBudget
		o.MaxModelCalls = cfg.Host.MaxModelCalls
		o.MaxTurns = cfg.Host.MaxTurns
		o.FanoutSlots = cfg.Host.FanoutSlots
	})

	return &Crew{
		cfg:      cfg,
		logger:   logger,
		manager:  manager,
		registry: registry,
		host:     h,
	}, nil
}

// Manager exposes the team manager for direct coordination use.
func (c *Crew) Manager() *team.Manager { return c.manager }

// Registry exposes the tool registry, e.g. for late registration.
func (c *Crew) Registry() *tool.Registry { return c.registry }

// NewAgent builds a runnable agent from an identity and a step program
// interpreter.
func (c *Crew) NewAgent(id, name, agentType, instructions string, in *program.Interpreter) *Agent {
	return &Agent{
		Info:         core.AgentInfo{ID: id, Name: name, Type: agentType},
		Interpreter:  in,
		Instructions: instructions,
	}
}

// Run drives one agent's program to completion and returns its output.
func (c *Crew) Run(ctx context.Context, agent *Agent) (string, error) {
	return c.host.Run(ctx, agent)
}

// RunAll executes several agents in parallel, returning their outputs keyed
// by agent id. The first error cancels the remaining runs.
func (c *Crew) RunAll(ctx context.Context, agents []*Agent) (map[string]string, error) {
	return c.host.RunAll(ctx, agents)
}

func newStore(cfg config.Team) (team.Store, error) {
	switch cfg.Store {
	case "memory":
		return team.NewInMemoryStore(), nil
	case "fs":
		return fsstore.New(cfg.Path)
	case "sqlite":
		return sqlitestore.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown team store %q", cfg.Store)
	}
}

func newModel(cfg config.Model) (model.Model, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = cfg.AnthropicAPIKey
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.APIKey = cfg.OpenAIAPIKey
		}), nil
	case "mock":
		return model.NewMockModel("mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// newLogger builds a structured key-value logger matching the log sections
// of the config file.
func newLogger(cfg config.Log) logging.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return logging.NewSlogAdapter(slog.New(handler))
}
