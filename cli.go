package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/n0madic/go-appforge/internal/apperr"
	"github.com/n0madic/go-appforge/internal/config"
	"github.com/n0madic/go-appforge/internal/github"
	"github.com/n0madic/go-appforge/internal/normalize"
	"github.com/n0madic/go-appforge/internal/pipeline"
	"github.com/n0madic/go-appforge/internal/prompt"
	"github.com/n0madic/go-appforge/internal/render"
	"github.com/n0madic/go-appforge/internal/server"
	"github.com/n0madic/go-appforge/internal/store"
	"github.com/n0madic/go-appforge/internal/types"
	"github.com/n0madic/go-appforge/internal/upstream"
)

// cliState is shared by all commands: the loaded config and the I/O streams.
type cliState struct {
	cfg *config.ServerConfig
	out io.Writer
	in  io.Reader
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(out io.Writer, in io.Reader) *cli.App {
	st := &cliState{out: out, in: in}
	app := &cli.App{
		Name:    "appforge",
		Usage:   "Generate full-stack app bundles from a description",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{"APPFORGE_CONFIG"}},
			&cli.BoolFlag{Name: "verbose", Usage: "Enable verbose logging"},
			&cli.BoolFlag{Name: "debug", Usage: "Dump HTTP traffic to stderr"},
			&cli.StringFlag{Name: "db", Usage: "SQLite database path"},
		},
		Before: st.load,
		Commands: []*cli.Command{
			serveCmd(st),
			generateCmd(st),
			normalizeCmd(st),
			bundlesCmd(st),
			repoCmd(st),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func (st *cliState) load(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	setupLogging(cfg.Verbose, cfg.Debug)
	st.cfg = cfg
	return nil
}

// buildPipeline validates provider config and wires prompt, transport and store.
func (st *cliState) buildPipeline(s *store.Store) (*pipeline.Pipeline, error) {
	if err := st.cfg.Validate(); err != nil {
		return nil, err
	}
	system, err := st.cfg.LoadSystemPrompt()
	if err != nil {
		return nil, err
	}
	up, err := upstream.NewClient(st.cfg)
	if err != nil {
		return nil, err
	}
	p := &pipeline.Pipeline{
		Prompt:   prompt.NewBuilder(system),
		Upstream: up,
		Verbose:  st.cfg.Verbose,
	}
	if s != nil {
		p.Store = s
	}
	return p, nil
}

func (st *cliState) openStore() (*store.Store, error) {
	s, err := store.Open(st.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open bundle store: %w", err)
	}
	return s, nil
}

func serveCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Bind host"},
			&cli.IntFlag{Name: "port", Usage: "Listen port"},
			&cli.StringFlag{Name: "access-token", Usage: "Require this bearer token on /v1 routes"},
		},
		Action: func(c *cli.Context) error {
			cfg := st.cfg
			if c.IsSet("host") {
				cfg.Host = c.String("host")
			}
			if c.IsSet("port") {
				cfg.Port = c.Int("port")
			}
			if c.IsSet("access-token") {
				cfg.AccessToken = c.String("access-token")
			}

			s, err := st.openStore()
			if err != nil {
				return outputError(err)
			}
			defer s.Close()

			p, err := st.buildPipeline(s)
			if err != nil {
				return outputError(err)
			}

			var pub server.Publisher
			if cfg.ValidateGitHub() == nil {
				gh, err := github.NewClient(c.Context, cfg.GitHubToken, cfg.GitHubAPIURL)
				if err != nil {
					return outputError(err)
				}
				gh.Verbose = cfg.Verbose
				pub = gh
			} else {
				slog.Warn("GITHUB_ACCESS_TOKEN not set; repository publishing disabled")
			}

			srv := server.New(cfg, p, s, pub)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				<-sigCh
				fmt.Fprintln(os.Stderr, "\nShutting down...")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()

			slog.Warn("appforge starting", "host", cfg.Host, "port", cfg.Port, "model", cfg.Sampling.Model, "db", cfg.DBPath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return outputError(err)
			}
			return nil
		},
	}
}

func generateCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate a bundle (instruction from args or stdin)",
		ArgsUsage: "[instruction...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-store", Usage: "Do not save the bundle"},
		},
		Action: func(c *cli.Context) error {
			instruction := strings.Join(c.Args().Slice(), " ")
			if instruction == "" {
				data, err := io.ReadAll(st.in)
				if err != nil {
					return outputError(err)
				}
				instruction = strings.TrimSpace(string(data))
			}

			var s *store.Store
			if !c.Bool("no-store") {
				var err error
				if s, err = st.openStore(); err != nil {
					return outputError(err)
				}
				defer s.Close()
			}
			p, err := st.buildPipeline(s)
			if err != nil {
				return outputError(err)
			}

			rec, err := p.Generate(&pipeline.RequestContext{Context: c.Context}, instruction)
			if err != nil {
				return outputError(err)
			}
			return st.outputJSON(rec.Response())
		},
	}
}

func normalizeCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:      "normalize",
		Usage:     "Normalize a raw model completion into a bundle",
		ArgsUsage: "[file|-]",
		Action: func(c *cli.Context) error {
			var (
				data []byte
				err  error
			)
			if path := c.Args().First(); path != "" && path != "-" {
				data, err = os.ReadFile(path)
			} else {
				data, err = io.ReadAll(st.in)
			}
			if err != nil {
				return outputError(err)
			}

			result, err := normalize.Normalize(string(data))
			if err != nil {
				// Local use: the diagnostic is the point.
				return cli.Exit(fmt.Sprintf("[%s] %v", apperr.CodeGenerationFailed, err), 1)
			}
			return st.outputJSON(server.NormalizeResponse{Stage: result.Stage, Bundle: result.Bundle})
		},
	}
}

func bundlesCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "bundles",
		Usage: "Inspect stored bundles",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent bundles",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: store.DefaultListLimit, Usage: "Maximum number of bundles"},
				},
				Action: func(c *cli.Context) error {
					s, err := st.openStore()
					if err != nil {
						return outputError(err)
					}
					defer s.Close()

					recs, err := s.List(c.Context, c.Int("limit"))
					if err != nil {
						return outputError(err)
					}
					out := types.BundleList{Object: "list", Data: make([]types.BundleResponse, 0, len(recs))}
					for i := range recs {
						out.Data = append(out.Data, recs[i].Response())
					}
					return st.outputJSON(out)
				},
			},
			{
				Name:      "show",
				Usage:     "Show one bundle",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "html", Usage: "Render as an HTML page"},
					&cli.BoolFlag{Name: "markdown", Aliases: []string{"md"}, Usage: "Render as Markdown"},
				},
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return outputError(apperr.NewInvalidInput("bundle id is required"))
					}
					s, err := st.openStore()
					if err != nil {
						return outputError(err)
					}
					defer s.Close()

					rec, err := s.Get(c.Context, id)
					if err != nil {
						return outputError(err)
					}
					switch {
					case c.Bool("html"):
						page, err := render.HTML(rec)
						if err != nil {
							return outputError(err)
						}
						_, err = st.out.Write(page)
						return err
					case c.Bool("markdown"):
						_, err := io.WriteString(st.out, render.Markdown(rec))
						return err
					}
					return st.outputJSON(rec.Response())
				},
			},
		},
	}
}

func repoCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "repo",
		Usage: "Publish bundles to GitHub",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a repository, optionally committing a stored bundle",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "public", Usage: "Create a public repository"},
					&cli.StringFlag{Name: "bundle", Aliases: []string{"b"}, Usage: "Bundle ID to commit"},
				},
				Action: func(c *cli.Context) error {
					name := c.Args().First()
					gh, err := github.NewClient(c.Context, st.cfg.GitHubToken, st.cfg.GitHubAPIURL)
					if err != nil {
						return outputError(err)
					}
					gh.Verbose = st.cfg.Verbose

					var files []github.File
					if id := c.String("bundle"); id != "" {
						s, err := st.openStore()
						if err != nil {
							return outputError(err)
						}
						rec, err := s.Get(c.Context, id)
						s.Close()
						if err != nil {
							return outputError(err)
						}
						files = github.BundleFiles(rec.Bundle)
					}

					repo, err := gh.CreateRepository(c.Context, name, !c.Bool("public"))
					if err != nil {
						return outputError(err)
					}
					resp := types.RepositoryResponse{FullName: repo.FullName, HTMLURL: repo.HTMLURL, Private: repo.Private}
					if len(files) > 0 {
						sha, err := gh.PushFiles(c.Context, repo.FullName, files, "Add generated application")
						if err != nil {
							e := apperr.From(err)
							resp.PushError = &types.ErrorDetail{Message: e.Message, Code: string(e.Code)}
							if oerr := st.outputJSON(resp); oerr != nil {
								return oerr
							}
							return outputError(err)
						}
						resp.CommitSHA = sha
					}
					return st.outputJSON(resp)
				},
			},
		},
	}
}

func (st *cliState) outputJSON(v any) error {
	enc := json.NewEncoder(st.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	e := apperr.From(err)
	if e.Code == apperr.CodeInternal || e.Code == apperr.CodeConfiguration || e.Code == apperr.CodeTransport {
		return cli.Exit(fmt.Sprintf("[%s] %v", e.Code, err), 1)
	}
	return cli.Exit(fmt.Sprintf("[%s] %s", e.Code, e.Message), 1)
}
