package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evanschultz/sift/internal/adapters/remote"
	"github.com/evanschultz/sift/internal/adapters/server"
	"github.com/evanschultz/sift/internal/adapters/server/common"
	"github.com/evanschultz/sift/internal/adapters/storage/sqlite"
	"github.com/evanschultz/sift/internal/app"
	"github.com/evanschultz/sift/internal/auth"
	"github.com/evanschultz/sift/internal/config"
	"github.com/evanschultz/sift/internal/domain"
	"github.com/evanschultz/sift/internal/platform"
	"github.com/evanschultz/sift/internal/tui"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// bootstrapInput feeds the first-run email prompt.
var bootstrapInput io.Reader = os.Stdin

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		stop()
		os.Exit(1)
	}
}

// run executes one command line against the CLI tree.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SilenceErrors = true
	root.SilenceUsage = true
	return root.ExecuteContext(ctx)
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

// runtimeEnv is the resolved configuration and logger for one command.
type runtimeEnv struct {
	opts         globalOptions
	paths        platform.Paths
	configPath   string
	dbPath       string
	dbOverridden bool
	defaults     config.Config
	cfg          config.Config
	logger       *runtimeLogger
}

// newRootCommand builds the sift command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	opts := globalOptions{appName: "sift", devMode: version == "dev"}
	if envDev, ok := parseBoolEnv("SIFT_DEV_MODE"); ok {
		opts.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("SIFT_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}

	root := &cobra.Command{
		Use:     "sift",
		Short:   "Keyboard-first todo board",
		Long:    "Sift keeps today, work, personal, and waiting-for todos on one keyboard-driven board.",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts, stderr)
		},
	}
	root.SetVersionTemplate("sift {{.Version}}\n")
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newPathsCommand(&opts, stdout),
		newServeCommand(&opts, stderr),
		newLoginCommand(&opts, stdout, stderr),
		newLogoutCommand(&opts, stdout, stderr),
	)
	return root
}

// newPathsCommand prints resolved runtime paths.
func newPathsCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print config, data, and session paths",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			paths, err := resolvePaths(*opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(stdout, "session: %s\n", paths.SessionPath)
			_, _ = fmt.Fprintf(stdout, "outbox: %s\n", paths.OutboxDir)
			return nil
		},
	}
}

// newServeCommand runs the HTTP server over the local database.
func newServeCommand(opts *globalOptions, stderr io.Writer) *cobra.Command {
	var bind, baseURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web sign-in, JSON API, and MCP tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(*opts, stderr, "serve")
			if err != nil {
				return err
			}
			defer env.close(stderr)
			env.cfg.Server = applyServeOverrides(env.cfg.Server, env.defaults.Server, bind, baseURL)
			return runServe(cmd.Context(), env)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "listen address (overrides server.bind)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "public base url used in sign-in links (overrides server.base_url)")
	return cmd
}

// applyServeOverrides layers --bind and --base-url over the configured server section.
// A new bind moves a base url still at its default along with it, so sign-in links
// point at the port actually served.
func applyServeOverrides(cfg, defaults config.ServerConfig, bind, baseURL string) config.ServerConfig {
	bind = strings.TrimSpace(bind)
	baseURL = strings.TrimSpace(baseURL)
	if bind != "" {
		cfg.Bind = bind
		if baseURL == "" && strings.TrimSpace(cfg.BaseURL) == defaults.BaseURL {
			cfg.BaseURL = baseURLForBind(bind)
		}
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return cfg
}

// baseURLForBind returns the local http url that reaches a listener on bind.
func baseURLForBind(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "http://" + bind
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// newLoginCommand signs in to a remote server in two steps.
func newLoginCommand(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var email, code, remoteURL string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a sift server with an emailed code",
		Long: `Sign in to a sift server.

  sift login --url https://sift.example.com --email you@example.com
  sift login --code <code from the emailed link>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(*opts, stderr, "login")
			if err != nil {
				return err
			}
			defer env.close(stderr)
			return runLogin(cmd.Context(), env, loginInput{email: email, code: code, url: remoteURL}, stdout)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address to send the sign-in link to")
	cmd.Flags().StringVar(&code, "code", "", "one-time code from the sign-in link")
	cmd.Flags().StringVar(&remoteURL, "url", "", "server url (saved as remote.url)")
	cmd.MarkFlagsMutuallyExclusive("email", "code")
	cmd.MarkFlagsOneRequired("email", "code")
	return cmd
}

// newLogoutCommand revokes and removes the saved remote session.
func newLogoutCommand(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the remote server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(*opts, stderr, "logout")
			if err != nil {
				return err
			}
			defer env.close(stderr)
			return runLogout(cmd.Context(), env, stdout)
		},
	}
}

// resolvePaths resolves platform paths for opts.
func resolvePaths(opts globalOptions) (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: opts.appName,
		DevMode: opts.devMode,
	})
}

// loadRuntime resolves paths, config, and the runtime logger for command.
func loadRuntime(opts globalOptions, stderr io.Writer, command string) (*runtimeEnv, error) {
	paths, err := resolvePaths(opts)
	if err != nil {
		return nil, err
	}
	env := &runtimeEnv{opts: opts, paths: paths, configPath: opts.configPath, dbPath: opts.dbPath}

	env.dbOverridden = strings.TrimSpace(env.dbPath) != ""
	if env.configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("SIFT_CONFIG")); envPath != "" {
			env.configPath = envPath
		} else {
			env.configPath = paths.ConfigPath
		}
	}
	if !env.dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("SIFT_DB_PATH")); envPath != "" {
			env.dbPath = envPath
			env.dbOverridden = true
		} else {
			env.dbPath = paths.DBPath
		}
	}

	env.defaults = config.Default(env.dbPath)
	env.cfg, err = config.Load(env.configPath, env.defaults)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", env.configPath, err)
	}
	if env.dbOverridden {
		env.cfg.Database.Path = env.dbPath
	}

	env.logger, err = newRuntimeLogger(stderr, opts.appName, opts.devMode, env.cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	env.logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	env.logger.Debug("runtime paths resolved", "config_path", env.configPath, "data_dir", paths.DataDir, "db_path", env.dbPath)
	if devPath := env.logger.DevLogPath(); devPath != "" {
		env.logger.Info("dev file logging enabled", "path", devPath)
	}
	return env, nil
}

// close releases the runtime logger.
func (e *runtimeEnv) close(stderr io.Writer) {
	if closeErr := e.logger.Close(); closeErr != nil && e.logger.shouldLogToSink(e.logger.consoleSink) {
		// Keep TUI shutdown quiet on the terminal when console logging is intentionally muted.
		_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
	}
}

// openRepository opens the configured sqlite database.
func (e *runtimeEnv) openRepository() (*sqlite.Repository, error) {
	e.logger.Info("opening sqlite repository", "db_path", e.cfg.Database.Path)
	repo, err := sqlite.Open(e.cfg.Database.Path)
	if err != nil {
		e.logger.Error("sqlite open failed", "db_path", e.cfg.Database.Path, "err", err)
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	e.logger.Info("sqlite repository ready", "db_path", e.cfg.Database.Path, "migrations", "ensured")
	return repo, nil
}

// closeRepository closes repo and logs failures.
func (e *runtimeEnv) closeRepository(repo *sqlite.Repository) {
	if closeErr := repo.Close(); closeErr != nil {
		e.logger.Warn("sqlite close failed", "db_path", e.cfg.Database.Path, "err", closeErr)
	}
}

// runTUI starts the board against the remote server or the local database.
func runTUI(ctx context.Context, opts globalOptions, stderr io.Writer) error {
	env, err := loadRuntime(opts, stderr, "tui")
	if err != nil {
		return err
	}
	defer env.close(stderr)

	var (
		repo   app.TodoRepository
		userID string
	)
	if remoteURL := strings.TrimSpace(env.cfg.Remote.URL); remoteURL != "" {
		client, sess, err := env.remoteClient(remoteURL)
		if err != nil {
			return err
		}
		env.logger.Info("using remote store", "url", remoteURL, "email", sess.Email)
		repo, userID = client, sess.Email
	} else {
		cfg, err := ensureStartupBootstrap(env.configPath, env.cfg, env.defaults, env.dbPath, env.dbOverridden, bootstrapInput, stderr)
		if err != nil {
			return fmt.Errorf("startup bootstrap: %w", err)
		}
		env.cfg = cfg
		local, err := env.openRepository()
		if err != nil {
			return err
		}
		defer env.closeRepository(local)

		user, err := ensureLocalUser(ctx, local, cfg.Identity.Email)
		if err != nil {
			return err
		}
		svc := app.NewService(local, uuid.NewString, time.Now)
		env.logger.Debug("application service initialized", "user_id", user.ID)
		repo, userID = svc.ForUser(user.ID), user.ID
	}

	// Keep TUI rendering clean: runtime logs stay in the dev-file sink while the board is active.
	env.logger.SetConsoleEnabled(false)
	m := tui.NewModel(
		repo,
		tui.WithLogger(env.logger),
		tui.WithUserID(userID),
		tui.WithRequestTimeout(env.cfg.Store.RequestTimeout.Std()),
	)
	env.logger.Info("starting tui program loop")
	if _, err := programFactory(m).Run(); err != nil {
		env.logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	env.logger.Info("command flow complete", "command", "tui")
	return nil
}

// remoteClient builds a client from the saved session for remoteURL.
func (e *runtimeEnv) remoteClient(remoteURL string) (*remote.Client, remote.Session, error) {
	sess, err := remote.LoadSession(e.paths.SessionPath)
	if err != nil && !errors.Is(err, remote.ErrNoSession) {
		return nil, remote.Session{}, err
	}
	if err != nil || !sess.Valid(time.Now()) || !sameURL(sess.URL, remoteURL) {
		return nil, remote.Session{}, fmt.Errorf("not signed in to %s: run `sift login --email you@example.com`", remoteURL)
	}
	client, err := remote.NewClient(remoteURL, sess.Token, nil)
	if err != nil {
		return nil, remote.Session{}, err
	}
	return client, sess, nil
}

// ensureLocalUser returns the local user for email, creating it on first run.
func ensureLocalUser(ctx context.Context, repo *sqlite.Repository, email string) (domain.User, error) {
	candidate, err := domain.NewUser(uuid.NewString(), email, time.Now())
	if err != nil {
		return domain.User{}, fmt.Errorf("identity email: %w", err)
	}
	user, err := repo.EnsureUser(ctx, candidate)
	if err != nil {
		return domain.User{}, fmt.Errorf("ensure local user: %w", err)
	}
	return user, nil
}

// runServe composes storage, auth, and transports, then blocks until ctx ends.
func runServe(ctx context.Context, env *runtimeEnv) error {
	repo, err := env.openRepository()
	if err != nil {
		return err
	}
	defer env.closeRepository(repo)

	outbox := strings.TrimSpace(env.cfg.Auth.OutboxDir)
	if outbox == "" {
		outbox = env.paths.OutboxDir
	}
	mailers := multiMailer{auth.OutboxMailer{Dir: outbox}}
	if env.opts.devMode {
		mailers = append(mailers, auth.LogMailer{Logger: env.logger})
	}
	env.logger.Info("sign-in mail outbox", "dir", outbox)

	gateway := auth.NewMagicLinkGateway(repo, mailers, uuid.NewString, time.Now, auth.Config{
		LinkTTL:    env.cfg.Auth.LinkTTL.Std(),
		SessionTTL: env.cfg.Auth.SessionTTL.Std(),
	})
	svc := app.NewService(repo, uuid.NewString, time.Now)

	err = server.Run(ctx, server.Config{
		HTTPBind:      env.cfg.Server.Bind,
		BaseURL:       env.cfg.Server.BaseURL,
		ServerName:    "sift",
		ServerVersion: version,
		CookieSecure:  env.cfg.Auth.CookieSecure,
	}, server.Dependencies{
		Todos:   common.NewAppServiceAdapter(svc),
		Gateway: gateway,
		Ready:   repo.Ping,
		Logger:  env.logger,
	})
	if err != nil {
		env.logger.Error("server stopped with error", "err", err)
		return err
	}
	env.logger.Info("command flow complete", "command", "serve")
	return nil
}

// multiMailer delivers each message through every mailer in order.
type multiMailer []auth.Mailer

// Send implements auth.Mailer.
func (m multiMailer) Send(ctx context.Context, msg auth.Message) error {
	var errs []error
	for _, mailer := range m {
		if err := mailer.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loginInput holds the login command flags.
type loginInput struct {
	email string
	code  string
	url   string
}

// runLogin requests a sign-in link or redeems a code into a saved session.
func runLogin(ctx context.Context, env *runtimeEnv, in loginInput, stdout io.Writer) error {
	remoteURL := strings.TrimSpace(in.url)
	if remoteURL == "" {
		remoteURL = strings.TrimSpace(env.cfg.Remote.URL)
	}
	if remoteURL == "" {
		return errors.New("no server configured: pass --url or set remote.url")
	}
	client, err := remote.NewClient(remoteURL, "", &http.Client{Timeout: env.cfg.Store.RequestTimeout.Std()})
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.url) != "" {
		if err := config.UpsertRemoteURL(env.configPath, remoteURL); err != nil {
			return fmt.Errorf("persist remote url: %w", err)
		}
	}

	if email := strings.TrimSpace(in.email); email != "" {
		if err := client.RequestSignInLink(ctx, email); err != nil {
			env.logger.Error("sign-in link request failed", "url", remoteURL, "err", err)
			return err
		}
		env.logger.Info("sign-in link requested", "url", remoteURL, "email", email)
		_, _ = fmt.Fprintf(stdout, "Check your email for a sign-in link, then run: sift login --code <code>\n")
		return nil
	}

	issued, err := client.ExchangeCode(ctx, strings.TrimSpace(in.code))
	if err != nil {
		env.logger.Error("code exchange failed", "url", remoteURL, "err", err)
		return err
	}
	if err := remote.SaveSession(env.paths.SessionPath, remote.Session{
		URL:       remoteURL,
		Token:     issued.Token,
		Email:     issued.User.Email,
		ExpiresAt: issued.ExpiresAt,
	}); err != nil {
		return err
	}
	if err := config.UpsertRemoteURL(env.configPath, remoteURL); err != nil {
		return fmt.Errorf("persist remote url: %w", err)
	}
	env.logger.Info("signed in", "url", remoteURL, "email", issued.User.Email)
	_, _ = fmt.Fprintf(stdout, "Signed in as %s\n", issued.User.Email)
	return nil
}

// runLogout revokes the saved session on the server and deletes it locally.
func runLogout(ctx context.Context, env *runtimeEnv, stdout io.Writer) error {
	sess, err := remote.LoadSession(env.paths.SessionPath)
	if errors.Is(err, remote.ErrNoSession) {
		_, _ = fmt.Fprintln(stdout, "Not signed in")
		return nil
	}
	if err != nil {
		return err
	}
	client, err := remote.NewClient(sess.URL, sess.Token, &http.Client{Timeout: env.cfg.Store.RequestTimeout.Std()})
	if err == nil {
		if signOutErr := client.SignOut(ctx); signOutErr != nil && !errors.Is(signOutErr, auth.ErrUnauthenticated) {
			env.logger.Warn("server sign-out failed", "url", sess.URL, "err", signOutErr)
		}
	}
	if err := remote.RemoveSession(env.paths.SessionPath); err != nil {
		return err
	}
	env.logger.Info("signed out", "url", sess.URL)
	_, _ = fmt.Fprintln(stdout, "Signed out")
	return nil
}

// ensureStartupBootstrap asks for the identity email before the first local run and persists it.
func ensureStartupBootstrap(configPath string, cfg config.Config, defaults config.Config, dbPath string, dbOverridden bool, input io.Reader, output io.Writer) (config.Config, error) {
	if strings.TrimSpace(cfg.Identity.Email) != "" {
		return cfg, nil
	}
	email, err := promptStartupEmail(input, output)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.UpsertIdentityEmail(configPath, email); err != nil {
		return config.Config{}, fmt.Errorf("persist identity: %w", err)
	}
	reloaded, err := config.Load(configPath, defaults)
	if err != nil {
		return config.Config{}, fmt.Errorf("reload config %q: %w", configPath, err)
	}
	if dbOverridden {
		reloaded.Database.Path = dbPath
	}
	return reloaded, nil
}

// promptStartupEmail reads one valid email address.
func promptStartupEmail(input io.Reader, output io.Writer) (string, error) {
	if input == nil {
		return "", errors.New("bootstrap input is required")
	}
	if output == nil {
		output = io.Discard
	}
	reader := bufio.NewReader(input)
	_, _ = fmt.Fprintln(output, "sift setup required")
	_, _ = fmt.Fprintln(output, "Your email names the local board owner.")
	for {
		value, err := readBootstrapLine(reader, output, "Email: ")
		if err != nil {
			return "", err
		}
		email, err := domain.NormalizeEmail(value)
		if err == nil {
			_, _ = fmt.Fprintln(output)
			return email, nil
		}
		_, _ = fmt.Fprintln(output, "please enter a valid email address")
	}
}

// readBootstrapLine renders one prompt and returns the trimmed response.
func readBootstrapLine(reader *bufio.Reader, output io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(output, prompt); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	line, err := reader.ReadString('\n')
	switch {
	case err == nil:
		return strings.TrimSpace(line), nil
	case errors.Is(err, io.EOF):
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return "", io.EOF
		}
		return trimmed, nil
	default:
		return "", fmt.Errorf("read prompt value: %w", err)
	}
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// sameURL compares two server urls ignoring a trailing slash.
func sameURL(a, b string) bool {
	return strings.TrimRight(strings.TrimSpace(a), "/") == strings.TrimRight(strings.TrimSpace(b), "/")
}
