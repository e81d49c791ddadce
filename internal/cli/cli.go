// Package cli implements the pocket-kb command line: a cobra command tree
// over the knowledge base service. It is the only layer that prints.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dpshade/pocket-kb/internal/clipboard"
	"github.com/dpshade/pocket-kb/internal/config"
	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/logging"
	"github.com/dpshade/pocket-kb/internal/service"
	"github.com/dpshade/pocket-kb/internal/validation"
)

// Output formats accepted by --format
const (
	formatText  = "text"
	formatJSON  = "json"
	formatTable = "table"
	formatIDs   = "ids"
)

// CLI holds the flags and state shared by every command
type CLI struct {
	version string

	configPath  string
	contentPath string
	policy      string
	format      string
	logLevel    string
	verbose     bool

	config       *config.Config
	logger       *logging.Logger
	errorHandler *errors.CLIErrorHandler
	service      *service.Service
	copier       *clipboard.Copier
}

// NewCLI creates a new CLI instance
func NewCLI(version string) *CLI {
	return &CLI{
		version:      version,
		logger:       logging.Nop(),
		errorHandler: errors.NewCLIErrorHandler(false, nil),
		copier:       clipboard.New(),
	}
}

// Execute runs the command line against os.Args and returns the exit code
func Execute(version string) int {
	return NewCLI(version).Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes args and returns the process exit code: 0 on success, 1 on
// any error, including a failed gate (validate, diff, fill --strict)
func (c *CLI) Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	c.logger.Sync()
	if err == nil {
		return 0
	}

	fmt.Fprintln(stderr, status(c.errorHandler.HandleError(commandError(err)).Error(), statusError))
	return 1
}

// commandError gives errors that did not come from the service (flag
// parsing, argument counts) an AppError so the handler shows their text
func commandError(err error) error {
	var dupErr *errors.DuplicateIDError
	if errors.IsAppError(err) || stderrors.As(err, &dupErr) {
		return err
	}
	return errors.Wrap(err, errors.ErrCodeCommandFailed, err.Error())
}

// RootCommand builds the command tree
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pocket-kb",
		Short: "Searchable knowledge base of fill-in document templates",
		Long: `pocket-kb indexes a collection of template records (letters, forms,
procedures, contact sheets) and lets you find them by tag, country pair,
resource type, entry type and free text, then fill their [BRACKETED] fields.

The canonical collection is a directory of markdown files with YAML
frontmatter, or a single YAML/JSON collection file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default $POCKET_KB_CONFIG or ~/.pocket-kb/config.yaml)")
	flags.StringVarP(&c.contentPath, "content", "c", "", "content directory or collection file")
	flags.StringVar(&c.policy, "policy", "", "invalid record policy: exclude or abort")
	flags.StringVarP(&c.format, "format", "f", formatText, "output format: text, json, table, ids")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "show error details and debug logs")

	root.AddCommand(
		c.listCommand(),
		c.searchCommand(),
		c.getCommand(),
		c.tokensCommand(),
		c.fillCommand(),
		c.facetsCommand(),
		c.validateCommand(),
		c.diffCommand(),
		c.exportCommand(),
		c.watchCommand(),
		c.versionCommand(),
	)
	return root
}

// setup resolves configuration (defaults < file < environment < flags) and
// builds the logger
func (c *CLI) setup() error {
	cfg, err := config.Load(c.configFile())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to load configuration").WithDetails(err.Error())
	}

	if c.contentPath != "" {
		cfg.ContentDir = c.contentPath
	}
	if c.policy != "" {
		cfg.Policy = c.policy
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid configuration").WithDetails(err.Error())
	}

	switch c.format {
	case formatText, formatJSON, formatTable, formatIDs:
	default:
		return errors.InvalidInputError(fmt.Sprintf("unknown output format %q (valid: text, json, table, ids)", c.format))
	}

	logger, err := logging.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to initialize logger").WithDetails(err.Error())
	}

	c.config = cfg
	c.logger = logger
	c.errorHandler = errors.NewCLIErrorHandler(c.verbose, logger)
	return nil
}

// configFile is the --config path or the default location
func (c *CLI) configFile() string {
	if c.configPath != "" {
		return c.configPath
	}
	return config.DefaultConfigPath()
}

// newService creates the service without loading anything
func (c *CLI) newService() (*service.Service, error) {
	if c.service != nil {
		return c.service, nil
	}
	svc, err := service.NewService(service.Options{
		ContentPath:     c.config.ContentDir,
		Policy:          c.config.GetPolicy(),
		Logger:          c.logger,
		LoadConcurrency: c.config.LoadConcurrency,
	})
	if err != nil {
		return nil, err
	}
	c.service = svc
	return svc, nil
}

// loadService creates the service and builds the index from the content
// source. Excluded records are reported on stderr.
func (c *CLI) loadService(cmd *cobra.Command) (*service.Service, error) {
	svc, err := c.newService()
	if err != nil {
		return nil, err
	}

	report, err := svc.Reload(cmd.Context())
	if err != nil {
		return nil, err
	}
	if !report.Validation.Valid() && c.config.GetPolicy() == validation.PolicyExclude {
		fmt.Fprintln(cmd.ErrOrStderr(), status(
			fmt.Sprintf("%d of %d records excluded as invalid (run 'pocket-kb validate' for details)",
				len(report.Validation.Invalid), report.Loaded), statusWarning))
	}
	return svc, nil
}
