package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dpshade/pocket-kb/internal/clipboard"
	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/index"
	"github.com/dpshade/pocket-kb/internal/models"
	"github.com/dpshade/pocket-kb/internal/service"
	"github.com/dpshade/pocket-kb/internal/storage"
	"github.com/dpshade/pocket-kb/internal/watcher"
)

func (c *CLI) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.loadService(cmd)
			if err != nil {
				return err
			}
			records, err := svc.ListRecords()
			if err != nil {
				return err
			}
			return c.formatRecords(cmd.OutOrStdout(), records)
		},
	}
}

func (c *CLI) searchCommand() *cobra.Command {
	var (
		tags         []string
		country      string
		resourceType string
		entryType    string
		expr         string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "search [text...]",
		Short: "Search records by facet and free text",
		Long: `Search narrows by facet and ranks by free text.

Facets are combined with AND; repeated --tag flags match any of the tags.
Every free-text word must occur in a record's name, summary or tags.

Examples:
  pocket-kb search --tag Hague --country US-Mexico
  pocket-kb search return order --type Court
  pocket-kb search --expr 'Hague AND NOT Draft'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := models.Query{
				Filter: models.Filter{
					Tags:         tags,
					CountryPair:  country,
					ResourceType: resourceType,
					EntryType:    models.EntryType(entryType),
				},
				FreeText: strings.Join(args, " "),
				Limit:    limit,
			}
			if !cmd.Flags().Changed("limit") {
				q.Limit = c.config.SearchLimit
			}
			if expr != "" {
				parsed, err := models.ParseTagExpression(expr)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeInvalidExpression, "Invalid tag expression").WithDetails(err.Error())
				}
				q.Expression = parsed
			}

			svc, err := c.loadService(cmd)
			if err != nil {
				return err
			}
			hits, err := svc.Search(q)
			if err != nil {
				return err
			}

			if len(hits) == 0 && c.format != formatJSON {
				fmt.Fprintln(cmd.OutOrStdout(), status("No records found", statusInfo))
				for _, hint := range c.facetHints(svc, q.Filter) {
					fmt.Fprintln(cmd.ErrOrStderr(), metadata(hint))
				}
				return nil
			}

			records := make([]models.TemplateRecord, 0, len(hits))
			for _, hit := range hits {
				record, ok, err := svc.GetRecord(hit.ID)
				if err != nil {
					return err
				}
				if ok {
					records = append(records, record)
				}
			}
			return c.formatHits(cmd.OutOrStdout(), hits, records)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&tags, "tag", "t", nil, "match records carrying this tag (repeatable, any-of)")
	flags.StringVar(&country, "country", "", "country pair, e.g. US-Mexico")
	flags.StringVar(&resourceType, "type", "", "resource type, e.g. Court")
	flags.StringVar(&entryType, "entry", "", "entry type: resource, template, procedure, guidance, country_matrix, prevention")
	flags.StringVarP(&expr, "expr", "e", "", "boolean tag expression with AND, OR, XOR, NOT")
	flags.IntVarP(&limit, "limit", "n", 0, "maximum number of results (0 for all)")
	return cmd
}

// facetHints suggests known facet values for requested values the index
// does not contain
func (c *CLI) facetHints(svc *service.Service, f models.Filter) []string {
	var hints []string
	hint := func(facet index.Facet, flag, value string) {
		if value == "" {
			return
		}
		suggestions, err := svc.Suggest(facet, value, 3)
		if err != nil || len(suggestions) == 0 || suggestions[0] == value {
			return
		}
		hints = append(hints, fmt.Sprintf("--%s %q is not a known value. Did you mean: %s?",
			flag, value, strings.Join(suggestions, ", ")))
	}

	for _, tag := range f.Tags {
		hint(index.FacetTag, "tag", strings.TrimSpace(tag))
	}
	hint(index.FacetCountryPair, "country", f.CountryPair)
	hint(index.FacetResourceType, "type", f.ResourceType)
	hint(index.FacetEntryType, "entry", string(f.EntryType))
	return hints
}

// notFound prints "did you mean" ids when err is a missing record
func (c *CLI) notFound(cmd *cobra.Command, svc *service.Service, id string, err error) error {
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		return err
	}
	if suggestions, sErr := svc.Suggest("", id, 5); sErr == nil && len(suggestions) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), metadata("Did you mean:"))
		for _, s := range suggestions {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", s)
		}
	}
	return err
}

func (c *CLI) getCommand() *cobra.Command {
	var (
		render bool
		width  int
	)

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.loadService(cmd)
			if err != nil {
				return err
			}

			id := args[0]
			record, ok, err := svc.GetRecord(id)
			if err != nil {
				return err
			}
			if !ok {
				return c.notFound(cmd, svc, id, errors.NotFoundError(fmt.Sprintf("Record %q", id)))
			}

			if render && c.format == formatText {
				r, err := svc.Renderer(id)
				if err != nil {
					return err
				}
				out, err := r.RenderTerminal(nil, width)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeCommandFailed, "Failed to render record")
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			}
			return c.formatRecord(cmd.OutOrStdout(), record)
		},
	}

	cmd.Flags().BoolVarP(&render, "render", "r", false, "render full text as styled markdown")
	cmd.Flags().IntVarP(&width, "width", "w", 80, "word wrap width for --render")
	return cmd
}

func (c *CLI) tokensCommand() *cobra.Command {
	var classify bool

	cmd := &cobra.Command{
		Use:   "tokens <id>",
		Short: "List the [BRACKETED] fields of a record",
		Long: `List the distinct bracketed tokens of a record's full text in first
occurrence order.

Bracketed statute citations and footnote markers are tokens too. With
--classify each token is reported with a confidence of "field" or
"ambiguous" and the reason it looks like a citation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.loadService(cmd)
			if err != nil {
				return err
			}

			placeholders, err := svc.Tokens(args[0])
			if err != nil {
				return c.notFound(cmd, svc, args[0], err)
			}
			return c.formatTokens(cmd.OutOrStdout(), placeholders, classify)
		},
	}

	cmd.Flags().BoolVar(&classify, "classify", false, "flag tokens that look like citations or footnote markers")
	return cmd
}

func (c *CLI) fillCommand() *cobra.Command {
	var (
		vars     []string
		varsFile string
		render   bool
		strict   bool
		toClip   bool
		width    int
	)

	cmd := &cobra.Command{
		Use:   "fill <id>",
		Short: "Fill a record's bracketed fields",
		Long: `Fill substitutes values into a record's full text. Keys name the token
with or without its brackets. Values are inserted verbatim; brackets inside a
value are never filled.

Examples:
  pocket-kb fill letter-to-court --var "CHILD NAME=Ana" --var "[DATE]=1 May"
  pocket-kb fill letter-to-court --vars answers.yaml --strict`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := fillValues(varsFile, vars)
			if err != nil {
				return err
			}

			svc, err := c.loadService(cmd)
			if err != nil {
				return err
			}

			id := args[0]
			r, err := svc.Renderer(id)
			if err != nil {
				return c.notFound(cmd, svc, id, err)
			}

			result := r.Fill(values)
			out := cmd.OutOrStdout()
			switch {
			case c.format == formatJSON:
				doc, err := r.RenderJSON(values)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeCommandFailed, "Failed to render record")
				}
				fmt.Fprintln(out, doc)
			case render:
				styled, err := r.RenderTerminal(values, width)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeCommandFailed, "Failed to render record")
				}
				fmt.Fprint(out, styled)
			default:
				fmt.Fprint(out, result.Text)
				if !strings.HasSuffix(result.Text, "\n") {
					fmt.Fprintln(out)
				}
			}

			if toClip {
				if err := c.copier.Copy(cmd.Context(), result.Text); err != nil {
					appErr := errors.Wrap(err, errors.ErrCodeCommandFailed, "Failed to copy to clipboard").WithDetails(err.Error())
					var unavailable *clipboard.UnavailableError
					if stderrors.As(err, &unavailable) && unavailable.InstallHint() != "" {
						appErr.WithDetails(unavailable.InstallHint())
					}
					return appErr
				}
				fmt.Fprintln(cmd.ErrOrStderr(), status("Copied to clipboard", statusSuccess))
			}

			if len(result.Unused) > 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), status("Unused values: "+strings.Join(result.Unused, ", "), statusWarning))
			}
			if !result.Complete() {
				msg := fmt.Sprintf("%d field(s) left unresolved", len(result.Unresolved))
				if strict {
					return errors.ValidationError(msg).WithDetails(strings.Join(result.Unresolved, ", "))
				}
				fmt.Fprintln(cmd.ErrOrStderr(), status(msg+": "+strings.Join(result.Unresolved, ", "), statusWarning))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&vars, "var", nil, `value for a token as "TOKEN=value" (repeatable)`)
	flags.StringVar(&varsFile, "vars", "", "YAML file mapping tokens to values")
	flags.BoolVarP(&render, "render", "r", false, "render the filled text as styled markdown")
	flags.BoolVar(&strict, "strict", false, "fail when any token is left unresolved")
	flags.BoolVar(&toClip, "copy", false, "also copy the filled text to the clipboard")
	flags.IntVarP(&width, "width", "w", 80, "word wrap width for --render")
	return cmd
}

// fillValues merges the --vars file with --var flags, which win
func fillValues(varsFile string, vars []string) (map[string]string, error) {
	values := make(map[string]string)

	if varsFile != "" {
		data, err := os.ReadFile(varsFile)
		if err != nil {
			return nil, errors.StorageError("read vars file", err).WithDetails(err.Error())
		}
		var fromFile map[string]string
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, errors.CorruptedFileError(varsFile, err).WithDetails(err.Error())
		}
		for key, value := range fromFile {
			values[tokenKey(key)] = value
		}
	}

	for _, v := range vars {
		key, value, err := splitVar(v)
		if err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, nil
}

// splitVar parses "TOKEN=value" or "[TOKEN]=value". A bracketed key may
// itself contain '='.
func splitVar(v string) (string, string, error) {
	sep := -1
	if strings.HasPrefix(v, "[") {
		if i := strings.Index(v, "]="); i >= 0 {
			sep = i + 1
		}
	} else {
		sep = strings.Index(v, "=")
	}
	if sep <= 0 {
		return "", "", errors.InvalidInputError(fmt.Sprintf("invalid --var %q (want TOKEN=value)", v))
	}
	return tokenKey(v[:sep]), v[sep+1:], nil
}

// tokenKey turns a token label into the literal Fill expects
func tokenKey(key string) string {
	if strings.HasPrefix(key, "[") && strings.HasSuffix(key, "]") {
		return key
	}
	return "[" + key + "]"
}

func (c *CLI) facetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "facets [tag|country|type|entry]",
		Short:     "List facet values with record counts",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"tag", "country", "type", "entry"},
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.loadService(cmd)
			if err != nil {
				return err
			}
			facets, err := svc.Facets()
			if err != nil {
				return err
			}
			only := ""
			if len(args) == 1 {
				only = args[0]
			}
			return c.formatFacets(cmd.OutOrStdout(), facets, only)
		},
	}
}

func (c *CLI) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every record of the content source",
		Long: `Validate reports every invalid record and every duplicated id without
building an index. It exits with status 1 unless the whole collection is
clean, whatever the configured policy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.newService()
			if err != nil {
				return err
			}
			report, err := svc.Check(cmd.Context())
			if err != nil {
				return err
			}

			if err := c.formatCheck(cmd.OutOrStdout(), report); err != nil {
				return err
			}

			if len(report.DuplicateIDs) > 0 {
				return errors.NewDuplicateIDError(report.DuplicateIDs).ToAppError()
			}
			if !report.Validation.Valid() {
				return report.Validation.ToAppError()
			}
			return nil
		},
	}
}

func (c *CLI) diffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <a> <b>",
		Short: "Compare two collections field by field",
		Long: `Diff compares two collections keyed by id and reports records present on
one side only and field-level mismatches. It exits with status 1 when the
collections differ, so it can gate publishing a generated copy.

Example:
  pocket-kb export build/kb.json && pocket-kb diff ./content build/kb.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.newService()
			if err != nil {
				return err
			}
			report, err := svc.Diff(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.format == formatJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else if err := report.Format(out); err != nil {
				return err
			}

			if !report.Clean() {
				return report.ToAppError()
			}
			return nil
		},
	}
}

func (c *CLI) exportCommand() *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "export <out>",
		Short: "Write the valid records to a JSON, YAML or markdown copy",
		Long: `Export generates a secondary representation of the content source. The
format defaults from the output extension: .json, .yaml/.yml, anything else
is a directory of markdown files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := args[0]
			if as == "" {
				as = exportFormatFor(out)
			}
			format, err := storage.ParseFormat(as)
			if err != nil {
				return err
			}

			svc, err := c.newService()
			if err != nil {
				return err
			}
			n, err := svc.Export(cmd.Context(), out, format)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status(fmt.Sprintf("Exported %d records to %s", n, out), statusSuccess))
			return nil
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "export format: json, yaml, md")
	return cmd
}

func exportFormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return string(storage.FormatJSON)
	case ".yaml", ".yml":
		return string(storage.FormatYAML)
	default:
		return string(storage.FormatMarkdown)
	}
}

func (c *CLI) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the index whenever the content changes",
		Long: `Watch builds the index, then rebuilds it each time the content source
changes. A failed rebuild is reported and the previous index stays active.
Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.loadService(cmd)
			if err != nil {
				return err
			}

			w, err := watcher.NewContentWatcher(c.config.ContentDir, svc, c.config.GetWatchDebounce(), c.logger)
			if err != nil {
				return errors.StorageError("watch content", err).WithDetails(err.Error())
			}

			out := cmd.OutOrStdout()
			w.OnReload(func(report service.BuildReport, err error) {
				if err != nil {
					fmt.Fprintln(out, status("Reload failed: "+c.errorHandler.FormatError(err), statusError))
					return
				}
				fmt.Fprintln(out, status(fmt.Sprintf("Reloaded %d records (%d excluded) in %s",
					report.Indexed, len(report.Validation.Invalid), report.Duration.Round(time.Millisecond)), statusSuccess))
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := w.Start(ctx); err != nil {
				return errors.StorageError("watch content", err).WithDetails(err.Error())
			}
			defer w.Stop()

			if report, ok := svc.LastReport(); ok {
				fmt.Fprintln(out, title(fmt.Sprintf("Watching %s", c.config.ContentDir)))
				fmt.Fprintln(out, metadata(fmt.Sprintf("%d records indexed. Press Ctrl+C to stop.", report.Indexed)))
			}

			select {
			case <-ctx.Done():
			case <-w.Done():
			}

			stats := w.GetStats()
			c.logger.Info("watch finished", "events", stats.Events, "reloads", stats.Reloads, "failures", stats.Failures)
			return nil
		},
	}
}

func (c *CLI) configCommand() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long: `Config prints the configuration in effect after defaults, the config
file, POCKET_KB_* environment variables and flags are applied.

With --save the resolved configuration is written to the config file, so
flags given now become the defaults of later runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if save {
				path := c.configFile()
				if err := c.config.Save(path); err != nil {
					return errors.StorageError("save config", err).WithDetails(err.Error())
				}
				fmt.Fprintln(cmd.OutOrStdout(), status("Saved configuration to "+path, statusSuccess))
				return nil
			}

			if c.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), c.config)
			}
			data, err := yaml.Marshal(c.config)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternalError, "Failed to encode configuration")
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "write the resolved configuration to the config file")
	return cmd
}

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No configuration needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "pocket-kb %s\n", c.version)
			return nil
		},
	}
}
