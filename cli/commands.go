package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zot/supplies/internal/exchange"
	"github.com/zot/supplies/internal/mcp"
	"github.com/zot/supplies/internal/server"
	"github.com/zot/supplies/internal/supply"
)

func (st *cliState) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and WebSocket feed (default)",
		Args:  cobra.NoArgs,
		RunE:  st.runServe,
	}
}

func (st *cliState) runServe(cmd *cobra.Command, args []string) error {
	return st.withApp(func(app *App) error {
		if app.Config.Storage.Watch {
			if err := app.Watch(); err != nil {
				return err
			}
		}
		srv, err := server.New(app.Config, app.Log, app.Service)
		if err != nil {
			return err
		}
		return srv.Run(cmd.Context())
	})
}

func (st *cliState) mcpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ledger to AI agents over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(func(app *App) error {
				if app.Config.Storage.Watch {
					if err := app.Watch(); err != nil {
						return err
					}
				}
				s := mcp.NewServer(app.Service, Version, app.Log)
				return s.ServeStdio(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func (st *cliState) listCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every record, newest date first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(func(app *App) error {
				records, err := app.Service.Records()
				if err != nil {
					return err
				}
				if format == "table" {
					return writeTable(cmd.OutOrStdout(), records)
				}
				f, err := exchange.ParseFormat(format)
				if err != nil {
					return err
				}
				return exchange.Export(cmd.OutOrStdout(), records, f)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json, yaml")
	return cmd
}

func writeTable(out io.Writer, records []supply.Record) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTEA\tSAMOSA\tSNACKS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", r.ID, formatDate(r.Date), r.Tea, r.Samosa, r.Snacks)
	}
	return tw.Flush()
}

func formatDate(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format("2006-01-02 15:04")
}

// fieldFlags binds the record field flags shared by add and update.
type fieldFlags struct {
	date   string
	tea    int
	samosa int
	snacks int
}

func (f *fieldFlags) register(cmd *cobra.Command, dateHelp string) {
	cmd.Flags().StringVarP(&f.date, "date", "d", "", dateHelp)
	cmd.Flags().IntVar(&f.tea, "tea", 0, "Cups of tea")
	cmd.Flags().IntVar(&f.samosa, "samosa", 0, "Samosas")
	cmd.Flags().IntVar(&f.snacks, "snacks", 0, "Snack packets")
}

// apply copies the flags the user set onto fields.
func (f *fieldFlags) apply(cmd *cobra.Command, fields *supply.Fields) error {
	flags := cmd.Flags()
	if flags.Changed("date") {
		date, err := supply.ParseDate(f.date)
		if err != nil {
			return err
		}
		fields.Date = date
	}
	if flags.Changed("tea") {
		fields.Tea = f.tea
	}
	if flags.Changed("samosa") {
		fields.Samosa = f.samosa
	}
	if flags.Changed("snacks") {
		fields.Snacks = f.snacks
	}
	return nil
}

func (st *cliState) addCommand() *cobra.Command {
	var ff fieldFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record and print its id",
		Example: `  supplies add --date 2024-01-31 --tea 4 --samosa 2
  supplies add --snacks 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := supply.Fields{Date: today()}
			if err := ff.apply(cmd, &fields); err != nil {
				return err
			}
			return st.withApp(func(app *App) error {
				r, err := app.Service.Add(fields)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), r.ID)
				return nil
			})
		},
	}
	ff.register(cmd, "Date of the entry (default today)")
	return cmd
}

func today() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (st *cliState) updateCommand() *cobra.Command {
	var ff fieldFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an existing record",
		Long:  "Only the flags given are changed; other fields keep their stored values.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(func(app *App) error {
				_, err := app.Service.Patch(args[0], func(f *supply.Fields) error {
					return ff.apply(cmd, f)
				})
				return err
			})
		},
	}
	ff.register(cmd, "Date of the entry")
	return cmd
}

func (st *cliState) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete records by id",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(func(app *App) error {
				for _, id := range args {
					if err := app.Service.Delete(id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (st *cliState) exportCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write the collection as JSON or YAML to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := pickFormat(format, args)
			if err != nil {
				return err
			}
			return st.withApp(func(app *App) error {
				records, err := app.Service.Records()
				if err != nil {
					return err
				}
				if len(args) == 0 {
					return exchange.Export(cmd.OutOrStdout(), records, f)
				}
				file, err := os.Create(args[0])
				if err != nil {
					return err
				}
				if err := exchange.Export(file, records, f); err != nil {
					file.Close()
					return err
				}
				return file.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml (default from file extension, else json)")
	return cmd
}

func (st *cliState) importCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the collection with the records in a JSON or YAML file",
		Long:  `Use "-" to read from stdin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := pickFormat(format, args)
			if err != nil {
				return err
			}
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				in = file
			}
			records, err := exchange.Import(in, f)
			if err != nil {
				return err
			}
			return st.withApp(func(app *App) error {
				if err := app.Service.Import(records); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", len(records))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml (default from file extension, else json)")
	return cmd
}

func pickFormat(flag string, args []string) (exchange.Format, error) {
	if flag != "" {
		return exchange.ParseFormat(flag)
	}
	if len(args) > 0 && args[0] != "-" {
		return exchange.FormatFromPath(args[0]), nil
	}
	return exchange.JSON, nil
}

func (st *cliState) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "supplies v"+Version)
			if st.hooks != nil && st.hooks.CustomVersion != nil {
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(st.hooks.CustomVersion()))
			}
		},
	}
}
