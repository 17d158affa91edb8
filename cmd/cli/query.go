package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/toolsascode/arcade/client"
)

var (
	language    string
	params      map[string]string
	output      string
	inTx        bool
	isolation   string
	statementFn = map[string]func(client.Conn, context.Context, string, string, map[string]interface{}) (client.Result, error){
		"query":   client.Conn.QueryLang,
		"command": client.Conn.CommandLang,
	}
)

var queryCmd = &cobra.Command{
	Use:   "query STATEMENT",
	Short: "Run an idempotent query",
	Example: `  arcade query -c core "SELECT FROM Product WHERE sku = :sku" -p sku=A-1
  arcade query -c core --language cypher "MATCH (p:Product) RETURN p" -o table`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatement(cmd, "query", args[0])
	},
}

var commandCmd = &cobra.Command{
	Use:   "command STATEMENT",
	Short: "Run a command that may change the database",
	Example: `  arcade command -c core "CREATE DOCUMENT TYPE Product IF NOT EXISTS"
  arcade command -c core --tx "INSERT INTO Product SET sku = :sku" -p sku=A-1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatement(cmd, "command", args[0])
	},
}

func init() {
	for _, cmd := range []*cobra.Command{queryCmd, commandCmd} {
		cmd.Flags().StringVarP(&language, "language", "l", client.LangSQL, "Statement language (sql, sqlscript, cypher, gremlin, ...)")
		cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "Named parameter key=value; values are parsed as JSON when possible")
		cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or table")
	}
	commandCmd.Flags().BoolVar(&inTx, "tx", false, "Run the command inside a transaction")
	commandCmd.Flags().StringVar(&isolation, "isolation", "", "Transaction isolation level (READ_COMMITTED or REPEATABLE_READ)")
}

func runStatement(cmd *cobra.Command, kind, statement string) error {
	ctx := cmd.Context()
	conn, err := connect(ctx, false)
	if err != nil {
		return err
	}

	exec := statementFn[kind]
	args := parseParams(params)

	var res client.Result
	if inTx && kind == "command" {
		opts := client.TxOptions{Isolation: client.IsolationLevel(strings.ToUpper(isolation))}
		res, err = client.RunTransactionWith(ctx, conn, opts, func(ctx context.Context, tx client.Conn) (client.Result, error) {
			return exec(tx, ctx, language, statement, args)
		})
	} else {
		res, err = exec(conn, ctx, language, statement, args)
	}
	if err != nil {
		return err
	}
	return printRecords(cmd.OutOrStdout(), output, res)
}

// parseParams decodes values as JSON so numbers and booleans keep their type;
// anything else is passed as a string.
func parseParams(raw map[string]string) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out
}

func printRecords(w io.Writer, format string, res client.Result) error {
	switch format {
	case "json":
		records := res.Records
		if records == nil {
			records = []client.Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "table":
		printTable(w, res.Records)
		return nil
	default:
		return &client.Error{Kind: client.KindValidation, Op: "output", Message: fmt.Sprintf("unknown output format %q", format)}
	}
}

func printTable(w io.Writer, records []client.Record) {
	seen := make(map[string]bool)
	var columns []string
	for _, r := range records {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(columns, "\t")))
	for _, r := range records {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = formatCell(r[col])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "(%d record(s))\n", len(records))
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]interface{}, []interface{}:
		data, _ := json.Marshal(x)
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}
