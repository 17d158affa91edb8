package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Create, drop and check databases on the server",
}

var dbCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(cmd.Context(), true)
		if err != nil {
			return err
		}
		if err := conn.CreateDatabase(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database %s created\n", args[0])
		return nil
	},
}

var dbDropCmd = &cobra.Command{
	Use:   "drop NAME",
	Short: "Drop a database and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(cmd.Context(), true)
		if err != nil {
			return err
		}
		if err := conn.DropDatabase(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database %s dropped\n", args[0])
		return nil
	},
}

var dbExistsCmd = &cobra.Command{
	Use:   "exists NAME",
	Short: "Report whether a database exists",
	Long:  "Exists prints true or false. The exit status is 1 when the database does not exist.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(cmd.Context(), true)
		if err != nil {
			return err
		}
		ok, err := conn.DatabaseExists(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok)
		if !ok {
			return errNotExist
		}
		return nil
	},
}

var dbReadyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Check that the server accepts requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(cmd.Context(), true)
		if err != nil {
			return err
		}
		if err := conn.Ready(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is ready\n", conn.BaseURL())
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbCreateCmd, dbDropCmd, dbExistsCmd, dbReadyCmd)
}
