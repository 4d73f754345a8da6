package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"saber/cmd"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "saber",
		Short:         "saber runs and debugs Saber bytecode programs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), debugCmd(), asmCmd())
	return root
}

func asmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "asm <file>",
		Short: "assemble a Saber program and print its bytecode listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Disassemble(args[0], c.OutOrStdout())
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "assemble and execute a Saber program",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := cmd.Run(args[0], c.OutOrStdout()); err != nil {
				return fmt.Errorf("%+v", err)
			}
			return nil
		},
	}
}

func debugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug <file>",
		Short: "run a Saber program under the time-travel debugger",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Debug(args[0], c.InOrStdin(), c.OutOrStdout(), c.OutOrStdout())
		},
	}
}
