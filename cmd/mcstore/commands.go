package main

import (
	"fmt"
	"time"

	"github.com/goforj/mcstore/driver"
	"github.com/goforj/mcstore/storecore"
	"github.com/spf13/cobra"
)

func (a *app) ttl() time.Duration {
	return a.v.GetDuration("ttl")
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func (a *app) getManyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-many [key...]",
		Short: "Print the values of several keys, one per line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := a.store.GetMany(cmd.Context(), args...)
			if err != nil {
				return err
			}
			for i, v := range values {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", args[i], v)
			}
			return nil
		},
	}
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value] [key value...]",
		Short: "Store string values; several pairs are written as one batch",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 || len(args)%2 != 0 {
				return fmt.Errorf("expected key value pairs, got %d args", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				return a.store.Set(cmd.Context(), args[0], args[1], a.ttl())
			}
			entries := make([]storecore.Entry, 0, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				entries = append(entries, storecore.Entry{Key: args[i], Value: args[i+1]})
			}
			return a.store.SetMany(cmd.Context(), entries, a.ttl())
		},
	}
}

func (a *app) delCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del [key...]",
		Short: "Delete one or more keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.store.Del(cmd.Context(), args[0])
			}
			return a.store.DelMany(cmd.Context(), args...)
		},
	}
}

func (a *app) flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Remove every entry in the store namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.store.Reset(cmd.Context())
		},
	}
}

func (a *app) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check backend connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.Ready(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", a.store.Driver())
			return nil
		},
	}
}

func (a *app) ttlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ttl [key]",
		Short: "Print the remaining ttl of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.store.TTL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

func (a *app) keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys [pattern]",
		Short: "List keys matching a pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			keys, err := a.store.Keys(cmd.Context(), pattern)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func driversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List available drivers",
		Args:  cobra.NoArgs,
		// No store is needed to list drivers.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range driver.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
