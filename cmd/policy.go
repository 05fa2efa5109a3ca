package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/services/iam"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the role-permission policy table",
	Long:  `Commands for inspecting the active role-permission policy without starting the server.`,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the loaded policy table",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := iam.NewPolicyTable(cfg.Policy)
		if err != nil {
			return fmt.Errorf("load policy table: %w", err)
		}
		snapshot := table.Get()

		roles := make([]string, 0, len(snapshot.Roles))
		for role := range snapshot.Roles {
			roles = append(roles, role)
		}
		sort.Strings(roles)

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROLE\tPERMISSIONS")
		for _, role := range roles {
			fmt.Fprintf(w, "%s\t%s\n", role, strings.Join(snapshot.Roles[role], ", "))
		}
		return w.Flush()
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <role> <permission>",
	Short: "Check whether a role grants a permission",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, permission := args[0], args[1]

		table, err := iam.NewPolicyTable(cfg.Policy)
		if err != nil {
			return fmt.Errorf("load policy table: %w", err)
		}
		if !table.KnownRole(role) {
			return fmt.Errorf("unknown role %q", role)
		}

		if table.Allows([]string{role}, permission) {
			fmt.Printf("ALLOW: role %q grants %q\n", role, permission)
			return nil
		}
		fmt.Printf("DENY: role %q does not grant %q\n", role, permission)
		os.Exit(1)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyCheckCmd)
}
