package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/activity-points-api/internal/workflow"
)

// policyDocument is the on-disk shape of a policy table.
type policyDocument struct {
	Edges []workflow.Edge `yaml:"edges" json:"edges"`
}

var (
	dumpType   string
	dumpFormat string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the policy table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entity := workflow.EntityType(strings.ToLower(dumpType))
		if entity != "" && !entity.Valid() {
			return fmt.Errorf("unknown entity type %q", dumpType)
		}
		doc := policyDocument{Edges: workflow.DefaultPolicy().Edges(entity)}
		out := cmd.OutOrStdout()

		if jsonOutput {
			return writeJSON(out, doc)
		}

		switch dumpFormat {
		case "yaml":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		case "table":
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tFROM\tACTION\tROLES\tTO\tGUARD")
			for _, edge := range doc.Edges {
				roles := make([]string, len(edge.Roles))
				for i, role := range edge.Roles {
					roles[i] = string(role)
				}
				guard := string(edge.Guard)
				if guard == "" {
					guard = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", edge.Type, edge.From, edge.Action, strings.Join(roles, ","), edge.To, guard)
			}
			return tw.Flush()
		default:
			return fmt.Errorf("unknown format %q (want yaml or table)", dumpFormat)
		}
	},
}

// checkResult is the machine-readable answer of the check command.
type checkResult struct {
	Allowed   bool              `json:"allowed"`
	Edge      *workflow.Edge    `json:"edge,omitempty"`
	Available []workflow.Option `json:"available"`
}

var checkCmd = &cobra.Command{
	Use:   "check <entity-type> <state> <action> <role>",
	Short: "Report whether a role may apply an action in a state",
	Long: `check resolves one (entity type, state, action, role) tuple against the
policy table. Guards that depend on the record itself are reported but not
evaluated. The command exits non-zero when the transition is forbidden.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity := workflow.EntityType(strings.ToLower(args[0]))
		if !entity.Valid() {
			return fmt.Errorf("unknown entity type %q", args[0])
		}
		state := workflow.State(strings.ToLower(args[1]))
		action := workflow.Action(strings.ToLower(args[2]))
		role := workflow.ParseRole(args[3])

		policy := workflow.DefaultPolicy()
		result := checkResult{Available: policy.Available(entity, state, role)}
		if edge, ok := policy.Lookup(entity, state, action, role); ok {
			result.Allowed = true
			result.Edge = &edge
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := writeJSON(out, result); err != nil {
				return err
			}
		} else if result.Allowed {
			fmt.Fprintf(out, "allowed: %s %s --%s--> %s\n", entity, state, action, result.Edge.To)
			if result.Edge.Guard != workflow.GuardNone {
				fmt.Fprintf(out, "guard: %s\n", result.Edge.Guard)
			}
		} else {
			fmt.Fprintf(out, "forbidden: %s may not %s a %s %s\n", role, action, state, entity)
			for _, option := range result.Available {
				fmt.Fprintf(out, "  available: %s -> %s\n", option.Action, option.To)
			}
		}

		if !result.Allowed {
			return fmt.Errorf("transition forbidden")
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <policy-file>",
	Short: "Validate a candidate policy file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read policy: %w", err)
		}

		var doc policyDocument
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse policy: %w", err)
		}
		if len(doc.Edges) == 0 {
			return fmt.Errorf("policy %s declares no edges", args[0])
		}

		problems := workflow.ValidateEdges(doc.Edges)
		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := writeJSON(out, map[string]any{"edges": len(doc.Edges), "problems": problems}); err != nil {
				return err
			}
		} else {
			for _, problem := range problems {
				fmt.Fprintln(out, problem)
			}
		}

		if len(problems) > 0 {
			return fmt.Errorf("%d problem(s) in %s", len(problems), args[0])
		}
		if !jsonOutput {
			fmt.Fprintf(out, "%s: %d edges ok\n", args[0], len(doc.Edges))
		}
		return nil
	},
}

func init() {
	dumpCmd.Flags().StringVar(&dumpType, "type", "", "only print edges of this entity type")
	dumpCmd.Flags().StringVar(&dumpFormat, "format", "yaml", "output format: yaml or table")
}
