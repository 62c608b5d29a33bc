package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bhavikpatel576/timely/internal/api"
	"github.com/Bhavikpatel576/timely/internal/bootstrap"
	"github.com/Bhavikpatel576/timely/internal/config"
	"github.com/Bhavikpatel576/timely/internal/domain"
)

var (
	ruleField       string
	resolveApp      string
	resolveTitle    string
	resolveDomain   string
	migrateSkipSeed bool
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage classification rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in evaluation order",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesSetCmd = &cobra.Command{
	Use:   "set <pattern> <category>",
	Short: "Create or retarget a user rule and recategorize matching events",
	Example: `  timely rules set Slack work/communication
  timely rules set --field url_domain news.ycombinator.com entertainment/social`,
	Args: cobra.ExactArgs(2),
	RunE: runRulesSet,
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <id> <category>",
	Short: "Point a user rule at another category",
	Args:  cobra.ExactArgs(2),
	RunE:  runRulesUpdate,
}

var rulesRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a user rule; matching events fall back to a built-in rule or uncategorized",
	Args:    cobra.ExactArgs(1),
	RunE:    runRulesRm,
}

var rulesResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show which rule would classify the given attributes",
	Args:  cobra.NoArgs,
	RunE:  runRulesResolve,
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Assign categories to events no rule has classified yet",
	Args:  cobra.NoArgs,
	RunE:  runClassify,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and the built-in catalog",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rulesSetCmd.Flags().StringVarP(&ruleField, "field", "f", "app", "app, url_domain or title")
	rulesResolveCmd.Flags().StringVar(&resolveApp, "app", "", "app name")
	rulesResolveCmd.Flags().StringVar(&resolveTitle, "title", "", "window title")
	rulesResolveCmd.Flags().StringVar(&resolveDomain, "domain", "", "url domain")
	migrateCmd.Flags().BoolVar(&migrateSkipSeed, "no-seed", false, "only apply schema migrations")

	rulesCmd.AddCommand(rulesListCmd, rulesSetCmd, rulesUpdateCmd, rulesRmCmd, rulesResolveCmd)
	rootCmd.AddCommand(rulesCmd, classifyCmd, migrateCmd)
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		rules, err := svc.ListRules(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			out := make([]api.RuleView, 0, len(rules))
			for _, r := range rules {
				out = append(out, api.NewRuleView(r))
			}
			return printJSON(cmd, out)
		}
		t := newTable("ID", "Field", "Pattern", "Category", "Priority", "")
		for _, r := range rules {
			kind := "user"
			if r.IsBuiltin {
				kind = dimStyle.Render("built-in")
			}
			t.Row(strconv.FormatInt(r.ID, 10), r.Field.String(), r.Pattern, r.CategoryName, strconv.Itoa(r.Priority), kind)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return nil
	})
}

func runRulesSet(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		catID, err := lookupCategory(ctx, svc, args[1])
		if err != nil {
			return err
		}
		res, err := svc.UpsertRule(ctx, domain.UpsertRuleInput{Field: ruleField, Pattern: args[0], CategoryID: catID})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, api.MutationResponse{Success: true, Updated: &res.Affected, RuleID: res.RuleID})
		}
		verb := "updated"
		if res.Created {
			verb = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rule %d %s, %d events recategorized\n", res.RuleID, verb, res.Affected)
		return nil
	})
}

func runRulesUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseRuleID(args[0])
	if err != nil {
		return err
	}
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		catID, err := lookupCategory(ctx, svc, args[1])
		if err != nil {
			return err
		}
		n, err := svc.UpdateRuleCategory(ctx, id, catID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, api.MutationResponse{Success: true, Updated: &n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rule %d updated, %d events recategorized\n", id, n)
		return nil
	})
}

func runRulesRm(cmd *cobra.Command, args []string) error {
	id, err := parseRuleID(args[0])
	if err != nil {
		return err
	}
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		n, err := svc.DeleteRule(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, api.MutationResponse{Success: true, Recategorized: &n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rule %d deleted, %d events recategorized\n", id, n)
		return nil
	})
}

func runRulesResolve(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		res, err := svc.Resolve(ctx, optional(resolveApp), optional(resolveTitle), optional(resolveDomain))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, api.ResolutionView{RuleID: res.RuleID, CategoryID: res.CategoryID, Category: res.Category})
		}
		w := cmd.OutOrStdout()
		if res.RuleID == nil {
			fmt.Fprintf(w, "%s %s\n", res.Category, dimStyle.Render("(no rule matched)"))
			return nil
		}
		fmt.Fprintf(w, "%s %s\n", res.Category, dimStyle.Render(fmt.Sprintf("(rule %d)", *res.RuleID)))
		return nil
	})
}

func runClassify(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		n, err := svc.ClassifyPending(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, api.MutationResponse{Success: true, Classified: &n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d events classified\n", n)
		return nil
	})
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx, func(c *config.Config) { c.AutoMigrate = true }, bootstrap.Options{SkipSeed: migrateSkipSeed})
	if err != nil {
		return err
	}
	defer app.Close()
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

// lookupCategory accepts a numeric id or a category name.
func lookupCategory(ctx context.Context, svc *domain.Service, ref string) (int64, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	cats, err := svc.ListCategories(ctx)
	if err != nil {
		return 0, err
	}
	for _, c := range cats {
		if strings.EqualFold(c.Name, ref) {
			return c.ID, nil
		}
	}
	return 0, &domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", ref)}
}

func parseRuleID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
